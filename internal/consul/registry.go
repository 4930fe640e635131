package consul

import (
	"fmt"
	"os"
	"strconv"

	"github.com/aihub/classroom-rag/internal/config"
	"github.com/hashicorp/consul/api"
	"go.uber.org/zap"
)

// ServiceRegistry 把 HTTP 服务注册到 Consul，健康检查指向 /health
type ServiceRegistry struct {
	client      *Client
	serviceID   string
	serviceName string
	logger      *zap.Logger
}

// NewServiceRegistry 创建服务注册器
func NewServiceRegistry(client *Client, serviceID, serviceName string, logger *zap.Logger) *ServiceRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ServiceRegistry{client: client, serviceID: serviceID, serviceName: serviceName, logger: logger}
}

// Registration 根据配置构造注册信息
func (sr *ServiceRegistry) Registration(cfg *config.Config) *api.AgentServiceRegistration {
	hostname := os.Getenv("SERVICE_HOST")
	if hostname == "" {
		hostname = "localhost"
	}
	port := 8000
	if p, err := strconv.Atoi(cfg.Server.Port); err == nil && p > 0 {
		port = p
	}

	return &api.AgentServiceRegistration{
		ID:      sr.serviceID,
		Name:    sr.serviceName,
		Tags:    []string{"api", "rag", "beego", cfg.Server.Env},
		Address: hostname,
		Port:    port,
		Check: &api.AgentServiceCheck{
			HTTP:                           fmt.Sprintf("http://%s:%d/health", hostname, port),
			Interval:                       "10s",
			Timeout:                        "3s",
			DeregisterCriticalServiceAfter: "30s",
		},
		Meta: map[string]string{
			"env":             cfg.Server.Env,
			"vector_index":    cfg.VectorIndex.Provider,
			"embedding_model": cfg.Embedding.Model,
		},
	}
}

// Register 注册服务，Consul 未启用时跳过
func (sr *ServiceRegistry) Register(cfg *config.Config) error {
	if !sr.client.IsEnabled() {
		sr.logger.Info("Consul is not enabled, skipping service registration")
		return nil
	}
	reg := sr.Registration(cfg)
	if err := sr.client.RegisterService(reg); err != nil {
		return err
	}
	sr.logger.Info("Service registered with Consul",
		zap.String("service_id", reg.ID),
		zap.String("service_name", reg.Name),
		zap.String("address", reg.Address),
		zap.Int("port", reg.Port))
	return nil
}

// Deregister 注销服务，由 bootstrap 的清理流程调用
func (sr *ServiceRegistry) Deregister() error {
	return sr.client.DeregisterService(sr.serviceID)
}
