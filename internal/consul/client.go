package consul

import (
	"fmt"

	"github.com/hashicorp/consul/api"
	"go.uber.org/zap"
)

// Client Consul API 客户端封装
type Client struct {
	apiClient *api.Client
	enabled   bool
	logger    *zap.Logger
}

// NewClient 创建 Consul 客户端，连接失败时退化为未启用
func NewClient(address string, enabled bool, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !enabled {
		return &Client{enabled: false, logger: logger}, nil
	}

	config := api.DefaultConfig()
	if address != "" {
		config.Address = address
	}
	apiClient, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Consul client: %w", err)
	}

	if _, _, err := apiClient.Health().State(api.HealthAny, nil); err != nil {
		logger.Warn("Consul connection test failed, service registration disabled", zap.Error(err))
		return &Client{enabled: false, logger: logger}, nil
	}

	logger.Info("Consul client initialized", zap.String("address", config.Address))
	return &Client{apiClient: apiClient, enabled: true, logger: logger}, nil
}

// IsEnabled 是否可用
func (c *Client) IsEnabled() bool {
	return c != nil && c.enabled && c.apiClient != nil
}

// GetKV 读取 KV，键不存在时返回 ok=false
func (c *Client) GetKV(key string) (value string, ok bool, err error) {
	if !c.IsEnabled() {
		return "", false, fmt.Errorf("consul is not enabled")
	}
	pair, _, err := c.apiClient.KV().Get(key, nil)
	if err != nil {
		return "", false, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	if pair == nil {
		return "", false, nil
	}
	return string(pair.Value), true, nil
}

// RegisterService 注册服务
func (c *Client) RegisterService(registration *api.AgentServiceRegistration) error {
	if !c.IsEnabled() {
		return fmt.Errorf("consul is not enabled")
	}
	if err := c.apiClient.Agent().ServiceRegister(registration); err != nil {
		return fmt.Errorf("failed to register service: %w", err)
	}
	return nil
}

// DeregisterService 注销服务
func (c *Client) DeregisterService(serviceID string) error {
	if !c.IsEnabled() {
		return nil
	}
	if err := c.apiClient.Agent().ServiceDeregister(serviceID); err != nil {
		return fmt.Errorf("failed to deregister service: %w", err)
	}
	c.logger.Info("Service deregistered from Consul", zap.String("service_id", serviceID))
	return nil
}
