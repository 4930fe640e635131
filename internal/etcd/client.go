package etcd

import (
	"context"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

// Client etcd 客户端，未启用或连不上时 IsEnabled 为 false
type Client struct {
	client  *clientv3.Client
	enabled bool
	logger  *zap.Logger
}

// NewClient 创建 etcd 客户端
func NewClient(endpoints []string, enabled bool, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !enabled {
		return &Client{enabled: false, logger: logger}, nil
	}
	if len(endpoints) == 0 {
		endpoints = []string{"http://localhost:2379"}
	}

	client, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if _, err := client.Status(ctx, endpoints[0]); err != nil {
		logger.Warn("etcd connection test failed, falling back to local document locks", zap.Error(err))
		_ = client.Close()
		return &Client{enabled: false, logger: logger}, nil
	}

	logger.Info("etcd client initialized", zap.Strings("endpoints", endpoints))
	return &Client{client: client, enabled: true, logger: logger}, nil
}

// IsEnabled 是否可用
func (c *Client) IsEnabled() bool {
	return c != nil && c.enabled && c.client != nil
}

// GetClient 底层客户端
func (c *Client) GetClient() *clientv3.Client {
	return c.client
}

// Close 关闭连接
func (c *Client) Close() error {
	if c != nil && c.client != nil {
		return c.client.Close()
	}
	return nil
}
