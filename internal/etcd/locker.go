package etcd

import (
	"context"
	"fmt"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
	"go.uber.org/zap"
)

// Locker 基于 etcd 互斥锁的文档锁，会话租约过期后锁自动释放
type Locker struct {
	client *clientv3.Client
	ttl    int
	prefix string
	logger *zap.Logger
}

// NewLocker 创建文档锁，ttl 为会话租约时长
func NewLocker(c *Client, ttl time.Duration) (*Locker, error) {
	if !c.IsEnabled() {
		return nil, fmt.Errorf("etcd is not enabled")
	}
	return &Locker{
		client: c.client,
		ttl:    leaseSeconds(ttl),
		prefix: "/edurag/locks/documents/",
		logger: c.logger,
	}, nil
}

func leaseSeconds(ttl time.Duration) int {
	s := int(ttl / time.Second)
	if s <= 0 {
		return 60
	}
	return s
}

// LockKey 文档锁在 etcd 中的前缀
func (l *Locker) LockKey(documentID uint) string {
	return fmt.Sprintf("%s%d", l.prefix, documentID)
}

// Lock 阻塞直到拿到锁或 ctx 结束
func (l *Locker) Lock(ctx context.Context, documentID uint) (func(), error) {
	session, err := concurrency.NewSession(l.client, concurrency.WithTTL(l.ttl))
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd session: %w", err)
	}
	mutex := concurrency.NewMutex(session, l.LockKey(documentID))
	if err := mutex.Lock(ctx); err != nil {
		_ = session.Close()
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := mutex.Unlock(unlockCtx); err != nil {
				l.logger.Warn("failed to release document lock",
					zap.Uint("document_id", documentID), zap.Error(err))
			}
			_ = session.Close()
		})
	}, nil
}
