package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aihub/classroom-rag/internal/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// StatusCache 记录文档当前所处的流水线步骤，供状态查询使用
type StatusCache interface {
	SetStep(ctx context.Context, documentID uint, step string)
	Step(ctx context.Context, documentID uint) (string, bool)
	Clear(ctx context.Context, documentID uint)
}

// RedisStatusCache Redis 实现，写失败只记日志不影响摄取
type RedisStatusCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisStatusCache 创建状态缓存
func NewRedisStatusCache(client redis.Cmdable, ttl time.Duration) *RedisStatusCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStatusCache{client: client, ttl: ttl}
}

func statusKey(documentID uint) string {
	return fmt.Sprintf("edurag:document:%d:step", documentID)
}

func (c *RedisStatusCache) SetStep(ctx context.Context, documentID uint, step string) {
	if err := c.client.Set(ctx, statusKey(documentID), step, c.ttl).Err(); err != nil {
		logger.Warn("failed to cache document step",
			zap.Uint("document_id", documentID),
			zap.String("step", step),
			zap.Error(err))
	}
}

func (c *RedisStatusCache) Step(ctx context.Context, documentID uint) (string, bool) {
	step, err := c.client.Get(ctx, statusKey(documentID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Warn("failed to read document step", zap.Uint("document_id", documentID), zap.Error(err))
		}
		return "", false
	}
	return step, true
}

func (c *RedisStatusCache) Clear(ctx context.Context, documentID uint) {
	_ = c.client.Del(ctx, statusKey(documentID)).Err()
}

type noopStatusCache struct{}

func (noopStatusCache) SetStep(context.Context, uint, string)     {}
func (noopStatusCache) Step(context.Context, uint) (string, bool) { return "", false }
func (noopStatusCache) Clear(context.Context, uint)               {}
