package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/aihub/classroom-rag/internal/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DocumentLocker 串行化同一文档的摄取，不同文档互不影响
type DocumentLocker interface {
	Lock(ctx context.Context, documentID uint) (unlock func(), err error)
}

// LocalLocker 进程内按文档加锁
type LocalLocker struct {
	mu    sync.Mutex
	locks map[uint]*docLock
}

type docLock struct {
	ch   chan struct{}
	refs int
}

// NewLocalLocker 创建进程内锁
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[uint]*docLock)}
}

func (l *LocalLocker) Lock(ctx context.Context, documentID uint) (func(), error) {
	l.mu.Lock()
	dl, ok := l.locks[documentID]
	if !ok {
		dl = &docLock{ch: make(chan struct{}, 1)}
		l.locks[documentID] = dl
	}
	dl.refs++
	l.mu.Unlock()

	select {
	case dl.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(documentID, dl, false)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(documentID, dl, true) })
	}, nil
}

func (l *LocalLocker) release(documentID uint, dl *docLock, held bool) {
	if held {
		<-dl.ch
	}
	l.mu.Lock()
	dl.refs--
	if dl.refs == 0 {
		delete(l.locks, documentID)
	}
	l.mu.Unlock()
}

// RedisLocker 基于 SET NX PX 的跨进程文档锁
type RedisLocker struct {
	client redis.Cmdable
	ttl    time.Duration
	poll   time.Duration
	prefix string
}

// NewRedisLocker 创建 Redis 锁，ttl 需覆盖一次完整摄取
func NewRedisLocker(client redis.Cmdable, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisLocker{client: client, ttl: ttl, poll: 200 * time.Millisecond, prefix: "edurag:lock:document:"}
}

// 只有持有者才能释放
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

func (l *RedisLocker) Lock(ctx context.Context, documentID uint) (func(), error) {
	key := fmt.Sprintf("%s%d", l.prefix, documentID)
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, apperrors.NewSystemError(apperrors.ErrCodeInternalServer, "acquire document lock").WithCause(err)
		}
		if ok {
			break
		}
		timer := time.NewTimer(l.poll)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	return func() {
		// 释放不受调用方取消影响
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = unlockScript.Run(releaseCtx, l.client, []string{key}, token).Err()
	}, nil
}
