package middleware

import (
	"sync"

	apperrors "github.com/aihub/classroom-rag/internal/errors"
	"github.com/beego/beego/v2/server/web"
	beecontext "github.com/beego/beego/v2/server/web/context"
	"golang.org/x/time/rate"
)

// RateLimiter 按用户的令牌桶限流
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[uint]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewRateLimiter 每个用户每秒 perSecond 次，突发 burst 次
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limiters: make(map[uint]*rate.Limiter),
		limit:    rate.Limit(perSecond),
		burst:    burst,
	}
}

// Allow 消耗一个令牌
func (rl *RateLimiter) Allow(userID uint) bool {
	rl.mu.Lock()
	l, ok := rl.limiters[userID]
	if !ok {
		l = rate.NewLimiter(rl.limit, rl.burst)
		rl.limiters[userID] = l
	}
	rl.mu.Unlock()
	return l.Allow()
}

// Filter 需在 Auth 之后注册
func (rl *RateLimiter) Filter() web.FilterFunc {
	return func(ctx *beecontext.Context) {
		if ctx.Input.Method() != "POST" {
			return
		}
		actor, ok := ActorFrom(ctx)
		if !ok {
			return
		}
		if !rl.Allow(actor.UserID) {
			Abort(ctx, apperrors.New(apperrors.ErrCodeTooManyRequests, "rate limit exceeded"))
		}
	}
}
