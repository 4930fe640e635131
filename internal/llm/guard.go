package llm

import (
	"context"
	"errors"
	"time"

	apperrors "github.com/aihub/classroom-rag/internal/errors"
	"github.com/aihub/classroom-rag/internal/logger"
	"github.com/aihub/classroom-rag/internal/retry"
	"go.uber.org/zap"
)

// GuardOptions 生成调用的保护策略
type GuardOptions struct {
	Timeout    time.Duration
	MaxRetries int
	BaseDelay  time.Duration
	Breaker    *CircuitBreaker
}

// GuardedBackend 为后端加上单次超时、有界重试与熔断
//
// 超时映射为 GENERATION_TIMEOUT 且不重试；其余失败映射为 GENERATION_FAILED。
type GuardedBackend struct {
	inner Backend
	opts  GuardOptions
}

// NewGuardedBackend 包装后端
func NewGuardedBackend(inner Backend, opts GuardOptions) *GuardedBackend {
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 500 * time.Millisecond
	}
	return &GuardedBackend{inner: inner, opts: opts}
}

func (g *GuardedBackend) Model() string { return g.inner.Model() }

func (g *GuardedBackend) Complete(ctx context.Context, prompt string, temperature float32) (string, error) {
	var out string
	policy := retry.Policy{
		Attempts:  g.opts.MaxRetries + 1,
		BaseDelay: g.opts.BaseDelay,
		MaxDelay:  10 * time.Second,
		Retryable: func(err error) bool {
			return apperrors.IsCode(err, apperrors.ErrCodeGenerationFailed) && !errors.Is(err, ErrCircuitOpen)
		},
		OnRetry: func(attempt int, err error) {
			logger.Warn("generation call failed, retrying",
				zap.String("model", g.inner.Model()),
				zap.Int("attempt", attempt),
				zap.Error(err))
		},
	}
	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		text, err := g.once(ctx, prompt, temperature)
		out = text
		return err
	})
	return out, err
}

func (g *GuardedBackend) once(ctx context.Context, prompt string, temperature float32) (string, error) {
	if g.opts.Breaker != nil && !g.opts.Breaker.Allow() {
		return "", apperrors.NewGenerationFailed(ErrCircuitOpen)
	}

	callCtx := ctx
	if g.opts.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.opts.Timeout)
		defer cancel()
	}

	text, err := g.inner.Complete(callCtx, prompt, temperature)
	if g.opts.Breaker != nil {
		g.opts.Breaker.Record(err == nil)
	}
	if err == nil {
		return text, nil
	}

	// 调用方主动取消时原样返回
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) || callCtx.Err() == context.DeadlineExceeded {
		return "", apperrors.NewGenerationTimeout(err)
	}
	if apperrors.CodeOf(err) == apperrors.ErrCodeInternalServer {
		return "", apperrors.NewGenerationFailed(err)
	}
	return "", err
}
