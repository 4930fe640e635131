package llm

import (
	"strings"
	"time"

	"github.com/aihub/classroom-rag/internal/config"
	apperrors "github.com/aihub/classroom-rag/internal/errors"
)

// NewBackend 按配置创建生成后端，并加上超时、重试与熔断
func NewBackend(cfg config.GenerationConfig) (Backend, error) {
	var (
		inner Backend
		err   error
	)
	switch strings.ToLower(cfg.Provider) {
	case "", "openai":
		inner, err = NewOpenAIBackend(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.MaxTokens)
	case "anthropic":
		inner, err = NewAnthropicBackend(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.MaxTokens)
	default:
		return nil, apperrors.NewInvalidConfiguration("unknown generation provider: " + cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	return NewGuardedBackend(inner, GuardOptions{
		Timeout:    cfg.Timeout,
		MaxRetries: cfg.MaxRetries,
		BaseDelay:  500 * time.Millisecond,
		Breaker:    NewCircuitBreaker(5, 1, 30*time.Second),
	}), nil
}
