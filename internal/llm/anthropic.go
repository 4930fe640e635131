package llm

import (
	"context"
	"errors"
	"strings"

	apperrors "github.com/aihub/classroom-rag/internal/errors"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicBackend 基于 Messages API 的生成后端
type AnthropicBackend struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropicBackend 创建后端
func NewAnthropicBackend(apiKey, baseURL, model string, maxTokens int) (*AnthropicBackend, error) {
	if apiKey == "" {
		return nil, apperrors.NewInvalidConfiguration("generation api key not configured")
	}
	// 重试由 GuardedBackend 统一负责
	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	if model == "" {
		model = "claude-3-5-haiku-latest"
	}
	return &AnthropicBackend{
		client:    anthropic.NewClient(opts...),
		model:     model,
		maxTokens: int64(maxTokens),
	}, nil
}

func (b *AnthropicBackend) Model() string { return b.model }

func (b *AnthropicBackend) Complete(ctx context.Context, prompt string, temperature float32) (string, error) {
	msg, err := b.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(b.model),
		MaxTokens:   b.maxTokens,
		Temperature: anthropic.Float(float64(temperature)),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return "", err
		}
		return "", apperrors.NewGenerationFailed(err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", apperrors.NewGenerationFailed(errors.New("response contained no text"))
	}
	return sb.String(), nil
}
