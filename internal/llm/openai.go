package llm

import (
	"context"
	"errors"
	"math"

	apperrors "github.com/aihub/classroom-rag/internal/errors"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIBackend 基于 Chat Completions 的生成后端，兼容 OpenAI 协议的服务均可使用
type OpenAIBackend struct {
	client    *openai.Client
	model     string
	maxTokens int
}

// NewOpenAIBackend 创建后端，baseURL 为空时使用官方地址
func NewOpenAIBackend(apiKey, baseURL, model string, maxTokens int) (*OpenAIBackend, error) {
	if apiKey == "" {
		return nil, apperrors.NewInvalidConfiguration("generation api key not configured")
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIBackend{client: openai.NewClientWithConfig(cfg), model: model, maxTokens: maxTokens}, nil
}

func (b *OpenAIBackend) Model() string { return b.model }

func (b *OpenAIBackend) Complete(ctx context.Context, prompt string, temperature float32) (string, error) {
	// 0 会因 omitempty 被省略，服务端按默认温度处理
	if temperature == 0 {
		temperature = math.SmallestNonzeroFloat32
	}
	resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       b.model,
		Temperature: temperature,
		MaxTokens:   b.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return "", err
		}
		return "", apperrors.NewGenerationFailed(err)
	}
	if len(resp.Choices) == 0 {
		return "", apperrors.NewGenerationFailed(errors.New("empty completion"))
	}
	return resp.Choices[0].Message.Content, nil
}
