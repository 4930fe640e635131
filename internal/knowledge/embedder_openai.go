package knowledge

import (
	"context"
	"fmt"
	"strings"

	apperrors "github.com/aihub/classroom-rag/internal/errors"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

var embeddingDimensions = map[string]int{
	"text-embedding-3-large": 3072,
	"text-embedding-3-small": 1536,
	"text-embedding-ada-002": 1536,
}

// OpenAIEmbedder 使用OpenAI兼容的Embedding API
type OpenAIEmbedder struct {
	client     *openai.Client
	model      string
	dimensions int
	limiter    *rate.Limiter
}

// NewOpenAIEmbedder 创建OpenAI嵌入向量生成器，apiKey 为空时返回 NoopEmbedder
func NewOpenAIEmbedder(apiKey, baseURL, model string, dims int, rps float64) Embedder {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return &NoopEmbedder{}
	}
	if model == "" {
		model = "text-embedding-3-small"
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	if known, ok := embeddingDimensions[model]; ok && dims <= 0 {
		dims = known
	}
	if dims <= 0 {
		dims = 1536
	}

	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}

	return &OpenAIEmbedder{
		client:     openai.NewClientWithConfig(cfg),
		model:      model,
		dimensions: dims,
		limiter:    rate.NewLimiter(limit, 1),
	}
}

// Embed 走批量接口，保证与 EmbedMany 结果一致
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *OpenAIEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req := openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: texts,
	}
	if strings.HasPrefix(e.model, "text-embedding-3") {
		req.Dimensions = e.dimensions
	}

	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, apperrors.NewEmbeddingFailed(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, apperrors.NewEmbeddingFailed(
			fmt.Errorf("embedding response has %d items for %d inputs", len(resp.Data), len(texts)))
	}

	out := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(texts) {
			return nil, apperrors.NewEmbeddingFailed(fmt.Errorf("embedding index %d out of range", item.Index))
		}
		vec := make([]float32, len(item.Embedding))
		copy(vec, item.Embedding)
		out[item.Index] = vec
	}
	for i, v := range out {
		if v == nil {
			return nil, apperrors.NewEmbeddingFailed(fmt.Errorf("embedding missing for input %d", i))
		}
	}
	return out, nil
}

func (e *OpenAIEmbedder) Dimensions() int   { return e.dimensions }
func (e *OpenAIEmbedder) ModelName() string { return e.model }
func (e *OpenAIEmbedder) Ready() bool       { return e.client != nil }
