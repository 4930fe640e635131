package knowledge

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/aihub/classroom-rag/internal/errors"
	"github.com/aihub/classroom-rag/internal/logger"
	"github.com/aihub/classroom-rag/internal/retry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Embedder 定义文本向量化接口
//
// Embed 必须是文本与模型的确定性函数；EmbedMany 保持输入顺序，
// 且结果与逐条调用 Embed 完全一致。
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	ModelName() string
	Ready() bool
}

// NoopEmbedder 默认占位实现
type NoopEmbedder struct{}

func (n *NoopEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, apperrors.NewEmbeddingFailed(errors.New("embedding provider not configured"))
}

func (n *NoopEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, apperrors.NewEmbeddingFailed(errors.New("embedding provider not configured"))
}

func (n *NoopEmbedder) Dimensions() int   { return 0 }
func (n *NoopEmbedder) ModelName() string { return "" }
func (n *NoopEmbedder) Ready() bool       { return false }

// RetryingEmbedder 对 EMBEDDING_FAILED 做有界退避重试
type RetryingEmbedder struct {
	Embedder
	attempts  int
	baseDelay time.Duration
}

// NewRetryingEmbedder 包装嵌入器，attempts 为总尝试次数
func NewRetryingEmbedder(inner Embedder, attempts int, baseDelay time.Duration) *RetryingEmbedder {
	return &RetryingEmbedder{Embedder: inner, attempts: attempts, baseDelay: baseDelay}
}

func (r *RetryingEmbedder) policy() retry.Policy {
	return retry.Policy{
		Attempts:  r.attempts,
		BaseDelay: r.baseDelay,
		MaxDelay:  5 * time.Second,
		Retryable: func(err error) bool {
			return apperrors.IsCode(err, apperrors.ErrCodeEmbeddingFailed)
		},
		OnRetry: func(attempt int, err error) {
			logger.Warn("embedding call failed, retrying",
				zap.String("model", r.ModelName()),
				zap.Int("attempt", attempt),
				zap.Error(err))
		},
	}
}

func (r *RetryingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var out []float32
	err := retry.Do(ctx, r.policy(), func(ctx context.Context) error {
		v, err := r.Embedder.Embed(ctx, text)
		out = v
		return err
	})
	return out, err
}

func (r *RetryingEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	var out [][]float32
	err := retry.Do(ctx, r.policy(), func(ctx context.Context) error {
		v, err := r.Embedder.EmbedMany(ctx, texts)
		out = v
		return err
	})
	return out, err
}

// EmbedInBatches 按批并行调用 EmbedMany，结果与输入顺序一致
func EmbedInBatches(ctx context.Context, e Embedder, texts []string, batchSize, parallel int) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if batchSize <= 0 {
		batchSize = len(texts)
	}
	if parallel <= 0 {
		parallel = 1
	}

	vectors := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)

	for start := 0; start < len(texts); start += batchSize {
		start := start
		end := min(start+batchSize, len(texts))
		g.Go(func() error {
			batch, err := e.EmbedMany(gctx, texts[start:end])
			if err != nil {
				return err
			}
			if len(batch) != end-start {
				return apperrors.NewEmbeddingFailed(
					fmt.Errorf("embedder returned %d vectors for %d inputs", len(batch), end-start))
			}
			copy(vectors[start:end], batch)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	dims := e.Dimensions()
	for i, v := range vectors {
		if dims > 0 && len(v) != dims {
			return nil, apperrors.NewEmbeddingFailed(
				fmt.Errorf("vector %d has dimension %d, want %d", i, len(v), dims))
		}
	}
	return vectors, nil
}
