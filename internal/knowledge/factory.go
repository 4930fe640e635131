package knowledge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aihub/classroom-rag/internal/config"
	apperrors "github.com/aihub/classroom-rag/internal/errors"
	"github.com/aihub/classroom-rag/internal/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// NewEmbedder 根据配置创建嵌入器，远端模型外层带重试
func NewEmbedder(cfg config.EmbeddingConfig) (Embedder, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "local":
		return NewLocalEmbedder(cfg.Model, cfg.Dimensions), nil
	case "openai":
		inner := NewOpenAIEmbedder(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Dimensions, cfg.RateLimit)
		if !inner.Ready() {
			logger.Warn("openai embedder has no api key, embedding calls will fail")
		}
		attempts := cfg.MaxRetries + 1
		return NewRetryingEmbedder(inner, attempts, 200*time.Millisecond), nil
	default:
		return nil, apperrors.NewInvalidConfiguration(fmt.Sprintf("unknown embedding provider %q", cfg.Provider))
	}
}

// NewVectorIndex 根据配置创建向量索引，维度取自嵌入器
//
// db 仅在 pgvector 后端下使用，其余后端可传 nil。
func NewVectorIndex(ctx context.Context, cfg config.VectorIndexConfig, embedder Embedder, db *gorm.DB) (VectorIndex, error) {
	dims := embedder.Dimensions()
	if dims <= 0 {
		return nil, apperrors.NewInvalidConfiguration("embedder reports no dimensions")
	}
	provider := strings.ToLower(cfg.Provider)
	logger.Info("creating vector index",
		zap.String("provider", provider),
		zap.String("collection", cfg.Collection),
		zap.Int("dimensions", dims))

	switch provider {
	case "", "local":
		return OpenLocalIndex(cfg.Path, cfg.Collection, embedder.ModelName(), dims)
	case "memory":
		return NewMemoryIndex(dims), nil
	case "milvus":
		return NewMilvusIndex(ctx, MilvusOptions{
			Address:    cfg.Milvus.Address,
			Username:   cfg.Milvus.Username,
			Password:   cfg.Milvus.Password,
			Database:   cfg.Milvus.Database,
			Collection: cfg.Collection,
			Dimensions: dims,
			UseTLS:     cfg.Milvus.TLS,
		})
	case "qdrant":
		return NewQdrantIndex(QdrantOptions{
			Endpoint:   cfg.Qdrant.URL,
			APIKey:     cfg.Qdrant.APIKey,
			Collection: cfg.Collection,
			Dimensions: dims,
		})
	case "pgvector":
		if db == nil {
			return nil, apperrors.NewInvalidConfiguration("pgvector index requires a database connection")
		}
		return NewPGVectorIndex(ctx, db, cfg.Collection, dims)
	case "elasticsearch":
		return NewElasticIndex(ElasticOptions{
			Addresses:  cfg.Elasticsearch.Addresses,
			Username:   cfg.Elasticsearch.Username,
			Password:   cfg.Elasticsearch.Password,
			APIKey:     cfg.Elasticsearch.APIKey,
			Collection: cfg.Collection,
			Dimensions: dims,
		})
	default:
		return nil, apperrors.NewInvalidConfiguration(fmt.Sprintf("unknown vector index provider %q", cfg.Provider))
	}
}
