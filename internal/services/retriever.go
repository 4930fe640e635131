package services

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	apperrors "github.com/aihub/classroom-rag/internal/errors"
	"github.com/aihub/classroom-rag/internal/knowledge"
	"github.com/aihub/classroom-rag/internal/logger"
	"go.uber.org/zap"
)

// Scope 检索范围，ClassroomID 必填
type Scope struct {
	ClassroomID uint `json:"classroom_id"`
	DocumentID  uint `json:"document_id,omitempty"`
}

// RetrievedChunk 检索到的分块
type RetrievedChunk struct {
	Text       string  `json:"text"`
	DocumentID uint    `json:"document_id"`
	Filename   string  `json:"filename"`
	ChunkIndex int     `json:"chunk_index"`
	Page       int     `json:"page,omitempty"`
	Score      float32 `json:"score"`
}

// Retriever 按班级隔离的相似度检索，只读不写索引
type Retriever struct {
	embedder knowledge.Embedder
	index    knowledge.VectorIndex
	metrics  *Metrics
	defaultK atomic.Int64
}

// NewRetriever 创建检索器，defaultK 为调用方未指定 k 时的取值
func NewRetriever(embedder knowledge.Embedder, index knowledge.VectorIndex, defaultK int, metrics *Metrics) *Retriever {
	r := &Retriever{embedder: embedder, index: index, metrics: metrics}
	r.SetDefaultK(defaultK)
	return r
}

// SetDefaultK 热更新默认 k
func (r *Retriever) SetDefaultK(k int) {
	if k <= 0 {
		k = 3
	}
	r.defaultK.Store(int64(k))
}

// DefaultK 当前默认 k
func (r *Retriever) DefaultK() int { return int(r.defaultK.Load()) }

// Retrieve 返回范围内最相似的至多 k 个分块，按相似度降序
//
// 过滤条件在检索时下推给索引，classroom_id 为 0 时返回 SCOPE_VIOLATION。
func (r *Retriever) Retrieve(ctx context.Context, query string, scope Scope, k int) (chunks []RetrievedChunk, err error) {
	started := time.Now()
	defer func() { r.metrics.retrievalDone(started, err) }()

	if scope.ClassroomID == 0 {
		return nil, apperrors.NewScopeViolation("retrieval requires a classroom_id")
	}
	if strings.TrimSpace(query) == "" {
		return nil, apperrors.NewValidationError("query must not be empty")
	}
	if k <= 0 {
		k = r.DefaultK()
	}

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, stepError(err, apperrors.NewEmbeddingFailed)
	}
	matches, err := r.index.Search(ctx, vec, k, knowledge.Filter{
		ClassroomID: scope.ClassroomID,
		DocumentID:  scope.DocumentID,
	})
	if err != nil {
		return nil, err
	}

	chunks = make([]RetrievedChunk, 0, len(matches))
	for _, m := range matches {
		// 索引实现出错时不让越界结果流出
		if m.Metadata.ClassroomID != scope.ClassroomID ||
			(scope.DocumentID != 0 && m.Metadata.DocumentID != scope.DocumentID) {
			logger.Error("vector index returned chunk outside scope",
				zap.Uint("classroom_id", scope.ClassroomID),
				zap.Uint("chunk_classroom_id", m.Metadata.ClassroomID))
			continue
		}
		chunks = append(chunks, RetrievedChunk{
			Text:       m.Text,
			DocumentID: m.Metadata.DocumentID,
			Filename:   m.Metadata.Filename,
			ChunkIndex: m.Metadata.ChunkIndex,
			Page:       m.Metadata.Page,
			Score:      m.Score,
		})
	}

	logger.Debug("retrieved chunks",
		zap.Uint("classroom_id", scope.ClassroomID),
		zap.Uint("document_id", scope.DocumentID),
		zap.Int("k", k),
		zap.Int("chunks", len(chunks)))
	return chunks, nil
}

// Texts 取出分块文本
func Texts(chunks []RetrievedChunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Text
	}
	return out
}
