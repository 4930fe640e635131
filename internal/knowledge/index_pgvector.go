package knowledge

import (
	"context"
	"fmt"

	apperrors "github.com/aihub/classroom-rag/internal/errors"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

// pgChunkRow vector_chunks 表的一行
type pgChunkRow struct {
	Seq         int64           `gorm:"column:seq"`
	ID          string          `gorm:"column:id"`
	Collection  string          `gorm:"column:collection"`
	DocumentID  uint            `gorm:"column:document_id"`
	ClassroomID uint            `gorm:"column:classroom_id"`
	Filename    string          `gorm:"column:filename"`
	ChunkIndex  int             `gorm:"column:chunk_index"`
	Page        int             `gorm:"column:page"`
	Content     string          `gorm:"column:content"`
	Embedding   pgvector.Vector `gorm:"column:embedding"`
	Score       float32         `gorm:"column:score;->"`
}

func (pgChunkRow) TableName() string { return "vector_chunks" }

func (r pgChunkRow) metadata() ChunkMetadata {
	return ChunkMetadata{
		DocumentID:  r.DocumentID,
		ClassroomID: r.ClassroomID,
		Filename:    r.Filename,
		ChunkIndex:  r.ChunkIndex,
		Page:        r.Page,
	}
}

// PGVectorIndex 基于 PostgreSQL pgvector 扩展的向量索引，与关系库共用连接
type PGVectorIndex struct {
	db         *gorm.DB
	collection string
	dims       int
}

// NewPGVectorIndex 创建索引并确保扩展与表结构存在
func NewPGVectorIndex(ctx context.Context, db *gorm.DB, collection string, dims int) (*PGVectorIndex, error) {
	if dims <= 0 {
		return nil, apperrors.NewInvalidConfiguration("pgvector index dimensions must be positive")
	}
	idx := &PGVectorIndex{db: db, collection: collection, dims: dims}
	if err := idx.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return idx, nil
}

func (p *PGVectorIndex) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS vector_chunks (
			seq BIGSERIAL PRIMARY KEY,
			id UUID NOT NULL UNIQUE,
			collection TEXT NOT NULL,
			document_id BIGINT NOT NULL,
			classroom_id BIGINT NOT NULL,
			filename TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			page INTEGER NOT NULL DEFAULT 0,
			content TEXT NOT NULL,
			embedding vector(%d) NOT NULL
		)`, p.dims),
		`CREATE INDEX IF NOT EXISTS idx_vector_chunks_scope ON vector_chunks (collection, classroom_id, document_id)`,
		`CREATE INDEX IF NOT EXISTS idx_vector_chunks_embedding ON vector_chunks USING hnsw (embedding vector_cosine_ops)`,
	}
	for _, stmt := range stmts {
		if err := p.db.WithContext(ctx).Exec(stmt).Error; err != nil {
			return fmt.Errorf("ensure pgvector schema: %w", err)
		}
	}
	return nil
}

func (p *PGVectorIndex) scoped(ctx context.Context, filter Filter) *gorm.DB {
	q := p.db.WithContext(ctx).Model(&pgChunkRow{}).Where("collection = ?", p.collection)
	if filter.ClassroomID != 0 {
		q = q.Where("classroom_id = ?", filter.ClassroomID)
	}
	if filter.DocumentID != 0 {
		q = q.Where("document_id = ?", filter.DocumentID)
	}
	if filter.Filename != "" {
		q = q.Where("filename = ?", filter.Filename)
	}
	return q
}

func (p *PGVectorIndex) Add(ctx context.Context, entries []IndexEntry) ([]string, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	prepared, ids, err := prepareEntries(entries, p.dims)
	if err != nil {
		return nil, err
	}

	rows := make([]pgChunkRow, len(prepared))
	for i, e := range prepared {
		rows[i] = pgChunkRow{
			ID:          e.ID,
			Collection:  p.collection,
			DocumentID:  e.Metadata.DocumentID,
			ClassroomID: e.Metadata.ClassroomID,
			Filename:    e.Metadata.Filename,
			ChunkIndex:  e.Metadata.ChunkIndex,
			Page:        e.Metadata.Page,
			Content:     e.Text,
			Embedding:   pgvector.NewVector(e.Vector),
		}
	}
	err = p.db.WithContext(ctx).Omit("seq").CreateInBatches(rows, 200).Error
	if err != nil {
		return nil, apperrors.NewIndexWriteFailed(err)
	}
	return ids, nil
}

func (p *PGVectorIndex) Search(ctx context.Context, query []float32, k int, filter Filter) ([]SearchMatch, error) {
	if len(query) != p.dims {
		return nil, apperrors.NewValidationError("query vector dimension does not match index")
	}
	if k <= 0 {
		k = 10
	}
	vec := pgvector.NewVector(query)

	var rows []pgChunkRow
	err := p.scoped(ctx, filter).
		Select("seq, id, document_id, classroom_id, filename, chunk_index, page, content, 1 - (embedding <=> ?) AS score", vec).
		Order(gorm.Expr("embedding <=> ?, seq", vec)).
		Limit(k).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("pgvector search: %w", err)
	}

	matches := make([]SearchMatch, 0, len(rows))
	for _, r := range rows {
		matches = append(matches, SearchMatch{ID: r.ID, Text: r.Content, Metadata: r.metadata(), Score: r.Score})
	}
	return matches, nil
}

func (p *PGVectorIndex) Get(ctx context.Context, filter Filter) ([]IndexEntry, error) {
	var rows []pgChunkRow
	if err := p.scoped(ctx, filter).Order("seq").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("pgvector get: %w", err)
	}
	out := make([]IndexEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, IndexEntry{ID: r.ID, Text: r.Content, Vector: r.Embedding.Slice(), Metadata: r.metadata()})
	}
	return out, nil
}

func (p *PGVectorIndex) Delete(ctx context.Context, filter Filter) (int, error) {
	if filter.IsEmpty() {
		return 0, apperrors.NewValidationError(errEmptyDeleteFilter.Error())
	}
	res := p.scoped(ctx, filter).Delete(&pgChunkRow{})
	if res.Error != nil {
		return 0, apperrors.NewIndexWriteFailed(res.Error)
	}
	return int(res.RowsAffected), nil
}

func (p *PGVectorIndex) Ready() bool {
	sqlDB, err := p.db.DB()
	if err != nil {
		return false
	}
	return sqlDB.Ping() == nil
}

// Close 连接由关系库持有，这里不关闭
func (p *PGVectorIndex) Close() error { return nil }
