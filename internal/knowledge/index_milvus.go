package knowledge

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	apperrors "github.com/aihub/classroom-rag/internal/errors"
	"github.com/aihub/classroom-rag/internal/logger"
	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"
)

// MilvusOptions Milvus客户端配置
type MilvusOptions struct {
	Address    string
	Username   string
	Password   string
	Database   string
	Collection string
	Dimensions int
	UseTLS     bool
}

var milvusOutputFields = []string{"seq", FieldDocumentID, FieldClassroomID, FieldFilename, FieldChunkIndex, FieldPage, "content"}

// MilvusIndex 基于Milvus的向量索引，单集合存放全部班级的分块
type MilvusIndex struct {
	client     client.Client
	collection string
	dims       int

	ensureOnce sync.Once
	ensureErr  error
}

// NewMilvusIndex 创建Milvus向量索引
func NewMilvusIndex(ctx context.Context, opts MilvusOptions) (*MilvusIndex, error) {
	if opts.Address == "" {
		opts.Address = "localhost:19530"
	}
	if opts.Database == "" {
		opts.Database = "default"
	}
	if opts.Dimensions <= 0 {
		return nil, apperrors.NewInvalidConfiguration("milvus index dimensions must be positive")
	}

	c, err := client.NewClient(ctx, client.Config{
		Address:       opts.Address,
		DBName:        opts.Database,
		Username:      opts.Username,
		Password:      opts.Password,
		EnableTLSAuth: opts.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	return &MilvusIndex{client: c, collection: opts.Collection, dims: opts.Dimensions}, nil
}

func (m *MilvusIndex) ensureCollection(ctx context.Context) error {
	m.ensureOnce.Do(func() {
		m.ensureErr = m.createCollection(ctx)
	})
	return m.ensureErr
}

func (m *MilvusIndex) createCollection(ctx context.Context) error {
	has, err := m.client.HasCollection(ctx, m.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if !has {
		schema := entity.NewSchema().
			WithName(m.collection).
			WithDescription("classroom document chunks").
			WithField(entity.NewField().WithName("id").WithDataType(entity.FieldTypeVarChar).
				WithIsPrimaryKey(true).WithMaxLength(64)).
			WithField(entity.NewField().WithName("seq").WithDataType(entity.FieldTypeInt64)).
			WithField(entity.NewField().WithName(FieldDocumentID).WithDataType(entity.FieldTypeInt64)).
			WithField(entity.NewField().WithName(FieldClassroomID).WithDataType(entity.FieldTypeInt64)).
			WithField(entity.NewField().WithName(FieldFilename).WithDataType(entity.FieldTypeVarChar).WithMaxLength(1024)).
			WithField(entity.NewField().WithName(FieldChunkIndex).WithDataType(entity.FieldTypeInt64)).
			WithField(entity.NewField().WithName(FieldPage).WithDataType(entity.FieldTypeInt64)).
			WithField(entity.NewField().WithName("content").WithDataType(entity.FieldTypeVarChar).WithMaxLength(65535)).
			WithField(entity.NewField().WithName("vector").WithDataType(entity.FieldTypeFloatVector).WithDim(int64(m.dims)))

		if err := m.client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}

		index, err := entity.NewIndexHNSW(entity.COSINE, 8, 64)
		if err != nil {
			return fmt.Errorf("failed to build index params: %w", err)
		}
		if err := m.client.CreateIndex(ctx, m.collection, "vector", index, false); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	if err := m.client.LoadCollection(ctx, m.collection, false); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}
	return nil
}

// milvusExpr 把过滤条件翻译成布尔表达式
func milvusExpr(filter Filter) string {
	var parts []string
	if filter.ClassroomID != 0 {
		parts = append(parts, fmt.Sprintf("%s == %d", FieldClassroomID, filter.ClassroomID))
	}
	if filter.DocumentID != 0 {
		parts = append(parts, fmt.Sprintf("%s == %d", FieldDocumentID, filter.DocumentID))
	}
	if filter.Filename != "" {
		parts = append(parts, fmt.Sprintf("%s == %s", FieldFilename, strconv.Quote(filter.Filename)))
	}
	if len(parts) == 0 {
		return "seq >= 0"
	}
	return strings.Join(parts, " && ")
}

func (m *MilvusIndex) Add(ctx context.Context, entries []IndexEntry) ([]string, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	prepared, ids, err := prepareEntries(entries, m.dims)
	if err != nil {
		return nil, err
	}
	if err := m.ensureCollection(ctx); err != nil {
		return nil, apperrors.NewIndexWriteFailed(err)
	}

	base := time.Now().UnixNano()
	n := len(prepared)
	seqs := make([]int64, n)
	docIDs := make([]int64, n)
	classIDs := make([]int64, n)
	filenames := make([]string, n)
	chunkIdx := make([]int64, n)
	pages := make([]int64, n)
	contents := make([]string, n)
	vectors := make([][]float32, n)
	for i, e := range prepared {
		seqs[i] = base + int64(i)
		docIDs[i] = int64(e.Metadata.DocumentID)
		classIDs[i] = int64(e.Metadata.ClassroomID)
		filenames[i] = e.Metadata.Filename
		chunkIdx[i] = int64(e.Metadata.ChunkIndex)
		pages[i] = int64(e.Metadata.Page)
		contents[i] = e.Text
		vectors[i] = e.Vector
	}

	_, err = m.client.Insert(ctx, m.collection, "",
		entity.NewColumnVarChar("id", ids),
		entity.NewColumnInt64("seq", seqs),
		entity.NewColumnInt64(FieldDocumentID, docIDs),
		entity.NewColumnInt64(FieldClassroomID, classIDs),
		entity.NewColumnVarChar(FieldFilename, filenames),
		entity.NewColumnInt64(FieldChunkIndex, chunkIdx),
		entity.NewColumnInt64(FieldPage, pages),
		entity.NewColumnVarChar("content", contents),
		entity.NewColumnFloatVector("vector", m.dims, vectors),
	)
	if err != nil {
		return nil, apperrors.NewIndexWriteFailed(fmt.Errorf("milvus insert failed: %w", err))
	}
	if err := m.client.Flush(ctx, m.collection, false); err != nil {
		return nil, apperrors.NewIndexWriteFailed(fmt.Errorf("milvus flush failed: %w", err))
	}
	return ids, nil
}

type milvusRow struct {
	seq   int64
	entry IndexEntry
}

// readColumns 从结果列中按行组装记录
func readColumns(ids entity.Column, fields []entity.Column, count int) []milvusRow {
	rows := make([]milvusRow, count)
	if col, ok := ids.(*entity.ColumnVarChar); ok {
		for i, v := range col.Data() {
			if i < count {
				rows[i].entry.ID = v
			}
		}
	}
	for _, field := range fields {
		switch col := field.(type) {
		case *entity.ColumnInt64:
			for i, v := range col.Data() {
				if i >= count {
					break
				}
				switch field.Name() {
				case "seq":
					rows[i].seq = v
				case FieldDocumentID:
					rows[i].entry.Metadata.DocumentID = uint(v)
				case FieldClassroomID:
					rows[i].entry.Metadata.ClassroomID = uint(v)
				case FieldChunkIndex:
					rows[i].entry.Metadata.ChunkIndex = int(v)
				case FieldPage:
					rows[i].entry.Metadata.Page = int(v)
				}
			}
		case *entity.ColumnVarChar:
			for i, v := range col.Data() {
				if i >= count {
					break
				}
				switch field.Name() {
				case "id":
					rows[i].entry.ID = v
				case FieldFilename:
					rows[i].entry.Metadata.Filename = v
				case "content":
					rows[i].entry.Text = v
				}
			}
		}
	}
	return rows
}

func (m *MilvusIndex) Search(ctx context.Context, query []float32, k int, filter Filter) ([]SearchMatch, error) {
	if len(query) != m.dims {
		return nil, apperrors.NewValidationError("query vector dimension does not match index")
	}
	if err := m.ensureCollection(ctx); err != nil {
		return nil, err
	}
	if k <= 0 {
		k = 10
	}

	sp, err := entity.NewIndexHNSWSearchParam(64)
	if err != nil {
		return nil, err
	}
	results, err := m.client.Search(ctx, m.collection, []string{}, milvusExpr(filter),
		milvusOutputFields, []entity.Vector{entity.FloatVector(query)}, "vector",
		entity.COSINE, k, sp)
	if err != nil {
		return nil, fmt.Errorf("milvus search failed: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}
	result := results[0]
	if result.Err != nil {
		return nil, fmt.Errorf("milvus search error: %w", result.Err)
	}

	rows := readColumns(result.IDs, result.Fields, result.ResultCount)
	matches := make([]milvusRow, len(rows))
	copy(matches, rows)
	scores := make(map[string]float32, len(rows))
	for i, r := range rows {
		if i < len(result.Scores) {
			scores[r.entry.ID] = result.Scores[i]
		}
	}

	// 先按写入顺序排，再做稳定的得分排序
	sort.Slice(matches, func(i, j int) bool { return matches[i].seq < matches[j].seq })
	out := make([]SearchMatch, 0, len(matches))
	for _, r := range matches {
		out = append(out, SearchMatch{
			ID:       r.entry.ID,
			Text:     r.entry.Text,
			Metadata: r.entry.Metadata,
			Score:    scores[r.entry.ID],
		})
	}
	return rankMatches(out, k), nil
}

func (m *MilvusIndex) Get(ctx context.Context, filter Filter) ([]IndexEntry, error) {
	if err := m.ensureCollection(ctx); err != nil {
		return nil, err
	}
	rs, err := m.client.Query(ctx, m.collection, []string{}, milvusExpr(filter), append([]string{"id"}, milvusOutputFields...))
	if err != nil {
		return nil, fmt.Errorf("milvus query failed: %w", err)
	}

	count := 0
	if col := rs.GetColumn("id"); col != nil {
		count = col.Len()
	}
	rows := readColumns(nil, rs, count)
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })

	out := make([]IndexEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.entry)
	}
	return out, nil
}

func (m *MilvusIndex) Delete(ctx context.Context, filter Filter) (int, error) {
	if filter.IsEmpty() {
		return 0, apperrors.NewValidationError(errEmptyDeleteFilter.Error())
	}
	existing, err := m.Get(ctx, filter)
	if err != nil {
		return 0, apperrors.NewIndexWriteFailed(err)
	}
	if len(existing) == 0 {
		return 0, nil
	}
	if err := m.client.Delete(ctx, m.collection, "", milvusExpr(filter)); err != nil {
		return 0, apperrors.NewIndexWriteFailed(fmt.Errorf("milvus delete failed: %w", err))
	}
	if err := m.client.Flush(ctx, m.collection, false); err != nil {
		logger.Warn("milvus flush after delete failed", zap.String("collection", m.collection), zap.Error(err))
	}
	return len(existing), nil
}

func (m *MilvusIndex) Ready() bool {
	if m.client == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := m.client.ListCollections(ctx)
	return err == nil
}

func (m *MilvusIndex) Close() error {
	if m.client == nil {
		return nil
	}
	return m.client.Close()
}
