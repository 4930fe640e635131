package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	apperrors "github.com/aihub/classroom-rag/internal/errors"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// ElasticOptions ES连接配置
type ElasticOptions struct {
	Addresses  []string
	Username   string
	Password   string
	APIKey     string
	Collection string
	Dimensions int
}

// ElasticIndex 基于ES dense_vector 的向量索引
type ElasticIndex struct {
	client *elasticsearch.Client
	index  string
	dims   int

	mu      sync.Mutex
	ensured bool
}

type elasticDoc struct {
	Seq         int64     `json:"seq"`
	DocumentID  uint      `json:"document_id"`
	ClassroomID uint      `json:"classroom_id"`
	Filename    string    `json:"filename"`
	ChunkIndex  int       `json:"chunk_index"`
	Page        int       `json:"page"`
	Content     string    `json:"content"`
	Vector      []float32 `json:"vector,omitempty"`
}

func (d elasticDoc) metadata() ChunkMetadata {
	return ChunkMetadata{
		DocumentID:  d.DocumentID,
		ClassroomID: d.ClassroomID,
		Filename:    d.Filename,
		ChunkIndex:  d.ChunkIndex,
		Page:        d.Page,
	}
}

type elasticHits struct {
	Hits struct {
		Hits []struct {
			ID     string     `json:"_id"`
			Score  float32    `json:"_score"`
			Source elasticDoc `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// NewElasticIndex 创建ES向量索引
func NewElasticIndex(opts ElasticOptions) (*ElasticIndex, error) {
	if len(opts.Addresses) == 0 {
		return nil, apperrors.NewInvalidConfiguration("elasticsearch addresses are required")
	}
	if opts.Dimensions <= 0 {
		return nil, apperrors.NewInvalidConfiguration("elasticsearch index dimensions must be positive")
	}
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: opts.Addresses,
		Username:  opts.Username,
		Password:  opts.Password,
		APIKey:    opts.APIKey,
	})
	if err != nil {
		return nil, err
	}
	return &ElasticIndex{client: client, index: opts.Collection, dims: opts.Dimensions}, nil
}

func (e *ElasticIndex) ensureIndex(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ensured {
		return nil
	}

	exists, err := esapi.IndicesExistsRequest{Index: []string{e.index}}.Do(ctx, e.client)
	if err != nil {
		return err
	}
	exists.Body.Close()
	if exists.StatusCode == 200 {
		e.ensured = true
		return nil
	}

	body, _ := json.Marshal(elasticMapping(e.dims))
	resp, err := esapi.IndicesCreateRequest{Index: e.index, Body: bytes.NewReader(body)}.Do(ctx, e.client)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.IsError() {
		return fmt.Errorf("create index error: %s", resp.String())
	}
	e.ensured = true
	return nil
}

func elasticMapping(dims int) map[string]interface{} {
	return map[string]interface{}{
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				"seq":            map[string]interface{}{"type": "long"},
				FieldDocumentID:  map[string]interface{}{"type": "long"},
				FieldClassroomID: map[string]interface{}{"type": "long"},
				FieldFilename:    map[string]interface{}{"type": "keyword"},
				FieldChunkIndex:  map[string]interface{}{"type": "integer"},
				FieldPage:        map[string]interface{}{"type": "integer"},
				"content":        map[string]interface{}{"type": "text"},
				"vector": map[string]interface{}{
					"type":       "dense_vector",
					"dims":       dims,
					"index":      true,
					"similarity": "cosine",
				},
			},
		},
	}
}

// elasticFilter 把过滤条件翻译成 term 查询列表
func elasticFilter(filter Filter) []interface{} {
	terms := []interface{}{}
	if filter.ClassroomID != 0 {
		terms = append(terms, map[string]interface{}{"term": map[string]interface{}{FieldClassroomID: filter.ClassroomID}})
	}
	if filter.DocumentID != 0 {
		terms = append(terms, map[string]interface{}{"term": map[string]interface{}{FieldDocumentID: filter.DocumentID}})
	}
	if filter.Filename != "" {
		terms = append(terms, map[string]interface{}{"term": map[string]interface{}{FieldFilename: filter.Filename}})
	}
	return terms
}

func elasticQuery(filter Filter) map[string]interface{} {
	terms := elasticFilter(filter)
	if len(terms) == 0 {
		return map[string]interface{}{"match_all": map[string]interface{}{}}
	}
	return map[string]interface{}{"bool": map[string]interface{}{"filter": terms}}
}

// bulkBody 生成 _bulk 接口的 NDJSON 请求体
func (e *ElasticIndex) bulkBody(entries []IndexEntry, base int64) (*bytes.Buffer, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i, entry := range entries {
		action := map[string]interface{}{"index": map[string]interface{}{"_index": e.index, "_id": entry.ID}}
		if err := enc.Encode(action); err != nil {
			return nil, err
		}
		doc := elasticDoc{
			Seq:         base + int64(i),
			DocumentID:  entry.Metadata.DocumentID,
			ClassroomID: entry.Metadata.ClassroomID,
			Filename:    entry.Metadata.Filename,
			ChunkIndex:  entry.Metadata.ChunkIndex,
			Page:        entry.Metadata.Page,
			Content:     entry.Text,
			Vector:      entry.Vector,
		}
		if err := enc.Encode(doc); err != nil {
			return nil, err
		}
	}
	return &buf, nil
}

func (e *ElasticIndex) Add(ctx context.Context, entries []IndexEntry) ([]string, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	prepared, ids, err := prepareEntries(entries, e.dims)
	if err != nil {
		return nil, err
	}
	if err := e.ensureIndex(ctx); err != nil {
		return nil, apperrors.NewIndexWriteFailed(err)
	}

	body, err := e.bulkBody(prepared, time.Now().UnixNano())
	if err != nil {
		return nil, apperrors.NewIndexWriteFailed(err)
	}
	resp, err := esapi.BulkRequest{Body: body, Refresh: "true"}.Do(ctx, e.client)
	if err != nil {
		return nil, apperrors.NewIndexWriteFailed(err)
	}
	defer resp.Body.Close()
	if resp.IsError() {
		return nil, apperrors.NewIndexWriteFailed(fmt.Errorf("bulk index error: %s", resp.String()))
	}

	var result struct {
		Errors bool `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, apperrors.NewIndexWriteFailed(err)
	}
	if result.Errors {
		// 部分失败时撤回本批写入，保持全有或全无
		e.deleteIDs(ctx, ids)
		return nil, apperrors.NewIndexWriteFailed(fmt.Errorf("bulk index reported item errors"))
	}
	return ids, nil
}

func (e *ElasticIndex) deleteIDs(ctx context.Context, ids []string) {
	query := map[string]interface{}{"query": map[string]interface{}{"ids": map[string]interface{}{"values": ids}}}
	body, _ := json.Marshal(query)
	refresh := true
	resp, err := esapi.DeleteByQueryRequest{Index: []string{e.index}, Body: bytes.NewReader(body), Refresh: &refresh}.Do(ctx, e.client)
	if err == nil {
		resp.Body.Close()
	}
}

func (e *ElasticIndex) Search(ctx context.Context, query []float32, k int, filter Filter) ([]SearchMatch, error) {
	if len(query) != e.dims {
		return nil, apperrors.NewValidationError("query vector dimension does not match index")
	}
	if err := e.ensureIndex(ctx); err != nil {
		return nil, err
	}
	if k <= 0 {
		k = 10
	}

	knn := map[string]interface{}{
		"field":          "vector",
		"query_vector":   query,
		"k":              k,
		"num_candidates": k * 10,
	}
	if terms := elasticFilter(filter); len(terms) > 0 {
		knn["filter"] = terms
	}
	body, _ := json.Marshal(map[string]interface{}{
		"knn":     knn,
		"size":    k,
		"_source": map[string]interface{}{"excludes": []string{"vector"}},
	})

	hits, err := e.search(ctx, body)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch knn search: %w", err)
	}

	sort.SliceStable(hits.Hits.Hits, func(i, j int) bool {
		return hits.Hits.Hits[i].Source.Seq < hits.Hits.Hits[j].Source.Seq
	})
	matches := make([]SearchMatch, 0, len(hits.Hits.Hits))
	for _, h := range hits.Hits.Hits {
		matches = append(matches, SearchMatch{
			ID:       h.ID,
			Text:     h.Source.Content,
			Metadata: h.Source.metadata(),
			// cosine 的 _score 为 (1+cos)/2
			Score: 2*h.Score - 1,
		})
	}
	return rankMatches(matches, k), nil
}

func (e *ElasticIndex) Get(ctx context.Context, filter Filter) ([]IndexEntry, error) {
	if err := e.ensureIndex(ctx); err != nil {
		return nil, err
	}
	body, _ := json.Marshal(map[string]interface{}{
		"query": elasticQuery(filter),
		"size":  10000,
		"sort":  []interface{}{map[string]interface{}{"seq": "asc"}},
	})
	hits, err := e.search(ctx, body)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch get: %w", err)
	}
	out := make([]IndexEntry, 0, len(hits.Hits.Hits))
	for _, h := range hits.Hits.Hits {
		out = append(out, IndexEntry{ID: h.ID, Text: h.Source.Content, Vector: h.Source.Vector, Metadata: h.Source.metadata()})
	}
	return out, nil
}

func (e *ElasticIndex) search(ctx context.Context, body []byte) (*elasticHits, error) {
	resp, err := esapi.SearchRequest{Index: []string{e.index}, Body: bytes.NewReader(body)}.Do(ctx, e.client)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.IsError() {
		return nil, fmt.Errorf("search error: %s", resp.String())
	}
	var hits elasticHits
	if err := json.NewDecoder(resp.Body).Decode(&hits); err != nil {
		return nil, err
	}
	return &hits, nil
}

func (e *ElasticIndex) Delete(ctx context.Context, filter Filter) (int, error) {
	if filter.IsEmpty() {
		return 0, apperrors.NewValidationError(errEmptyDeleteFilter.Error())
	}
	if err := e.ensureIndex(ctx); err != nil {
		return 0, apperrors.NewIndexWriteFailed(err)
	}

	body, _ := json.Marshal(map[string]interface{}{"query": elasticQuery(filter)})
	refresh := true
	resp, err := esapi.DeleteByQueryRequest{
		Index:   []string{e.index},
		Body:    bytes.NewReader(body),
		Refresh: &refresh,
	}.Do(ctx, e.client)
	if err != nil {
		return 0, apperrors.NewIndexWriteFailed(err)
	}
	defer resp.Body.Close()
	if resp.IsError() {
		return 0, apperrors.NewIndexWriteFailed(fmt.Errorf("delete by query error: %s", resp.String()))
	}

	var result struct {
		Deleted int `json:"deleted"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, apperrors.NewIndexWriteFailed(err)
	}
	return result.Deleted, nil
}

func (e *ElasticIndex) Ready() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := esapi.PingRequest{}.Do(ctx, e.client)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return !resp.IsError()
}

func (e *ElasticIndex) Close() error { return nil }
