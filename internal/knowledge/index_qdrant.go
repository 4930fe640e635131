package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	apperrors "github.com/aihub/classroom-rag/internal/errors"
)

// QdrantOptions Qdrant客户端配置
type QdrantOptions struct {
	Endpoint   string
	APIKey     string
	Collection string
	Dimensions int
	Timeout    time.Duration
}

// QdrantIndex 通过REST API访问Qdrant
type QdrantIndex struct {
	client     *http.Client
	endpoint   string
	apiKey     string
	collection string
	dims       int

	mu      sync.Mutex
	ensured bool
}

// NewQdrantIndex 创建Qdrant向量索引
func NewQdrantIndex(opts QdrantOptions) (*QdrantIndex, error) {
	if opts.Endpoint == "" {
		opts.Endpoint = "http://localhost:6333"
	}
	if !strings.HasPrefix(opts.Endpoint, "http") {
		opts.Endpoint = "http://" + opts.Endpoint
	}
	if opts.Dimensions <= 0 {
		return nil, apperrors.NewInvalidConfiguration("qdrant index dimensions must be positive")
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &QdrantIndex{
		client:     &http.Client{Timeout: timeout},
		endpoint:   strings.TrimSuffix(opts.Endpoint, "/"),
		apiKey:     opts.APIKey,
		collection: opts.Collection,
		dims:       opts.Dimensions,
	}, nil
}

func (q *QdrantIndex) ensureCollection(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ensured {
		return nil
	}

	path := "/collections/" + q.collection
	resp, err := q.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		q.ensured = true
		return nil
	}

	body := map[string]interface{}{
		"vectors": map[string]interface{}{
			"size":     q.dims,
			"distance": "Cosine",
		},
	}
	if err := q.call(ctx, http.MethodPut, path, body, nil); err != nil {
		return fmt.Errorf("create collection %s: %w", q.collection, err)
	}

	// 过滤字段建立 payload 索引
	for field, schema := range map[string]string{
		FieldClassroomID: "integer",
		FieldDocumentID:  "integer",
		FieldFilename:    "keyword",
	} {
		idx := map[string]interface{}{"field_name": field, "field_schema": schema}
		if err := q.call(ctx, http.MethodPut, path+"/index?wait=true", idx, nil); err != nil {
			return fmt.Errorf("create payload index %s: %w", field, err)
		}
	}
	q.ensured = true
	return nil
}

// qdrantFilter 构造 must 等值过滤
func qdrantFilter(filter Filter) map[string]interface{} {
	var must []map[string]interface{}
	add := func(key string, value interface{}) {
		must = append(must, map[string]interface{}{
			"key":   key,
			"match": map[string]interface{}{"value": value},
		})
	}
	if filter.ClassroomID != 0 {
		add(FieldClassroomID, filter.ClassroomID)
	}
	if filter.DocumentID != 0 {
		add(FieldDocumentID, filter.DocumentID)
	}
	if filter.Filename != "" {
		add(FieldFilename, filter.Filename)
	}
	if len(must) == 0 {
		return nil
	}
	return map[string]interface{}{"must": must}
}

type qdrantPayload struct {
	Seq         int64  `json:"seq"`
	DocumentID  uint   `json:"document_id"`
	ClassroomID uint   `json:"classroom_id"`
	Filename    string `json:"filename"`
	ChunkIndex  int    `json:"chunk_index"`
	Page        int    `json:"page"`
	Content     string `json:"content"`
}

type qdrantPoint struct {
	ID      string        `json:"id"`
	Score   float32       `json:"score,omitempty"`
	Vector  []float32     `json:"vector,omitempty"`
	Payload qdrantPayload `json:"payload"`
}

func (p qdrantPoint) metadata() ChunkMetadata {
	return ChunkMetadata{
		DocumentID:  p.Payload.DocumentID,
		ClassroomID: p.Payload.ClassroomID,
		Filename:    p.Payload.Filename,
		ChunkIndex:  p.Payload.ChunkIndex,
		Page:        p.Payload.Page,
	}
}

func (q *QdrantIndex) Add(ctx context.Context, entries []IndexEntry) ([]string, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	prepared, ids, err := prepareEntries(entries, q.dims)
	if err != nil {
		return nil, err
	}
	if err := q.ensureCollection(ctx); err != nil {
		return nil, apperrors.NewIndexWriteFailed(err)
	}

	base := time.Now().UnixNano()
	points := make([]qdrantPoint, len(prepared))
	for i, e := range prepared {
		points[i] = qdrantPoint{
			ID:     e.ID,
			Vector: e.Vector,
			Payload: qdrantPayload{
				Seq:         base + int64(i),
				DocumentID:  e.Metadata.DocumentID,
				ClassroomID: e.Metadata.ClassroomID,
				Filename:    e.Metadata.Filename,
				ChunkIndex:  e.Metadata.ChunkIndex,
				Page:        e.Metadata.Page,
				Content:     e.Text,
			},
		}
	}

	path := fmt.Sprintf("/collections/%s/points?wait=true", q.collection)
	if err := q.call(ctx, http.MethodPut, path, map[string]interface{}{"points": points}, nil); err != nil {
		return nil, apperrors.NewIndexWriteFailed(fmt.Errorf("qdrant upsert: %w", err))
	}
	return ids, nil
}

func (q *QdrantIndex) Search(ctx context.Context, query []float32, k int, filter Filter) ([]SearchMatch, error) {
	if len(query) != q.dims {
		return nil, apperrors.NewValidationError("query vector dimension does not match index")
	}
	if err := q.ensureCollection(ctx); err != nil {
		return nil, err
	}
	if k <= 0 {
		k = 10
	}

	body := map[string]interface{}{
		"vector":       query,
		"limit":        k,
		"with_payload": true,
		"with_vector":  false,
	}
	if f := qdrantFilter(filter); f != nil {
		body["filter"] = f
	}

	var resp struct {
		Result []qdrantPoint `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/search", q.collection)
	if err := q.call(ctx, http.MethodPost, path, body, &resp); err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}

	points := resp.Result
	sort.SliceStable(points, func(i, j int) bool { return points[i].Payload.Seq < points[j].Payload.Seq })
	matches := make([]SearchMatch, 0, len(points))
	for _, p := range points {
		matches = append(matches, SearchMatch{
			ID:       p.ID,
			Text:     p.Payload.Content,
			Metadata: p.metadata(),
			Score:    p.Score,
		})
	}
	return rankMatches(matches, k), nil
}

// Get 通过 scroll 接口分页读取全部匹配记录
func (q *QdrantIndex) Get(ctx context.Context, filter Filter) ([]IndexEntry, error) {
	if err := q.ensureCollection(ctx); err != nil {
		return nil, err
	}

	var points []qdrantPoint
	var offset interface{}
	path := fmt.Sprintf("/collections/%s/points/scroll", q.collection)
	for {
		body := map[string]interface{}{
			"limit":        256,
			"with_payload": true,
			"with_vector":  true,
		}
		if f := qdrantFilter(filter); f != nil {
			body["filter"] = f
		}
		if offset != nil {
			body["offset"] = offset
		}

		var resp struct {
			Result struct {
				Points         []qdrantPoint `json:"points"`
				NextPageOffset interface{}   `json:"next_page_offset"`
			} `json:"result"`
		}
		if err := q.call(ctx, http.MethodPost, path, body, &resp); err != nil {
			return nil, fmt.Errorf("qdrant scroll: %w", err)
		}
		points = append(points, resp.Result.Points...)
		if resp.Result.NextPageOffset == nil {
			break
		}
		offset = resp.Result.NextPageOffset
	}

	sort.SliceStable(points, func(i, j int) bool { return points[i].Payload.Seq < points[j].Payload.Seq })
	out := make([]IndexEntry, 0, len(points))
	for _, p := range points {
		out = append(out, IndexEntry{ID: p.ID, Text: p.Payload.Content, Vector: p.Vector, Metadata: p.metadata()})
	}
	return out, nil
}

func (q *QdrantIndex) Delete(ctx context.Context, filter Filter) (int, error) {
	if filter.IsEmpty() {
		return 0, apperrors.NewValidationError(errEmptyDeleteFilter.Error())
	}
	if err := q.ensureCollection(ctx); err != nil {
		return 0, apperrors.NewIndexWriteFailed(err)
	}

	var countResp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	countPath := fmt.Sprintf("/collections/%s/points/count", q.collection)
	if err := q.call(ctx, http.MethodPost, countPath,
		map[string]interface{}{"filter": qdrantFilter(filter), "exact": true}, &countResp); err != nil {
		return 0, apperrors.NewIndexWriteFailed(fmt.Errorf("qdrant count: %w", err))
	}

	deletePath := fmt.Sprintf("/collections/%s/points/delete?wait=true", q.collection)
	if err := q.call(ctx, http.MethodPost, deletePath,
		map[string]interface{}{"filter": qdrantFilter(filter)}, nil); err != nil {
		return 0, apperrors.NewIndexWriteFailed(fmt.Errorf("qdrant delete: %w", err))
	}
	return countResp.Result.Count, nil
}

func (q *QdrantIndex) Ready() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := q.doRequest(ctx, http.MethodGet, "/collections", nil)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (q *QdrantIndex) Close() error {
	q.client.CloseIdleConnections()
	return nil
}

// call 发送请求并在2xx时解码 result
func (q *QdrantIndex) call(ctx context.Context, method, path string, body, out interface{}) error {
	resp, err := q.doRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s: %s %s", method, path, resp.Status, string(raw))
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (q *QdrantIndex) doRequest(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, q.endpoint+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}
	return q.client.Do(req)
}
