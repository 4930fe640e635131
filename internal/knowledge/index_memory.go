package knowledge

import (
	"context"
	"sync"

	apperrors "github.com/aihub/classroom-rag/internal/errors"
)

// MemoryIndex 进程内向量索引，按写入顺序保存
type MemoryIndex struct {
	mu      sync.RWMutex
	dims    int
	entries []IndexEntry
}

// NewMemoryIndex 创建内存索引，dims 为 0 时以首次写入的维度为准
func NewMemoryIndex(dims int) *MemoryIndex {
	return &MemoryIndex{dims: dims}
}

func (m *MemoryIndex) Add(ctx context.Context, entries []IndexEntry) ([]string, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	dims := m.dims
	if dims == 0 {
		dims = len(entries[0].Vector)
	}
	prepared, ids, err := prepareEntries(entries, dims)
	if err != nil {
		return nil, err
	}
	for i := range prepared {
		vec := make([]float32, len(prepared[i].Vector))
		copy(vec, prepared[i].Vector)
		prepared[i].Vector = vec
	}
	m.dims = dims
	m.entries = append(m.entries, prepared...)
	return ids, nil
}

func (m *MemoryIndex) Search(ctx context.Context, query []float32, k int, filter Filter) ([]SearchMatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.dims > 0 && len(query) != m.dims {
		return nil, apperrors.NewValidationError("query vector dimension does not match index")
	}
	var matches []SearchMatch
	for _, e := range m.entries {
		if !filter.Matches(e.Metadata) {
			continue
		}
		matches = append(matches, SearchMatch{
			ID:       e.ID,
			Text:     e.Text,
			Metadata: e.Metadata,
			Score:    cosineSimilarity(query, e.Vector),
		})
	}
	return rankMatches(matches, k), nil
}

func (m *MemoryIndex) Get(ctx context.Context, filter Filter) ([]IndexEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []IndexEntry
	for _, e := range m.entries {
		if filter.Matches(e.Metadata) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MemoryIndex) Delete(ctx context.Context, filter Filter) (int, error) {
	if filter.IsEmpty() {
		return 0, apperrors.NewValidationError(errEmptyDeleteFilter.Error())
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.entries[:0]
	removed := 0
	for _, e := range m.entries {
		if filter.Matches(e.Metadata) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	m.entries = kept
	return removed, nil
}

// Len 索引中的记录总数
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *MemoryIndex) Ready() bool  { return true }
func (m *MemoryIndex) Close() error { return nil }
