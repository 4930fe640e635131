package knowledge

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	apperrors "github.com/aihub/classroom-rag/internal/errors"
	"github.com/google/uuid"
)

// 元数据字段名，各后端统一使用
const (
	FieldDocumentID  = "document_id"
	FieldClassroomID = "classroom_id"
	FieldFilename    = "filename"
	FieldChunkIndex  = "chunk_index"
	FieldPage        = "page"
)

// ChunkMetadata 分块元数据，写入时即带上真实的班级归属
type ChunkMetadata struct {
	DocumentID  uint   `json:"document_id"`
	ClassroomID uint   `json:"classroom_id"`
	Filename    string `json:"filename"`
	ChunkIndex  int    `json:"chunk_index"`
	Page        int    `json:"page,omitempty"`
}

// IndexEntry 向量索引中的一条记录
type IndexEntry struct {
	ID       string
	Text     string
	Vector   []float32
	Metadata ChunkMetadata
}

// SearchMatch 相似度检索结果，Score 越大越相似
type SearchMatch struct {
	ID       string
	Text     string
	Metadata ChunkMetadata
	Score    float32
}

// Filter 元数据等值过滤，零值字段不参与过滤
type Filter struct {
	ClassroomID uint
	DocumentID  uint
	Filename    string
}

// IsEmpty 没有任何过滤条件
func (f Filter) IsEmpty() bool {
	return f.ClassroomID == 0 && f.DocumentID == 0 && f.Filename == ""
}

// Matches 判断元数据是否满足过滤条件
func (f Filter) Matches(m ChunkMetadata) bool {
	if f.ClassroomID != 0 && m.ClassroomID != f.ClassroomID {
		return false
	}
	if f.DocumentID != 0 && m.DocumentID != f.DocumentID {
		return false
	}
	if f.Filename != "" && m.Filename != f.Filename {
		return false
	}
	return true
}

func (f Filter) String() string {
	var parts []string
	if f.ClassroomID != 0 {
		parts = append(parts, fmt.Sprintf("%s=%d", FieldClassroomID, f.ClassroomID))
	}
	if f.DocumentID != 0 {
		parts = append(parts, fmt.Sprintf("%s=%d", FieldDocumentID, f.DocumentID))
	}
	if f.Filename != "" {
		parts = append(parts, fmt.Sprintf("%s=%q", FieldFilename, f.Filename))
	}
	if len(parts) == 0 {
		return "{}"
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// VectorIndex 向量索引
//
// Add 只追加不去重；Search 的同分结果按写入顺序排列；
// Get 为不排序的存在性查询；Delete 按过滤条件删除并返回条数。
type VectorIndex interface {
	Add(ctx context.Context, entries []IndexEntry) ([]string, error)
	Search(ctx context.Context, query []float32, k int, filter Filter) ([]SearchMatch, error)
	Get(ctx context.Context, filter Filter) ([]IndexEntry, error)
	Delete(ctx context.Context, filter Filter) (int, error)
	Ready() bool
	Close() error
}

var errEmptyDeleteFilter = errors.New("delete requires at least one filter field")

// prepareEntries 写入前校验元数据与维度，并为缺省ID的记录生成UUID
func prepareEntries(entries []IndexEntry, dims int) ([]IndexEntry, []string, error) {
	out := make([]IndexEntry, len(entries))
	ids := make([]string, len(entries))
	for i, e := range entries {
		if e.Metadata.ClassroomID == 0 || e.Metadata.DocumentID == 0 {
			return nil, nil, apperrors.NewIndexWriteFailed(
				fmt.Errorf("entry %d is missing classroom_id or document_id", i))
		}
		if dims > 0 && len(e.Vector) != dims {
			return nil, nil, apperrors.NewIndexWriteFailed(
				fmt.Errorf("entry %d has dimension %d, index expects %d", i, len(e.Vector), dims))
		}
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		out[i] = e
		ids[i] = e.ID
	}
	return out, ids, nil
}

// rankMatches 按得分降序稳定排序，输入须已按写入顺序排列
func rankMatches(matches []SearchMatch, k int) []SearchMatch {
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

func vectorNorm(v []float32) float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return float32(math.Sqrt(sum))
}

// normalize 返回单位向量副本，零向量原样返回
func normalize(v []float32) []float32 {
	n := vectorNorm(v)
	out := make([]float32, len(v))
	if n == 0 {
		copy(out, v)
		return out
	}
	for i, x := range v {
		out[i] = x / n
	}
	return out
}
