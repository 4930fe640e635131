package knowledge

import (
	"context"
	"testing"

	apperrors "github.com/aihub/classroom-rag/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(classroom, document uint, idx int, text string, vec ...float32) IndexEntry {
	return IndexEntry{
		Text:   text,
		Vector: vec,
		Metadata: ChunkMetadata{
			ClassroomID: classroom,
			DocumentID:  document,
			Filename:    "physics.pdf",
			ChunkIndex:  idx,
		},
	}
}

// indexContract 对所有进程内可测的实现运行同一组断言
func indexContract(t *testing.T, newIndex func(t *testing.T) VectorIndex) {
	ctx := context.Background()

	t.Run("add assigns ids and never dedups", func(t *testing.T) {
		idx := newIndex(t)
		e := entry(7, 1, 0, "gravity", 1, 0, 0)
		ids1, err := idx.Add(ctx, []IndexEntry{e})
		require.NoError(t, err)
		ids2, err := idx.Add(ctx, []IndexEntry{e})
		require.NoError(t, err)
		require.Len(t, ids1, 1)
		require.Len(t, ids2, 1)
		assert.NotEqual(t, ids1[0], ids2[0])

		all, err := idx.Get(ctx, Filter{DocumentID: 1})
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})

	t.Run("search filters by scope and ranks by similarity", func(t *testing.T) {
		idx := newIndex(t)
		_, err := idx.Add(ctx, []IndexEntry{
			entry(9, 2, 0, "other class exact", 1, 0, 0),
			entry(7, 1, 0, "close", 0.9, 0.1, 0),
			entry(7, 1, 1, "far", 0, 0, 1),
			entry(7, 3, 0, "closest", 1, 0.01, 0),
		})
		require.NoError(t, err)

		matches, err := idx.Search(ctx, []float32{1, 0, 0}, 2, Filter{ClassroomID: 7})
		require.NoError(t, err)
		require.Len(t, matches, 2)
		assert.Equal(t, "closest", matches[0].Text)
		assert.Equal(t, "close", matches[1].Text)
		for _, m := range matches {
			assert.Equal(t, uint(7), m.Metadata.ClassroomID)
		}
		assert.GreaterOrEqual(t, matches[0].Score, matches[1].Score)

		docScoped, err := idx.Search(ctx, []float32{1, 0, 0}, 10, Filter{ClassroomID: 7, DocumentID: 1})
		require.NoError(t, err)
		assert.Len(t, docScoped, 2)
	})

	t.Run("ties keep insertion order", func(t *testing.T) {
		idx := newIndex(t)
		_, err := idx.Add(ctx, []IndexEntry{
			entry(7, 1, 0, "first", 0, 1, 0),
			entry(7, 1, 1, "second", 0, 1, 0),
			entry(7, 1, 2, "third", 0, 1, 0),
		})
		require.NoError(t, err)

		matches, err := idx.Search(ctx, []float32{0, 1, 0}, 3, Filter{ClassroomID: 7})
		require.NoError(t, err)
		require.Len(t, matches, 3)
		assert.Equal(t, []string{"first", "second", "third"},
			[]string{matches[0].Text, matches[1].Text, matches[2].Text})
	})

	t.Run("delete by document", func(t *testing.T) {
		idx := newIndex(t)
		_, err := idx.Add(ctx, []IndexEntry{
			entry(7, 1, 0, "a", 1, 0, 0),
			entry(7, 1, 1, "b", 1, 0, 0),
			entry(7, 2, 0, "c", 1, 0, 0),
		})
		require.NoError(t, err)

		n, err := idx.Delete(ctx, Filter{DocumentID: 1})
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		left, err := idx.Get(ctx, Filter{ClassroomID: 7})
		require.NoError(t, err)
		require.Len(t, left, 1)
		assert.Equal(t, "c", left[0].Text)

		_, err = idx.Delete(ctx, Filter{})
		assert.Error(t, err)
	})

	t.Run("rejects entries without scope or wrong dimension", func(t *testing.T) {
		idx := newIndex(t)
		_, err := idx.Add(ctx, []IndexEntry{entry(0, 1, 0, "x", 1, 0, 0)})
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeIndexWriteFailed))

		_, err = idx.Add(ctx, []IndexEntry{entry(7, 1, 0, "x", 1, 0, 0)})
		require.NoError(t, err)
		_, err = idx.Add(ctx, []IndexEntry{entry(7, 1, 0, "x", 1, 0)})
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeIndexWriteFailed))
	})
}

func TestMemoryIndex_Contract(t *testing.T) {
	indexContract(t, func(t *testing.T) VectorIndex { return NewMemoryIndex(0) })
}

func TestLocalIndex_Contract(t *testing.T) {
	indexContract(t, func(t *testing.T) VectorIndex {
		idx, err := OpenLocalIndex(t.TempDir(), "classroom_docs", "test-model", 3)
		require.NoError(t, err)
		t.Cleanup(func() { idx.Close() })
		return idx
	})
}

func TestLocalIndex_DurableAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	idx, err := OpenLocalIndex(dir, "classroom_docs", "test-model", 3)
	require.NoError(t, err)
	_, err = idx.Add(ctx, []IndexEntry{entry(7, 1, 0, "persisted chunk", 0.5, 0.5, 0)})
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	reopened, err := OpenLocalIndex(dir, "classroom_docs", "test-model", 3)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, Filter{DocumentID: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "persisted chunk", got[0].Text)
	assert.Equal(t, []float32{0.5, 0.5, 0}, got[0].Vector)

	// 另一个集合互不可见
	other, err := OpenLocalIndex(dir, "other_docs", "test-model", 3)
	require.NoError(t, err)
	defer other.Close()
	none, err := other.Get(ctx, Filter{DocumentID: 1})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestLocalIndex_RejectsDimensionChange(t *testing.T) {
	dir := t.TempDir()
	idx, err := OpenLocalIndex(dir, "classroom_docs", "model-a", 3)
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	_, err = OpenLocalIndex(dir, "classroom_docs", "model-a", 4)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidConfiguration))
}

func TestLocalIndex_RejectsHashEmbedderForSemanticCollection(t *testing.T) {
	dir := t.TempDir()
	idx, err := OpenLocalIndex(dir, "classroom_docs", "all-MiniLM-L6-v2", 384)
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	emb := NewLocalEmbedder("", 384)
	_, err = OpenLocalIndex(dir, "classroom_docs", emb.ModelName(), emb.Dimensions())
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidConfiguration))
}

func TestFilter_String(t *testing.T) {
	assert.Equal(t, "{}", Filter{}.String())
	assert.Equal(t, "{classroom_id=7,document_id=3}", Filter{ClassroomID: 7, DocumentID: 3}.String())
}
