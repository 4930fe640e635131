package knowledge

import (
	"context"
	"testing"

	apperrors "github.com/aihub/classroom-rag/internal/errors"
	"github.com/stretchr/testify/assert"
)

func TestMilvusExpr(t *testing.T) {
	cases := []struct {
		name   string
		filter Filter
		want   string
	}{
		{"empty", Filter{}, "seq >= 0"},
		{"classroom", Filter{ClassroomID: 7}, "classroom_id == 7"},
		{"classroom and document", Filter{ClassroomID: 7, DocumentID: 3}, "classroom_id == 7 && document_id == 3"},
		{"document only", Filter{DocumentID: 3}, "document_id == 3"},
		{"filename", Filter{ClassroomID: 7, Filename: "physics.pdf"}, `classroom_id == 7 && filename == "physics.pdf"`},
		{"quoted filename", Filter{Filename: `Ch "1" \ intro.pdf`}, `filename == "Ch \"1\" \\ intro.pdf"`},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, milvusExpr(c.filter))
		})
	}
}

func TestMilvusIndex_RejectsBeforeCallingServer(t *testing.T) {
	idx := &MilvusIndex{collection: "classroom_docs", dims: 3}
	ctx := context.Background()

	_, err := idx.Delete(ctx, Filter{})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidationFailed))

	_, err = idx.Search(ctx, []float32{1, 0}, 3, Filter{ClassroomID: 7})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidationFailed))

	_, err = idx.Add(ctx, []IndexEntry{{Text: "orphan", Vector: []float32{1, 0, 0}}})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeIndexWriteFailed))

	assert.False(t, idx.Ready())
	assert.NoError(t, idx.Close())
}
