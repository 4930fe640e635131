package services

import (
	"context"
	"fmt"
	"strings"
	"testing"

	apperrors "github.com/aihub/classroom-rag/internal/errors"
	"github.com/aihub/classroom-rag/internal/knowledge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func questionBatch(difficulty string, n int) string {
	items := make([]string, n)
	for i := range items {
		items[i] = fmt.Sprintf(`{"question":"Q%d about %s","opt_a":"a","opt_b":"b","opt_c":"c","opt_d":"d","answer":"b","difficulty":"%s"}`,
			i+1, difficulty, difficulty)
	}
	return "[" + strings.Join(items, ",") + "]"
}

func TestQuestions_GeneratesFiveSegmentsAndStoresThem(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc := h.upload(t, teacher, 7, "physics.txt", textOfLength(3500, "inertia"))

	h.backend.replies = []string{
		questionBatch("Easy", 2),
		"Sorry, here are some questions: 1) What is inertia?",
		questionBatch("Medium", 1),
		questionBatch("Medium", 12),
		questionBatch("Medium", 1),
		questionBatch("Hard", 2),
	}

	questions, err := h.questionSvc.Generate(ctx, teacher, doc.DocumentID)
	require.NoError(t, err)
	require.Len(t, h.backend.prompts, 6)
	assert.Contains(t, h.backend.prompts[0], "DIFFICULTY FOCUS: mostly Easy")
	assert.Contains(t, h.backend.prompts[2], "PREVIOUS OUTPUT WAS INVALID")
	assert.Contains(t, h.backend.prompts[5], "DIFFICULTY FOCUS: mostly Hard")

	// 每段最多保留 10 题
	assert.Len(t, questions, 2+1+10+1+2)
	assert.Equal(t, "B", questions[0].Answer)
	assert.Equal(t, "Easy", questions[0].Difficulty)
	assert.Equal(t, 1, questions[0].Segment)
	assert.Equal(t, 5, questions[len(questions)-1].Segment)
	assert.Equal(t, uint(7), questions[0].ClassroomID)

	got, err := h.questionSvc.List(ctx, student, doc.DocumentID)
	require.NoError(t, err)
	assert.Len(t, got, len(questions))

	_, err = h.questionSvc.List(ctx, outsider, doc.DocumentID)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeForbidden))
}

func TestQuestions_SkipsFailedSegments(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc := h.upload(t, teacher, 7, "physics.txt", textOfLength(3500, "inertia"))

	// 第一段成功，其余段后端报错被跳过
	h.backend.replies = []string{questionBatch("Easy", 3)}

	questions, err := h.questionSvc.Generate(ctx, teacher, doc.DocumentID)
	require.NoError(t, err)
	assert.Len(t, questions, 3)
	assert.Len(t, h.backend.prompts, 5)
}

func TestQuestions_AccessAndFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc := h.upload(t, teacher, 7, "physics.txt", textOfLength(900, "force"))

	_, err := h.questionSvc.Generate(ctx, student, doc.DocumentID)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeForbidden))

	_, err = h.questionSvc.List(ctx, student, doc.DocumentID)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeNotFound))

	h.backend.replies = []string{"no"}
	_, err = h.questionSvc.Generate(ctx, teacher, doc.DocumentID)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeGenerationFailed))

	_, err = h.questionSvc.Generate(ctx, teacher, 404)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeNotFound))
}

func TestQuestionSegments(t *testing.T) {
	segments := QuestionSegments(strings.Repeat("x", 10))
	require.Len(t, segments, 5)
	assert.Equal(t, "mostly Easy", segments[0].Focus)
	assert.Equal(t, "Medium difficulty", segments[2].Focus)
	assert.Equal(t, "mostly Hard", segments[4].Focus)
	assert.Equal(t, 10, len(segments[0].Text))
	assert.Equal(t, 2, len(segments[4].Text))

	single := QuestionSegments("abc")
	require.Len(t, single, 1)
	assert.Equal(t, "abc", single[0].Text)
	assert.Equal(t, "Medium difficulty", single[0].Focus)

	long := QuestionSegments(strings.Repeat("y", 100000))
	require.Len(t, long, 5)
	for _, seg := range long {
		assert.Equal(t, 15000, len(seg.Text))
	}

	assert.Empty(t, QuestionSegments(""))
}

func TestFullText_RemovesOverlap(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	text := textOfLength(3500, "momentum")
	doc := h.upload(t, teacher, 7, "physics.txt", text)

	entries, err := h.index.Get(ctx, knowledge.Filter{DocumentID: doc.DocumentID})
	require.NoError(t, err)
	assert.Equal(t, text, fullText(entries, 200))
}
