package llm

import (
	"context"
	"testing"

	apperrors "github.com/aihub/classroom-rag/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validQuestion = `{"question":"What pulls objects toward Earth?","opt_a":"Gravity","opt_b":"Friction",` +
	`"opt_c":"Magnetism","opt_d":"Light","answer":"a","difficulty":"easy"}`

func TestParseQuestionBatch_NormalisesFields(t *testing.T) {
	out := "Here are your questions:\n```json\n[" + validQuestion + "]\n```\nGood luck!"

	questions, err := ParseQuestionBatch(out)
	require.NoError(t, err)
	require.Len(t, questions, 1)
	assert.Equal(t, "A", questions[0].Answer)
	assert.Equal(t, DifficultyEasy, questions[0].Difficulty)
	assert.Equal(t, "Gravity", questions[0].OptA)
}

func TestParseQuestionBatch_MissingDifficultyIsMedium(t *testing.T) {
	questions, err := ParseQuestionBatch(`[{"question":"q","opt_a":"1","opt_b":"2","opt_c":"3","opt_d":"4","answer":"D"}]`)
	require.NoError(t, err)
	assert.Equal(t, DifficultyMedium, questions[0].Difficulty)
}

func TestParseQuestionBatch_Rejects(t *testing.T) {
	cases := map[string]string{
		"not json":        "Q1. What is gravity?",
		"empty list":      "[]",
		"missing option":  `[{"question":"q","opt_a":"1","opt_b":"2","opt_c":"3","answer":"A"}]`,
		"bad answer":      `[{"question":"q","opt_a":"1","opt_b":"2","opt_c":"3","opt_d":"4","answer":"E"}]`,
		"bad difficulty":  `[{"question":"q","opt_a":"1","opt_b":"2","opt_c":"3","opt_d":"4","answer":"B","difficulty":"extreme"}]`,
		"blank question":  `[{"question":" ","opt_a":"1","opt_b":"2","opt_c":"3","opt_d":"4","answer":"B"}]`,
		"list of strings": `["What is gravity?"]`,
	}
	for name, out := range cases {
		_, err := ParseQuestionBatch(out)
		assert.Error(t, err, name)
	}
}

func TestGenerateWithValidator_QuestionBatch(t *testing.T) {
	b := &scriptedBackend{replies: []string{
		`[{"question":"q","opt_a":"1","opt_b":"2","opt_c":"3","opt_d":"4","answer":"Z"}]`,
		"[" + validQuestion + "]",
	}}

	out, err := GenerateWithValidator(context.Background(), b, "make questions", 0, 3, QuestionBatchValidator)
	require.NoError(t, err)
	assert.Contains(t, out, "Gravity")
	require.Len(t, b.prompts, 2)
	assert.Contains(t, b.prompts[1], "answer must be one of A, B, C, D")

	b = &scriptedBackend{replies: []string{"nope", "still nope"}}
	_, err = GenerateWithValidator(context.Background(), b, "make questions", 0, 2, QuestionBatchValidator)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeGenerationFailed))
}
