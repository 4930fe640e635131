package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/aihub/classroom-rag/internal/errors"
	"github.com/aihub/classroom-rag/internal/llm"
	"github.com/aihub/classroom-rag/internal/models"
)

// StudentProfile 学生画像
type StudentProfile struct {
	Name     string `json:"name" validate:"max=100"`
	Grade    string `json:"grade" validate:"max=50"`
	Interest string `json:"interest" validate:"max=200"`
}

// DefaultQuestion 未提问时的开场问题
func DefaultQuestion(topic string) string {
	return fmt.Sprintf("Explain the main concept of %s to me.", topic)
}

const qaTemplate = `You are an expert tutor.

CONTEXT (FACTS FROM TEXTBOOK):
%s

STUDENT PROFILE:
- Name: %s
- Interest: %s
- Grade: %s

INSTRUCTION:
Explain the concept of '%s' based on the student's question.
Use analogies related to **%s** to make it easier.
Keep the language suitable for **%s**.
Strictly use the facts from the CONTEXT.

QUESTION: %s
`

const personalizeTemplate = `You are an expert tutor rewriting a textbook section for one student.

FULL TEXT:
%s

STUDENT PROFILE:
- Name: %s
- Interest: %s
- Grade: %s

INSTRUCTION:
Rewrite the full text above as a complete lesson on '%s' for this student.
Keep every fact and do not add new ones.
Use analogies related to **%s** and language suitable for **%s**.
`

// Synthesizer 拼装提示词并调用一次生成后端，本身不重试
type Synthesizer struct {
	backend     llm.Backend
	temperature float32
	metrics     *Metrics
}

// NewSynthesizer 创建讲解生成器
func NewSynthesizer(backend llm.Backend, temperature float32, metrics *Metrics) *Synthesizer {
	return &Synthesizer{backend: backend, temperature: temperature, metrics: metrics}
}

// Model 后端模型名
func (s *Synthesizer) Model() string { return s.backend.Model() }

// BuildQAPrompt 问答模式的提示词
func BuildQAPrompt(chunks []string, profile StudentProfile, topic, question string) string {
	if strings.TrimSpace(question) == "" {
		question = DefaultQuestion(topic)
	}
	return fmt.Sprintf(qaTemplate,
		strings.Join(chunks, "\n\n"),
		profile.Name, profile.Interest, profile.Grade,
		topic, profile.Interest, profile.Grade,
		question)
}

// BuildPersonalizePrompt 整篇改写模式的提示词
func BuildPersonalizePrompt(chunks []string, profile StudentProfile, topic string) string {
	return fmt.Sprintf(personalizeTemplate,
		strings.Join(chunks, "\n\n"),
		profile.Name, profile.Interest, profile.Grade,
		topic, profile.Interest, profile.Grade)
}

// Synthesize 基于检索到的分块回答问题
func (s *Synthesizer) Synthesize(ctx context.Context, chunks []string, profile StudentProfile, topic, question string) (string, error) {
	return s.complete(ctx, models.LessonModeQA, BuildQAPrompt(chunks, profile, topic, question))
}

// Personalize 基于文档全部分块整篇改写
func (s *Synthesizer) Personalize(ctx context.Context, chunks []string, profile StudentProfile, topic string) (string, error) {
	return s.complete(ctx, models.LessonModePersonalize, BuildPersonalizePrompt(chunks, profile, topic))
}

func (s *Synthesizer) complete(ctx context.Context, mode, prompt string) (text string, err error) {
	started := time.Now()
	defer func() { s.metrics.generationDone(mode, started, err) }()

	text, err = s.backend.Complete(ctx, prompt, s.temperature)
	if err != nil {
		if apperrors.IsCode(err, apperrors.ErrCodeGenerationFailed) || apperrors.IsCode(err, apperrors.ErrCodeGenerationTimeout) {
			return "", err
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", apperrors.NewGenerationFailed(err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", apperrors.NewGenerationFailed(fmt.Errorf("backend returned empty text"))
	}
	return text, nil
}
