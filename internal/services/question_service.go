package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/aihub/classroom-rag/internal/errors"
	"github.com/aihub/classroom-rag/internal/knowledge"
	"github.com/aihub/classroom-rag/internal/llm"
	"github.com/aihub/classroom-rag/internal/logger"
	"github.com/aihub/classroom-rag/internal/models"
	"github.com/aihub/classroom-rag/internal/repository"
	"go.uber.org/zap"
)

const (
	questionSegments     = 5
	questionsPerSegment  = 10
	questionSegmentSlack = 1000
	questionSegmentLimit = 15000
)

const questionTemplate = `Generate %d Multiple Choice Questions based on this specific part of the book.
DIFFICULTY FOCUS: %s

CRITICAL: Return ONLY a raw JSON list. No Markdown.
Format:
[
  {
    "question": "...",
    "opt_a": "...", "opt_b": "...", "opt_c": "...", "opt_d": "...",
    "answer": "A",
    "difficulty": "Medium"
  }
]

TEXT:
%s
`

// QuestionSegment 题库生成的一个文本窗口
type QuestionSegment struct {
	Index int
	Focus string
	Text  string
}

// QuestionService 按文档分段生成单选题库
type QuestionService struct {
	docs        repository.DocumentRepository
	questions   repository.QuestionRepository
	guard       accessGuard
	index       knowledge.VectorIndex
	backend     llm.Backend
	overlap     int
	temperature float32
	attempts    int
	metrics     *Metrics
}

// NewQuestionService 创建题库服务，overlap 为分块重叠字符数，用于还原全文
func NewQuestionService(
	docs repository.DocumentRepository,
	questions repository.QuestionRepository,
	classrooms repository.ClassroomRepository,
	index knowledge.VectorIndex,
	backend llm.Backend,
	overlap int,
	temperature float32,
	attempts int,
	metrics *Metrics,
) *QuestionService {
	if attempts <= 0 {
		attempts = 4
	}
	return &QuestionService{
		docs:        docs,
		questions:   questions,
		guard:       accessGuard{classrooms: classrooms},
		index:       index,
		backend:     backend,
		overlap:     overlap,
		temperature: temperature,
		attempts:    attempts,
		metrics:     metrics,
	}
}

// Generate 重新生成文档的题库，仅任课教师可调用
//
// 全文切为 5 段，第一段偏简单、最后一段偏难；某段生成失败时跳过，全部失败才返回错误。
func (s *QuestionService) Generate(ctx context.Context, actor Actor, documentID uint) (stored []models.Question, err error) {
	doc, err := s.docs.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if _, err := s.guard.requireOwner(ctx, actor, doc.ClassroomID); err != nil {
		return nil, err
	}

	entries, err := s.index.Get(ctx, knowledge.Filter{ClassroomID: doc.ClassroomID, DocumentID: doc.DocumentID})
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, apperrors.NewNotFoundError("indexed chunks").WithOperation(operationID(doc.DocumentID))
	}

	started := time.Now()
	defer func() { s.metrics.generationDone("questions", started, err) }()

	log := logger.Named("questions").With(zap.Uint("document_id", doc.DocumentID))
	var lastErr error
	for _, seg := range QuestionSegments(fullText(entries, s.overlap)) {
		prompt := fmt.Sprintf(questionTemplate, questionsPerSegment, seg.Focus, seg.Text)
		out, genErr := llm.GenerateWithValidator(ctx, s.backend, prompt, s.temperature, s.attempts, llm.QuestionBatchValidator)
		if genErr != nil {
			if errors.Is(genErr, context.Canceled) || errors.Is(genErr, context.DeadlineExceeded) {
				return nil, genErr
			}
			log.Warn("question batch skipped", zap.Int("segment", seg.Index), zap.Error(genErr))
			lastErr = genErr
			continue
		}
		batch, parseErr := llm.ParseQuestionBatch(out)
		if parseErr != nil {
			lastErr = apperrors.NewGenerationFailed(parseErr)
			continue
		}
		if len(batch) > questionsPerSegment {
			batch = batch[:questionsPerSegment]
		}
		for _, q := range batch {
			stored = append(stored, models.Question{
				DocumentID:  doc.DocumentID,
				ClassroomID: doc.ClassroomID,
				Segment:     seg.Index,
				Difficulty:  q.Difficulty,
				Question:    q.Question,
				OptA:        q.OptA,
				OptB:        q.OptB,
				OptC:        q.OptC,
				OptD:        q.OptD,
				Answer:      q.Answer,
				Model:       s.backend.Model(),
			})
		}
	}
	if len(stored) == 0 {
		if lastErr == nil {
			lastErr = apperrors.NewGenerationFailed(errors.New("no questions generated"))
		}
		return nil, apperrors.AsAppError(stepError(lastErr, apperrors.NewGenerationFailed)).
			WithOperation(operationID(doc.DocumentID))
	}

	if err := s.questions.ReplaceForDocument(ctx, doc.DocumentID, stored); err != nil {
		return nil, err
	}
	log.Info("question bank generated", zap.Int("questions", len(stored)))
	return stored, nil
}

// List 读取文档题库，班级成员可见
func (s *QuestionService) List(ctx context.Context, actor Actor, documentID uint) ([]models.Question, error) {
	doc, err := s.docs.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.requireMember(ctx, actor, doc.ClassroomID); err != nil {
		return nil, err
	}
	questions, err := s.questions.ListByDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return nil, apperrors.NewNotFoundError("question bank")
	}
	return questions, nil
}

// QuestionSegments 把全文等分为 5 段，每段向后多取一些字符并限制长度
func QuestionSegments(text string) []QuestionSegment {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	n := questionSegments
	size := len(runes) / n
	if size == 0 {
		n, size = 1, len(runes)
	}

	segments := make([]QuestionSegment, 0, n)
	for i := 0; i < n; i++ {
		start := i * size
		end := min(start+size+questionSegmentSlack, len(runes), start+questionSegmentLimit)
		segments = append(segments, QuestionSegment{
			Index: i + 1,
			Focus: difficultyFocus(i, n),
			Text:  string(runes[start:end]),
		})
	}
	return segments
}

func difficultyFocus(i, n int) string {
	switch {
	case n > 1 && i == 0:
		return "mostly Easy"
	case n > 1 && i == n-1:
		return "mostly Hard"
	default:
		return "Medium difficulty"
	}
}

// fullText 按 chunk_index 排序并去掉重叠后还原全文
func fullText(entries []knowledge.IndexEntry, overlap int) string {
	entries = orderedEntries(entries)
	chunks := make([]knowledge.Chunk, len(entries))
	for i, e := range entries {
		chunks[i] = knowledge.Chunk{Index: e.Metadata.ChunkIndex, Text: e.Text}
	}
	return knowledge.Reassemble(chunks, overlap)
}
