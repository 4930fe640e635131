package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
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
	syllabusPages      = 10
	syllabusCharBudget = 20000
)

const syllabusTemplate = `You are an educational assistant. Read the textbook introduction below and extract the main chapters/topics.
Return ONLY a valid JSON list of strings. Do not add markdown formatting.
Example: ["Chapter 1: Force", "Chapter 2: Gravity"]

TEXTBOOK CONTENT:
%s
`

// SyllabusService 从文档开头提取主题列表
type SyllabusService struct {
	docs     repository.DocumentRepository
	guard    accessGuard
	index    knowledge.VectorIndex
	backend  llm.Backend
	attempts int
	metrics  *Metrics
}

// NewSyllabusService 创建大纲服务，attempts 为校验失败后的最大生成次数
func NewSyllabusService(
	docs repository.DocumentRepository,
	classrooms repository.ClassroomRepository,
	index knowledge.VectorIndex,
	backend llm.Backend,
	attempts int,
	metrics *Metrics,
) *SyllabusService {
	if attempts <= 0 {
		attempts = 4
	}
	return &SyllabusService{
		docs:     docs,
		guard:    accessGuard{classrooms: classrooms},
		index:    index,
		backend:  backend,
		attempts: attempts,
		metrics:  metrics,
	}
}

// Generate 生成并保存大纲，仅任课教师可调用
func (s *SyllabusService) Generate(ctx context.Context, actor Actor, documentID uint) (topics []string, err error) {
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
	defer func() { s.metrics.generationDone("syllabus", started, err) }()

	prompt := fmt.Sprintf(syllabusTemplate, introduction(entries, syllabusCharBudget))
	out, err := llm.GenerateWithValidator(ctx, s.backend, prompt, 0, s.attempts, llm.TopicListValidator)
	if err != nil {
		return nil, err
	}
	topics, err = llm.ParseTopicList(out)
	if err != nil {
		return nil, apperrors.NewGenerationFailed(err)
	}

	raw, err := json.Marshal(topics)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternalServer, "encode syllabus", err)
	}
	if err := s.docs.SetSyllabus(ctx, doc.DocumentID, string(raw)); err != nil {
		return nil, err
	}

	logger.Info("syllabus generated",
		zap.Uint("document_id", doc.DocumentID),
		zap.Int("topics", len(topics)))
	return topics, nil
}

// Get 读取已保存的大纲
func (s *SyllabusService) Get(ctx context.Context, actor Actor, documentID uint) ([]string, error) {
	doc, err := s.docs.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.requireMember(ctx, actor, doc.ClassroomID); err != nil {
		return nil, err
	}
	return decodeSyllabus(doc)
}

func decodeSyllabus(doc *models.Document) ([]string, error) {
	if strings.TrimSpace(doc.Syllabus) == "" {
		return nil, apperrors.NewNotFoundError("syllabus")
	}
	var topics []string
	if err := json.Unmarshal([]byte(doc.Syllabus), &topics); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternalServer, "decode syllabus", err)
	}
	return topics, nil
}

// introduction 按 chunk_index 顺序取前几页文本，不超过 budget 个字符
func introduction(entries []knowledge.IndexEntry, budget int) string {
	var b strings.Builder
	used := 0
	for _, text := range orderedEntries(entries) {
		if text.Metadata.Page > syllabusPages {
			break
		}
		r := []rune(text.Text)
		if used+len(r) > budget {
			r = r[:budget-used]
		}
		b.WriteString(string(r))
		b.WriteString("\n")
		used += len(r)
		if used >= budget {
			break
		}
	}
	return b.String()
}
