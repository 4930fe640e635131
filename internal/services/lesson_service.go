package services

import (
	"context"
	"sort"
	"strings"

	apperrors "github.com/aihub/classroom-rag/internal/errors"
	"github.com/aihub/classroom-rag/internal/knowledge"
	"github.com/aihub/classroom-rag/internal/logger"
	"github.com/aihub/classroom-rag/internal/models"
	"github.com/aihub/classroom-rag/internal/repository"
	"go.uber.org/zap"
)

// GenerateLessonRequest 班级或文档范围的问答请求
type GenerateLessonRequest struct {
	Actor    Actor
	Scope    Scope
	Topic    string
	Question string
	K        int
	Student  StudentProfile
}

// PersonalizeRequest 整篇改写请求
type PersonalizeRequest struct {
	Actor      Actor
	DocumentID uint
	Topic      string
	Student    StudentProfile
}

// LessonResult 生成结果与引用的分块
type LessonResult struct {
	Lesson  *models.Lesson   `json:"lesson"`
	Sources []RetrievedChunk `json:"sources,omitempty"`
}

// LessonService 检索 + 生成 + 持久化
type LessonService struct {
	docs      repository.DocumentRepository
	lessons   repository.LessonRepository
	guard     accessGuard
	retriever *Retriever
	index     knowledge.VectorIndex
	synth     *Synthesizer
}

// NewLessonService 创建讲解服务
func NewLessonService(
	docs repository.DocumentRepository,
	lessons repository.LessonRepository,
	classrooms repository.ClassroomRepository,
	retriever *Retriever,
	index knowledge.VectorIndex,
	synth *Synthesizer,
) *LessonService {
	return &LessonService{
		docs:      docs,
		lessons:   lessons,
		guard:     accessGuard{classrooms: classrooms},
		retriever: retriever,
		index:     index,
		synth:     synth,
	}
}

// GenerateLesson 在范围内检索 top-k 分块并生成讲解
func (s *LessonService) GenerateLesson(ctx context.Context, req GenerateLessonRequest) (*LessonResult, error) {
	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		return nil, apperrors.NewValidationError("topic is required")
	}
	if req.Scope.ClassroomID == 0 {
		return nil, apperrors.NewScopeViolation("retrieval requires a classroom_id")
	}
	if err := s.guard.requireMember(ctx, req.Actor, req.Scope.ClassroomID); err != nil {
		return nil, err
	}
	if req.Scope.DocumentID != 0 {
		doc, err := s.docs.GetByID(ctx, req.Scope.DocumentID)
		if err != nil {
			return nil, err
		}
		if doc.ClassroomID != req.Scope.ClassroomID {
			return nil, apperrors.NewNotFoundError("document")
		}
	}

	question := strings.TrimSpace(req.Question)
	if question == "" {
		question = DefaultQuestion(topic)
	}

	sources, err := s.retriever.Retrieve(ctx, question, req.Scope, req.K)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, apperrors.NewNotFoundError("indexed content")
	}

	text, err := s.synth.Synthesize(ctx, Texts(sources), req.Student, topic, question)
	if err != nil {
		return nil, err
	}

	lesson := &models.Lesson{
		ClassroomID: req.Scope.ClassroomID,
		StudentID:   req.Actor.UserID,
		Mode:        models.LessonModeQA,
		StudentName: req.Student.Name,
		Grade:       req.Student.Grade,
		Interest:    req.Student.Interest,
		Topic:       topic,
		Question:    question,
		Content:     text,
		Model:       s.synth.Model(),
	}
	if req.Scope.DocumentID != 0 {
		id := req.Scope.DocumentID
		lesson.DocumentID = &id
	}
	if err := s.lessons.Create(ctx, lesson); err != nil {
		return nil, err
	}

	logger.Info("lesson generated",
		zap.Uint("lesson_id", lesson.LessonID),
		zap.Uint("classroom_id", lesson.ClassroomID),
		zap.Int("chunks", len(sources)))
	return &LessonResult{Lesson: lesson, Sources: sources}, nil
}

// Personalize 取文档全部分块按顺序拼接后整篇改写，没有分块时返回 NOT_FOUND
func (s *LessonService) Personalize(ctx context.Context, req PersonalizeRequest) (*LessonResult, error) {
	doc, err := s.docs.GetByID(ctx, req.DocumentID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.requireMember(ctx, req.Actor, doc.ClassroomID); err != nil {
		return nil, err
	}

	chunks, err := s.documentChunks(ctx, doc)
	if err != nil {
		return nil, err
	}

	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		topic = doc.Filename
	}

	text, err := s.synth.Personalize(ctx, chunks, req.Student, topic)
	if err != nil {
		return nil, err
	}

	docID := doc.DocumentID
	lesson := &models.Lesson{
		DocumentID:  &docID,
		ClassroomID: doc.ClassroomID,
		StudentID:   req.Actor.UserID,
		Mode:        models.LessonModePersonalize,
		StudentName: req.Student.Name,
		Grade:       req.Student.Grade,
		Interest:    req.Student.Interest,
		Topic:       topic,
		Content:     text,
		Model:       s.synth.Model(),
	}
	if err := s.lessons.Create(ctx, lesson); err != nil {
		return nil, err
	}

	logger.Info("document personalized",
		zap.Uint("lesson_id", lesson.LessonID),
		zap.Uint("document_id", docID),
		zap.Int("chunks", len(chunks)))
	return &LessonResult{Lesson: lesson}, nil
}

// documentChunks 按 chunk_index 排序的文档全部分块文本
func (s *LessonService) documentChunks(ctx context.Context, doc *models.Document) ([]string, error) {
	entries, err := s.index.Get(ctx, knowledge.Filter{ClassroomID: doc.ClassroomID, DocumentID: doc.DocumentID})
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, apperrors.NewNotFoundError("indexed chunks").WithOperation(operationID(doc.DocumentID))
	}
	return orderedTexts(entries), nil
}

// GetLesson 读取讲解记录，仅班级成员可见
func (s *LessonService) GetLesson(ctx context.Context, actor Actor, lessonID uint) (*models.Lesson, error) {
	lesson, err := s.lessons.GetByID(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.requireMember(ctx, actor, lesson.ClassroomID); err != nil {
		return nil, err
	}
	return lesson, nil
}

func orderedEntries(entries []knowledge.IndexEntry) []knowledge.IndexEntry {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Metadata.ChunkIndex < entries[j].Metadata.ChunkIndex
	})
	return entries
}

func orderedTexts(entries []knowledge.IndexEntry) []string {
	entries = orderedEntries(entries)
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Text
	}
	return out
}
