package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	apperrors "github.com/aihub/classroom-rag/internal/errors"
	"github.com/aihub/classroom-rag/internal/knowledge"
	"github.com/aihub/classroom-rag/internal/models"
	"github.com/aihub/classroom-rag/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

// memDocuments 进程内文档仓库
type memDocuments struct {
	mu     sync.Mutex
	nextID uint
	docs   map[uint]*models.Document
}

func newMemDocuments() *memDocuments {
	return &memDocuments{docs: make(map[uint]*models.Document)}
}

func (m *memDocuments) Create(_ context.Context, doc *models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	doc.DocumentID = m.nextID
	cp := *doc
	m.docs[doc.DocumentID] = &cp
	return nil
}

func (m *memDocuments) GetByID(_ context.Context, id uint) (*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("document")
	}
	cp := *doc
	return &cp, nil
}

func (m *memDocuments) ListByClassroom(_ context.Context, classroomID uint) ([]models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Document
	for _, d := range m.docs {
		if d.ClassroomID == classroomID {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DocumentID < out[j].DocumentID })
	return out, nil
}

func (m *memDocuments) update(id uint, fn func(d *models.Document)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return apperrors.NewNotFoundError("document")
	}
	fn(doc)
	return nil
}

func (m *memDocuments) SetStorage(_ context.Context, id uint, bucket, path string) error {
	return m.update(id, func(d *models.Document) {
		d.Bucket, d.StoragePath, d.Status = bucket, path, models.DocumentStatusStored
	})
}

func (m *memDocuments) UpdateStatus(_ context.Context, id uint, status string) error {
	return m.update(id, func(d *models.Document) { d.Status = status })
}

func (m *memDocuments) MarkProcessed(_ context.Context, id uint, chunkCount int) error {
	return m.update(id, func(d *models.Document) {
		d.IsProcessed, d.ChunkCount, d.Status, d.LastError = true, chunkCount, models.DocumentStatusProcessed, ""
	})
}

func (m *memDocuments) MarkFailed(_ context.Context, id uint, reason string) error {
	return m.update(id, func(d *models.Document) {
		d.IsProcessed, d.ChunkCount, d.Status, d.LastError = false, 0, models.DocumentStatusFailed, reason
	})
}

func (m *memDocuments) ResetForReprocess(_ context.Context, id uint) error {
	return m.update(id, func(d *models.Document) {
		d.IsProcessed, d.ChunkCount, d.Status, d.LastError = false, 0, models.DocumentStatusStored, ""
	})
}

func (m *memDocuments) SetSyllabus(_ context.Context, id uint, syllabus string) error {
	return m.update(id, func(d *models.Document) { d.Syllabus = syllabus })
}

func (m *memDocuments) Delete(_ context.Context, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, id)
	return nil
}

// memClassrooms 进程内班级仓库
type memClassrooms struct {
	mu         sync.Mutex
	nextID     uint
	classrooms map[uint]*models.Classroom
	members    map[uint]map[uint]bool
}

func newMemClassrooms() *memClassrooms {
	return &memClassrooms{classrooms: make(map[uint]*models.Classroom), members: make(map[uint]map[uint]bool)}
}

// seed 以指定ID放入班级
func (m *memClassrooms) seed(id, teacherID uint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.classrooms[id] = &models.Classroom{ClassroomID: id, Name: "class", TeacherID: teacherID}
	if id > m.nextID {
		m.nextID = id
	}
}

func (m *memClassrooms) Create(_ context.Context, c *models.Classroom) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	c.ClassroomID = m.nextID
	cp := *c
	m.classrooms[c.ClassroomID] = &cp
	return nil
}

func (m *memClassrooms) GetByID(_ context.Context, id uint) (*models.Classroom, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.classrooms[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("classroom")
	}
	cp := *c
	return &cp, nil
}

func (m *memClassrooms) GetByJoinCode(_ context.Context, code string) (*models.Classroom, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.classrooms {
		if c.JoinCode == code {
			cp := *c
			return &cp, nil
		}
	}
	return nil, apperrors.NewNotFoundError("classroom")
}

func (m *memClassrooms) AddStudent(_ context.Context, classroomID, userID uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.members[classroomID] == nil {
		m.members[classroomID] = make(map[uint]bool)
	}
	m.members[classroomID][userID] = true
	return nil
}

func (m *memClassrooms) IsMember(_ context.Context, classroomID, userID uint) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.classrooms[classroomID]; ok && c.TeacherID == userID {
		return true, nil
	}
	return m.members[classroomID][userID], nil
}

func (m *memClassrooms) ListForUser(_ context.Context, userID uint) ([]models.Classroom, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Classroom
	for id, c := range m.classrooms {
		if c.TeacherID == userID || m.members[id][userID] {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClassroomID < out[j].ClassroomID })
	return out, nil
}

// memLessons 进程内讲解仓库
type memLessons struct {
	mu      sync.Mutex
	lessons []models.Lesson
}

func (m *memLessons) Create(_ context.Context, l *models.Lesson) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.LessonID = uint(len(m.lessons) + 1)
	m.lessons = append(m.lessons, *l)
	return nil
}

func (m *memLessons) GetByID(_ context.Context, id uint) (*models.Lesson, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id == 0 || int(id) > len(m.lessons) {
		return nil, apperrors.NewNotFoundError("lesson")
	}
	l := m.lessons[id-1]
	return &l, nil
}

func (m *memLessons) ListByDocument(_ context.Context, documentID uint) ([]models.Lesson, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Lesson
	for _, l := range m.lessons {
		if l.DocumentID != nil && *l.DocumentID == documentID {
			out = append(out, l)
		}
	}
	return out, nil
}

// memQuestions 进程内题库仓库
type memQuestions struct {
	mu        sync.Mutex
	nextID    uint
	questions map[uint][]models.Question
}

func (m *memQuestions) ReplaceForDocument(_ context.Context, documentID uint, questions []models.Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.questions == nil {
		m.questions = make(map[uint][]models.Question)
	}
	out := make([]models.Question, len(questions))
	for i, q := range questions {
		m.nextID++
		q.QuestionID = m.nextID
		out[i] = q
	}
	m.questions[documentID] = out
	return nil
}

func (m *memQuestions) ListByDocument(_ context.Context, documentID uint) ([]models.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Question(nil), m.questions[documentID]...), nil
}

// failingEmbedder 第 failOn 次 EmbedMany 调用返回错误
type failingEmbedder struct {
	knowledge.Embedder
	failOn int32
	calls  atomic.Int32
}

func (f *failingEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if f.calls.Add(1) == f.failOn {
		return nil, errors.New("embedding service unavailable")
	}
	return f.Embedder.EmbedMany(ctx, texts)
}

// partialIndex 写入一半分块后报错
type partialIndex struct {
	knowledge.VectorIndex
}

func (p partialIndex) Add(ctx context.Context, entries []knowledge.IndexEntry) ([]string, error) {
	if _, err := p.VectorIndex.Add(ctx, entries[:len(entries)/2]); err != nil {
		return nil, err
	}
	return nil, errors.New("connection reset by peer")
}

// scriptedBackend 按顺序返回预设回答并记录提示词
type scriptedBackend struct {
	mu      sync.Mutex
	replies []string
	err     error
	prompts []string
	temps   []float32
}

func (s *scriptedBackend) Model() string { return "scripted" }

func (s *scriptedBackend) Complete(_ context.Context, prompt string, temperature float32) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)
	s.temps = append(s.temps, temperature)
	if s.err != nil {
		return "", s.err
	}
	if len(s.replies) == 0 {
		return "", errors.New("script exhausted")
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	return r, nil
}

const (
	teacherID      uint = 1
	otherTeacherID uint = 2
	studentID      uint = 10
	outsiderID     uint = 11
)

var (
	teacher  = Actor{UserID: teacherID, Role: models.RoleTeacher}
	teacher2 = Actor{UserID: otherTeacherID, Role: models.RoleTeacher}
	student  = Actor{UserID: studentID, Role: models.RoleStudent}
	outsider = Actor{UserID: outsiderID, Role: models.RoleStudent}
)

// harness 组装内存版的完整流水线
type harness struct {
	docs       *memDocuments
	classrooms *memClassrooms
	lessons    *memLessons
	questions  *memQuestions
	blobs      *storage.MemoryStore
	index      *knowledge.MemoryIndex
	embedder   knowledge.Embedder
	metrics    *Metrics
	backend    *scriptedBackend

	ingestion   *IngestionService
	retriever   *Retriever
	lessonSvc   *LessonService
	syllabus    *SyllabusService
	questionSvc *QuestionService
}

type harnessOption func(*IngestionDeps)

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	chunker, err := knowledge.NewChunker(1000, 200)
	require.NoError(t, err)

	h := &harness{
		docs:       newMemDocuments(),
		classrooms: newMemClassrooms(),
		lessons:    &memLessons{},
		questions:  &memQuestions{},
		blobs:      storage.NewMemoryStore("edu-platform"),
		index:      knowledge.NewMemoryIndex(64),
		embedder:   knowledge.NewLocalEmbedder(knowledge.LocalHashModel, 64),
		metrics:    NewMetrics(prometheus.NewRegistry()),
		backend:    &scriptedBackend{},
	}
	// 班级 7 属于 teacher，班级 9 属于 teacher2，student 只加入了 7
	h.classrooms.seed(7, teacherID)
	h.classrooms.seed(9, otherTeacherID)
	require.NoError(t, h.classrooms.AddStudent(context.Background(), 7, studentID))

	deps := IngestionDeps{
		Documents:  h.docs,
		Classrooms: h.classrooms,
		Blobs:      h.blobs,
		Chunker:    chunker,
		Embedder:   h.embedder,
		Index:      h.index,
		Metrics:    h.metrics,
		EmbedBatch: 2,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	h.ingestion = NewIngestionService(deps)
	h.retriever = NewRetriever(h.embedder, h.index, 3, h.metrics)
	synth := NewSynthesizer(h.backend, 0.3, h.metrics)
	h.lessonSvc = NewLessonService(h.docs, h.lessons, h.classrooms, h.retriever, h.index, synth)
	h.syllabus = NewSyllabusService(h.docs, h.classrooms, h.index, h.backend, 3, h.metrics)
	h.questionSvc = NewQuestionService(h.docs, h.questions, h.classrooms, h.index, h.backend,
		chunker.Overlap(), 0.3, 3, h.metrics)
	return h
}

// textOfLength 生成指定 rune 数的正文
func textOfLength(n int, word string) string {
	var b strings.Builder
	for b.Len() < n {
		b.WriteString(word)
		b.WriteString(" ")
	}
	return b.String()[:n]
}

func (h *harness) upload(t *testing.T, actor Actor, classroomID uint, filename, text string) *models.Document {
	t.Helper()
	doc, err := h.ingestion.Upload(context.Background(), UploadRequest{
		Actor:       actor,
		ClassroomID: classroomID,
		Filename:    filename,
		ContentType: "text/plain",
		Data:        []byte(text),
	})
	require.NoError(t, err)
	return doc
}
