package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	apperrors "github.com/aihub/classroom-rag/internal/errors"
	"github.com/aihub/classroom-rag/internal/kafka"
	"github.com/aihub/classroom-rag/internal/knowledge"
	"github.com/aihub/classroom-rag/internal/logger"
	"github.com/aihub/classroom-rag/internal/models"
	"github.com/aihub/classroom-rag/internal/repository"
	"github.com/aihub/classroom-rag/internal/storage"
	"go.uber.org/zap"
)

// EventPublisher 文档生命周期事件出口
type EventPublisher interface {
	Publish(ctx context.Context, ev kafka.DocumentEvent) error
}

// IngestionDeps 摄取流水线的依赖，Locker/Status/Events/Metrics 可为空
type IngestionDeps struct {
	Documents  repository.DocumentRepository
	Classrooms repository.ClassroomRepository
	Blobs      storage.BlobStore
	Extractors *knowledge.ExtractorRegistry
	Chunker    *knowledge.Chunker
	Embedder   knowledge.Embedder
	Index      knowledge.VectorIndex

	Locker  DocumentLocker
	Status  StatusCache
	Events  EventPublisher
	Metrics *Metrics

	EmbedBatch    int
	EmbedParallel int
	MaxUploadSize int64
}

// IngestionService 文档摄取流水线：存储 → 抽取 → 分块 → 向量化 → 写索引
//
// is_processed 只在索引写入成功后置为 true；任何一步失败都会按 document_id
// 删除已写入的分块，并把记录标记为 failed。
type IngestionService struct {
	docs       repository.DocumentRepository
	guard      accessGuard
	blobs      storage.BlobStore
	extractors *knowledge.ExtractorRegistry
	chunker    *knowledge.Chunker
	embedder   knowledge.Embedder
	index      knowledge.VectorIndex
	locker     DocumentLocker
	status     StatusCache
	events     EventPublisher
	metrics    *Metrics

	embedBatch    int
	embedParallel int
	maxUploadSize int64
}

// UploadRequest 上传请求
type UploadRequest struct {
	Actor       Actor
	ClassroomID uint
	Filename    string
	ContentType string
	Data        []byte
}

// DocumentStatusView 文档处理状态
type DocumentStatusView struct {
	ID          uint   `json:"id"`
	Filename    string `json:"filename"`
	IsProcessed bool   `json:"is_processed"`
	Status      string `json:"status"`
	Step        string `json:"step,omitempty"`
	ChunkCount  int    `json:"chunk_count"`
	LastError   string `json:"last_error,omitempty"`
}

// NewIngestionService 创建摄取服务
func NewIngestionService(d IngestionDeps) *IngestionService {
	if d.Extractors == nil {
		d.Extractors = knowledge.NewExtractorRegistry()
	}
	if d.Locker == nil {
		d.Locker = NewLocalLocker()
	}
	if d.Status == nil {
		d.Status = noopStatusCache{}
	}
	if d.EmbedBatch <= 0 {
		d.EmbedBatch = 32
	}
	if d.EmbedParallel <= 0 {
		d.EmbedParallel = 1
	}
	return &IngestionService{
		docs:          d.Documents,
		guard:         accessGuard{classrooms: d.Classrooms},
		blobs:         d.Blobs,
		extractors:    d.Extractors,
		chunker:       d.Chunker,
		embedder:      d.Embedder,
		index:         d.Index,
		locker:        d.Locker,
		status:        d.Status,
		events:        d.Events,
		metrics:       d.Metrics,
		embedBatch:    d.EmbedBatch,
		embedParallel: d.EmbedParallel,
		maxUploadSize: d.MaxUploadSize,
	}
}

// Upload 创建文档记录、保存原件并同步摄取
//
// 流水线失败时记录保留为未处理状态并返回带文档ID的错误，可通过 Reprocess 重试。
func (s *IngestionService) Upload(ctx context.Context, req UploadRequest) (*models.Document, error) {
	filename := filepath.Base(strings.TrimSpace(req.Filename))
	if filename == "" || filename == "." || filename == "/" {
		return nil, apperrors.NewValidationError("filename is required")
	}
	if len(req.Data) == 0 {
		return nil, apperrors.NewValidationError("file is empty")
	}
	if s.maxUploadSize > 0 && int64(len(req.Data)) > s.maxUploadSize {
		return nil, apperrors.New(apperrors.ErrCodeFileTooLarge,
			fmt.Sprintf("file exceeds %d bytes", s.maxUploadSize))
	}
	if _, err := s.guard.requireOwner(ctx, req.Actor, req.ClassroomID); err != nil {
		return nil, err
	}

	contentType := req.ContentType
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = knowledge.DetectMIME(req.Data)
	}

	doc := &models.Document{
		ClassroomID: req.ClassroomID,
		UploadedBy:  req.Actor.UserID,
		Filename:    filename,
		MimeType:    contentType,
		Size:        int64(len(req.Data)),
		Bucket:      s.blobs.Bucket(),
		Status:      models.DocumentStatusCreated,
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		return nil, err
	}
	log := logger.Named("ingestion").With(
		zap.Uint("document_id", doc.DocumentID),
		zap.Uint("classroom_id", doc.ClassroomID))
	log.Info("document created", zap.String("filename", filename), zap.Int64("size", doc.Size))

	started := time.Now()
	path := storage.ObjectPath(doc.ClassroomID, doc.DocumentID, filename)
	if err := s.blobs.Put(ctx, path, bytes.NewReader(req.Data), doc.Size, contentType); err != nil {
		return doc, s.fail(ctx, doc, err, false)
	}
	if err := s.docs.SetStorage(ctx, doc.DocumentID, s.blobs.Bucket(), path); err != nil {
		return doc, s.fail(ctx, doc, err, false)
	}
	doc.StoragePath = path
	doc.Status = models.DocumentStatusStored
	s.status.SetStep(ctx, doc.DocumentID, models.DocumentStatusStored)
	s.metrics.observeStep(models.DocumentStatusStored, started)

	unlock, err := s.locker.Lock(ctx, doc.DocumentID)
	if err != nil {
		return doc, s.fail(ctx, doc, err, false)
	}
	defer unlock()

	if err := s.ingest(ctx, doc, req.Data); err != nil {
		return doc, err
	}
	return doc, nil
}

// Reprocess 从对象存储重新读取原件并重新摄取，旧分块先被删除
func (s *IngestionService) Reprocess(ctx context.Context, actor Actor, documentID uint) (*models.Document, error) {
	doc, err := s.docs.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if _, err := s.guard.requireOwner(ctx, actor, doc.ClassroomID); err != nil {
		return nil, err
	}
	return doc, s.reprocess(ctx, doc)
}

// ReprocessByID 不做身份校验的重新摄取，供消息队列与命令行使用
func (s *IngestionService) ReprocessByID(ctx context.Context, documentID uint) error {
	doc, err := s.docs.GetByID(ctx, documentID)
	if err != nil {
		return err
	}
	return s.reprocess(ctx, doc)
}

// reprocess 重置与重新摄取都在文档锁内完成，is_processed 不会在旧分块被删除后仍为 true
func (s *IngestionService) reprocess(ctx context.Context, doc *models.Document) error {
	unlock, err := s.locker.Lock(ctx, doc.DocumentID)
	if err != nil {
		return apperrors.AsAppError(err).WithOperation(operationID(doc.DocumentID))
	}
	defer unlock()

	// 等锁期间记录可能已被其他摄取或删除修改
	current, err := s.docs.GetByID(ctx, doc.DocumentID)
	if err != nil {
		return err
	}
	*doc = *current

	if doc.StoragePath == "" {
		return apperrors.NewValidationError("document has no stored original").
			WithOperation(operationID(doc.DocumentID))
	}
	data, err := s.blobs.Get(ctx, doc.StoragePath)
	if err != nil {
		return apperrors.AsAppError(err).WithOperation(operationID(doc.DocumentID))
	}
	if err := s.docs.ResetForReprocess(ctx, doc.DocumentID); err != nil {
		return err
	}
	doc.IsProcessed = false
	doc.ChunkCount = 0
	doc.Status = models.DocumentStatusStored
	s.status.SetStep(ctx, doc.DocumentID, models.DocumentStatusStored)

	logger.Info("reprocessing document", zap.Uint("document_id", doc.DocumentID))
	return s.ingest(ctx, doc, data)
}

// ingest 从 stored 推进到 processed，调用方持有文档锁
func (s *IngestionService) ingest(ctx context.Context, doc *models.Document, data []byte) error {
	run := newDocumentRun(s.docs, s.status, doc)
	begun := time.Now()

	// 索引只追加不去重，重新摄取前先清掉旧分块
	if _, err := s.index.Delete(ctx, knowledge.Filter{DocumentID: doc.DocumentID}); err != nil {
		return s.fail(ctx, doc, err, true)
	}

	started := time.Now()
	extracted, err := s.extractors.Extract(ctx, data, doc.Filename)
	if err != nil {
		return s.fail(ctx, doc, err, true)
	}
	if err := run.advance(ctx, models.DocumentStatusExtracted); err != nil {
		return s.fail(ctx, doc, err, true)
	}
	s.metrics.observeStep(models.DocumentStatusExtracted, started)

	started = time.Now()
	var chunks []knowledge.Chunk
	for chunk := range s.chunker.Chunks(extracted.Text()) {
		if ctx.Err() != nil {
			return s.fail(ctx, doc, ctx.Err(), true)
		}
		chunks = append(chunks, chunk)
	}
	if err := run.advance(ctx, models.DocumentStatusChunked); err != nil {
		return s.fail(ctx, doc, err, true)
	}
	s.metrics.observeStep(models.DocumentStatusChunked, started)
	run.log.Info("document chunked", zap.Int("chunks", len(chunks)), zap.String("mime", extracted.MIME))

	started = time.Now()
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := knowledge.EmbedInBatches(ctx, s.embedder, texts, s.embedBatch, s.embedParallel)
	if err != nil {
		return s.fail(ctx, doc, stepError(err, apperrors.NewEmbeddingFailed), true)
	}
	if err := run.advance(ctx, models.DocumentStatusEmbedded); err != nil {
		return s.fail(ctx, doc, err, true)
	}
	s.metrics.observeStep(models.DocumentStatusEmbedded, started)

	started = time.Now()
	entries := make([]knowledge.IndexEntry, len(chunks))
	for i, c := range chunks {
		entries[i] = knowledge.IndexEntry{
			Text:   c.Text,
			Vector: vectors[i],
			Metadata: knowledge.ChunkMetadata{
				DocumentID:  doc.DocumentID,
				ClassroomID: doc.ClassroomID,
				Filename:    doc.Filename,
				ChunkIndex:  c.Index,
				Page:        extracted.PageAt(c.Start),
			},
		}
	}
	if _, err := s.index.Add(ctx, entries); err != nil {
		return s.fail(ctx, doc, stepError(err, apperrors.NewIndexWriteFailed), true)
	}
	if err := run.advance(ctx, models.DocumentStatusIndexed); err != nil {
		return s.fail(ctx, doc, err, true)
	}
	s.metrics.observeStep(models.DocumentStatusIndexed, started)

	if err := s.docs.MarkProcessed(ctx, doc.DocumentID, len(chunks)); err != nil {
		return s.fail(ctx, doc, err, true)
	}
	if err := run.advance(ctx, models.DocumentStatusProcessed); err != nil {
		return s.fail(ctx, doc, err, true)
	}
	doc.IsProcessed = true
	doc.ChunkCount = len(chunks)
	doc.LastError = ""

	s.metrics.ingestionDone(len(chunks), nil)
	run.log.Info("document processed",
		zap.Int("chunks", len(chunks)),
		zap.Duration("elapsed", time.Since(begun)))
	s.publish(ctx, doc, kafka.EventDocumentProcessed, "")
	return nil
}

// stepError 未分类的错误按所在步骤归类
func stepError(err error, classify func(error) *apperrors.AppError) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return classify(err)
}

// fail 记录失败，compensate 时按 document_id 删除可能已写入的分块，返回带文档ID的错误
func (s *IngestionService) fail(ctx context.Context, doc *models.Document, cause error, compensate bool) error {
	appErr := apperrors.AsAppError(cause)
	if appErr.OperationID == "" {
		appErr = appErr.WithOperation(operationID(doc.DocumentID))
	}

	// 客户端断开后仍需完成补偿与状态落库
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	log := logger.Named("ingestion").With(
		zap.Uint("document_id", doc.DocumentID),
		zap.Uint("classroom_id", doc.ClassroomID),
		zap.String("step", doc.Status))

	if compensate {
		removed, err := s.index.Delete(cleanupCtx, knowledge.Filter{DocumentID: doc.DocumentID})
		s.metrics.compensated(err)
		if err != nil {
			log.Error("compensating delete failed, orphaned chunks may remain", zap.Error(err))
		} else {
			log.Warn("compensating delete removed partial chunks", zap.Int("chunks", removed))
		}
	}

	if err := s.docs.MarkFailed(cleanupCtx, doc.DocumentID, appErr.Error()); err != nil {
		log.Error("failed to mark document as failed", zap.Error(err))
	}
	doc.IsProcessed = false
	doc.ChunkCount = 0
	doc.Status = models.DocumentStatusFailed
	doc.LastError = appErr.Error()
	s.status.SetStep(cleanupCtx, doc.DocumentID, models.DocumentStatusFailed)

	s.metrics.ingestionDone(0, appErr)
	log.Error("document ingestion failed", zap.String("code", string(appErr.Code)), zap.Error(cause))
	s.publish(cleanupCtx, doc, kafka.EventDocumentFailed, appErr.Error())
	return appErr
}

func (s *IngestionService) publish(ctx context.Context, doc *models.Document, eventType, reason string) {
	if s.events == nil {
		return
	}
	err := s.events.Publish(ctx, kafka.DocumentEvent{
		Type:        eventType,
		DocumentID:  doc.DocumentID,
		ClassroomID: doc.ClassroomID,
		Status:      doc.Status,
		ChunkCount:  doc.ChunkCount,
		Error:       reason,
	})
	if err != nil {
		logger.Warn("failed to publish document event",
			zap.String("event", eventType),
			zap.Uint("document_id", doc.DocumentID),
			zap.Error(err))
	}
}

// Status 文档处理状态，分块数以向量索引中的实际条数为准
func (s *IngestionService) Status(ctx context.Context, actor Actor, documentID uint) (*DocumentStatusView, error) {
	doc, err := s.docs.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.requireMember(ctx, actor, doc.ClassroomID); err != nil {
		return nil, err
	}

	entries, err := s.index.Get(ctx, knowledge.Filter{ClassroomID: doc.ClassroomID, DocumentID: doc.DocumentID})
	if err != nil {
		return nil, apperrors.AsAppError(err).WithOperation(operationID(documentID))
	}

	view := &DocumentStatusView{
		ID:          doc.DocumentID,
		Filename:    doc.Filename,
		IsProcessed: doc.IsProcessed,
		Status:      doc.Status,
		ChunkCount:  len(entries),
		LastError:   doc.LastError,
	}
	if step, ok := s.status.Step(ctx, documentID); ok {
		view.Step = step
	}
	return view, nil
}

// Delete 删除文档：先删向量分块，再删原件与记录
func (s *IngestionService) Delete(ctx context.Context, actor Actor, documentID uint) error {
	doc, err := s.docs.GetByID(ctx, documentID)
	if err != nil {
		return err
	}
	if _, err := s.guard.requireOwner(ctx, actor, doc.ClassroomID); err != nil {
		return err
	}

	unlock, err := s.locker.Lock(ctx, documentID)
	if err != nil {
		return err
	}
	defer unlock()

	removed, err := s.index.Delete(ctx, knowledge.Filter{DocumentID: documentID})
	if err != nil {
		return apperrors.AsAppError(err).WithOperation(operationID(documentID))
	}
	if doc.StoragePath != "" {
		if err := s.blobs.Delete(ctx, doc.StoragePath); err != nil {
			logger.Warn("failed to delete document original",
				zap.Uint("document_id", documentID),
				zap.String("path", doc.StoragePath),
				zap.Error(err))
		}
	}
	if err := s.docs.Delete(ctx, documentID); err != nil {
		return err
	}
	s.status.Clear(ctx, documentID)

	logger.Info("document deleted", zap.Uint("document_id", documentID), zap.Int("chunks", removed))
	s.publish(ctx, doc, kafka.EventDocumentDeleted, "")
	return nil
}

// ListByClassroom 班级成员可见的文档列表
func (s *IngestionService) ListByClassroom(ctx context.Context, actor Actor, classroomID uint) ([]models.Document, error) {
	if err := s.guard.requireMember(ctx, actor, classroomID); err != nil {
		return nil, err
	}
	return s.docs.ListByClassroom(ctx, classroomID)
}

func operationID(documentID uint) string {
	return fmt.Sprintf("document_%d", documentID)
}
