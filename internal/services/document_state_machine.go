package services

import (
	"context"
	"fmt"

	"github.com/aihub/classroom-rag/internal/logger"
	"github.com/aihub/classroom-rag/internal/models"
	"github.com/aihub/classroom-rag/internal/repository"
	"go.uber.org/zap"
)

// 合法的状态转换，任何步骤都可以转到 failed
var documentTransitions = map[string][]string{
	models.DocumentStatusCreated:   {models.DocumentStatusStored},
	models.DocumentStatusStored:    {models.DocumentStatusExtracted},
	models.DocumentStatusExtracted: {models.DocumentStatusChunked},
	models.DocumentStatusChunked:   {models.DocumentStatusEmbedded},
	models.DocumentStatusEmbedded:  {models.DocumentStatusIndexed},
	models.DocumentStatusIndexed:   {models.DocumentStatusProcessed},
	// 重新摄取从 stored 开始
	models.DocumentStatusProcessed: {models.DocumentStatusStored},
	models.DocumentStatusFailed:    {models.DocumentStatusStored},
}

// CanTransition 检查是否可以进行状态转换
func CanTransition(from, to string) bool {
	if to == models.DocumentStatusFailed {
		return from != models.DocumentStatusFailed
	}
	for _, next := range documentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// documentRun 单次摄取的状态推进，中间步骤写入关系库与状态缓存
type documentRun struct {
	docs   repository.DocumentRepository
	status StatusCache
	doc    *models.Document
	state  string
	log    *zap.Logger
}

func newDocumentRun(docs repository.DocumentRepository, status StatusCache, doc *models.Document) *documentRun {
	return &documentRun{
		docs:   docs,
		status: status,
		doc:    doc,
		state:  doc.Status,
		log: logger.Named("ingestion").With(
			zap.Uint("document_id", doc.DocumentID),
			zap.Uint("classroom_id", doc.ClassroomID)),
	}
}

// advance 推进到下一个中间步骤
func (r *documentRun) advance(ctx context.Context, to string) error {
	if !CanTransition(r.state, to) {
		return fmt.Errorf("invalid transition from %s to %s", r.state, to)
	}
	if to != models.DocumentStatusProcessed {
		if err := r.docs.UpdateStatus(ctx, r.doc.DocumentID, to); err != nil {
			return err
		}
	}
	r.status.SetStep(ctx, r.doc.DocumentID, to)
	r.log.Debug("document status transitioned", zap.String("from", r.state), zap.String("to", to))
	r.state = to
	r.doc.Status = to
	return nil
}
