package repository

import (
	"context"

	"github.com/aihub/classroom-rag/internal/models"
	"gorm.io/gorm"
)

// documentRepository 文档仓库实现
type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository 创建文档仓库
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

func (r *documentRepository) Create(ctx context.Context, doc *models.Document) error {
	if doc.Status == "" {
		doc.Status = models.DocumentStatusCreated
	}
	return translateError(r.db.WithContext(ctx).Create(doc).Error, "document")
}

func (r *documentRepository) GetByID(ctx context.Context, id uint) (*models.Document, error) {
	var doc models.Document
	if err := r.db.WithContext(ctx).Where("document_id = ?", id).First(&doc).Error; err != nil {
		return nil, translateError(err, "document")
	}
	return &doc, nil
}

// ListByClassroom 按上传顺序列出班级文档
func (r *documentRepository) ListByClassroom(ctx context.Context, classroomID uint) ([]models.Document, error) {
	var docs []models.Document
	err := r.db.WithContext(ctx).
		Where("classroom_id = ?", classroomID).
		Order("document_id").
		Find(&docs).Error
	return docs, translateError(err, "document")
}

func (r *documentRepository) update(ctx context.Context, id uint, updates map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&models.Document{}).Where("document_id = ?", id).Updates(updates)
	if res.Error != nil {
		return translateError(res.Error, "document")
	}
	if res.RowsAffected == 0 {
		return translateError(gorm.ErrRecordNotFound, "document")
	}
	return nil
}

// SetStorage 记录对象存储位置并推进到 stored
func (r *documentRepository) SetStorage(ctx context.Context, id uint, bucket, path string) error {
	return r.update(ctx, id, map[string]interface{}{
		"bucket":       bucket,
		"storage_path": path,
		"status":       models.DocumentStatusStored,
	})
}

func (r *documentRepository) UpdateStatus(ctx context.Context, id uint, status string) error {
	return r.update(ctx, id, map[string]interface{}{"status": status})
}

// MarkProcessed 索引写入成功后调用
func (r *documentRepository) MarkProcessed(ctx context.Context, id uint, chunkCount int) error {
	return r.update(ctx, id, map[string]interface{}{
		"is_processed": true,
		"status":       models.DocumentStatusProcessed,
		"chunk_count":  chunkCount,
		"last_error":   "",
	})
}

func (r *documentRepository) MarkFailed(ctx context.Context, id uint, reason string) error {
	return r.update(ctx, id, map[string]interface{}{
		"is_processed": false,
		"status":       models.DocumentStatusFailed,
		"chunk_count":  0,
		"last_error":   reason,
	})
}

func (r *documentRepository) ResetForReprocess(ctx context.Context, id uint) error {
	return r.update(ctx, id, map[string]interface{}{
		"is_processed": false,
		"status":       models.DocumentStatusStored,
		"chunk_count":  0,
	})
}

func (r *documentRepository) SetSyllabus(ctx context.Context, id uint, syllabus string) error {
	return r.update(ctx, id, map[string]interface{}{"syllabus": syllabus})
}

func (r *documentRepository) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Where("document_id = ?", id).Delete(&models.Document{})
	if res.Error != nil {
		return translateError(res.Error, "document")
	}
	if res.RowsAffected == 0 {
		return translateError(gorm.ErrRecordNotFound, "document")
	}
	return nil
}
