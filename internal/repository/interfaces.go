package repository

import (
	"context"
	"errors"

	apperrors "github.com/aihub/classroom-rag/internal/errors"
	"github.com/aihub/classroom-rag/internal/models"
	"gorm.io/gorm"
)

// DocumentRepository 文档仓库接口，is_processed 的唯一写入方
type DocumentRepository interface {
	Create(ctx context.Context, doc *models.Document) error
	GetByID(ctx context.Context, id uint) (*models.Document, error)
	ListByClassroom(ctx context.Context, classroomID uint) ([]models.Document, error)
	SetStorage(ctx context.Context, id uint, bucket, path string) error
	UpdateStatus(ctx context.Context, id uint, status string) error
	MarkProcessed(ctx context.Context, id uint, chunkCount int) error
	MarkFailed(ctx context.Context, id uint, reason string) error
	ResetForReprocess(ctx context.Context, id uint) error
	SetSyllabus(ctx context.Context, id uint, syllabus string) error
	Delete(ctx context.Context, id uint) error
}

// ClassroomRepository 班级仓库接口
type ClassroomRepository interface {
	Create(ctx context.Context, classroom *models.Classroom) error
	GetByID(ctx context.Context, id uint) (*models.Classroom, error)
	GetByJoinCode(ctx context.Context, code string) (*models.Classroom, error)
	AddStudent(ctx context.Context, classroomID, userID uint) error
	IsMember(ctx context.Context, classroomID, userID uint) (bool, error)
	ListForUser(ctx context.Context, userID uint) ([]models.Classroom, error)
}

// UserRepository 用户档案仓库接口
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uint) (*models.User, error)
}

// LessonRepository 讲解记录仓库接口
type LessonRepository interface {
	Create(ctx context.Context, lesson *models.Lesson) error
	GetByID(ctx context.Context, id uint) (*models.Lesson, error)
	ListByDocument(ctx context.Context, documentID uint) ([]models.Lesson, error)
}

// QuestionRepository 题库仓库接口
type QuestionRepository interface {
	ReplaceForDocument(ctx context.Context, documentID uint, questions []models.Question) error
	ListByDocument(ctx context.Context, documentID uint) ([]models.Question, error)
}

// translateError 把 gorm 的未找到错误映射为 NOT_FOUND，其余归为数据库错误
func translateError(err error, resource string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.NewNotFoundError(resource)
	}
	return apperrors.Wrap(apperrors.ErrCodeDatabaseError, "database operation failed", err).
		WithDetails(map[string]interface{}{"resource": resource})
}
