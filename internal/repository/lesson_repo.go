package repository

import (
	"context"

	"github.com/aihub/classroom-rag/internal/models"
	"gorm.io/gorm"
)

type lessonRepository struct {
	db *gorm.DB
}

// NewLessonRepository 创建讲解记录仓库
func NewLessonRepository(db *gorm.DB) LessonRepository {
	return &lessonRepository{db: db}
}

func (r *lessonRepository) Create(ctx context.Context, lesson *models.Lesson) error {
	return translateError(r.db.WithContext(ctx).Create(lesson).Error, "lesson")
}

func (r *lessonRepository) GetByID(ctx context.Context, id uint) (*models.Lesson, error) {
	var l models.Lesson
	if err := r.db.WithContext(ctx).Where("lesson_id = ?", id).First(&l).Error; err != nil {
		return nil, translateError(err, "lesson")
	}
	return &l, nil
}

func (r *lessonRepository) ListByDocument(ctx context.Context, documentID uint) ([]models.Lesson, error) {
	var lessons []models.Lesson
	err := r.db.WithContext(ctx).Where("document_id = ?", documentID).Order("lesson_id DESC").Find(&lessons).Error
	return lessons, translateError(err, "lesson")
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository 创建用户仓库
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	if user.Role == "" {
		user.Role = models.RoleStudent
	}
	return translateError(r.db.WithContext(ctx).Create(user).Error, "user")
}

func (r *userRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).Where("user_id = ?", id).First(&u).Error; err != nil {
		return nil, translateError(err, "user")
	}
	return &u, nil
}
