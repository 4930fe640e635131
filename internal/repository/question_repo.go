package repository

import (
	"context"

	"github.com/aihub/classroom-rag/internal/models"
	"gorm.io/gorm"
)

type questionRepository struct {
	db *gorm.DB
}

// NewQuestionRepository 创建题库仓库
func NewQuestionRepository(db *gorm.DB) QuestionRepository {
	return &questionRepository{db: db}
}

// ReplaceForDocument 在同一事务内删除文档的旧题目并写入新题目
func (r *questionRepository) ReplaceForDocument(ctx context.Context, documentID uint, questions []models.Question) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", documentID).Delete(&models.Question{}).Error; err != nil {
			return err
		}
		if len(questions) == 0 {
			return nil
		}
		return tx.Create(&questions).Error
	})
	return translateError(err, "question")
}

func (r *questionRepository) ListByDocument(ctx context.Context, documentID uint) ([]models.Question, error) {
	var questions []models.Question
	err := r.db.WithContext(ctx).Where("document_id = ?", documentID).
		Order("segment ASC, question_id ASC").Find(&questions).Error
	return questions, translateError(err, "question")
}
