package repository

import (
	"context"

	"github.com/aihub/classroom-rag/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type classroomRepository struct {
	db *gorm.DB
}

// NewClassroomRepository 创建班级仓库
func NewClassroomRepository(db *gorm.DB) ClassroomRepository {
	return &classroomRepository{db: db}
}

func (r *classroomRepository) Create(ctx context.Context, classroom *models.Classroom) error {
	return translateError(r.db.WithContext(ctx).Create(classroom).Error, "classroom")
}

func (r *classroomRepository) GetByID(ctx context.Context, id uint) (*models.Classroom, error) {
	var c models.Classroom
	if err := r.db.WithContext(ctx).Where("classroom_id = ?", id).First(&c).Error; err != nil {
		return nil, translateError(err, "classroom")
	}
	return &c, nil
}

func (r *classroomRepository) GetByJoinCode(ctx context.Context, code string) (*models.Classroom, error) {
	var c models.Classroom
	if err := r.db.WithContext(ctx).Where("join_code = ?", code).First(&c).Error; err != nil {
		return nil, translateError(err, "classroom")
	}
	return &c, nil
}

// AddStudent 加入班级，重复加入不报错
func (r *classroomRepository) AddStudent(ctx context.Context, classroomID, userID uint) error {
	member := models.ClassroomStudent{ClassroomID: classroomID, UserID: userID}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&member).Error
	return translateError(err, "classroom")
}

// IsMember 教师或已加入的学生
func (r *classroomRepository) IsMember(ctx context.Context, classroomID, userID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Classroom{}).
		Where("classroom_id = ? AND teacher_id = ?", classroomID, userID).
		Count(&count).Error
	if err != nil {
		return false, translateError(err, "classroom")
	}
	if count > 0 {
		return true, nil
	}

	err = r.db.WithContext(ctx).Model(&models.ClassroomStudent{}).
		Where("classroom_id = ? AND user_id = ?", classroomID, userID).
		Count(&count).Error
	if err != nil {
		return false, translateError(err, "classroom")
	}
	return count > 0, nil
}

// ListForUser 用户任教或加入的班级
func (r *classroomRepository) ListForUser(ctx context.Context, userID uint) ([]models.Classroom, error) {
	var classrooms []models.Classroom
	err := r.db.WithContext(ctx).
		Where("teacher_id = ?", userID).
		Or("classroom_id IN (?)", r.db.Model(&models.ClassroomStudent{}).Select("classroom_id").Where("user_id = ?", userID)).
		Order("classroom_id").
		Find(&classrooms).Error
	return classrooms, translateError(err, "classroom")
}
