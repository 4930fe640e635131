package services

import (
	"context"
	"strings"

	apperrors "github.com/aihub/classroom-rag/internal/errors"
	"github.com/aihub/classroom-rag/internal/logger"
	"github.com/aihub/classroom-rag/internal/models"
	"github.com/aihub/classroom-rag/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ClassroomService 班级管理
type ClassroomService struct {
	classrooms repository.ClassroomRepository
}

// NewClassroomService 创建班级服务
func NewClassroomService(classrooms repository.ClassroomRepository) *ClassroomService {
	return &ClassroomService{classrooms: classrooms}
}

// Create 教师创建班级并生成加入码
func (s *ClassroomService) Create(ctx context.Context, actor Actor, name, subject string) (*models.Classroom, error) {
	if !actor.IsTeacher() {
		return nil, apperrors.NewForbiddenError("only teachers can create classrooms")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.NewValidationError("classroom name is required")
	}

	classroom := &models.Classroom{
		Name:      name,
		Subject:   strings.TrimSpace(subject),
		JoinCode:  newJoinCode(),
		TeacherID: actor.UserID,
	}
	if err := s.classrooms.Create(ctx, classroom); err != nil {
		return nil, err
	}
	logger.Info("classroom created",
		zap.Uint("classroom_id", classroom.ClassroomID),
		zap.Uint("teacher_id", actor.UserID))
	return classroom, nil
}

// Join 学生加入班级
func (s *ClassroomService) Join(ctx context.Context, actor Actor, classroomID uint) (*models.Classroom, error) {
	if actor.Role != models.RoleStudent {
		return nil, apperrors.NewForbiddenError("only students can join classrooms")
	}
	classroom, err := s.classrooms.GetByID(ctx, classroomID)
	if err != nil {
		return nil, err
	}
	return s.enroll(ctx, actor, classroom)
}

// JoinByCode 学生凭加入码加入班级
func (s *ClassroomService) JoinByCode(ctx context.Context, actor Actor, code string) (*models.Classroom, error) {
	if actor.Role != models.RoleStudent {
		return nil, apperrors.NewForbiddenError("only students can join classrooms")
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, apperrors.NewValidationError("join_code is required")
	}
	classroom, err := s.classrooms.GetByJoinCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return s.enroll(ctx, actor, classroom)
}

func (s *ClassroomService) enroll(ctx context.Context, actor Actor, classroom *models.Classroom) (*models.Classroom, error) {
	if err := s.classrooms.AddStudent(ctx, classroom.ClassroomID, actor.UserID); err != nil {
		return nil, err
	}
	logger.Info("student joined classroom",
		zap.Uint("classroom_id", classroom.ClassroomID),
		zap.Uint("user_id", actor.UserID))
	return classroom, nil
}

// List 当前用户任教或加入的班级
func (s *ClassroomService) List(ctx context.Context, actor Actor) ([]models.Classroom, error) {
	return s.classrooms.ListForUser(ctx, actor.UserID)
}

func newJoinCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}
