package services

import (
	"context"

	apperrors "github.com/aihub/classroom-rag/internal/errors"
	"github.com/aihub/classroom-rag/internal/models"
	"github.com/aihub/classroom-rag/internal/repository"
)

// Actor 发起请求的用户身份，由认证中间件给出
type Actor struct {
	UserID uint
	Role   string
}

// IsTeacher 是否教师
func (a Actor) IsTeacher() bool { return a.Role == models.RoleTeacher }

// accessGuard 班级归属与成员校验
type accessGuard struct {
	classrooms repository.ClassroomRepository
}

// requireOwner 只有班级的任课教师可以管理文档，班级不存在或不属于该教师均返回 NOT_FOUND
func (g accessGuard) requireOwner(ctx context.Context, actor Actor, classroomID uint) (*models.Classroom, error) {
	if !actor.IsTeacher() {
		return nil, apperrors.NewForbiddenError("only teachers can manage documents")
	}
	classroom, err := g.classrooms.GetByID(ctx, classroomID)
	if err != nil {
		return nil, err
	}
	if classroom.TeacherID != actor.UserID {
		return nil, apperrors.NewNotFoundError("classroom")
	}
	return classroom, nil
}

// requireMember 任课教师或已加入的学生
func (g accessGuard) requireMember(ctx context.Context, actor Actor, classroomID uint) error {
	ok, err := g.classrooms.IsMember(ctx, classroomID, actor.UserID)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.NewForbiddenError("not a member of this classroom")
	}
	return nil
}
