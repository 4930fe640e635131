package models

import (
	"time"
)

// 用户角色
const (
	RoleTeacher = "teacher"
	RoleStudent = "student"
)

// User 用户（认证由外部系统负责，这里只保存档案）
type User struct {
	UserID     uint      `gorm:"primaryKey;column:user_id" json:"user_id"`
	Username   string    `gorm:"size:100;not null;unique" json:"username"`
	Email      string    `gorm:"size:255;not null;unique" json:"email"`
	Role       string    `gorm:"size:20;not null;default:student" json:"role"`
	Grade      string    `gorm:"size:50" json:"grade"`
	Interests  string    `gorm:"type:text" json:"interests"`
	CreateTime time.Time `gorm:"column:create_time;autoCreateTime" json:"create_time"`
	UpdateTime time.Time `gorm:"column:update_time;autoUpdateTime" json:"update_time"`
}

func (User) TableName() string {
	return "users"
}

// IsTeacher 是否教师
func (u User) IsTeacher() bool { return u.Role == RoleTeacher }

// Classroom 班级，文档与检索都以班级为租户边界
type Classroom struct {
	ClassroomID uint      `gorm:"primaryKey;column:classroom_id" json:"classroom_id"`
	Name        string    `gorm:"size:200;not null" json:"name"`
	Subject     string    `gorm:"size:100" json:"subject"`
	JoinCode    string    `gorm:"column:join_code;size:16;uniqueIndex" json:"join_code"`
	TeacherID   uint      `gorm:"column:teacher_id;not null;index" json:"teacher_id"`
	CreateTime  time.Time `gorm:"column:create_time;autoCreateTime" json:"create_time"`
	UpdateTime  time.Time `gorm:"column:update_time;autoUpdateTime" json:"update_time"`
}

func (Classroom) TableName() string {
	return "classrooms"
}

// ClassroomStudent 班级成员关系
type ClassroomStudent struct {
	ClassroomID uint      `gorm:"primaryKey;column:classroom_id"`
	UserID      uint      `gorm:"primaryKey;column:user_id"`
	JoinTime    time.Time `gorm:"column:join_time;autoCreateTime"`
}

func (ClassroomStudent) TableName() string {
	return "classroom_students"
}
