package models

import (
	"time"
)

// 文档处理状态，与摄取流水线的步骤一一对应
const (
	DocumentStatusCreated   = "created"
	DocumentStatusStored    = "stored"
	DocumentStatusExtracted = "extracted"
	DocumentStatusChunked   = "chunked"
	DocumentStatusEmbedded  = "embedded"
	DocumentStatusIndexed   = "indexed"
	DocumentStatusProcessed = "processed"
	DocumentStatusFailed    = "failed"
)

// Document 上传的教学文档
//
// IsProcessed 只有在向量索引写入成功后才置为 true。
type Document struct {
	DocumentID  uint      `gorm:"primaryKey;column:document_id" json:"id"`
	ClassroomID uint      `gorm:"column:classroom_id;not null;index" json:"classroom_id"`
	UploadedBy  uint      `gorm:"column:uploaded_by;not null" json:"uploaded_by"`
	Filename    string    `gorm:"size:500;not null" json:"filename"`
	MimeType    string    `gorm:"column:mime_type;size:150" json:"mime_type"`
	Size        int64     `gorm:"not null;default:0" json:"size"`
	Bucket      string    `gorm:"size:100" json:"bucket"`
	StoragePath string    `gorm:"column:storage_path;size:1000" json:"storage_path"`
	IsProcessed bool      `gorm:"column:is_processed;not null;default:false" json:"is_processed"`
	Status      string    `gorm:"size:20;not null;default:created" json:"status"`
	ChunkCount  int       `gorm:"column:chunk_count;not null;default:0" json:"chunk_count"`
	Syllabus    string    `gorm:"type:text" json:"syllabus,omitempty"`
	LastError   string    `gorm:"column:last_error;type:text" json:"last_error,omitempty"`
	CreateTime  time.Time `gorm:"column:create_time;autoCreateTime" json:"create_time"`
	UpdateTime  time.Time `gorm:"column:update_time;autoUpdateTime" json:"update_time"`
}

func (Document) TableName() string {
	return "documents"
}

// 讲解生成模式
const (
	LessonModeQA          = "qa"
	LessonModePersonalize = "personalize"
)

// Lesson 生成的个性化讲解，班级范围的问答没有 DocumentID
type Lesson struct {
	LessonID    uint      `gorm:"primaryKey;column:lesson_id" json:"id"`
	DocumentID  *uint     `gorm:"column:document_id;index" json:"document_id,omitempty"`
	ClassroomID uint      `gorm:"column:classroom_id;not null;index" json:"classroom_id"`
	StudentID   uint      `gorm:"column:student_id;index" json:"student_id"`
	Mode        string    `gorm:"size:20;not null;default:qa" json:"mode"`
	StudentName string    `gorm:"column:student_name;size:100" json:"student_name"`
	Grade       string    `gorm:"size:50" json:"grade"`
	Interest    string    `gorm:"size:200" json:"interest"`
	Topic       string    `gorm:"size:500;not null" json:"topic"`
	Question    string    `gorm:"type:text" json:"question"`
	Content     string    `gorm:"type:text;not null" json:"content"`
	Model       string    `gorm:"size:100" json:"model"`
	CreateTime  time.Time `gorm:"column:create_time;autoCreateTime" json:"create_time"`
}

func (Lesson) TableName() string {
	return "lessons"
}
