package models

import (
	"time"
)

// Question 题库中的单选题，按文档分段生成
type Question struct {
	QuestionID  uint      `gorm:"primaryKey;column:question_id" json:"id"`
	DocumentID  uint      `gorm:"column:document_id;not null;index" json:"document_id"`
	ClassroomID uint      `gorm:"column:classroom_id;not null;index" json:"classroom_id"`
	Segment     int       `gorm:"not null;default:0" json:"segment"`
	Difficulty  string    `gorm:"size:10;not null;default:Medium" json:"difficulty"`
	Question    string    `gorm:"type:text;not null" json:"question"`
	OptA        string    `gorm:"column:opt_a;type:text;not null" json:"opt_a"`
	OptB        string    `gorm:"column:opt_b;type:text;not null" json:"opt_b"`
	OptC        string    `gorm:"column:opt_c;type:text;not null" json:"opt_c"`
	OptD        string    `gorm:"column:opt_d;type:text;not null" json:"opt_d"`
	Answer      string    `gorm:"size:1;not null" json:"answer"`
	Model       string    `gorm:"size:100" json:"model"`
	CreateTime  time.Time `gorm:"column:create_time;autoCreateTime" json:"create_time"`
}

func (Question) TableName() string {
	return "questions"
}
