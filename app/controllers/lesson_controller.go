package controllers

import (
	"github.com/aihub/classroom-rag/internal/services"
)

// LessonController 问答讲解、整篇改写与讲解查询
type LessonController struct {
	BaseController
	Lessons *services.LessonService
}

type generateLessonRequest struct {
	ClassroomID uint                    `json:"classroom_id"`
	DocumentID  uint                    `json:"document_id"`
	Topic       string                  `json:"topic" validate:"required,max=500"`
	Question    string                  `json:"question" validate:"max=4000"`
	K           int                     `json:"k" validate:"gte=0,lte=50"`
	Student     services.StudentProfile `json:"student"`
}

type personalizeRequest struct {
	Topic   string                  `json:"topic" validate:"max=500"`
	Student services.StudentProfile `json:"student"`
}

// Generate POST /api/chat/generate_lesson
func (c *LessonController) Generate() {
	actor, ok := c.actor()
	if !ok {
		return
	}
	var req generateLessonRequest
	if !c.bindJSON(&req) {
		return
	}

	result, err := c.Lessons.GenerateLesson(c.Ctx.Request.Context(), services.GenerateLessonRequest{
		Actor:    actor,
		Scope:    services.Scope{ClassroomID: req.ClassroomID, DocumentID: req.DocumentID},
		Topic:    req.Topic,
		Question: req.Question,
		K:        req.K,
		Student:  req.Student,
	})
	if err != nil {
		c.Fail(err)
		return
	}
	c.JSONSuccess(result)
}

// Personalize POST /api/documents/:id/personalize
func (c *LessonController) Personalize() {
	actor, ok := c.actor()
	if !ok {
		return
	}
	id, ok := c.uintParam(":id")
	if !ok {
		return
	}
	var req personalizeRequest
	if !c.bindJSON(&req) {
		return
	}

	result, err := c.Lessons.Personalize(c.Ctx.Request.Context(), services.PersonalizeRequest{
		Actor:      actor,
		DocumentID: id,
		Topic:      req.Topic,
		Student:    req.Student,
	})
	if err != nil {
		c.Fail(err)
		return
	}
	c.JSONSuccess(result)
}

// Get GET /api/lessons/:id
func (c *LessonController) Get() {
	actor, ok := c.actor()
	if !ok {
		return
	}
	id, ok := c.uintParam(":id")
	if !ok {
		return
	}
	lesson, err := c.Lessons.GetLesson(c.Ctx.Request.Context(), actor, id)
	if err != nil {
		c.Fail(err)
		return
	}
	c.JSONSuccess(lesson)
}
