package controllers

import (
	"fmt"
	"io"

	apperrors "github.com/aihub/classroom-rag/internal/errors"
	"github.com/aihub/classroom-rag/internal/services"
)

// DocumentController 文档上传、状态、重处理、删除、大纲与题库
type DocumentController struct {
	BaseController
	Ingestion     *services.IngestionService
	Syllabus      *services.SyllabusService
	Questions     *services.QuestionService
	MaxUploadSize int64
}

// Upload POST /api/classrooms/:id/documents，multipart 字段 file
func (c *DocumentController) Upload() {
	actor, ok := c.actor()
	if !ok {
		return
	}
	classroomID, ok := c.uintParam(":id")
	if !ok {
		return
	}

	file, header, err := c.GetFile("file")
	if err != nil {
		c.Fail(apperrors.NewValidationError("multipart field 'file' is required").WithCause(err))
		return
	}
	defer file.Close()

	if c.MaxUploadSize > 0 && header.Size > c.MaxUploadSize {
		c.Fail(apperrors.New(apperrors.ErrCodeFileTooLarge,
			fmt.Sprintf("file exceeds %d bytes", c.MaxUploadSize)))
		return
	}
	var reader io.Reader = file
	if c.MaxUploadSize > 0 {
		reader = io.LimitReader(file, c.MaxUploadSize+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		c.Fail(apperrors.NewValidationError("failed to read upload").WithCause(err))
		return
	}

	doc, err := c.Ingestion.Upload(c.Ctx.Request.Context(), services.UploadRequest{
		Actor:       actor,
		ClassroomID: classroomID,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	})
	if err != nil {
		c.Fail(err)
		return
	}
	c.JSONCreated(doc)
}

// List GET /api/classrooms/:id/documents
func (c *DocumentController) List() {
	actor, ok := c.actor()
	if !ok {
		return
	}
	classroomID, ok := c.uintParam(":id")
	if !ok {
		return
	}
	docs, err := c.Ingestion.ListByClassroom(c.Ctx.Request.Context(), actor, classroomID)
	if err != nil {
		c.Fail(err)
		return
	}
	c.JSONSuccess(docs)
}

// Vector GET /api/documents/:id/vector
func (c *DocumentController) Vector() {
	actor, ok := c.actor()
	if !ok {
		return
	}
	id, ok := c.uintParam(":id")
	if !ok {
		return
	}
	view, err := c.Ingestion.Status(c.Ctx.Request.Context(), actor, id)
	if err != nil {
		c.Fail(err)
		return
	}
	c.JSONSuccess(view)
}

// Reprocess POST /api/documents/:id/reprocess
func (c *DocumentController) Reprocess() {
	actor, ok := c.actor()
	if !ok {
		return
	}
	id, ok := c.uintParam(":id")
	if !ok {
		return
	}
	doc, err := c.Ingestion.Reprocess(c.Ctx.Request.Context(), actor, id)
	if err != nil {
		c.Fail(err)
		return
	}
	c.JSONSuccess(doc)
}

// Delete DELETE /api/documents/:id
func (c *DocumentController) Delete() {
	actor, ok := c.actor()
	if !ok {
		return
	}
	id, ok := c.uintParam(":id")
	if !ok {
		return
	}
	if err := c.Ingestion.Delete(c.Ctx.Request.Context(), actor, id); err != nil {
		c.Fail(err)
		return
	}
	c.JSONSuccess(map[string]interface{}{"id": id, "deleted": true})
}

// GenerateSyllabus POST /api/documents/:id/syllabus
func (c *DocumentController) GenerateSyllabus() {
	actor, ok := c.actor()
	if !ok {
		return
	}
	id, ok := c.uintParam(":id")
	if !ok {
		return
	}
	topics, err := c.Syllabus.Generate(c.Ctx.Request.Context(), actor, id)
	if err != nil {
		c.Fail(err)
		return
	}
	c.JSONSuccess(map[string]interface{}{"document_id": id, "topics": topics})
}

// GetSyllabus GET /api/documents/:id/syllabus
func (c *DocumentController) GetSyllabus() {
	actor, ok := c.actor()
	if !ok {
		return
	}
	id, ok := c.uintParam(":id")
	if !ok {
		return
	}
	topics, err := c.Syllabus.Get(c.Ctx.Request.Context(), actor, id)
	if err != nil {
		c.Fail(err)
		return
	}
	c.JSONSuccess(map[string]interface{}{"document_id": id, "topics": topics})
}

// GenerateQuestions POST /api/documents/:id/questions
func (c *DocumentController) GenerateQuestions() {
	actor, ok := c.actor()
	if !ok {
		return
	}
	id, ok := c.uintParam(":id")
	if !ok {
		return
	}
	questions, err := c.Questions.Generate(c.Ctx.Request.Context(), actor, id)
	if err != nil {
		c.Fail(err)
		return
	}
	c.JSONCreated(map[string]interface{}{"document_id": id, "questions": questions})
}

// GetQuestions GET /api/documents/:id/questions
func (c *DocumentController) GetQuestions() {
	actor, ok := c.actor()
	if !ok {
		return
	}
	id, ok := c.uintParam(":id")
	if !ok {
		return
	}
	questions, err := c.Questions.List(c.Ctx.Request.Context(), actor, id)
	if err != nil {
		c.Fail(err)
		return
	}
	c.JSONSuccess(map[string]interface{}{"document_id": id, "questions": questions})
}
