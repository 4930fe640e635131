package controllers

import (
	"github.com/aihub/classroom-rag/internal/services"
)

// ClassroomController 班级创建、加入与列表
type ClassroomController struct {
	BaseController
	Classrooms *services.ClassroomService
}

type createClassroomRequest struct {
	Name    string `json:"name" validate:"required,max=100"`
	Subject string `json:"subject" validate:"max=100"`
}

type joinByCodeRequest struct {
	Code string `json:"code" validate:"required,max=16"`
}

// Create POST /api/classrooms
func (c *ClassroomController) Create() {
	actor, ok := c.actor()
	if !ok {
		return
	}
	var req createClassroomRequest
	if !c.bindJSON(&req) {
		return
	}

	classroom, err := c.Classrooms.Create(c.Ctx.Request.Context(), actor, req.Name, req.Subject)
	if err != nil {
		c.Fail(err)
		return
	}
	c.JSONCreated(classroom)
}

// List GET /api/classrooms
func (c *ClassroomController) List() {
	actor, ok := c.actor()
	if !ok {
		return
	}
	classrooms, err := c.Classrooms.List(c.Ctx.Request.Context(), actor)
	if err != nil {
		c.Fail(err)
		return
	}
	c.JSONSuccess(classrooms)
}

// Join POST /api/classrooms/:id/join
func (c *ClassroomController) Join() {
	actor, ok := c.actor()
	if !ok {
		return
	}
	id, ok := c.uintParam(":id")
	if !ok {
		return
	}
	classroom, err := c.Classrooms.Join(c.Ctx.Request.Context(), actor, id)
	if err != nil {
		c.Fail(err)
		return
	}
	c.JSONSuccess(classroom)
}

// JoinByCode POST /api/classrooms/join
func (c *ClassroomController) JoinByCode() {
	actor, ok := c.actor()
	if !ok {
		return
	}
	var req joinByCodeRequest
	if !c.bindJSON(&req) {
		return
	}
	classroom, err := c.Classrooms.JoinByCode(c.Ctx.Request.Context(), actor, req.Code)
	if err != nil {
		c.Fail(err)
		return
	}
	c.JSONSuccess(classroom)
}
