package controllers

import (
	"github.com/aihub/classroom-rag/internal/database"
	"github.com/aihub/classroom-rag/internal/di"
)

// ControllerFactory 用容器解析出的服务装配控制器
type ControllerFactory struct {
	services *di.Services
	infra    *di.Infrastructure
	health   *database.HealthChecker
}

// NewControllerFactory 创建控制器工厂，health 可为空
func NewControllerFactory(svcs *di.Services, infra *di.Infrastructure, health *database.HealthChecker) *ControllerFactory {
	return &ControllerFactory{services: svcs, infra: infra, health: health}
}

// Classroom 班级控制器
func (f *ControllerFactory) Classroom() *ClassroomController {
	return &ClassroomController{Classrooms: f.services.Classrooms}
}

// Document 文档控制器
func (f *ControllerFactory) Document() *DocumentController {
	c := &DocumentController{
		Ingestion: f.services.Ingestion,
		Syllabus:  f.services.Syllabus,
		Questions: f.services.Questions,
	}
	if f.infra != nil && f.infra.Config != nil {
		c.MaxUploadSize = f.infra.Config.Ingestion.MaxUploadSize
	}
	return c
}

// Lesson 讲解控制器
func (f *ControllerFactory) Lesson() *LessonController {
	return &LessonController{Lessons: f.services.Lessons}
}

// Health 健康检查控制器
func (f *ControllerFactory) Health() *HealthController {
	c := &HealthController{DB: f.health}
	if f.infra != nil {
		c.Index = f.infra.Index
		c.Embedder = f.infra.Embedder
		c.Blobs = f.infra.Blobs
	}
	return c
}

// Metrics 指标控制器
func (f *ControllerFactory) Metrics() *MetricsController {
	return &MetricsController{Handler: f.services.Metrics.Handler()}
}
