package router

import (
	"github.com/aihub/classroom-rag/app/controllers"
	"github.com/aihub/classroom-rag/app/middleware"
	"github.com/beego/beego/v2/server/web"
)

// Init 注册过滤器与全部路由，需在配置加载之后调用
func Init(factory *controllers.ControllerFactory, opts middleware.Options) {
	web.BConfig.CopyRequestBody = true
	middleware.Setup(opts)

	web.Router("/health", factory.Health(), "get:Get")
	web.Router("/metrics", factory.Metrics(), "get:Metrics")

	classrooms := factory.Classroom()
	documents := factory.Document()
	lessons := factory.Lesson()

	// 固定路径需在参数路由之前注册
	web.Router("/api/classrooms/join", classrooms, "post:JoinByCode")
	web.Router("/api/classrooms", classrooms, "get:List;post:Create")
	web.Router("/api/classrooms/:id/join", classrooms, "post:Join")
	web.Router("/api/classrooms/:id/documents", documents, "get:List;post:Upload")

	web.Router("/api/documents/:id", documents, "delete:Delete")
	web.Router("/api/documents/:id/vector", documents, "get:Vector")
	web.Router("/api/documents/:id/reprocess", documents, "post:Reprocess")
	web.Router("/api/documents/:id/syllabus", documents, "get:GetSyllabus;post:GenerateSyllabus")
	web.Router("/api/documents/:id/questions", documents, "get:GetQuestions;post:GenerateQuestions")
	web.Router("/api/documents/:id/personalize", lessons, "post:Personalize")

	web.Router("/api/chat/generate_lesson", lessons, "post:Generate")
	web.Router("/api/lessons/:id", lessons, "get:Get")
}
