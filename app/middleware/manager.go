package middleware

import (
	"strings"
	"time"

	"github.com/aihub/classroom-rag/internal/auth"
	"github.com/aihub/classroom-rag/internal/logger"
	"github.com/beego/beego/v2/server/web"
	beecontext "github.com/beego/beego/v2/server/web/context"
	"go.uber.org/zap"
)

const requestStartKey = "request_start"

// Options 过滤器配置
type Options struct {
	JWT            *auth.JWTService
	AllowedOrigins []string
	// 生成类接口的按用户限流，Rate 为 0 时不注册
	GenerationRate  float64
	GenerationBurst int
}

// 会调用生成后端的路由
var generationRoutes = []string{
	"/api/chat/*",
	"/api/documents/:id/personalize",
	"/api/documents/:id/syllabus",
	"/api/documents/:id/questions",
}

// Setup 注册全局与 /api 过滤器
func Setup(opts Options) {
	web.InsertFilter("/*", web.BeforeRouter, requestStart)
	web.InsertFilter("/*", web.BeforeRouter, CORS(opts.AllowedOrigins))
	web.InsertFilter("/api/*", web.BeforeRouter, Auth(opts.JWT))

	if opts.GenerationRate > 0 {
		limiter := NewRateLimiter(opts.GenerationRate, opts.GenerationBurst)
		for _, pattern := range generationRoutes {
			web.InsertFilter(pattern, web.BeforeRouter, limiter.Filter())
		}
	}

	web.InsertFilter("/*", web.FinishRouter, accessLog, web.WithReturnOnOutput(false))
}

func requestStart(ctx *beecontext.Context) {
	ctx.Input.SetData(requestStartKey, time.Now())
}

// accessLog 请求完成日志，4xx 记 warn，5xx 记 error
func accessLog(ctx *beecontext.Context) {
	status := ctx.Output.Status
	if status == 0 {
		status = 200
	}
	fields := []zap.Field{
		zap.String("method", ctx.Input.Method()),
		zap.String("path", ctx.Input.URL()),
		zap.Int("status", status),
		zap.String("remote_addr", clientIP(ctx)),
	}
	if started, ok := ctx.Input.GetData(requestStartKey).(time.Time); ok {
		fields = append(fields, zap.Duration("duration", time.Since(started)))
	}
	if actor, ok := ActorFrom(ctx); ok {
		fields = append(fields, zap.Uint("user_id", actor.UserID))
	}

	switch {
	case status >= 500:
		logger.Error("request completed", fields...)
	case status >= 400:
		logger.Warn("request completed", fields...)
	default:
		logger.Debug("request completed", fields...)
	}
}

func clientIP(ctx *beecontext.Context) string {
	if xff := ctx.Input.Header("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	if realIP := ctx.Input.Header("X-Real-IP"); realIP != "" {
		return realIP
	}
	return ctx.Input.IP()
}
