package middleware

import (
	"github.com/aihub/classroom-rag/internal/auth"
	apperrors "github.com/aihub/classroom-rag/internal/errors"
	"github.com/aihub/classroom-rag/internal/logger"
	"github.com/aihub/classroom-rag/internal/services"
	"github.com/beego/beego/v2/server/web"
	beecontext "github.com/beego/beego/v2/server/web/context"
	"go.uber.org/zap"
)

// ActorKey 认证后的身份在请求上下文中的键
const ActorKey = "actor"

// Auth 校验 Bearer token，把 services.Actor 放入请求上下文
func Auth(jwtService *auth.JWTService) web.FilterFunc {
	return func(ctx *beecontext.Context) {
		if ctx.Input.Method() == "OPTIONS" {
			return
		}

		token, err := auth.ExtractTokenFromHeader(ctx.Input.Header("Authorization"))
		if err != nil {
			Abort(ctx, apperrors.New(apperrors.ErrCodeUnauthorized, err.Error()))
			return
		}
		claims, err := jwtService.ValidateToken(token)
		if err != nil {
			logger.Debug("token rejected", zap.String("path", ctx.Input.URL()), zap.Error(err))
			Abort(ctx, apperrors.New(apperrors.ErrCodeUnauthorized, err.Error()))
			return
		}

		ctx.Input.SetData(ActorKey, services.Actor{UserID: claims.UserID, Role: claims.Role})
	}
}

// ActorFrom 读取认证中间件写入的身份
func ActorFrom(ctx *beecontext.Context) (services.Actor, bool) {
	actor, ok := ctx.Input.GetData(ActorKey).(services.Actor)
	return actor, ok && actor.UserID != 0
}

// Abort 以统一错误信封结束请求
func Abort(ctx *beecontext.Context, err error) {
	status, body := apperrors.ToResponse(err)
	ctx.Output.SetStatus(status)
	if jsonErr := ctx.Output.JSON(body, false, false); jsonErr != nil {
		logger.Error("failed to write error response", zap.Error(jsonErr))
	}
}
