package controllers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/aihub/classroom-rag/app/middleware"
	apperrors "github.com/aihub/classroom-rag/internal/errors"
	"github.com/aihub/classroom-rag/internal/logger"
	"github.com/aihub/classroom-rag/internal/services"
	"github.com/beego/beego/v2/server/web"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var validate = validator.New()

// BaseController provides helpers for consistent JSON responses.
type BaseController struct {
	web.Controller
}

// JSON writes a JSON response with the supplied HTTP status code.
func (c *BaseController) JSON(status int, payload interface{}) {
	c.Ctx.Output.SetStatus(status)
	c.Data["json"] = payload
	if err := c.ServeJSON(); err != nil {
		logger.Error("failed to write response", zap.Error(err))
	}
}

// JSONSuccess writes a standard success envelope.
func (c *BaseController) JSONSuccess(data interface{}) {
	c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    data,
	})
}

// JSONCreated 201 成功信封
func (c *BaseController) JSONCreated(data interface{}) {
	c.JSON(http.StatusCreated, map[string]interface{}{
		"success": true,
		"data":    data,
	})
}

// Fail 按错误码写出错误信封，5xx 记录日志
func (c *BaseController) Fail(err error) {
	status, body := apperrors.ToResponse(apperrors.Translate(err))
	if status >= http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("method", c.Ctx.Input.Method()),
			zap.String("path", c.Ctx.Input.URL()),
			zap.Error(err))
	}
	c.JSON(status, body)
}

// actor 当前用户身份，缺失时写出 401
func (c *BaseController) actor() (services.Actor, bool) {
	actor, ok := middleware.ActorFrom(c.Ctx)
	if !ok {
		c.Fail(apperrors.New(apperrors.ErrCodeUnauthorized, "authentication required"))
		return services.Actor{}, false
	}
	return actor, true
}

// uintParam 解析路由中的正整数参数
func (c *BaseController) uintParam(name string) (uint, bool) {
	raw := c.Ctx.Input.Param(name)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		c.Fail(apperrors.NewValidationError("invalid " + name[1:] + ": " + raw))
		return 0, false
	}
	return uint(id), true
}

// bindJSON 解析并校验请求体，空请求体按零值处理
func (c *BaseController) bindJSON(dst interface{}) bool {
	if body := c.Ctx.Input.RequestBody; len(body) > 0 {
		if err := json.Unmarshal(body, dst); err != nil {
			c.Fail(apperrors.NewValidationError("invalid JSON body").WithCause(err))
			return false
		}
	}
	if err := validate.Struct(dst); err != nil {
		c.Fail(err)
		return false
	}
	return true
}
