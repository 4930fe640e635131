package errors

import (
	stderrors "errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

// Translate 把校验错误与数据库错误转换为AppError，其他错误按系统错误处理
func Translate(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}

	var validationErrors validator.ValidationErrors
	if stderrors.As(err, &validationErrors) {
		return translateValidationErrors(validationErrors)
	}

	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return NewNotFoundError("record").WithCause(err)
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "duplicate key value"), strings.Contains(msg, "violates unique constraint"):
		return Wrap(ErrCodeConflict, "resource already exists", err)
	case strings.Contains(msg, "violates foreign key constraint"):
		return Wrap(ErrCodeValidationFailed, "invalid reference", err)
	case strings.Contains(msg, "connection refused"):
		return Wrap(ErrCodeDatabaseError, "database connection failed", err)
	}
	return AsAppError(err)
}

func translateValidationErrors(validationErrors validator.ValidationErrors) *AppError {
	details := make([]map[string]interface{}, 0, len(validationErrors))
	for _, fe := range validationErrors {
		details = append(details, map[string]interface{}{
			"field":   fe.Field(),
			"tag":     fe.Tag(),
			"message": validationMessage(fe),
		})
	}
	return NewValidationError("validation failed").
		WithDetails(map[string]interface{}{"errors": details})
}

func validationMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return field + " must be at least " + fe.Param()
	case "max":
		return field + " must be at most " + fe.Param()
	case "gte":
		return field + " must be greater than or equal to " + fe.Param()
	case "lte":
		return field + " must be less than or equal to " + fe.Param()
	case "oneof":
		return field + " must be one of: " + fe.Param()
	default:
		return field + " is invalid"
	}
}
