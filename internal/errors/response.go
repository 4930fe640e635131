package errors

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var errorsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "edurag_errors_total",
		Help: "Errors returned to API callers by code",
	},
	[]string{"code", "type"},
)

// ErrorBody 错误响应体
type ErrorBody struct {
	Code        string      `json:"code"`
	Message     string      `json:"message"`
	Type        string      `json:"type"`
	OperationID string      `json:"operation_id,omitempty"`
	Details     interface{} `json:"details,omitempty"`
}

// ToResponse 把任意错误转换为HTTP状态码和响应体，并记录错误指标
func ToResponse(err error) (int, map[string]interface{}) {
	appErr := AsAppError(err)
	typ := typeString(appErr.Type)
	errorsTotal.WithLabelValues(string(appErr.Code), typ).Inc()

	body := ErrorBody{
		Code:        string(appErr.Code),
		Message:     appErr.Message,
		Type:        typ,
		OperationID: appErr.OperationID,
	}
	if appErr.Type == ErrorTypeValidation {
		body.Details = appErr.Details
	}
	return appErr.HTTPCode, map[string]interface{}{
		"success": false,
		"error":   body,
	}
}

func typeString(t ErrorType) string {
	switch t {
	case ErrorTypeBusiness:
		return "business"
	case ErrorTypeValidation:
		return "validation"
	case ErrorTypeExternal:
		return "external"
	default:
		return "system"
	}
}
