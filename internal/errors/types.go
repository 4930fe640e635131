package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode 错误码类型
type ErrorCode string

// 预定义错误码
const (
	// 通用错误
	ErrCodeInternalServer  ErrorCode = "INTERNAL_ERROR"
	ErrCodeUnauthorized    ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden       ErrorCode = "FORBIDDEN"
	ErrCodeNotFound        ErrorCode = "NOT_FOUND"
	ErrCodeConflict        ErrorCode = "CONFLICT"
	ErrCodeTooManyRequests ErrorCode = "TOO_MANY_REQUESTS"

	// 验证错误
	ErrCodeValidationFailed ErrorCode = "VALIDATION_ERROR"
	ErrCodeFileTooLarge     ErrorCode = "FILE_TOO_LARGE"

	// 摄取管道错误
	ErrCodeUnsupportedFormat    ErrorCode = "UNSUPPORTED_FORMAT"
	ErrCodeExtractionFailed     ErrorCode = "EXTRACTION_FAILED"
	ErrCodeInvalidConfiguration ErrorCode = "INVALID_CONFIGURATION"
	ErrCodeEmbeddingFailed      ErrorCode = "EMBEDDING_FAILED"
	ErrCodeIndexWriteFailed     ErrorCode = "INDEX_WRITE_FAILED"
	ErrCodeStorageFailed        ErrorCode = "STORAGE_FAILED"
	ErrCodeDatabaseError        ErrorCode = "DATABASE_ERROR"

	// 检索与生成错误
	ErrCodeScopeViolation    ErrorCode = "SCOPE_VIOLATION"
	ErrCodeGenerationFailed  ErrorCode = "GENERATION_FAILED"
	ErrCodeGenerationTimeout ErrorCode = "GENERATION_TIMEOUT"
)

// ErrorType 错误类型
type ErrorType int

const (
	ErrorTypeSystem ErrorType = iota
	ErrorTypeBusiness
	ErrorTypeValidation
	ErrorTypeExternal
)

// AppError 应用错误结构体
type AppError struct {
	Code        ErrorCode   `json:"code"`
	Message     string      `json:"message"`
	Type        ErrorType   `json:"type"`
	HTTPCode    int         `json:"-"`
	Details     interface{} `json:"details,omitempty"`
	Cause       error       `json:"-"`
	OperationID string      `json:"operation_id,omitempty"`
}

// Error 实现error接口
func (e *AppError) Error() string {
	msg := e.Message
	if e.OperationID != "" {
		msg = fmt.Sprintf("[%s] %s", e.OperationID, msg)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap 返回底层错误
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is 按错误码比较，便于 errors.Is(err, errors.New(code, ""))
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithDetails 添加错误详情
func (e *AppError) WithDetails(details interface{}) *AppError {
	e.Details = details
	return e
}

// WithCause 添加错误原因
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithOperation 附加文档或操作ID
func (e *AppError) WithOperation(id string) *AppError {
	e.OperationID = id
	return e
}

// New 按错误码创建错误，HTTP状态码和类型由错误码决定
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:     code,
		Message:  message,
		Type:     typeForCode(code),
		HTTPCode: httpCodeForError(code),
	}
}

// Wrap 包装底层错误
func Wrap(code ErrorCode, message string, cause error) *AppError {
	return New(code, message).WithCause(cause)
}

// NewSystemError 创建系统错误
func NewSystemError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:     code,
		Message:  message,
		Type:     ErrorTypeSystem,
		HTTPCode: http.StatusInternalServerError,
	}
}

// NewValidationError 创建验证错误
func NewValidationError(message string) *AppError {
	return New(ErrCodeValidationFailed, message)
}

// NewNotFoundError 创建资源未找到错误
func NewNotFoundError(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource))
}

// NewForbiddenError 创建访问拒绝错误
func NewForbiddenError(message string) *AppError {
	if message == "" {
		message = "access denied"
	}
	return New(ErrCodeForbidden, message)
}

func NewUnsupportedFormat(filename string) *AppError {
	return New(ErrCodeUnsupportedFormat, fmt.Sprintf("unsupported file format: %s", filename))
}

func NewExtractionFailed(filename string, cause error) *AppError {
	return Wrap(ErrCodeExtractionFailed, fmt.Sprintf("failed to extract text from %s", filename), cause)
}

func NewInvalidConfiguration(message string) *AppError {
	return New(ErrCodeInvalidConfiguration, message)
}

func NewEmbeddingFailed(cause error) *AppError {
	return Wrap(ErrCodeEmbeddingFailed, "embedding backend unavailable", cause)
}

func NewIndexWriteFailed(cause error) *AppError {
	return Wrap(ErrCodeIndexWriteFailed, "vector index write failed", cause)
}

func NewScopeViolation(message string) *AppError {
	return New(ErrCodeScopeViolation, message)
}

func NewGenerationFailed(cause error) *AppError {
	return Wrap(ErrCodeGenerationFailed, "generation backend failed", cause)
}

func NewGenerationTimeout(cause error) *AppError {
	return Wrap(ErrCodeGenerationTimeout, "generation timed out", cause)
}

func typeForCode(code ErrorCode) ErrorType {
	switch code {
	case ErrCodeValidationFailed, ErrCodeScopeViolation, ErrCodeFileTooLarge:
		return ErrorTypeValidation
	case ErrCodeEmbeddingFailed, ErrCodeIndexWriteFailed, ErrCodeStorageFailed,
		ErrCodeGenerationFailed, ErrCodeGenerationTimeout:
		return ErrorTypeExternal
	case ErrCodeInternalServer, ErrCodeInvalidConfiguration, ErrCodeDatabaseError:
		return ErrorTypeSystem
	default:
		return ErrorTypeBusiness
	}
}

// httpCodeForError 根据错误码获取HTTP状态码
func httpCodeForError(code ErrorCode) int {
	switch code {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeConflict:
		return http.StatusConflict
	case ErrCodeTooManyRequests:
		return http.StatusTooManyRequests
	case ErrCodeValidationFailed, ErrCodeScopeViolation:
		return http.StatusBadRequest
	case ErrCodeFileTooLarge:
		return http.StatusRequestEntityTooLarge
	case ErrCodeUnsupportedFormat:
		return http.StatusUnsupportedMediaType
	case ErrCodeExtractionFailed:
		return http.StatusUnprocessableEntity
	case ErrCodeEmbeddingFailed, ErrCodeIndexWriteFailed, ErrCodeStorageFailed, ErrCodeGenerationFailed:
		return http.StatusBadGateway
	case ErrCodeGenerationTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// AsAppError 获取AppError，如果不是则包装为系统错误
func AsAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return NewSystemError(ErrCodeInternalServer, "internal server error").WithCause(err)
}

// IsCode 判断错误链中是否存在指定错误码
func IsCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return false
	}
	if appErr.Code == code {
		return true
	}
	return IsCode(appErr.Cause, code)
}

// CodeOf 返回错误码，非AppError返回 INTERNAL_ERROR
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	return AsAppError(err).Code
}
