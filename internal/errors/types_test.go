package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPCodeMapping(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{ErrCodeUnsupportedFormat, http.StatusUnsupportedMediaType},
		{ErrCodeExtractionFailed, http.StatusUnprocessableEntity},
		{ErrCodeInvalidConfiguration, http.StatusInternalServerError},
		{ErrCodeEmbeddingFailed, http.StatusBadGateway},
		{ErrCodeIndexWriteFailed, http.StatusBadGateway},
		{ErrCodeGenerationFailed, http.StatusBadGateway},
		{ErrCodeGenerationTimeout, http.StatusGatewayTimeout},
		{ErrCodeScopeViolation, http.StatusBadRequest},
		{ErrCodeNotFound, http.StatusNotFound},
		{ErrCodeForbidden, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, New(tt.code, "x").HTTPCode)
		})
	}
}

func TestAppError_OperationIDInMessage(t *testing.T) {
	err := NewEmbeddingFailed(stderrors.New("connection refused")).WithOperation("document:42")
	assert.Equal(t, "[document:42] embedding backend unavailable: connection refused", err.Error())
}

func TestIsCode_ThroughWrapping(t *testing.T) {
	inner := NewGenerationTimeout(stderrors.New("deadline"))
	wrapped := fmt.Errorf("lesson: %w", inner)

	assert.True(t, IsCode(wrapped, ErrCodeGenerationTimeout))
	assert.False(t, IsCode(wrapped, ErrCodeGenerationFailed))
	assert.True(t, stderrors.Is(wrapped, New(ErrCodeGenerationTimeout, "")))

	outer := Wrap(ErrCodeIndexWriteFailed, "add", inner)
	assert.True(t, IsCode(outer, ErrCodeGenerationTimeout))
}

func TestAsAppError_PlainError(t *testing.T) {
	appErr := AsAppError(stderrors.New("boom"))
	require.NotNil(t, appErr)
	assert.Equal(t, ErrCodeInternalServer, appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, appErr.HTTPCode)
	assert.Equal(t, ErrCodeInternalServer, CodeOf(stderrors.New("boom")))
	assert.Equal(t, ErrorCode(""), CodeOf(nil))
}
