package router

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aihub/classroom-rag/app/controllers"
	"github.com/aihub/classroom-rag/app/middleware"
	"github.com/aihub/classroom-rag/internal/auth"
	"github.com/aihub/classroom-rag/internal/di"
	"github.com/aihub/classroom-rag/internal/models"
	"github.com/beego/beego/v2/server/web"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jwtService *auth.JWTService

func init() {
	var err error
	jwtService, err = auth.NewJWTService("router-test-secret", "classroom-rag", time.Hour)
	if err != nil {
		panic(err)
	}
	factory := controllers.NewControllerFactory(&di.Services{}, nil, nil)
	Init(factory, middleware.Options{JWT: jwtService})
}

func serve(t *testing.T, method, path, token string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	web.BeeApp.Handlers.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealthWithoutDependencies(t *testing.T) {
	rec := serve(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode(t, rec)["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	rec := serve(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestAPIRequiresToken(t *testing.T) {
	for _, path := range []string{"/api/classrooms", "/api/lessons/1", "/api/documents/3/vector", "/api/documents/3/questions"} {
		rec := serve(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
		errBody := decode(t, rec)["error"].(map[string]interface{})
		assert.Equal(t, "UNAUTHORIZED", errBody["code"])
	}
}

func TestGenerateLessonValidatesBody(t *testing.T) {
	token, err := jwtService.GenerateToken(10, "ana", models.RoleStudent)
	require.NoError(t, err)

	rec := serve(t, http.MethodPost, "/api/chat/generate_lesson", token, []byte(`{"classroom_id":7,"k":99}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	errBody := decode(t, rec)["error"].(map[string]interface{})
	assert.Equal(t, "VALIDATION_ERROR", errBody["code"])
	assert.NotNil(t, errBody["details"])

	rec = serve(t, http.MethodPost, "/api/chat/generate_lesson", token, []byte(`{not json`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInvalidPathParameter(t *testing.T) {
	token, err := jwtService.GenerateToken(1, "mr-t", models.RoleTeacher)
	require.NoError(t, err)

	for _, path := range []string{"/api/lessons/abc", "/api/documents/abc/questions"} {
		rec := serve(t, http.MethodGet, path, token, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
		assert.Equal(t, "VALIDATION_ERROR", decode(t, rec)["error"].(map[string]interface{})["code"])
	}
}
