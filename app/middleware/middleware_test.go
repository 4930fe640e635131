package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aihub/classroom-rag/internal/auth"
	"github.com/aihub/classroom-rag/internal/models"
	beecontext "github.com/beego/beego/v2/server/web/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newContext(method, target string, headers map[string]string) (*beecontext.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	ctx := beecontext.NewContext()
	ctx.Reset(rec, req)
	return ctx, rec
}

func TestAuth_ValidTokenSetsActor(t *testing.T) {
	svc, err := auth.NewJWTService("secret", "classroom-rag", time.Hour)
	require.NoError(t, err)
	token, err := svc.GenerateToken(10, "ana", models.RoleStudent)
	require.NoError(t, err)

	ctx, rec := newContext(http.MethodGet, "/api/lessons/1", map[string]string{"Authorization": "Bearer " + token})
	Auth(svc)(ctx)

	actor, ok := ActorFrom(ctx)
	require.True(t, ok)
	assert.Equal(t, uint(10), actor.UserID)
	assert.Equal(t, models.RoleStudent, actor.Role)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuth_RejectsMissingAndForeignTokens(t *testing.T) {
	svc, err := auth.NewJWTService("secret", "classroom-rag", time.Hour)
	require.NoError(t, err)
	other, err := auth.NewJWTService("other-secret", "classroom-rag", time.Hour)
	require.NoError(t, err)
	forged, err := other.GenerateToken(1, "mallory", models.RoleTeacher)
	require.NoError(t, err)

	for name, header := range map[string]string{
		"missing": "",
		"scheme":  "Token abc",
		"forged":  "Bearer " + forged,
	} {
		t.Run(name, func(t *testing.T) {
			ctx, rec := newContext(http.MethodPost, "/api/classrooms", map[string]string{"Authorization": header})
			Auth(svc)(ctx)

			_, ok := ActorFrom(ctx)
			assert.False(t, ok)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), `"UNAUTHORIZED"`)
			assert.Contains(t, rec.Body.String(), `"success":false`)
		})
	}
}

func TestCORS_Preflight(t *testing.T) {
	filter := CORS([]string{"http://localhost:5173"})

	ctx, rec := newContext(http.MethodOptions, "/api/classrooms", map[string]string{"Origin": "http://localhost:5173"})
	filter(ctx)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))

	ctx, rec = newContext(http.MethodGet, "/api/classrooms", map[string]string{"Origin": "http://evil.example"})
	filter(ctx)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimiter_PerUser(t *testing.T) {
	rl := NewRateLimiter(0.001, 2)
	assert.True(t, rl.Allow(1))
	assert.True(t, rl.Allow(1))
	assert.False(t, rl.Allow(1))
	assert.True(t, rl.Allow(2))
}
