package auth

import (
	"testing"
	"time"

	"github.com/aihub/classroom-rag/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T, secret string, ttl time.Duration) *JWTService {
	t.Helper()
	s, err := NewJWTService(secret, "classroom-rag", ttl)
	require.NoError(t, err)
	return s
}

func TestNewJWTService_RequiresSecret(t *testing.T) {
	_, err := NewJWTService("", "classroom-rag", time.Hour)
	assert.Error(t, err)
}

func TestJWTService_RoundTrip(t *testing.T) {
	service := newService(t, "test-secret-key", time.Hour)

	token, err := service.GenerateToken(7, "ms.rao", models.RoleTeacher)
	require.NoError(t, err)

	claims, err := service.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint(7), claims.UserID)
	assert.Equal(t, "ms.rao", claims.Username)
	assert.Equal(t, models.RoleTeacher, claims.Role)
	assert.Equal(t, "7", claims.Subject)
}

func TestJWTService_RejectsUnknownRole(t *testing.T) {
	service := newService(t, "test-secret-key", time.Hour)
	_, err := service.GenerateToken(1, "root", "admin")
	assert.Error(t, err)
}

func TestJWTService_ValidateToken_Expired(t *testing.T) {
	service := newService(t, "test-secret-key", -time.Hour)

	token, err := service.GenerateToken(1, "student", models.RoleStudent)
	require.NoError(t, err)

	_, err = service.ValidateToken(token)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expired")
}

func TestJWTService_ValidateToken_WrongSecret(t *testing.T) {
	service := newService(t, "test-secret-key", time.Hour)
	wrong := newService(t, "wrong-secret-key", time.Hour)

	token, err := wrong.GenerateToken(1, "student", models.RoleStudent)
	require.NoError(t, err)

	_, err = service.ValidateToken(token)
	assert.Error(t, err)
}

func TestExtractTokenFromHeader(t *testing.T) {
	tok, err := ExtractTokenFromHeader("Bearer abc.def")
	require.NoError(t, err)
	assert.Equal(t, "abc.def", tok)

	for _, h := range []string{"", "Basic abc", "Bearer ", "bearer abc"} {
		_, err := ExtractTokenFromHeader(h)
		assert.Error(t, err, h)
	}
}
