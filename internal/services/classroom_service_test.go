package services

import (
	"context"
	"testing"
	"time"

	apperrors "github.com/aihub/classroom-rag/internal/errors"
	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassroomService_CreateAndJoin(t *testing.T) {
	repo := newMemClassrooms()
	svc := NewClassroomService(repo)
	ctx := context.Background()

	_, err := svc.Create(ctx, student, "Physics", "science")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeForbidden))
	_, err = svc.Create(ctx, teacher, "  ", "science")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidationFailed))

	c, err := svc.Create(ctx, teacher, "Physics 8A", "science")
	require.NoError(t, err)
	assert.Equal(t, teacherID, c.TeacherID)
	assert.Len(t, c.JoinCode, 8)

	_, err = svc.Join(ctx, teacher2, c.ClassroomID)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeForbidden))
	_, err = svc.Join(ctx, student, 999)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeNotFound))

	joined, err := svc.Join(ctx, student, c.ClassroomID)
	require.NoError(t, err)
	assert.Equal(t, c.ClassroomID, joined.ClassroomID)

	byCode, err := svc.JoinByCode(ctx, outsider, " "+c.JoinCode+" ")
	require.NoError(t, err)
	assert.Equal(t, c.ClassroomID, byCode.ClassroomID)

	ok, err := repo.IsMember(ctx, c.ClassroomID, outsiderID)
	require.NoError(t, err)
	assert.True(t, ok)

	list, err := svc.List(ctx, student)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Physics 8A", list[0].Name)
}

func TestRedisStatusCache(t *testing.T) {
	client, mock := redismock.NewClientMock()
	cache := NewRedisStatusCache(client, time.Hour)
	ctx := context.Background()

	mock.ExpectSet("edurag:document:5:step", "chunked", time.Hour).SetVal("OK")
	cache.SetStep(ctx, 5, "chunked")

	mock.ExpectGet("edurag:document:5:step").SetVal("chunked")
	step, ok := cache.Step(ctx, 5)
	assert.True(t, ok)
	assert.Equal(t, "chunked", step)

	mock.ExpectGet("edurag:document:6:step").RedisNil()
	_, ok = cache.Step(ctx, 6)
	assert.False(t, ok)

	mock.ExpectDel("edurag:document:5:step").SetVal(1)
	cache.Clear(ctx, 5)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStatusCache_WriteErrorIsNotFatal(t *testing.T) {
	client, mock := redismock.NewClientMock()
	cache := NewRedisStatusCache(client, time.Minute)

	mock.ExpectSet("edurag:document:1:step", "failed", time.Minute).SetErr(assert.AnError)
	assert.NotPanics(t, func() { cache.SetStep(context.Background(), 1, "failed") })
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisLocker_ContextCancelWhileHeld(t *testing.T) {
	client, mock := redismock.NewClientMock()
	locker := NewRedisLocker(client, time.Minute)
	locker.poll = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	// 令牌是随机的，用自定义匹配只校验键名
	for i := 0; i < 10; i++ {
		mock.CustomMatch(func(expected, actual []interface{}) error {
			return nil
		}).ExpectSetNX("edurag:lock:document:3", "token", time.Minute).SetVal(false)
	}

	_, err := locker.Lock(ctx, 3)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
