package database

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.WarnLevel)
	return l
}

func TestHealthChecker_FailureAndRecovery(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	checker := NewHealthChecker(db, newTestLogger())
	assert.False(t, checker.IsHealthy())
	assert.True(t, checker.Result().LastCheck.IsZero())

	ctx := context.Background()
	mock.ExpectPing().WillReturnError(sqlmock.ErrCancelled)
	require.Error(t, checker.Check(ctx))
	assert.False(t, checker.IsHealthy())
	assert.NotEmpty(t, checker.Result().LastError)

	mock.ExpectPing()
	require.NoError(t, checker.Check(ctx))
	assert.True(t, checker.IsHealthy())

	result := checker.Result()
	assert.True(t, result.Healthy)
	assert.Empty(t, result.LastError)
	assert.NotEmpty(t, result.ResponseTime)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHealthChecker_RunStopsWithContext(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing()

	checker := NewHealthChecker(db, newTestLogger())
	checker.SetCheckInterval(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	require.Eventually(t, checker.IsHealthy, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("health checker did not stop")
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolCollector(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	c := NewPoolCollector(db, "primary")
	assert.Equal(t, 4, testutil.CollectAndCount(c))
}
