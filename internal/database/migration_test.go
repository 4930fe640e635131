package database

import (
	"database/sql"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/lib/pq"
)

// 需要真实数据库，TEST_DB_URL 未设置时跳过
func TestMigrationManager_UpDown(t *testing.T) {
	dbURL := os.Getenv("TEST_DB_URL")
	if dbURL == "" {
		t.Skip("Skipping migration test: TEST_DB_URL not set")
	}

	db, err := sql.Open("postgres", dbURL)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Ping())

	manager, err := NewMigrationManager(db, "../../migrations", newTestLogger())
	require.NoError(t, err)
	defer manager.Close()

	require.NoError(t, manager.Up())
	version, dirty, err := manager.Version()
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(2), version)

	var exists bool
	err = db.QueryRow("SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 'questions')").Scan(&exists)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, manager.Down())
	version, _, err = manager.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	require.NoError(t, manager.Down())
	version, _, err = manager.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)
}
