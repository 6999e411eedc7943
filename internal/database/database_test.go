package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"workload/internal/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRecordSaveAttempt(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	first := &SaveAttempt{EmployeeID: "7", Form: "details", Status: StatusSaved, Payload: `{"availability":"Occupied"}`}
	require.NoError(t, db.RecordSaveAttempt(ctx, first))
	assert.NotEmpty(t, first.ID)
	assert.False(t, first.CreatedAt.IsZero())

	second := &SaveAttempt{
		EmployeeID: "7",
		Form:       "profile",
		Status:     StatusFailed,
		Error:      "email taken",
		CreatedAt:  time.Now().Add(time.Minute),
	}
	require.NoError(t, db.RecordSaveAttempt(ctx, second))
	require.NoError(t, db.RecordSaveAttempt(ctx, &SaveAttempt{EmployeeID: "8", Form: "details", Status: StatusSaved}))

	got, err := db.RecentSaveAttempts(ctx, "7", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, second.ID, got[0].ID)
	assert.Equal(t, "email taken", got[0].Error)
	assert.Equal(t, first.ID, got[1].ID)
}

func TestDeleteOldEntries(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.RecordSaveAttempt(ctx, &SaveAttempt{
		EmployeeID: "1", Form: "details", Status: StatusSaved,
		CreatedAt: time.Now().AddDate(0, 0, -40),
	}))
	require.NoError(t, db.RecordSaveAttempt(ctx, &SaveAttempt{EmployeeID: "1", Form: "details", Status: StatusSaved}))

	deleted, err := db.DeleteOldEntries(ctx, 31*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	got, err := db.RecentSaveAttempts(ctx, "1", 0)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestGetTableData(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.RecordSaveAttempt(ctx, &SaveAttempt{EmployeeID: "3", Form: "profile", Status: StatusSaved}))

	names, err := db.GetTableNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"save_attempts"}, names)

	data, columns, err := db.GetTableData(ctx, "save_attempts")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "employee_id", "form", "status", "error", "payload", "created_at"}, columns)
	require.Len(t, data, 1)
	assert.Equal(t, "3", data[0]["employee_id"])

	_, _, err = db.GetTableData(ctx, "sqlite_master")
	assert.Error(t, err)
}

func TestBackupService(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.RecordSaveAttempt(ctx, &SaveAttempt{EmployeeID: "1", Form: "details", Status: StatusSaved}))

	dir := t.TempDir()
	logger := zerolog.Nop()
	svc := NewBackupService(db, config.BackupConfig{Enabled: true, StoragePath: dir, RetentionDays: 7}, &logger)

	path, err := svc.PerformBackup(ctx)
	require.NoError(t, err)
	assert.FileExists(t, path)

	restored, err := NewDB(path, &logger)
	require.NoError(t, err)
	defer restored.Close()
	got, err := restored.RecentSaveAttempts(ctx, "1", 0)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	old := filepath.Join(dir, "backup_20200101_000000.000.db")
	require.NoError(t, os.WriteFile(old, []byte("x"), 0o600))
	past := time.Now().AddDate(0, 0, -30)
	require.NoError(t, os.Chtimes(old, past, past))

	assert.Equal(t, 1, svc.CleanupOldBackups(time.Now()))
	assert.NoFileExists(t, old)
	assert.FileExists(t, path)
}
