package migrate

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunnerSQLiteLifecycle(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "skillsync.db")
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	runner, err := New(DriverSQLite, path, "", log)
	require.NoError(t, err)
	require.NoError(t, runner.Ping(ctx))
	require.NoError(t, runner.Ensure(ctx))
	// applying twice is a no-op
	require.NoError(t, runner.Ensure(ctx))

	conn, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer conn.Close()

	var tables int
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('teams', 'chat_messages', 'mentor_sessions')`).Scan(&tables))
	require.Equal(t, 3, tables)

	require.NoError(t, runner.Down(ctx, 0))
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'teams'`).Scan(&tables))
	require.Zero(t, tables)
}

func TestNewRejectsBadInput(t *testing.T) {
	_, err := New(DriverPostgres, "", "", nil)
	require.Error(t, err)

	_, err = New("mysql", "dsn", "", nil)
	require.Error(t, err)

	_, err = New(DriverSQLite, "file.db", filepath.Join(t.TempDir(), "missing"), nil)
	require.Error(t, err)
}
