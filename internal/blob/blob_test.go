package blob

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDiskRoundTrip(t *testing.T) {
	ctx := context.Background()
	disk, err := NewDisk(t.TempDir())
	require.NoError(t, err)

	n, err := disk.Put(ctx, "team-1/file-1", strings.NewReader("slides"), 64)
	require.NoError(t, err)
	require.EqualValues(t, 6, n)

	rc, err := disk.Open(ctx, "team-1/file-1")
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	require.Equal(t, "slides", string(body))

	require.NoError(t, disk.Delete(ctx, "team-1/file-1"))
	require.NoError(t, disk.Delete(ctx, "team-1/file-1"))
	_, err = disk.Open(ctx, "team-1/file-1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDiskRejectsOversizedBlob(t *testing.T) {
	root := t.TempDir()
	disk, err := NewDisk(root)
	require.NoError(t, err)

	_, err = disk.Put(context.Background(), "team-1/big", strings.NewReader(strings.Repeat("x", 11)), 10)
	require.ErrorIs(t, err, ErrTooLarge)

	entries, err := os.ReadDir(filepath.Join(root, "team-1"))
	require.NoError(t, err)
	require.Empty(t, entries, "no partial blob or temp file left behind")
}

func TestDiskRejectsEscapingKeys(t *testing.T) {
	disk, err := NewDisk(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"", "../etc/passwd", "/abs/path", "."} {
		_, err := disk.Put(context.Background(), key, strings.NewReader("x"), 0)
		require.Error(t, err, key)
	}
}

func TestDiskStopsOnCancelledContext(t *testing.T) {
	disk, err := NewDisk(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = disk.Put(ctx, "team-1/f", strings.NewReader("data"), 0)
	require.ErrorIs(t, err, context.Canceled)
}
