package backup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pribylovaa/orchard-analysis/internal/config"

	"github.com/stretchr/testify/require"
)

func testManager(t *testing.T, retentionDays int) (*Manager, string, string) {
	t.Helper()

	dataDir := t.TempDir()
	backupDir := filepath.Join(t.TempDir(), "backups")

	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "a.jpg"), []byte("image-a"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dataDir, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "nested", "b.jpg"), []byte("image-b"), 0o644))

	m := New(config.BackupConfig{Dir: backupDir, RetentionDays: retentionDays}, dataDir)
	return m, dataDir, backupDir
}

func bundleNames(t *testing.T, path string) map[string]string {
	t.Helper()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	defer gz.Close()

	out := make(map[string]string)
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)

		if hdr.Typeflag == tar.TypeDir {
			out[hdr.Name] = ""
			continue
		}

		data, err := io.ReadAll(tr)
		require.NoError(t, err)
		out[hdr.Name] = string(data)
	}

	return out
}

func TestCreate_BundlesDataDir(t *testing.T) {
	t.Parallel()

	m, dataDir, _ := testManager(t, 30)

	path, err := m.Create(context.Background())
	require.NoError(t, err)
	require.FileExists(t, path)

	base := filepath.Base(dataDir)
	entries := bundleNames(t, path)
	require.Contains(t, entries, base+"/a.jpg")
	require.Contains(t, entries, base+"/nested/b.jpg")
	require.Equal(t, "image-a", entries[base+"/a.jpg"])
	require.Equal(t, "image-b", entries[base+"/nested/b.jpg"])
}

func TestCreate_SkipsMissingDirs(t *testing.T) {
	t.Parallel()

	backupDir := filepath.Join(t.TempDir(), "backups")
	m := New(config.BackupConfig{Dir: backupDir, RetentionDays: 30}, "/does/not/exist")

	path, err := m.Create(context.Background())
	require.NoError(t, err)
	require.FileExists(t, path)
}

func TestList_SortedNewestFirst(t *testing.T) {
	t.Parallel()

	m, _, backupDir := testManager(t, 30)

	_, err := m.Create(context.Background())
	require.NoError(t, err)

	// Ручной бандл со старым mtime.
	old := filepath.Join(backupDir, "orchard_backup_20200101_000000.tar.gz")
	require.NoError(t, os.WriteFile(old, []byte("stale"), 0o644))
	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	// Чужие файлы в каталоге игнорируются.
	require.NoError(t, os.WriteFile(filepath.Join(backupDir, "notes.txt"), []byte("x"), 0o644))

	entries, err := m.List()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.True(t, entries[0].CreatedAt.After(entries[1].CreatedAt))
}

func TestList_NoDir(t *testing.T) {
	t.Parallel()

	m := New(config.BackupConfig{Dir: filepath.Join(t.TempDir(), "missing"), RetentionDays: 30})

	entries, err := m.List()
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestCleanup_RemovesOldBundles(t *testing.T) {
	t.Parallel()

	m, _, backupDir := testManager(t, 1)

	fresh, err := m.Create(context.Background())
	require.NoError(t, err)

	old := filepath.Join(backupDir, "orchard_backup_20200101_000000.tar.gz")
	require.NoError(t, os.WriteFile(old, []byte("stale"), 0o644))
	past := time.Now().Add(-72 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	removed, err := m.Cleanup(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	require.NoFileExists(t, old)
	require.FileExists(t, fresh)
}
