// backup — резервное копирование каталога данных в tar.gz-бандлы.
package backup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pribylovaa/orchard-analysis/internal/config"
	"github.com/pribylovaa/orchard-analysis/internal/pkg/log"
)

const bundlePrefix = "orchard_backup_"

// Entry — описание одного бандла.
type Entry struct {
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// Manager создает, перечисляет и ротирует бандлы.
type Manager struct {
	backupDir string
	dataDirs  []string
	retention time.Duration
}

// New создает Manager. dataDirs — каталоги, попадающие в бандл.
func New(cfg config.BackupConfig, dataDirs ...string) *Manager {
	return &Manager{
		backupDir: cfg.Dir,
		dataDirs:  dataDirs,
		retention: time.Duration(cfg.RetentionDays) * 24 * time.Hour,
	}
}

// Create собирает tar.gz из каталогов данных и возвращает путь бандла.
// Недостающие каталоги пропускаются; частично записанный бандл при
// ошибке удаляется.
func (m *Manager) Create(ctx context.Context) (string, error) {
	const op = "backup.Create"

	lg := log.From(ctx)

	if err := os.MkdirAll(m.backupDir, 0o755); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	name := bundlePrefix + time.Now().UTC().Format("20060102_150405") + ".tar.gz"
	path := filepath.Join(m.backupDir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)

	fail := func(err error) (string, error) {
		_ = tw.Close()
		_ = gz.Close()
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("%s: %w", op, err)
	}

	for _, dir := range m.dataDirs {
		if _, err := os.Stat(dir); err != nil {
			lg.Warn("backup_dir_skipped",
				slog.String("op", op),
				slog.String("dir", dir),
			)
			continue
		}

		if err := addTree(tw, dir); err != nil {
			return fail(err)
		}
	}

	if err := tw.Close(); err != nil {
		return fail(err)
	}
	if err := gz.Close(); err != nil {
		return fail(err)
	}
	if err := f.Close(); err != nil {
		return fail(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	lg.Info("backup_created",
		slog.String("path", path),
		slog.Int64("size", info.Size()),
	)

	return path, nil
}

// addTree добавляет каталог в архив, сохраняя его имя как корень.
func addTree(tw *tar.Writer, dir string) error {
	base := filepath.Base(dir)

	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}

		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(filepath.Join(base, rel))

		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}

		if info.IsDir() {
			return nil
		}

		src, err := os.Open(path)
		if err != nil {
			return err
		}
		defer src.Close()

		_, err = io.Copy(tw, src)
		return err
	})
}

// List возвращает бандлы, отсортированные от новых к старым.
func (m *Manager) List() ([]Entry, error) {
	const op = "backup.List"

	entries, err := os.ReadDir(m.backupDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var out []Entry
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), bundlePrefix) || !strings.HasSuffix(e.Name(), ".tar.gz") {
			continue
		}

		info, err := e.Info()
		if err != nil {
			continue
		}

		out = append(out, Entry{
			Name:      e.Name(),
			Size:      info.Size(),
			CreatedAt: info.ModTime().UTC(),
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	return out, nil
}

// Cleanup удаляет бандлы старше срока хранения; возвращает число удалённых.
func (m *Manager) Cleanup(ctx context.Context) (int, error) {
	const op = "backup.Cleanup"

	lg := log.From(ctx)

	entries, err := m.List()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	cutoff := time.Now().UTC().Add(-m.retention)
	removed := 0

	for _, e := range entries {
		if e.CreatedAt.After(cutoff) {
			continue
		}

		if err := os.Remove(filepath.Join(m.backupDir, e.Name)); err != nil {
			lg.Warn("backup_remove_failed",
				slog.String("op", op),
				slog.String("name", e.Name),
				slog.String("err", err.Error()),
			)
			continue
		}

		removed++
	}

	return removed, nil
}
