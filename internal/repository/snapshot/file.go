package snapshot

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/kailas-cloud/facereg/internal/domain"
)

// FileStore keeps the snapshot in one local file, replaced atomically on save.
type FileStore struct {
	path        string
	compression Compression
}

// NewFileStore creates a file-backed snapshot store.
func NewFileStore(path string, c Compression) *FileStore {
	return &FileStore{path: path, compression: c}
}

// Path returns the snapshot file location.
func (s *FileStore) Path() string { return s.path }

// Load reads the snapshot. A missing file yields domain.ErrNotFound.
func (s *FileStore) Load(_ context.Context) (Data, error) {
	b, err := os.ReadFile(filepath.Clean(s.path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("snapshot %s: %w", s.path, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("read snapshot %s: %w", s.path, err)
	}
	data, err := Decode(b)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", s.path, err)
	}
	return data, nil
}

// Save writes the snapshot to a temp file in the same directory and renames it
// over the target, so a crash mid-write never leaves a truncated snapshot.
func (s *FileStore) Save(_ context.Context, data Data) error {
	b, err := Encode(data, s.compression)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		if tmpName != "" {
			_ = os.Remove(tmpName)
		}
	}()

	_ = tmp.Chmod(0o644)

	w := bufio.NewWriter(tmp)
	if _, err := w.Write(b); err != nil {
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush temp snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp snapshot: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	tmpName = ""

	// Best-effort: fsync the directory so the rename survives a power loss.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}

// Ping reports whether the snapshot directory is reachable.
func (s *FileStore) Ping(_ context.Context) error {
	if _, err := os.Stat(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("stat snapshot dir: %w", err)
	}
	return nil
}
