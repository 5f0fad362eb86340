package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/paper-pigeon/backend/pkg/logger"
)

// FileStoreOptions configures a FileStore.
//
// Fallbacks are read, in order, when the canonical path does not hold a usable
// artifact. They are never written. ReadOnly marks deployments whose file
// system rejects writes.
type FileStoreOptions struct {
	Fallbacks []string
	ReadOnly  bool
}

// FileStore keeps the artifact on the local file system. Save writes a
// sibling temp file, syncs it and renames it over the canonical path.
type FileStore struct {
	path      string
	fallbacks []string
	readOnly  bool

	mu sync.Mutex
	// beforeRename runs after the temp file is complete and before the
	// rename. Tests use it to simulate an interrupted write.
	beforeRename func(tmpPath string) error
}

var _ Store = (*FileStore)(nil)

func NewFileStore(path string, opts FileStoreOptions) *FileStore {
	return &FileStore{
		path:      filepath.Clean(path),
		fallbacks: opts.Fallbacks,
		readOnly:  opts.ReadOnly,
	}
}

func (s *FileStore) Location() string { return s.path }

func (s *FileStore) Writable() bool { return !s.readOnly }

// TempPath is where Save stages the next artifact.
func (s *FileStore) TempPath() string {
	dir, base := filepath.Split(s.path)
	return filepath.Join(dir, strings.TrimSuffix(base, filepath.Ext(base))+".tmp")
}

func (s *FileStore) Load(ctx context.Context) ([]byte, error) {
	paths := append([]string{s.path}, s.fallbacks...)

	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		data, err := os.ReadFile(p)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				logger.Warn("[Artifact] Failed to read graph cache", "path", p, "err", err)
			}
			continue
		}
		if !json.Valid(data) {
			logger.Warn("[Artifact] Ignoring malformed graph cache", "path", p)
			continue
		}

		logger.Info("[Artifact] Loaded graph cache", "path", p, "bytes", len(data))
		return data, nil
	}

	return nil, missing("load", fmt.Errorf("no graph cache found, tried %v", paths))
}

func (s *FileStore) Save(ctx context.Context, data []byte) error {
	if s.readOnly {
		return persistFailed("save "+s.path, ErrReadOnly)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return persistFailed("save "+s.path, err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return persistFailed("save "+s.path, fmt.Errorf("failed to create cache dir: %w", err))
	}

	tmp := s.TempPath()
	if err := s.writeTemp(tmp, data); err != nil {
		_ = os.Remove(tmp)
		return persistFailed("save "+s.path, err)
	}

	if s.beforeRename != nil {
		if err := s.beforeRename(tmp); err != nil {
			_ = os.Remove(tmp)
			return persistFailed("save "+s.path, err)
		}
	}

	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return persistFailed("save "+s.path, fmt.Errorf("failed to replace cache file: %w", err))
	}

	syncDir(dir)
	logger.Debug("[Artifact] Replaced graph cache", "path", s.path, "bytes", len(data))
	return nil
}

func (s *FileStore) writeTemp(tmp string, data []byte) error {
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	return nil
}

// syncDir persists the rename. Not every platform supports syncing a
// directory, so failures are ignored.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
