package stories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"
	"golang.org/x/text/unicode/norm"

	"github.com/japaniel/rtkstories/pkg/logging"
)

// Store persists bundles by kanji. A missing entry is reported as
// (nil, false, nil).
type Store interface {
	Load(ctx context.Context, key string) (*Bundle, bool, error)
	Save(ctx context.Context, key string, b *Bundle) error
	Delete(ctx context.Context, key string) error
}

// NormalizeKey returns the canonical (NFC) form of a kanji key, or an error
// when it cannot name a cache entry.
func NormalizeKey(key string) (string, error) {
	key = norm.NFC.String(strings.TrimSpace(key))
	switch {
	case key == "":
		return "", errors.New("empty kanji key")
	case key == "." || key == "..", strings.ContainsAny(key, "/\\\x00"):
		return "", fmt.Errorf("invalid kanji key %q", key)
	}
	return key, nil
}

// DirStore keeps one JSON file per kanji in a directory. Writes replace the
// whole file atomically, so concurrent writers end with the last complete
// bundle and readers never see a partial one.
type DirStore struct {
	dir    string
	mu     sync.Mutex   // writers in this process
	lock   *flock.Flock // writers in other processes
	logger *slog.Logger
}

var _ Store = (*DirStore)(nil)

// NewDirStore creates a store rooted at dir. The directory is created on
// first write.
func NewDirStore(dir string, logger *slog.Logger) *DirStore {
	return &DirStore{
		dir:    dir,
		lock:   flock.New(filepath.Join(dir, ".lock")),
		logger: logging.NewComponentLogger(logger, "dirstore"),
	}
}

// Path returns the file that holds key.
func (s *DirStore) Path(key string) (string, error) {
	key, err := NormalizeKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dir, key+".json"), nil
}

// Load reads the bundle for key. Unreadable JSON counts as a miss so that the
// next fetch repairs the entry.
func (s *DirStore) Load(ctx context.Context, key string) (*Bundle, bool, error) {
	path, err := s.Path(key)
	if err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read cache entry %s: %w", path, err)
	}
	var b *Bundle
	if err := json.Unmarshal(data, &b); err != nil || b == nil {
		s.logger.WarnContext(ctx, "ignoring unreadable cache entry",
			slog.String(logging.FieldKanji, key),
			slog.String("path", path),
			logging.Error(err))
		return nil, false, nil
	}
	return b, true, nil
}

// Save writes b for key, replacing any existing entry.
func (s *DirStore) Save(ctx context.Context, key string, b *Bundle) error {
	path, err := s.Path(key)
	if err != nil {
		return err
	}
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encode bundle for %q: %w", key, err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("lock cache dir: %w", err)
	}
	defer func() { _ = s.lock.Unlock() }()

	tmp, err := os.CreateTemp(s.dir, ".bundle-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close cache entry: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("install cache entry: %w", err)
	}
	s.logger.DebugContext(ctx, "cache entry written", slog.String(logging.FieldKanji, key), slog.String("path", path))
	return nil
}

// Delete removes the entry for key. Deleting a missing entry is not an error.
func (s *DirStore) Delete(ctx context.Context, key string) error {
	path, err := s.Path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete cache entry: %w", err)
	}
	return nil
}
