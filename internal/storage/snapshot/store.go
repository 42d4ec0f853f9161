// Package snapshot persists whole-file JSON snapshots with write-temp-then-rename, so a crash
// mid-write leaves the previous snapshot intact.
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// ErrCorrupt means the snapshot exists but could not be decoded. Load leaves the file in place;
// callers that are about to replace it call Quarantine first.
var ErrCorrupt = errors.New("snapshot corrupt")

// Mirror receives a copy of every successfully saved snapshot.
type Mirror interface {
	Save(ctx context.Context, name string, data []byte) error
}

// Option customizes a Store.
type Option func(*options)

type options struct {
	mirror Mirror
	logger *zap.Logger
}

// WithMirror uploads each saved snapshot after the local rename succeeds.
func WithMirror(m Mirror) Option {
	return func(o *options) {
		o.mirror = m
	}
}

// WithLogger sets the logger used for quarantine and mirror warnings.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// Store loads and saves one JSON document of type T.
type Store[T any] struct {
	dir    string
	name   string
	mirror Mirror
	logger *zap.Logger
}

// New creates a store for dir/name, creating dir when needed.
func New[T any](dir, name string, opts ...Option) (*Store[T], error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("snapshot: directory is required")
	}
	if strings.TrimSpace(name) == "" || filepath.Base(name) != name {
		return nil, fmt.Errorf("snapshot: invalid file name %q", name)
	}
	info, err := os.Stat(dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if mkErr := os.MkdirAll(dir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("snapshot: create directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("snapshot: stat directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("snapshot: %s is not a directory", dir)
	}

	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Store[T]{
		dir:    dir,
		name:   name,
		mirror: o.mirror,
		logger: o.logger.Named("snapshot").With(zap.String("file", name)),
	}, nil
}

// Path returns the snapshot's file path.
func (s *Store[T]) Path() string {
	return filepath.Join(s.dir, s.name)
}

// Name returns the snapshot's file name.
func (s *Store[T]) Name() string {
	return s.name
}

// Load reads the snapshot. A missing file yields the zero value and no error. An undecodable
// file yields the zero value and ErrCorrupt; the file is not touched.
func (s *Store[T]) Load(_ context.Context) (T, error) {
	var zero T
	data, err := os.ReadFile(s.Path())
	if errors.Is(err, fs.ErrNotExist) {
		return zero, nil
	}
	if err != nil {
		return zero, fmt.Errorf("snapshot: read %s: %w", s.name, err)
	}

	var value T
	if decodeErr := json.Unmarshal(data, &value); decodeErr != nil {
		return zero, fmt.Errorf("%w: %s: %v", ErrCorrupt, s.name, decodeErr)
	}
	return value, nil
}

// Quarantine renames the snapshot to <name>.corrupt so its bytes survive the next Save.
// A missing file is not an error.
func (s *Store[T]) Quarantine(_ context.Context) error {
	quarantined := s.Path() + ".corrupt"
	if err := os.Rename(s.Path(), quarantined); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("snapshot: quarantine %s: %w", s.name, err)
	}
	s.logger.Warn("quarantined corrupt snapshot", zap.String("moved_to", quarantined))
	return nil
}

// Save writes value atomically, then mirrors it. Local write errors are returned; mirror errors
// are logged only.
func (s *Store[T]) Save(ctx context.Context, value T) error {
	data, err := Encode(value)
	if err != nil {
		return fmt.Errorf("snapshot: encode %s: %w", s.name, err)
	}
	if err := s.writeAtomic(data); err != nil {
		return err
	}
	if s.mirror != nil {
		if err := s.mirror.Save(ctx, s.name, data); err != nil {
			s.logger.Warn("snapshot mirror failed", zap.Error(err))
		}
	}
	return nil
}

func (s *Store[T]) writeAtomic(data []byte) error {
	tmp, err := os.CreateTemp(s.dir, "."+s.name+".*.tmp")
	if err != nil {
		return fmt.Errorf("snapshot: create temp for %s: %w", s.name, err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = os.Remove(tmpName)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("snapshot: write %s: %w", s.name, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("snapshot: sync %s: %w", s.name, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("snapshot: close %s: %w", s.name, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil { //nolint:gosec // snapshots are published data
		cleanup()
		return fmt.Errorf("snapshot: chmod %s: %w", s.name, err)
	}
	if err := os.Rename(tmpName, s.Path()); err != nil {
		cleanup()
		return fmt.Errorf("snapshot: rename %s: %w", s.name, err)
	}
	return nil
}

// Encode renders value the way snapshots are stored: two-space indent, non-ASCII and HTML
// characters left unescaped, trailing newline.
func Encode(value any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(value); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
