package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"remindq/internal/reminder"
	logx "remindq/pkg/logx"
)

// fileStore is a dependency-free persistence backend: the whole queue lives
// in one JSON file. Saves go through a temp file + rename so a crashed
// writer never leaves a torn blob behind.
type fileStore struct {
	path string
	log  logx.Logger
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("store.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &fileStore{path: path, log: log}, nil
}

func (s *fileStore) Load(ctx context.Context) (reminder.List, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return reminder.List{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return reminder.Decode(b)
}

func (s *fileStore) Save(ctx context.Context, l reminder.List) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := reminder.Encode(l)
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, append(b, '\n'), 0o600); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	s.log.Debug("queue file saved", logx.String("path", s.path), logx.Int("records", len(l)))
	return nil
}

func (s *fileStore) Close() error { return nil }
