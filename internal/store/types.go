package store

import (
	"errors"
	"time"
)

// ErrUnavailable reports a transport or storage failure. It is surfaced to
// the caller as-is; retry policy belongs to whoever drives the invocation.
var ErrUnavailable = errors.New("store unavailable")

// Config configures storage.
//
// Driver values:
//   - "blob": named-blob HTTP service (BaseURL + Name + Token)
//   - "file": local JSON file (Path)
//   - "sqlite": SQLite database file (optional build tag)
type Config struct {
	Driver string

	// blob driver
	BaseURL string
	Name    string
	Token   string
	Timeout time.Duration // per-request; 0 means default

	// file / sqlite drivers
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}
