package store

import (
	"context"
	"errors"
	"strings"

	"remindq/internal/reminder"
	logx "remindq/pkg/logx"
)

// Store is the persistence API used by the queue engine.
type Store interface {
	// Load fetches the current list. A store with no prior blob returns an
	// empty list, not an error (bootstrap case).
	Load(ctx context.Context) (reminder.List, error)
	// Save replaces the stored blob with the full list. Never a merge.
	Save(ctx context.Context, l reminder.List) error
	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "blob":
		return openBlob(cfg, log)
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown store driver: " + driver)
	}
}
