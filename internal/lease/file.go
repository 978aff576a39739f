package lease

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	logx "remindq/pkg/logx"
)

// fileLocker implements the lease with an O_EXCL lock file next to the
// local store. The file holds the owner token and acquisition time; a lock
// whose mtime is older than the TTL is treated as abandoned and removed.
type fileLocker struct {
	dir    string
	policy Policy
	log    logx.Logger
}

type lockDoc struct {
	Owner      string    `json:"owner"`
	AcquiredAt time.Time `json:"acquiredAt"`
}

func openFileLocker(cfg Config, log logx.Logger) (Locker, error) {
	dir := cfg.Dir
	if dir == "" {
		return nil, errors.New("lock.dir is required for file backend")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &fileLocker{dir: dir, policy: cfg.Policy.withDefaults(), log: log}, nil
}

func (l *fileLocker) Acquire(ctx context.Context, resource string) (Handle, error) {
	path := filepath.Join(l.dir, resource+".lock")
	owner := uuid.NewString()
	deadline := time.Now().Add(l.policy.Wait)

	for {
		ok, err := l.tryCreate(path, owner)
		if err != nil {
			return nil, err
		}
		if ok {
			l.log.Debug("lease acquired", logx.String("resource", resource), logx.String("owner", owner))
			return &fileHandle{path: path, owner: owner, log: l.log}, nil
		}
		l.reapStale(path)
		if err := waitRetry(ctx, deadline, l.policy.Retry); err != nil {
			if errors.Is(err, ErrLockTimeout) {
				return nil, fmt.Errorf("%w: %s", ErrLockTimeout, resource)
			}
			return nil, err
		}
	}
}

func (l *fileLocker) tryCreate(path, owner string) (bool, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if errors.Is(err, os.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	doc, _ := json.Marshal(lockDoc{Owner: owner, AcquiredAt: time.Now().UTC()})
	_, werr := f.Write(doc)
	cerr := f.Close()
	if werr != nil || cerr != nil {
		_ = os.Remove(path)
		return false, errors.Join(werr, cerr)
	}
	return true, nil
}

// reapStale removes a lock file older than the TTL. Best effort: if two
// waiters reap at once, the O_EXCL create still admits only one of them.
func (l *fileLocker) reapStale(path string) {
	fi, err := os.Stat(path)
	if err != nil {
		return
	}
	if time.Since(fi.ModTime()) < l.policy.TTL {
		return
	}
	l.log.Warn("removing stale lock file", logx.String("path", path), logx.Duration("age", time.Since(fi.ModTime())))
	_ = os.Remove(path)
}

type fileHandle struct {
	path  string
	owner string
	log   logx.Logger

	mu       sync.Mutex
	released bool
}

func (h *fileHandle) Release(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return nil
	}
	h.released = true

	// Only remove the file if we still own it; a TTL takeover may have
	// replaced it with someone else's lock.
	b, err := os.ReadFile(h.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	var doc lockDoc
	if jerr := json.Unmarshal(b, &doc); jerr == nil && doc.Owner != h.owner {
		h.log.Warn("lock no longer ours, not removing", logx.String("path", h.path))
		return nil
	}
	if err := os.Remove(h.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
