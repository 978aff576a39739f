// Package lease serializes load→mutate→save cycles across concurrent
// invocations with a cooperative lock on an external resource.
//
// The lock is advisory: every writer must go through it. Acquisition polls
// with jittered backoff until a deadline. A holder that crashed is taken
// over once its lease is older than the TTL, which makes double delivery
// possible across that boundary; the queue accepts at-least-once semantics
// there rather than pretending the lock is perfect.
package lease

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"time"

	logx "remindq/pkg/logx"
)

// ErrLockTimeout reports that the wait budget elapsed before the lock was
// granted. The stored queue is untouched; retrying the whole invocation
// later is safe.
var ErrLockTimeout = errors.New("lock acquisition timed out")

// Policy bounds acquisition and staleness.
type Policy struct {
	Wait  time.Duration // total acquisition budget
	Retry time.Duration // base poll interval (jittered)
	TTL   time.Duration // holder considered dead after this
}

const (
	defaultWait  = 30 * time.Second
	defaultRetry = 500 * time.Millisecond
	defaultTTL   = 2 * time.Minute
)

func (p Policy) withDefaults() Policy {
	if p.Wait <= 0 {
		p.Wait = defaultWait
	}
	if p.Retry <= 0 {
		p.Retry = defaultRetry
	}
	if p.TTL <= 0 {
		p.TTL = defaultTTL
	}
	return p
}

// Handle is a granted lease. Release is idempotent and must run on every
// exit path; see ReleaseQuietly.
type Handle interface {
	Release(ctx context.Context) error
}

// Locker grants exclusive mutation rights over a named resource.
type Locker interface {
	Acquire(ctx context.Context, resource string) (Handle, error)
}

// Config selects and tunes the lock backend.
//
// Backend values:
//   - "blob": lock blob on the same named-blob service as the store
//   - "file": local lock file (for file/sqlite stores)
type Config struct {
	Backend string

	// blob backend
	BaseURL string
	Token   string

	// file backend
	Dir string

	Policy Policy
}

// Open initializes the configured locker.
func Open(cfg Config, log logx.Logger) (Locker, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "blob":
		return openBlobLocker(cfg, log)
	case "file":
		return openFileLocker(cfg, log)
	default:
		return nil, errors.New("unknown lock backend: " + cfg.Backend)
	}
}

// ReleaseQuietly releases h on a fresh background context so the lock is
// freed even when the invocation's own context is already cancelled.
// Safe on a nil handle.
func ReleaseQuietly(h Handle, log logx.Logger) {
	if h == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := h.Release(ctx); err != nil {
		log.Warn("lease release failed", logx.Err(err))
	}
}

// retryDelay returns the base interval with up to 50% random jitter so
// overlapping waiters do not poll in lockstep.
func retryDelay(base time.Duration) time.Duration {
	return base + time.Duration(rand.Int63n(int64(base)/2+1))
}

// waitRetry sleeps one retry interval, honoring cancellation and deadline.
func waitRetry(ctx context.Context, deadline time.Time, base time.Duration) error {
	if time.Now().After(deadline) {
		return ErrLockTimeout
	}
	t := time.NewTimer(retryDelay(base))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
