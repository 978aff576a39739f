package lease

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	logx "remindq/pkg/logx"
)

func newFileLocker(t *testing.T, p Policy) Locker {
	t.Helper()
	l, err := Open(Config{Backend: "file", Dir: t.TempDir(), Policy: p}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return l
}

func TestFileLockerMutualExclusion(t *testing.T) {
	t.Parallel()
	l := newFileLocker(t, Policy{Wait: 5 * time.Second, Retry: 10 * time.Millisecond})
	ctx := context.Background()

	h1, err := l.Acquire(ctx, "queue")
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	// Second acquire must block until the first releases.
	var mu sync.Mutex
	var order []string

	done := make(chan struct{})
	go func() {
		defer close(done)
		h2, err := l.Acquire(ctx, "queue")
		if err != nil {
			t.Errorf("second acquire: %v", err)
			return
		}
		mu.Lock()
		order = append(order, "second-acquired")
		mu.Unlock()
		_ = h2.Release(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	order = append(order, "first-released")
	mu.Unlock()
	if err := h1.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	<-done

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "first-released" || order[1] != "second-acquired" {
		t.Fatalf("order = %v, want [first-released second-acquired]", order)
	}
}

func TestFileLockerTimeout(t *testing.T) {
	t.Parallel()
	l := newFileLocker(t, Policy{Wait: 80 * time.Millisecond, Retry: 10 * time.Millisecond})
	ctx := context.Background()

	h, err := l.Acquire(ctx, "queue")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer h.Release(ctx)

	if _, err := l.Acquire(ctx, "queue"); !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("err = %v, want ErrLockTimeout", err)
	}
}

func TestFileLockerReleaseIdempotent(t *testing.T) {
	t.Parallel()
	l := newFileLocker(t, Policy{Wait: time.Second, Retry: 10 * time.Millisecond})
	ctx := context.Background()

	h, err := l.Acquire(ctx, "queue")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := h.Release(ctx); err != nil {
		t.Fatalf("first release: %v", err)
	}
	if err := h.Release(ctx); err != nil {
		t.Fatalf("second release: %v", err)
	}
}

func TestFileLockerIndependentResources(t *testing.T) {
	t.Parallel()
	l := newFileLocker(t, Policy{Wait: time.Second, Retry: 10 * time.Millisecond})
	ctx := context.Background()

	h1, err := l.Acquire(ctx, "queue-a")
	if err != nil {
		t.Fatalf("acquire a: %v", err)
	}
	defer h1.Release(ctx)

	h2, err := l.Acquire(ctx, "queue-b")
	if err != nil {
		t.Fatalf("acquire b must not block on a: %v", err)
	}
	defer h2.Release(ctx)
}

func TestFileLockerStaleTakeover(t *testing.T) {
	t.Parallel()
	l := newFileLocker(t, Policy{Wait: 2 * time.Second, Retry: 10 * time.Millisecond, TTL: 30 * time.Millisecond})
	ctx := context.Background()

	// Simulate a crashed holder: acquire and never release.
	if _, err := l.Acquire(ctx, "queue"); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	time.Sleep(60 * time.Millisecond)

	h, err := l.Acquire(ctx, "queue")
	if err != nil {
		t.Fatalf("takeover acquire: %v", err)
	}
	_ = h.Release(ctx)
}

func TestFileLockerCancelledContext(t *testing.T) {
	t.Parallel()
	l := newFileLocker(t, Policy{Wait: 10 * time.Second, Retry: 10 * time.Millisecond})
	bg := context.Background()

	h, err := l.Acquire(bg, "queue")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer h.Release(bg)

	ctx, cancel := context.WithTimeout(bg, 50*time.Millisecond)
	defer cancel()
	if _, err := l.Acquire(ctx, "queue"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context deadline", err)
	}
}
