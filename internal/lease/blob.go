package lease

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	logx "remindq/pkg/logx"
)

// blobLocker implements the lease as a lock blob on the named-blob service.
//
// Protocol:
//   - PUT <base>/<resource>.lock with "If-None-Match: *" → 2xx grants the
//     lock; 412 (or 409) means someone holds it.
//   - GET returns the holder document (owner token + acquiredAt).
//   - DELETE releases.
//
// A holder document older than the TTL is deleted and the PUT retried, so a
// crashed writer cannot deadlock the queue forever.
type blobLocker struct {
	base   string
	token  string
	policy Policy
	http   *http.Client
	log    logx.Logger
}

func openBlobLocker(cfg Config, log logx.Logger) (Locker, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("lock.base_url is required for blob backend")
	}
	return &blobLocker{
		base:   base,
		token:  cfg.Token,
		policy: cfg.Policy.withDefaults(),
		http:   &http.Client{Timeout: 10 * time.Second},
		log:    log,
	}, nil
}

func (l *blobLocker) lockURL(resource string) string {
	return l.base + "/" + url.PathEscape(resource+".lock")
}

func (l *blobLocker) Acquire(ctx context.Context, resource string) (Handle, error) {
	owner := uuid.NewString()
	target := l.lockURL(resource)
	deadline := time.Now().Add(l.policy.Wait)

	for {
		ok, err := l.tryPut(ctx, target, owner)
		if err != nil {
			return nil, err
		}
		if ok {
			l.log.Debug("lease acquired", logx.String("resource", resource), logx.String("owner", owner))
			return &blobHandle{locker: l, url: target, owner: owner}, nil
		}
		l.reapStale(ctx, target)
		if err := waitRetry(ctx, deadline, l.policy.Retry); err != nil {
			if errors.Is(err, ErrLockTimeout) {
				return nil, fmt.Errorf("%w: %s", ErrLockTimeout, resource)
			}
			return nil, err
		}
	}
}

func (l *blobLocker) tryPut(ctx context.Context, target, owner string) (bool, error) {
	doc, _ := json.Marshal(lockDoc{Owner: owner, AcquiredAt: time.Now().UTC()})
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, bytes.NewReader(doc))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("If-None-Match", "*")
	l.auth(req)

	resp, err := l.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("lock put: %w", err)
	}
	defer drain(resp)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return true, nil
	case resp.StatusCode == http.StatusPreconditionFailed || resp.StatusCode == http.StatusConflict:
		return false, nil
	default:
		return false, fmt.Errorf("lock put: status %d", resp.StatusCode)
	}
}

func (l *blobLocker) holder(ctx context.Context, target string) (lockDoc, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return lockDoc{}, false
	}
	l.auth(req)
	resp, err := l.http.Do(req)
	if err != nil {
		return lockDoc{}, false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return lockDoc{}, false
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return lockDoc{}, false
	}
	var doc lockDoc
	if json.Unmarshal(b, &doc) != nil {
		return lockDoc{}, false
	}
	return doc, true
}

// reapStale deletes the lock blob when the holder document is past the TTL.
// Best effort; the conditional PUT stays the single admission point.
func (l *blobLocker) reapStale(ctx context.Context, target string) {
	doc, ok := l.holder(ctx, target)
	if !ok || time.Since(doc.AcquiredAt) < l.policy.TTL {
		return
	}
	l.log.Warn("taking over stale lock", logx.String("url", target), logx.Duration("age", time.Since(doc.AcquiredAt)))
	_ = l.delete(ctx, target)
}

func (l *blobLocker) delete(ctx context.Context, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, target, nil)
	if err != nil {
		return err
	}
	l.auth(req)
	resp, err := l.http.Do(req)
	if err != nil {
		return fmt.Errorf("lock delete: %w", err)
	}
	defer drain(resp)
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("lock delete: status %d", resp.StatusCode)
	}
	return nil
}

func (l *blobLocker) auth(req *http.Request) {
	if l.token != "" {
		req.Header.Set("Authorization", "Bearer "+l.token)
	}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}

type blobHandle struct {
	locker *blobLocker
	url    string
	owner  string

	mu       sync.Mutex
	released bool
}

func (h *blobHandle) Release(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return nil
	}
	h.released = true

	// A TTL takeover may have replaced the blob; only delete our own.
	if doc, ok := h.locker.holder(ctx, h.url); ok && doc.Owner != h.owner {
		h.locker.log.Warn("lock no longer ours, not deleting", logx.String("url", h.url))
		return nil
	}
	return h.locker.delete(ctx, h.url)
}
