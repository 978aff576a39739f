// Package engine orchestrates the reminder queue operations.
//
// Every invocation is one pass through the same machine:
// lock (if configured) → load → mutate/filter → dispatch (cron) → save →
// release. The critical section spans load through save; the lease is
// released on every exit path, including cancellation.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"remindq/internal/dispatch"
	"remindq/internal/lease"
	"remindq/internal/reminder"
	"remindq/internal/store"
	"remindq/internal/timewin"
	logx "remindq/pkg/logx"
)

// ErrValidation reports bad put input. Nothing was locked, loaded, or
// written when this comes back.
var ErrValidation = errors.New("validation failed")

// LockMode controls which operations take the mutex lease.
type LockMode string

const (
	// LockAuto locks the mutating operations (put, cron) only. Read-only
	// list may observe a snapshot a concurrent writer is about to replace;
	// that weaker consistency is the documented trade for latency.
	LockAuto LockMode = "auto"
	// LockNone disables locking entirely.
	LockNone LockMode = "none"
	// LockAlways locks every operation, list included, for a fully
	// linearized view.
	LockAlways LockMode = "always"
)

func ParseLockMode(s string) (LockMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return LockAuto, nil
	case "none":
		return LockNone, nil
	case "always":
		return LockAlways, nil
	default:
		return "", fmt.Errorf("unknown lock mode %q", s)
	}
}

func (m LockMode) locksMutations() bool { return m != LockNone }
func (m LockMode) locksReads() bool     { return m == LockAlways }

// Options tunes an Engine.
type Options struct {
	// Resource names the lease guarding the queue blob.
	Resource string
	LockMode LockMode
	// Horizon bounds how far ahead a put may schedule. Zero means the
	// package default.
	Horizon time.Duration
	// Now overrides the clock; nil means time.Now. Tests pin it.
	Now func() time.Time
}

type Engine struct {
	store  store.Store
	locker lease.Locker
	disp   *dispatch.Dispatcher
	opt    Options
	log    logx.Logger
}

func New(st store.Store, locker lease.Locker, disp *dispatch.Dispatcher, opt Options, log logx.Logger) *Engine {
	if opt.Resource == "" {
		opt.Resource = "reminders"
	}
	if opt.LockMode == "" {
		opt.LockMode = LockAuto
	}
	if opt.Horizon <= 0 {
		opt.Horizon = timewin.DefaultHorizon
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{store: st, locker: locker, disp: disp, opt: opt, log: log}
}

// withLease runs fn inside the lease when wanted. The release is deferred
// on a background context so an aborted invocation still frees the lock.
func (e *Engine) withLease(ctx context.Context, wanted bool, fn func(ctx context.Context) error) error {
	if !wanted || e.locker == nil {
		return fn(ctx)
	}
	h, err := e.locker.Acquire(ctx, e.opt.Resource)
	if err != nil {
		return err
	}
	defer lease.ReleaseQuietly(h, e.log)
	return fn(ctx)
}

// PutInput is the raw put request. RemindAt stays a string until validated
// so a malformed timestamp falls under ErrValidation, before any lock.
type PutInput struct {
	RemindAt   string
	Message    string
	SessionRef string
	CCTargets  []string
}

type PutResult struct {
	GUID       string
	TotalCount int
}

// Put validates, appends, and persists a new reminder.
func (e *Engine) Put(ctx context.Context, in PutInput) (PutResult, error) {
	now := e.opt.Now()

	if strings.TrimSpace(in.Message) == "" {
		return PutResult{}, fmt.Errorf("%w: message is required", ErrValidation)
	}
	if strings.TrimSpace(in.SessionRef) == "" {
		return PutResult{}, fmt.Errorf("%w: sessionRef is required", ErrValidation)
	}
	at, err := timewin.ParseInstant(in.RemindAt)
	if err != nil {
		return PutResult{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if err := timewin.CheckSchedulable(at, now, e.opt.Horizon); err != nil {
		return PutResult{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	rec := reminder.New(at, in.Message, in.SessionRef, in.CCTargets, now)
	var res PutResult
	err = e.withLease(ctx, e.opt.LockMode.locksMutations(), func(ctx context.Context) error {
		l, err := e.store.Load(ctx)
		if err != nil {
			return err
		}
		l, err = reminder.Append(l, rec)
		if err != nil {
			return err
		}
		if err := e.store.Save(ctx, l); err != nil {
			return err
		}
		res = PutResult{GUID: rec.GUID, TotalCount: len(l)}
		return nil
	})
	if err != nil {
		return PutResult{}, err
	}
	e.log.Info("reminder scheduled",
		logx.String("guid", res.GUID),
		logx.Time("remind_at", rec.RemindAt),
		logx.Int("total", res.TotalCount))
	return res, nil
}

type ListResult struct {
	ListJSON   []byte
	DueJSON    []byte
	DueCount   int
	DueGUIDs   []string
	TotalCount int
}

// List reports the stored queue and its due subset. It never mutates the
// store. The due set is computed fresh against the current clock.
func (e *Engine) List(ctx context.Context) (ListResult, error) {
	var res ListResult
	err := e.withLease(ctx, e.opt.LockMode.locksReads(), func(ctx context.Context) error {
		l, err := e.store.Load(ctx)
		if err != nil {
			return err
		}
		due, _ := reminder.PartitionDue(l, e.opt.Now())

		listJSON, err := reminder.Encode(l)
		if err != nil {
			return err
		}
		dueJSON, err := reminder.Encode(due)
		if err != nil {
			return err
		}
		res = ListResult{
			ListJSON:   listJSON,
			DueJSON:    dueJSON,
			DueCount:   len(due),
			DueGUIDs:   reminder.GUIDs(due),
			TotalCount: len(l),
		}
		return nil
	})
	return res, err
}

type CronResult struct {
	DueCount   int
	Popped     int
	Remaining  int
	TotalCount int // before removal
	Outcomes   []dispatch.Outcome
}

// Cron fires every due reminder and retires the ones whose agent ping
// succeeded. Failed ones stay in the queue; the next tick retries them.
// Popped < DueCount signals partial failure without failing the batch.
func (e *Engine) Cron(ctx context.Context) (CronResult, error) {
	if e.disp == nil {
		return CronResult{}, errors.New("cron: no dispatcher configured")
	}
	var res CronResult
	err := e.withLease(ctx, e.opt.LockMode.locksMutations(), func(ctx context.Context) error {
		l, err := e.store.Load(ctx)
		if err != nil {
			return err
		}
		due, _ := reminder.PartitionDue(l, e.opt.Now())
		res.TotalCount = len(l)
		res.DueCount = len(due)
		if len(due) == 0 {
			res.Remaining = len(l)
			return nil
		}

		res.Outcomes = e.disp.DispatchAll(ctx, due)
		done := dispatch.DeliveredGUIDs(res.Outcomes)
		res.Popped = len(done)

		next := reminder.RemoveByGUID(l, done)
		if err := e.store.Save(ctx, next); err != nil {
			return err
		}
		res.Remaining = len(next)
		return nil
	})
	if err != nil {
		return CronResult{}, err
	}
	if res.Popped < res.DueCount {
		e.log.Warn("cron tick finished with failures",
			logx.Int("due", res.DueCount),
			logx.Int("popped", res.Popped),
			logx.Int("remaining", res.Remaining))
	} else if res.DueCount > 0 {
		e.log.Info("cron tick finished",
			logx.Int("due", res.DueCount),
			logx.Int("popped", res.Popped),
			logx.Int("remaining", res.Remaining))
	}
	return res, nil
}
