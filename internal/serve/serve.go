// Package serve runs remindq as a resident process: cron ticks fire on a
// schedule instead of relying on an external invoker. Each tick is exactly
// one queue engine cron pass, so one-shot and resident operation stay
// behaviorally identical.
package serve

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	sd "github.com/coreos/go-systemd/v22/daemon"
	"github.com/robfig/cron/v3"

	"remindq/internal/config"
	"remindq/internal/engine"
	logx "remindq/pkg/logx"
)

const defaultSchedule = "* * * * *"

// BuildEngine constructs a queue engine (and its teardown) from a config
// snapshot. serve calls it again after every config reload so tunables like
// lock policy and display timezone take effect without a restart.
type BuildEngine func(cfg *config.Config) (*engine.Engine, func(), error)

type Runner struct {
	mgr   *config.Manager
	build BuildEngine
	log   logx.Logger

	mu       sync.Mutex
	eng      *engine.Engine
	teardown func()
}

func NewRunner(mgr *config.Manager, build BuildEngine, log logx.Logger) *Runner {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Runner{mgr: mgr, build: build, log: log}
}

// Run blocks until ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	cfg := r.mgr.Get()
	if cfg == nil {
		return errors.New("serve: no config loaded")
	}
	if err := r.swapEngine(cfg); err != nil {
		return err
	}
	defer r.closeEngine()

	schedule := strings.TrimSpace(cfg.Serve.Schedule)
	if schedule == "" {
		schedule = defaultSchedule
	}
	spec, err := cron.ParseStandard(schedule)
	if err != nil {
		return err
	}

	c := cron.New()
	c.Schedule(spec, cron.FuncJob(func() { r.tick(ctx) }))
	c.Start()
	defer func() { <-c.Stop().Done() }()

	if cfg.Serve.WatchConfig {
		go func() {
			err := r.mgr.Watch(ctx, func(next *config.Config) {
				if err := r.swapEngine(next); err != nil {
					r.log.Error("config change not applied", logx.Err(err))
				}
			})
			if err != nil {
				r.log.Warn("config watcher stopped", logx.Err(err))
			}
		}()
	}

	r.notifyReady(ctx)
	r.log.Info("serving", logx.String("schedule", schedule))

	<-ctx.Done()
	_, _ = sd.SdNotify(false, sd.SdNotifyStopping)
	r.log.Info("shutting down")
	return nil
}

func (r *Runner) tick(ctx context.Context) {
	r.mu.Lock()
	eng := r.eng
	r.mu.Unlock()
	if eng == nil {
		return
	}

	tctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	res, err := eng.Cron(tctx)
	if err != nil {
		r.log.Error("cron tick failed", logx.Err(err))
		return
	}
	if res.DueCount > 0 {
		r.log.Debug("tick",
			logx.Int("due", res.DueCount),
			logx.Int("popped", res.Popped),
			logx.Int("remaining", res.Remaining))
	}
}

func (r *Runner) swapEngine(cfg *config.Config) error {
	eng, teardown, err := r.build(cfg)
	if err != nil {
		return err
	}
	r.mu.Lock()
	old := r.teardown
	r.eng = eng
	r.teardown = teardown
	r.mu.Unlock()
	if old != nil {
		old()
	}
	return nil
}

func (r *Runner) closeEngine() {
	r.mu.Lock()
	teardown := r.teardown
	r.eng = nil
	r.teardown = nil
	r.mu.Unlock()
	if teardown != nil {
		teardown()
	}
}

// notifyReady tells systemd we are up and keeps the watchdog fed when one
// is configured. No-ops outside systemd.
func (r *Runner) notifyReady(ctx context.Context) {
	if ok, _ := sd.SdNotify(false, sd.SdNotifyReady); !ok {
		return
	}
	interval, err := sd.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return
	}
	go func() {
		t := time.NewTicker(interval / 2)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				_, _ = sd.SdNotify(false, sd.SdNotifyWatchdog)
			}
		}
	}()
}
