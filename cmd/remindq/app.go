package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/urfave/cli"

	"remindq/internal/config"
	"remindq/internal/dispatch"
	"remindq/internal/engine"
	"remindq/internal/lease"
	"remindq/internal/notify"
	"remindq/internal/serve"
	"remindq/internal/store"
	logx "remindq/pkg/logx"
)

// overrides are the per-invocation knobs that beat the config file.
type overrides struct {
	lockMode string
	timezone string
}

func readOverrides(c *cli.Context) overrides {
	return overrides{
		lockMode: c.GlobalString("lock"),
		timezone: c.GlobalString("timezone"),
	}
}

// setup loads config and builds the logger shared by all commands.
func setup(c *cli.Context) (*config.Manager, *config.Config, logx.Logger, func(), error) {
	mgr := config.NewManager(c.GlobalString("config"))
	cfg, err := mgr.Load()
	if err != nil {
		return nil, nil, logx.Logger{}, nil, err
	}
	log, closeLog := logx.New(cfg.LogConfig())
	mgr.SetLogger(log)
	return mgr, cfg, log, func() { _ = closeLog() }, nil
}

// buildEngine assembles store, lease, and dispatcher into a queue engine.
func buildEngine(cfg *config.Config, ov overrides, log logx.Logger) (*engine.Engine, func(), error) {
	mode, err := engine.ParseLockMode(firstNonEmpty(ov.lockMode, cfg.Lock.Mode))
	if err != nil {
		return nil, nil, err
	}
	horizon, err := cfg.MaxAhead()
	if err != nil {
		return nil, nil, err
	}

	sc, err := cfg.StoreConfig()
	if err != nil {
		return nil, nil, err
	}
	st, err := store.Open(sc, log)
	if err != nil {
		return nil, nil, err
	}

	var locker lease.Locker
	if mode != engine.LockNone {
		lc, err := cfg.LeaseConfig()
		if err != nil {
			_ = st.Close()
			return nil, nil, err
		}
		locker, err = lease.Open(lc, log)
		if err != nil {
			_ = st.Close()
			return nil, nil, err
		}
	}

	ac, err := cfg.AgentPingConfig()
	if err != nil {
		_ = st.Close()
		return nil, nil, err
	}
	var notifier dispatch.Notifier
	if cfg.Telegram != nil && cfg.Telegram.Token != "" {
		svc, err := notify.New(notify.Config{
			Token:    cfg.Telegram.Token,
			ChatID:   cfg.Telegram.ChatID,
			ThreadID: cfg.Telegram.ThreadID,
		}, log)
		if err != nil {
			_ = st.Close()
			return nil, nil, err
		}
		notifier = svc
	}
	disp := dispatch.New(dispatch.NewAgentPinger(ac), notifier, dispatch.Options{
		DisplayZone: firstNonEmpty(ov.timezone, cfg.Queue.DisplayTimezone),
		RatePerSec:  cfg.Queue.DispatchRatePerSec,
	}, log)

	eng := engine.New(st, locker, disp, engine.Options{
		Resource: cfg.Resource(),
		LockMode: mode,
		Horizon:  horizon,
	}, log)
	return eng, func() { _ = st.Close() }, nil
}

func putAction(c *cli.Context) error {
	_, cfg, log, closeLog, err := setup(c)
	if err != nil {
		return err
	}
	defer closeLog()

	ov := readOverrides(c)
	eng, teardown, err := buildEngine(cfg, ov, log)
	if err != nil {
		return err
	}
	defer teardown()

	ctx, cancel := signalContext()
	defer cancel()

	res, err := eng.Put(ctx, engine.PutInput{
		RemindAt:   c.String("at"),
		Message:    c.String("message"),
		SessionRef: c.String("session"),
		CCTargets:  c.StringSlice("cc"),
	})
	if err != nil {
		return err
	}
	return printPut(res, c.GlobalBool("json"))
}

func listAction(c *cli.Context) error {
	_, cfg, log, closeLog, err := setup(c)
	if err != nil {
		return err
	}
	defer closeLog()

	ov := readOverrides(c)
	eng, teardown, err := buildEngine(cfg, ov, log)
	if err != nil {
		return err
	}
	defer teardown()

	ctx, cancel := signalContext()
	defer cancel()

	res, err := eng.List(ctx)
	if err != nil {
		return err
	}
	zone := firstNonEmpty(ov.timezone, cfg.Queue.DisplayTimezone)
	return printList(res, zone, c.GlobalBool("json"))
}

func cronAction(c *cli.Context) error {
	_, cfg, log, closeLog, err := setup(c)
	if err != nil {
		return err
	}
	defer closeLog()

	ov := readOverrides(c)
	eng, teardown, err := buildEngine(cfg, ov, log)
	if err != nil {
		return err
	}
	defer teardown()

	ctx, cancel := signalContext()
	defer cancel()

	res, err := eng.Cron(ctx)
	if err != nil {
		return err
	}
	return printCron(res, c.GlobalBool("json"))
}

func serveAction(c *cli.Context) error {
	mgr, _, log, closeLog, err := setup(c)
	if err != nil {
		return err
	}
	defer closeLog()

	ov := readOverrides(c)
	runner := serve.NewRunner(mgr, func(cfg *config.Config) (*engine.Engine, func(), error) {
		return buildEngine(cfg, ov, log)
	}, log)

	ctx, cancel := signalContext()
	defer cancel()
	return runner.Run(ctx)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
