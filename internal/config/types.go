package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"remindq/internal/dispatch"
	"remindq/internal/lease"
	"remindq/internal/store"
	logx "remindq/pkg/logx"
)

type Config struct {
	Logging  LoggingConfig   `json:"logging"`
	Queue    QueueConfig     `json:"queue"`
	Store    StoreConfig     `json:"store"`
	Lock     LockConfig      `json:"lock"`
	Agent    AgentConfig     `json:"agent"`
	Telegram *TelegramConfig `json:"telegram,omitempty"`
	Serve    ServeConfig     `json:"serve,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// QueueConfig controls the reminder queue itself.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "72h").
type QueueConfig struct {
	// Resource names the shared queue (blob name and lease name derive
	// from it). Default "reminders".
	Resource string `json:"resource,omitempty"`
	// MaxAhead bounds how far in the future a reminder may be scheduled.
	// Default "72h".
	MaxAhead string `json:"max_ahead,omitempty"`
	// DisplayTimezone is an IANA zone used only for rendering, never for
	// due-time comparison.
	DisplayTimezone string `json:"display_timezone,omitempty"`
	// DispatchRatePerSec paces agent pings across a due batch. 0 disables
	// pacing.
	DispatchRatePerSec int `json:"dispatch_rate_per_sec,omitempty"`
}

// StoreConfig selects the queue blob backend.
//
// The token can also come from REMINDQ_STORE_TOKEN, which wins over the
// file so secrets can stay out of it.
type StoreConfig struct {
	Driver      string `json:"driver,omitempty"` // "blob" (default), "file", "sqlite"
	BaseURL     string `json:"base_url,omitempty"`
	Token       string `json:"token,omitempty"`
	Timeout     string `json:"timeout,omitempty"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// LockConfig tunes the mutex lease.
//
// Mode: "auto" locks put/cron only; "none" disables locking; "always"
// additionally locks read-only list.
type LockConfig struct {
	Mode    string `json:"mode,omitempty"`
	Backend string `json:"backend,omitempty"` // "blob" (default), "file"
	Dir     string `json:"dir,omitempty"`     // file backend
	Wait    string `json:"wait,omitempty"`
	Retry   string `json:"retry,omitempty"`
	TTL     string `json:"ttl,omitempty"`
}

// AgentConfig configures the agent-ping transport. The credential can also
// come from REMINDQ_AGENT_CREDENTIAL.
type AgentConfig struct {
	Endpoint   string `json:"endpoint,omitempty"`
	Credential string `json:"credential,omitempty"`
	Timeout    string `json:"timeout,omitempty"`
}

// TelegramConfig enables the chat notification channel. Token can also
// come from REMINDQ_TELEGRAM_TOKEN. Omitting the section disables
// notifications entirely; dispatch then only pings the agent.
type TelegramConfig struct {
	Token    string `json:"token,omitempty"`
	ChatID   int64  `json:"chat_id"`
	ThreadID int    `json:"thread_id,omitempty"`
}

// ServeConfig controls the resident mode (remindq serve).
type ServeConfig struct {
	// Schedule is a 5-field cron expression driving cron ticks.
	// Default "* * * * *" (every minute).
	Schedule string `json:"schedule,omitempty"`
	// WatchConfig reloads tunables when the config file changes.
	WatchConfig bool `json:"watch_config,omitempty"`
}

// ApplyEnv overlays secret-bearing fields from the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("REMINDQ_STORE_TOKEN"); v != "" {
		c.Store.Token = v
	}
	if v := os.Getenv("REMINDQ_AGENT_CREDENTIAL"); v != "" {
		c.Agent.Credential = v
	}
	if v := os.Getenv("REMINDQ_TELEGRAM_TOKEN"); v != "" {
		if c.Telegram == nil {
			c.Telegram = &TelegramConfig{}
		}
		c.Telegram.Token = v
	}
}

// Resource returns the shared queue name.
func (c *Config) Resource() string {
	if r := strings.TrimSpace(c.Queue.Resource); r != "" {
		return r
	}
	return "reminders"
}

// MaxAhead parses the scheduling horizon.
func (c *Config) MaxAhead() (time.Duration, error) {
	return ParseDurationOrDefault("queue.max_ahead", c.Queue.MaxAhead, 72*time.Hour)
}

// StoreConfig resolves the typed store settings.
func (c *Config) StoreConfig() (store.Config, error) {
	timeout, err := ParseDurationField("store.timeout", c.Store.Timeout)
	if err != nil {
		return store.Config{}, err
	}
	busy, err := ParseDurationField("store.busy_timeout", c.Store.BusyTimeout)
	if err != nil {
		return store.Config{}, err
	}
	return store.Config{
		Driver:      c.Store.Driver,
		BaseURL:     c.Store.BaseURL,
		Name:        c.Resource(),
		Token:       c.Store.Token,
		Timeout:     timeout,
		Path:        c.Store.Path,
		BusyTimeout: busy,
	}, nil
}

// LeaseConfig resolves the typed lock settings. The blob lock backend
// inherits the store's service URL and token unless overridden.
func (c *Config) LeaseConfig() (lease.Config, error) {
	wait, err := ParseDurationField("lock.wait", c.Lock.Wait)
	if err != nil {
		return lease.Config{}, err
	}
	retry, err := ParseDurationField("lock.retry", c.Lock.Retry)
	if err != nil {
		return lease.Config{}, err
	}
	ttl, err := ParseDurationField("lock.ttl", c.Lock.TTL)
	if err != nil {
		return lease.Config{}, err
	}

	backend := strings.ToLower(strings.TrimSpace(c.Lock.Backend))
	if backend == "" {
		// Local store drivers get a local lock next to the data by default.
		switch strings.ToLower(strings.TrimSpace(c.Store.Driver)) {
		case "file", "sqlite", "sqlite3":
			backend = "file"
		default:
			backend = "blob"
		}
	}

	cfg := lease.Config{
		Backend: backend,
		BaseURL: c.Store.BaseURL,
		Token:   c.Store.Token,
		Dir:     c.Lock.Dir,
		Policy:  lease.Policy{Wait: wait, Retry: retry, TTL: ttl},
	}
	if backend == "file" && cfg.Dir == "" {
		if c.Store.Path == "" {
			return lease.Config{}, fmt.Errorf("lock.dir is required when store.path is empty")
		}
		cfg.Dir = dirOf(c.Store.Path)
	}
	return cfg, nil
}

func dirOf(path string) string { return filepath.Dir(path) }

// AgentPingConfig resolves the typed agent transport settings.
func (c *Config) AgentPingConfig() (dispatch.AgentConfig, error) {
	timeout, err := ParseDurationField("agent.timeout", c.Agent.Timeout)
	if err != nil {
		return dispatch.AgentConfig{}, err
	}
	return dispatch.AgentConfig{
		Endpoint:   c.Agent.Endpoint,
		Credential: c.Agent.Credential,
		Timeout:    timeout,
	}, nil
}

// LogConfig resolves the logging settings.
func (c *Config) LogConfig() logx.Config {
	return logx.Config{
		Level:   c.Logging.Level,
		Console: c.Logging.Console,
		File: logx.FileConfig{
			Enabled: c.Logging.File.Enabled,
			Path:    c.Logging.File.Path,
		},
	}
}
