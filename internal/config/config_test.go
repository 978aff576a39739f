package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const yamlConfig = `
logging:
  level: debug
  console: true
queue:
  resource: team-reminders
  max_ahead: 48h
  display_timezone: Europe/Berlin
store:
  driver: blob
  base_url: https://blobs.example/api
  token: file-token
lock:
  mode: always
  wait: 5s
agent:
  credential: agent-cred
telegram:
  chat_id: -100123
`

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", yamlConfig)
	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Logging.Level != "debug" || !cfg.Logging.Console {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
	if cfg.Resource() != "team-reminders" {
		t.Fatalf("resource = %q", cfg.Resource())
	}
	maxAhead, err := cfg.MaxAhead()
	if err != nil || maxAhead != 48*time.Hour {
		t.Fatalf("max_ahead = %v, %v", maxAhead, err)
	}
	sc, err := cfg.StoreConfig()
	if err != nil {
		t.Fatalf("store config: %v", err)
	}
	if sc.BaseURL != "https://blobs.example/api" || sc.Name != "team-reminders" {
		t.Fatalf("store = %+v", sc)
	}
	lc, err := cfg.LeaseConfig()
	if err != nil {
		t.Fatalf("lease config: %v", err)
	}
	if lc.Backend != "blob" || lc.BaseURL != sc.BaseURL || lc.Policy.Wait != 5*time.Second {
		t.Fatalf("lease = %+v", lc)
	}
	if cfg.Telegram == nil || cfg.Telegram.ChatID != -100123 {
		t.Fatalf("telegram = %+v", cfg.Telegram)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, "config.yaml", "queue:\n  resurce: typo\n")
	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestEnvOverridesSecrets(t *testing.T) {
	t.Setenv("REMINDQ_STORE_TOKEN", "env-token")
	t.Setenv("REMINDQ_AGENT_CREDENTIAL", "env-cred")
	t.Setenv("REMINDQ_TELEGRAM_TOKEN", "env-tg")

	path := writeConfig(t, "config.yaml", yamlConfig)
	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Store.Token != "env-token" {
		t.Fatalf("store token = %q, want env override", cfg.Store.Token)
	}
	if cfg.Agent.Credential != "env-cred" {
		t.Fatalf("agent credential = %q", cfg.Agent.Credential)
	}
	if cfg.Telegram == nil || cfg.Telegram.Token != "env-tg" {
		t.Fatalf("telegram = %+v", cfg.Telegram)
	}
}

func TestFileStoreDefaultsToFileLock(t *testing.T) {
	path := writeConfig(t, "config.json",
		`{"store":{"driver":"file","path":"/var/lib/remindq/queue.json"}}`)
	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	lc, err := cfg.LeaseConfig()
	if err != nil {
		t.Fatalf("lease config: %v", err)
	}
	if lc.Backend != "file" {
		t.Fatalf("backend = %q, want file", lc.Backend)
	}
	if lc.Dir != "/var/lib/remindq" {
		t.Fatalf("dir = %q", lc.Dir)
	}
}

func TestDurationValidation(t *testing.T) {
	path := writeConfig(t, "config.yaml", "queue:\n  max_ahead: banana\n")
	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := cfg.MaxAhead(); err == nil {
		t.Fatal("expected error for bad duration")
	}
}
