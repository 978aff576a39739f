package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"remindq/internal/reminder"
	logx "remindq/pkg/logx"
)

func TestFileStoreBootstrap(t *testing.T) {
	t.Parallel()
	s, err := Open(Config{Driver: "file", Path: filepath.Join(t.TempDir(), "queue.json")}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	l, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(l) != 0 {
		t.Fatalf("fresh store must be empty, got %d records", len(l))
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "queue.json")
	s, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	now := time.Now().Truncate(time.Second)
	want := reminder.List{
		reminder.New(now.Add(time.Hour), "first", "sess-a", []string{"@x"}, now),
		reminder.New(now.Add(2*time.Hour), "second", "sess-b", nil, now),
	}
	ctx := context.Background()
	if err := s.Save(ctx, want); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Reopen to prove persistence, not caching.
	s2, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	got, err := s2.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].GUID != want[i].GUID || got[i].Message != want[i].Message {
			t.Fatalf("record %d mismatch: %+v != %+v", i, got[i], want[i])
		}
		if !got[i].RemindAt.Equal(want[i].RemindAt) {
			t.Fatalf("record %d remindAt mismatch", i)
		}
	}
}

func TestFileStoreSaveIsOverwrite(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "queue.json")
	s, _ := Open(Config{Driver: "file", Path: path}, logx.Nop())
	defer s.Close()

	ctx := context.Background()
	now := time.Now()
	first := reminder.List{reminder.New(now.Add(time.Hour), "a", "s", nil, now)}
	if err := s.Save(ctx, first); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Save(ctx, reminder.List{}); err != nil {
		t.Fatalf("save empty: %v", err)
	}
	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("save must replace, got %d records", len(got))
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "redis"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
