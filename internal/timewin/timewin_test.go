package timewin

import (
	"errors"
	"testing"
	"time"
)

func TestParseInstantVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		raw    string
		ok     bool
		offset int // seconds east of UTC, checked when ok
	}{
		{name: "utc", raw: "2026-09-01T10:00:00Z", ok: true, offset: 0},
		{name: "positive offset", raw: "2026-09-01T10:00:00+02:00", ok: true, offset: 2 * 3600},
		{name: "negative offset", raw: "2026-09-01T10:00:00-05:00", ok: true, offset: -5 * 3600},
		{name: "fractional seconds", raw: "2026-09-01T10:00:00.250Z", ok: true, offset: 0},
		{name: "no offset", raw: "2026-09-01T10:00:00", ok: false},
		{name: "date only", raw: "2026-09-01", ok: false},
		{name: "garbage", raw: "tomorrow at noon", ok: false},
		{name: "empty", raw: "", ok: false},
		{name: "whitespace", raw: "   ", ok: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseInstant(tt.raw)
			if !tt.ok {
				if !errors.Is(err, ErrInvalidTimestamp) {
					t.Fatalf("ParseInstant(%q) err = %v, want ErrInvalidTimestamp", tt.raw, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseInstant(%q) error: %v", tt.raw, err)
			}
			_, off := got.Zone()
			if off != tt.offset {
				t.Fatalf("offset = %d, want %d", off, tt.offset)
			}
		})
	}
}

func TestDueBoundary(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	if !IsDue(now, now) {
		t.Fatal("instant equal to now must be due")
	}
	if IsDue(now.Add(time.Nanosecond), now) {
		t.Fatal("instant one tick ahead must not be due")
	}
	if !IsDue(now.Add(-time.Second), now) {
		t.Fatal("past instant must be due")
	}
}

func TestDueIgnoresOffsetRepresentation(t *testing.T) {
	t.Parallel()
	// Same instant written in two offsets must classify identically.
	now, _ := ParseInstant("2026-09-01T12:00:00Z")
	alt, _ := ParseInstant("2026-09-01T14:00:00+02:00")
	if !alt.Equal(now) {
		t.Fatal("fixture instants differ")
	}
	if !IsDue(alt, now) {
		t.Fatal("equal instant in another offset must be due")
	}
}

func TestCheckSchedulable(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		t    time.Time
		ok   bool
	}{
		{name: "one hour ahead", t: now.Add(time.Hour), ok: true},
		{name: "at horizon", t: now.Add(DefaultHorizon), ok: true},
		{name: "past horizon", t: now.Add(DefaultHorizon + time.Minute), ok: false},
		{name: "four days ahead", t: now.Add(96 * time.Hour), ok: false},
		{name: "now", t: now, ok: false},
		{name: "past", t: now.Add(-time.Minute), ok: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			err := CheckSchedulable(tt.t, now, DefaultHorizon)
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrOutOfWindow) {
				t.Fatalf("err = %v, want ErrOutOfWindow", err)
			}
		})
	}
}

func TestRenderFallsBackToOwnOffset(t *testing.T) {
	t.Parallel()
	at, _ := ParseInstant("2026-09-01T10:00:00+02:00")
	got := Render(at, "definitely/not-a-zone")
	if got == "" {
		t.Fatal("empty rendering")
	}
	// Must render the instant's own offset, not reinterpret it.
	want := at.Format("Mon, 02 Jan 2006 15:04 MST")
	if got != want {
		t.Fatalf("Render = %q, want %q", got, want)
	}
}
