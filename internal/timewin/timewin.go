// Package timewin classifies absolute instants as future, due, or out of
// window. All comparisons operate on normalized instants; a display timezone
// only ever participates in rendering, never in comparison.
package timewin

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrInvalidTimestamp reports a value that cannot be parsed as an
	// absolute instant with an explicit UTC offset.
	ErrInvalidTimestamp = errors.New("invalid timestamp")

	// ErrOutOfWindow reports an instant that is not strictly in the future
	// or lies beyond the scheduling horizon.
	ErrOutOfWindow = errors.New("timestamp out of window")
)

// DefaultHorizon bounds how far ahead a reminder may be scheduled.
const DefaultHorizon = 72 * time.Hour

// ParseInstant parses an RFC 3339 timestamp carrying an explicit offset
// (e.g. "2026-09-01T14:30:00+02:00" or "...Z"). The offset is preserved so
// the instant renders back the way the caller wrote it.
func ParseInstant(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrInvalidTimestamp)
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, raw)
	}
	return t, nil
}

// IsFuture reports whether t is strictly after now.
func IsFuture(t, now time.Time) bool { return t.After(now) }

// IsDue reports whether t has been reached. The boundary instant itself
// (t == now) is due.
func IsDue(t, now time.Time) bool { return !t.After(now) }

// WithinHorizon reports whether t is no further than maxAhead past now.
func WithinHorizon(t, now time.Time, maxAhead time.Duration) bool {
	return !t.After(now.Add(maxAhead))
}

// CheckSchedulable validates a creation-time instant: strictly future and
// within the horizon. Returns ErrOutOfWindow otherwise.
func CheckSchedulable(t, now time.Time, maxAhead time.Duration) error {
	if maxAhead <= 0 {
		maxAhead = DefaultHorizon
	}
	if !IsFuture(t, now) {
		return fmt.Errorf("%w: %s is not in the future", ErrOutOfWindow, t.Format(time.RFC3339))
	}
	if !WithinHorizon(t, now, maxAhead) {
		return fmt.Errorf("%w: %s is more than %s ahead", ErrOutOfWindow, t.Format(time.RFC3339), maxAhead)
	}
	return nil
}

// Render formats t for humans in the given IANA timezone. An empty or
// unknown zone falls back to the instant's own offset.
func Render(t time.Time, zone string) string {
	if strings.TrimSpace(zone) != "" {
		if loc, err := time.LoadLocation(zone); err == nil {
			t = t.In(loc)
		}
	}
	return t.Format("Mon, 02 Jan 2006 15:04 MST")
}
