// Package reminder holds the reminder queue data model: a single ordered
// list of records persisted as one JSON blob.
//
// The list is the sole source of truth. Whoever holds the mutation lease
// owns it; everyone else sees snapshots.
package reminder

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrDuplicateGUID reports a guid collision inside one list. The generation
// scheme makes this unreachable in practice, so hitting it means the queue
// invariant is broken and the invocation must abort.
var ErrDuplicateGUID = errors.New("duplicate reminder guid")

// Record is one scheduled reminder.
//
// RemindAt keeps the offset it was written with; comparisons normalize, the
// blob round-trips the original representation.
type Record struct {
	GUID       string
	RemindAt   time.Time
	Message    string
	SessionRef string
	CCTargets  []string
	CreatedAt  time.Time

	// extra carries blob fields this version does not know about.
	// They survive load→save untouched (forward compatibility).
	extra map[string]json.RawMessage
}

// New builds a record with a fresh guid. CCTargets are deduplicated
// preserving first-seen order.
func New(remindAt time.Time, message, sessionRef string, ccTargets []string, now time.Time) Record {
	return Record{
		GUID:       uuid.NewString(),
		RemindAt:   remindAt,
		Message:    message,
		SessionRef: sessionRef,
		CCTargets:  dedupeTargets(ccTargets),
		CreatedAt:  now,
	}
}

func dedupeTargets(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, t := range in {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// recordJSON is the known wire shape. Timestamps are RFC 3339 strings so the
// written offset survives the round trip byte-for-byte.
type recordJSON struct {
	GUID       string   `json:"guid"`
	RemindAt   string   `json:"remindAt"`
	Message    string   `json:"message"`
	SessionRef string   `json:"sessionRef"`
	CCTargets  []string `json:"ccTargets,omitempty"`
	CreatedAt  string   `json:"createdAt,omitempty"`
}

var knownKeys = map[string]struct{}{
	"guid": {}, "remindAt": {}, "message": {}, "sessionRef": {},
	"ccTargets": {}, "createdAt": {},
}

func (r Record) MarshalJSON() ([]byte, error) {
	m := make(map[string]json.RawMessage, len(r.extra)+6)
	for k, v := range r.extra {
		m[k] = v
	}
	known := recordJSON{
		GUID:       r.GUID,
		RemindAt:   r.RemindAt.Format(time.RFC3339Nano),
		Message:    r.Message,
		SessionRef: r.SessionRef,
		CCTargets:  r.CCTargets,
	}
	if !r.CreatedAt.IsZero() {
		known.CreatedAt = r.CreatedAt.Format(time.RFC3339Nano)
	}
	kb, err := json.Marshal(known)
	if err != nil {
		return nil, err
	}
	var km map[string]json.RawMessage
	if err := json.Unmarshal(kb, &km); err != nil {
		return nil, err
	}
	// Known fields win over stale extras of the same name.
	for k, v := range km {
		m[k] = v
	}
	return json.Marshal(m)
}

func (r *Record) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var known recordJSON
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}

	remindAt, err := time.Parse(time.RFC3339Nano, known.RemindAt)
	if err != nil {
		return fmt.Errorf("record %s: remindAt: %w", known.GUID, err)
	}
	var createdAt time.Time
	if known.CreatedAt != "" {
		createdAt, err = time.Parse(time.RFC3339Nano, known.CreatedAt)
		if err != nil {
			return fmt.Errorf("record %s: createdAt: %w", known.GUID, err)
		}
	}

	var extra map[string]json.RawMessage
	for k, v := range raw {
		if _, ok := knownKeys[k]; ok {
			continue
		}
		if extra == nil {
			extra = make(map[string]json.RawMessage)
		}
		extra[k] = v
	}

	*r = Record{
		GUID:       known.GUID,
		RemindAt:   remindAt,
		Message:    known.Message,
		SessionRef: known.SessionRef,
		CCTargets:  known.CCTargets,
		CreatedAt:  createdAt,
		extra:      extra,
	}
	return nil
}

// List is the persisted queue. Insertion order is display and dispatch order.
type List []Record

// Append returns the list with rec added, enforcing guid uniqueness.
func Append(l List, rec Record) (List, error) {
	for i := range l {
		if l[i].GUID == rec.GUID {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateGUID, rec.GUID)
		}
	}
	out := make(List, 0, len(l)+1)
	out = append(out, l...)
	out = append(out, rec)
	return out, nil
}

// PartitionDue splits the list into due and not-yet-due records, preserving
// relative order within each half. A record exactly at now is due.
func PartitionDue(l List, now time.Time) (due, notDue List) {
	for _, rec := range l {
		if !rec.RemindAt.After(now) {
			due = append(due, rec)
		} else {
			notDue = append(notDue, rec)
		}
	}
	return due, notDue
}

// RemoveByGUID returns the list without the given guids. Unknown guids are
// ignored, so removal is idempotent.
func RemoveByGUID(l List, guids map[string]struct{}) List {
	if len(guids) == 0 {
		return l
	}
	out := make(List, 0, len(l))
	for _, rec := range l {
		if _, drop := guids[rec.GUID]; drop {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// GUIDs returns the guids in list order.
func GUIDs(l List) []string {
	out := make([]string, 0, len(l))
	for _, rec := range l {
		out = append(out, rec.GUID)
	}
	return out
}

// Encode serializes the list as a JSON array. An empty or nil list encodes
// as "[]", never "null".
func Encode(l List) ([]byte, error) {
	if l == nil {
		l = List{}
	}
	return json.Marshal(l)
}

// Decode parses a stored blob. Empty input is the bootstrap case and yields
// an empty list.
func Decode(data []byte) (List, error) {
	if len(data) == 0 {
		return List{}, nil
	}
	var l List
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("reminder list: %w", err)
	}
	if l == nil {
		l = List{}
	}
	return l, nil
}
