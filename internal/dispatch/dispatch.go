// Package dispatch fires due reminders: an agent ping as the primary
// action, then a best-effort chat notification.
//
// The two effects are deliberately asymmetric. A reminder counts as
// delivered only when the agent ping succeeds; a failed notification is
// logged and never rolls that back. Retry keys on the primary alone —
// records whose ping failed stay in the queue for the next cron tick.
package dispatch

import (
	"context"
	"strings"

	"golang.org/x/time/rate"

	"remindq/internal/reminder"
	"remindq/internal/timewin"
	logx "remindq/pkg/logx"
)

// Pinger delivers the reminder message to the target agent session.
type Pinger interface {
	Ping(ctx context.Context, sessionRef, message string) error
}

// Notifier sends the secondary chat notification. Implementations decide
// the channel; ccTargets are rendered into the message as-is.
type Notifier interface {
	Notify(ctx context.Context, text string, ccTargets []string) error
}

// Outcome is the per-record dispatch result.
type Outcome struct {
	GUID      string
	Delivered bool  // agent ping succeeded
	PingErr   error // set when Delivered is false
	NotifyErr error // best-effort secondary; never blocks removal
}

type Dispatcher struct {
	pinger   Pinger
	notifier Notifier // nil when no channel is configured
	zone     string   // display timezone for notification rendering
	limiter  *rate.Limiter
	log      logx.Logger
}

// Options tunes dispatch behavior.
type Options struct {
	DisplayZone string
	RatePerSec  int // pings per second across a due batch; <=0 disables pacing
}

func New(pinger Pinger, notifier Notifier, opt Options, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	var lim *rate.Limiter
	if opt.RatePerSec > 0 {
		lim = rate.NewLimiter(rate.Limit(opt.RatePerSec), opt.RatePerSec)
	}
	return &Dispatcher{
		pinger:   pinger,
		notifier: notifier,
		zone:     opt.DisplayZone,
		limiter:  lim,
		log:      log,
	}
}

// Dispatch fires one due record.
func (d *Dispatcher) Dispatch(ctx context.Context, rec reminder.Record) Outcome {
	out := Outcome{GUID: rec.GUID}

	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			out.PingErr = err
			return out
		}
	}

	if err := d.pinger.Ping(ctx, rec.SessionRef, rec.Message); err != nil {
		out.PingErr = err
		d.log.Warn("agent ping failed",
			logx.String("guid", rec.GUID),
			logx.String("session", rec.SessionRef),
			logx.Err(err))
		return out
	}
	out.Delivered = true
	d.log.Info("reminder delivered", logx.String("guid", rec.GUID))

	if d.notifier != nil {
		if err := d.notifier.Notify(ctx, d.renderText(rec), rec.CCTargets); err != nil {
			out.NotifyErr = err
			d.log.Warn("notification failed", logx.String("guid", rec.GUID), logx.Err(err))
		}
	}
	return out
}

// DispatchAll fires a due batch sequentially in list order and returns one
// outcome per record.
func (d *Dispatcher) DispatchAll(ctx context.Context, due reminder.List) []Outcome {
	outs := make([]Outcome, 0, len(due))
	for _, rec := range due {
		outs = append(outs, d.Dispatch(ctx, rec))
	}
	return outs
}

// DeliveredGUIDs extracts the guids safe to retire from the queue.
func DeliveredGUIDs(outs []Outcome) map[string]struct{} {
	done := make(map[string]struct{}, len(outs))
	for _, o := range outs {
		if o.Delivered {
			done[o.GUID] = struct{}{}
		}
	}
	return done
}

func (d *Dispatcher) renderText(rec reminder.Record) string {
	var b strings.Builder
	b.WriteString("⏰ ")
	b.WriteString(rec.Message)
	b.WriteString("\nDue: ")
	b.WriteString(timewin.Render(rec.RemindAt, d.zone))
	if len(rec.CCTargets) > 0 {
		b.WriteString("\ncc ")
		b.WriteString(strings.Join(rec.CCTargets, " "))
	}
	return b.String()
}
