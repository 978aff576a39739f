package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"remindq/internal/engine"
	"remindq/internal/reminder"
	"remindq/internal/timewin"
	logx "remindq/pkg/logx"
)

func printPut(res engine.PutResult, asJSON bool) error {
	if asJSON {
		return emitJSON(map[string]any{
			"guid":       res.GUID,
			"totalCount": res.TotalCount,
		})
	}
	fmt.Fprintf(logx.Stdout(), "scheduled %s (total %d)\n", res.GUID, res.TotalCount)
	return nil
}

func printList(res engine.ListResult, zone string, asJSON bool) error {
	if asJSON {
		return emitJSON(map[string]any{
			"list":       json.RawMessage(res.ListJSON),
			"due":        json.RawMessage(res.DueJSON),
			"dueCount":   res.DueCount,
			"dueGuids":   res.DueGUIDs,
			"totalCount": res.TotalCount,
		})
	}

	out := logx.Stdout()
	if res.TotalCount == 0 {
		fmt.Fprintln(out, "no reminders")
		return nil
	}
	l, err := reminder.Decode(res.ListJSON)
	if err != nil {
		return err
	}
	dueSet := make(map[string]struct{}, len(res.DueGUIDs))
	for _, g := range res.DueGUIDs {
		dueSet[g] = struct{}{}
	}
	for _, rec := range l {
		marker := " "
		if _, due := dueSet[rec.GUID]; due {
			marker = "!"
		}
		line := fmt.Sprintf("%s %s  %s  %s", marker, rec.GUID, timewin.Render(rec.RemindAt, zone), rec.Message)
		if len(rec.CCTargets) > 0 {
			line += "  cc " + strings.Join(rec.CCTargets, " ")
		}
		fmt.Fprintln(out, line)
	}
	fmt.Fprintf(out, "total %d, due %d\n", res.TotalCount, res.DueCount)
	return nil
}

func printCron(res engine.CronResult, asJSON bool) error {
	if asJSON {
		type outcome struct {
			GUID      string `json:"guid"`
			Delivered bool   `json:"delivered"`
			PingErr   string `json:"pingError,omitempty"`
			NotifyErr string `json:"notifyError,omitempty"`
		}
		outs := make([]outcome, 0, len(res.Outcomes))
		for _, o := range res.Outcomes {
			oc := outcome{GUID: o.GUID, Delivered: o.Delivered}
			if o.PingErr != nil {
				oc.PingErr = o.PingErr.Error()
			}
			if o.NotifyErr != nil {
				oc.NotifyErr = o.NotifyErr.Error()
			}
			outs = append(outs, oc)
		}
		return emitJSON(map[string]any{
			"dueCount":    res.DueCount,
			"poppedCount": res.Popped,
			"remaining":   res.Remaining,
			"totalCount":  res.TotalCount,
			"outcomes":    outs,
		})
	}
	fmt.Fprintf(logx.Stdout(), "due %d, popped %d, remaining %d\n", res.DueCount, res.Popped, res.Remaining)
	for _, o := range res.Outcomes {
		switch {
		case o.Delivered && o.NotifyErr == nil:
			fmt.Fprintf(logx.Stdout(), "  delivered %s\n", o.GUID)
		case o.Delivered:
			fmt.Fprintf(logx.Stdout(), "  delivered %s (notification failed: %v)\n", o.GUID, o.NotifyErr)
		default:
			fmt.Fprintf(logx.Stdout(), "  failed %s: %v\n", o.GUID, o.PingErr)
		}
	}
	return nil
}

func emitJSON(v any) error {
	enc := json.NewEncoder(logx.Stdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
