package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"remindq/internal/reminder"
	logx "remindq/pkg/logx"
)

type fakePinger struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error // sessionRef → error
}

func (p *fakePinger) Ping(ctx context.Context, sessionRef, message string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, sessionRef)
	if err, ok := p.fail[sessionRef]; ok {
		return err
	}
	return nil
}

type fakeNotifier struct {
	mu    sync.Mutex
	texts []string
	cc    [][]string
	err   error
}

func (n *fakeNotifier) Notify(ctx context.Context, text string, ccTargets []string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.texts = append(n.texts, text)
	n.cc = append(n.cc, ccTargets)
	return n.err
}

func rec(guid, session string, cc ...string) reminder.Record {
	return reminder.Record{
		GUID:       guid,
		RemindAt:   time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC),
		Message:    "msg-" + guid,
		SessionRef: session,
		CCTargets:  cc,
	}
}

func TestDispatchSuccessNotifies(t *testing.T) {
	t.Parallel()
	pinger := &fakePinger{}
	notifier := &fakeNotifier{}
	d := New(pinger, notifier, Options{DisplayZone: "UTC"}, logx.Nop())

	out := d.Dispatch(context.Background(), rec("g1", "sess-1", "@ana"))

	if !out.Delivered || out.PingErr != nil || out.NotifyErr != nil {
		t.Fatalf("outcome = %+v, want delivered", out)
	}
	if len(notifier.texts) != 1 {
		t.Fatalf("notifications = %d, want 1", len(notifier.texts))
	}
	if !strings.Contains(notifier.texts[0], "msg-g1") {
		t.Fatalf("notification text %q missing message", notifier.texts[0])
	}
	if !strings.Contains(notifier.texts[0], "@ana") {
		t.Fatalf("notification text %q missing cc tag", notifier.texts[0])
	}
}

func TestDispatchPingFailureSkipsNotification(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	pinger := &fakePinger{fail: map[string]error{"sess-1": boom}}
	notifier := &fakeNotifier{}
	d := New(pinger, notifier, Options{}, logx.Nop())

	out := d.Dispatch(context.Background(), rec("g1", "sess-1"))

	if out.Delivered {
		t.Fatal("outcome delivered despite ping failure")
	}
	if !errors.Is(out.PingErr, boom) {
		t.Fatalf("PingErr = %v, want boom", out.PingErr)
	}
	if len(notifier.texts) != 0 {
		t.Fatal("notification sent despite ping failure")
	}
}

func TestDispatchNotificationFailureStillDelivered(t *testing.T) {
	t.Parallel()
	pinger := &fakePinger{}
	notifier := &fakeNotifier{err: errors.New("channel down")}
	d := New(pinger, notifier, Options{}, logx.Nop())

	out := d.Dispatch(context.Background(), rec("g1", "sess-1"))

	if !out.Delivered {
		t.Fatal("notification failure must not undo delivery")
	}
	if out.NotifyErr == nil {
		t.Fatal("NotifyErr not recorded")
	}
}

func TestDispatchAllOrderAndDeliveredGUIDs(t *testing.T) {
	t.Parallel()
	pinger := &fakePinger{fail: map[string]error{"sess-b": errors.New("down")}}
	d := New(pinger, nil, Options{}, logx.Nop())

	due := reminder.List{rec("a", "sess-a"), rec("b", "sess-b"), rec("c", "sess-c")}
	outs := d.DispatchAll(context.Background(), due)

	if len(outs) != 3 {
		t.Fatalf("outcomes = %d, want 3", len(outs))
	}
	pinger.mu.Lock()
	gotOrder := strings.Join(pinger.calls, ",")
	pinger.mu.Unlock()
	if gotOrder != "sess-a,sess-b,sess-c" {
		t.Fatalf("ping order = %s, want insertion order", gotOrder)
	}

	done := DeliveredGUIDs(outs)
	if len(done) != 2 {
		t.Fatalf("delivered = %d, want 2", len(done))
	}
	if _, ok := done["b"]; ok {
		t.Fatal("failed record marked delivered")
	}
}

func TestAgentPingerPostsToSessionRef(t *testing.T) {
	t.Parallel()
	var gotAuth string
	var gotBody pingBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewAgentPinger(AgentConfig{Credential: "cred-1"})
	if err := p.Ping(context.Background(), srv.URL+"/session/42", "wake up"); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if gotAuth != "Bearer cred-1" {
		t.Fatalf("auth = %q", gotAuth)
	}
	if gotBody.Message != "wake up" {
		t.Fatalf("body = %+v", gotBody)
	}
}

func TestAgentPingerEndpointCarriesSessionRef(t *testing.T) {
	t.Parallel()
	var gotBody pingBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &gotBody)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	p := NewAgentPinger(AgentConfig{Endpoint: srv.URL + "/ping"})
	if err := p.Ping(context.Background(), "session-ref-9", "hello"); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if gotBody.SessionRef != "session-ref-9" || gotBody.Message != "hello" {
		t.Fatalf("body = %+v", gotBody)
	}
}

func TestAgentPingerNon2xxFails(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := NewAgentPinger(AgentConfig{})
	if err := p.Ping(context.Background(), srv.URL, "m"); err == nil {
		t.Fatal("expected error on 502")
	}
}
