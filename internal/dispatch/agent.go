package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// AgentConfig configures the agent-ping transport.
//
// When Endpoint is empty, each record's sessionRef is treated as the ping
// URL itself and the body carries only the message. With an Endpoint set,
// all pings go there and the body carries both fields.
type AgentConfig struct {
	Endpoint   string
	Credential string
	Timeout    time.Duration
}

// agentPinger posts the reminder to the agent session over HTTP. Any 2xx
// response acknowledges delivery; everything else is a failed ping.
type agentPinger struct {
	cfg  AgentConfig
	http *http.Client
}

const defaultAgentTimeout = 20 * time.Second

func NewAgentPinger(cfg AgentConfig) Pinger {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultAgentTimeout
	}
	return &agentPinger{cfg: cfg, http: &http.Client{Timeout: timeout}}
}

type pingBody struct {
	SessionRef string `json:"sessionRef,omitempty"`
	Message    string `json:"message"`
}

func (p *agentPinger) Ping(ctx context.Context, sessionRef, message string) error {
	target := strings.TrimSpace(p.cfg.Endpoint)
	body := pingBody{Message: message}
	if target == "" {
		target = sessionRef
	} else {
		body.SessionRef = sessionRef
	}
	if target == "" {
		return fmt.Errorf("agent ping: no session reference")
	}

	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("agent ping: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.Credential != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.Credential)
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return fmt.Errorf("agent ping: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("agent ping: status %d", resp.StatusCode)
	}
	return nil
}
