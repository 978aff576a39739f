package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"remindq/internal/reminder"
	logx "remindq/pkg/logx"
)

// blobStore talks to a named-blob HTTP service.
//
// Protocol:
//   - GET  <base>/<name>  → 200 with the JSON array, 404 when no blob exists
//   - PUT  <base>/<name>  → 2xx, full overwrite of the prior version
//
// Authentication is a caller-supplied bearer token. Retention/expiry of the
// blob is the service's business, not ours.
type blobStore struct {
	url   string
	token string
	http  *http.Client
	log   logx.Logger
}

const defaultBlobTimeout = 15 * time.Second

func openBlob(cfg Config, log logx.Logger) (Store, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("store.base_url is required for blob driver")
	}
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		return nil, errors.New("store.name is required for blob driver")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("store.base_url: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultBlobTimeout
	}
	return &blobStore{
		url:   base + "/" + url.PathEscape(name),
		token: cfg.Token,
		http:  &http.Client{Timeout: timeout},
		log:   log,
	}, nil
}

func (s *blobStore) Load(ctx context.Context) (reminder.List, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	s.auth(req)

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: get: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		// Bootstrap: first invocation against a fresh name.
		s.log.Debug("blob missing, starting empty", logx.String("url", s.url))
		return reminder.List{}, nil
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
		if err != nil {
			return nil, fmt.Errorf("%w: read: %v", ErrUnavailable, err)
		}
		return reminder.Decode(body)
	default:
		return nil, fmt.Errorf("%w: get: status %d", ErrUnavailable, resp.StatusCode)
	}
}

func (s *blobStore) Save(ctx context.Context, l reminder.List) error {
	body, err := reminder.Encode(l)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	s.auth(req)

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: put: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: put: status %d", ErrUnavailable, resp.StatusCode)
	}
	s.log.Debug("blob saved", logx.String("url", s.url), logx.Int("records", len(l)))
	return nil
}

func (s *blobStore) auth(req *http.Request) {
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
}

func (s *blobStore) Close() error { return nil }
