// Package remote implements the HTTP client for a capture engine exposing
// the bettercap-compatible REST API: the session resource, the event log,
// command execution and remote file access. Every request carries the Basic
// auth header derived from the credential store; a 401 is surfaced as
// ErrUnauthorized so callers can distinguish auth failures from transient
// ones.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// maxBodySize bounds response reads; snapshots of busy engines run to a few
// MB, nowhere near this.
const maxBodySize = 32 * 1024 * 1024

// ErrUnauthorized is returned when the engine rejects the request with 401.
var ErrUnauthorized = errors.New("remote: unauthorized")

// IsUnauthorized reports whether err classifies as an authentication failure.
func IsUnauthorized(err error) bool { return errors.Is(err, ErrUnauthorized) }

// AuthSource supplies the Authorization header value for outgoing requests.
// ok is false when no credential material is available; the request is then
// sent without the header and the engine decides.
type AuthSource interface {
	Header() (value string, ok bool)
}

// Client talks to one engine instance.
type Client struct {
	base   func() string
	http   *http.Client
	auth   AuthSource
	logger *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying *http.Client.
func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option { return func(c *Client) { c.logger = l } }

// WithBaseSource re-resolves the API base before every request, so a target
// change in the settings store takes effect without rebuilding the client.
func WithBaseSource(fn func() string) Option { return func(c *Client) { c.base = fn } }

// New creates a Client for the API at base, e.g. "http://127.0.0.1:8081/api".
func New(base string, auth AuthSource, opts ...Option) *Client {
	c := &Client{
		base:   func() string { return base },
		http:   &http.Client{Timeout: 10 * time.Second},
		auth:   auth,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Base returns the current API base URL.
func (c *Client) Base() string { return c.base() }

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	u := c.base() + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("remote: new request: %w", err)
	}
	if h, ok := c.auth.Header(); ok {
		req.Header.Set("Authorization", h)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// do runs the request and returns the body for 2xx responses. 401 maps to
// ErrUnauthorized; other non-2xx statuses become plain errors carrying the
// status and a body excerpt.
func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("remote: read body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, ErrUnauthorized)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("remote: %s %s: http %d: %s",
			req.Method, req.URL.Path, resp.StatusCode, excerpt(body))
	}
	return body, nil
}

// Session fetches the session snapshot. from >= 0 asks a replaying engine to
// seek to that frame first. The returned duration is the round-trip latency.
func (c *Client) Session(ctx context.Context, from int) (*Snapshot, time.Duration, error) {
	q := url.Values{}
	if from >= 0 {
		q.Set("from", strconv.Itoa(from))
	}
	req, err := c.newRequest(ctx, http.MethodGet, "/session", q, nil)
	if err != nil {
		return nil, 0, err
	}

	start := time.Now()
	body, err := c.do(req)
	elapsed := time.Since(start)
	if err != nil {
		return nil, elapsed, err
	}

	var snap Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return nil, elapsed, fmt.Errorf("remote: decode session: %w", err)
	}
	snap.Raw = body

	c.logger.Debug("session fetched",
		"latency", elapsed, "modules", len(snap.Modules), "bytes", len(body))
	return &snap, elapsed, nil
}

// Events fetches the event log, bounded to the most recent n records when
// n > 0. from >= 0 asks a replaying engine to seek to that frame first.
func (c *Client) Events(ctx context.Context, n, from int) ([]Event, error) {
	q := url.Values{}
	if n > 0 {
		q.Set("n", strconv.Itoa(n))
	}
	if from >= 0 {
		q.Set("from", strconv.Itoa(from))
	}
	req, err := c.newRequest(ctx, http.MethodGet, "/events", q, nil)
	if err != nil {
		return nil, err
	}
	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var events []Event
	if err := json.Unmarshal(body, &events); err != nil {
		return nil, fmt.Errorf("remote: decode events: %w", err)
	}
	return events, nil
}

// ClearEvents asks the engine to empty its event log.
func (c *Client) ClearEvents(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodDelete, "/events", nil, nil)
	if err != nil {
		return err
	}
	_, err = c.do(req)
	return err
}

// Command serializes a command string to the engine. The engine answers
// errors with a 400 and the message in the body, which do() turns into an
// error already, so a nil return means the command was accepted.
func (c *Client) Command(ctx context.Context, cmd string) error {
	payload, err := json.Marshal(map[string]string{"cmd": cmd})
	if err != nil {
		return fmt.Errorf("remote: marshal command: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/session", nil, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := c.do(req)
	if err != nil {
		return err
	}

	var res CommandResult
	if err := json.Unmarshal(body, &res); err != nil {
		return fmt.Errorf("remote: decode command result: %w", err)
	}
	if !res.Success {
		return fmt.Errorf("remote: command %q failed: %s", cmd, res.Message)
	}
	c.logger.Debug("command accepted", "cmd", cmd)
	return nil
}

// ReadFile fetches the raw contents of a file on the engine host.
func (c *Client) ReadFile(ctx context.Context, name string) ([]byte, error) {
	q := url.Values{"name": {name}}
	req, err := c.newRequest(ctx, http.MethodGet, "/file", q, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

// WriteFile replaces the contents of a file on the engine host.
func (c *Client) WriteFile(ctx context.Context, name string, data []byte) error {
	q := url.Values{"name": {name}}
	req, err := c.newRequest(ctx, http.MethodPost, "/file", q, bytes.NewReader(data))
	if err != nil {
		return err
	}
	_, err = c.do(req)
	return err
}

func excerpt(body []byte) string {
	const max = 200
	s := string(bytes.TrimSpace(body))
	if len(s) > max {
		s = s[:max] + "..."
	}
	return s
}
