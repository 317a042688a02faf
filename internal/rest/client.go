// Package rest is the HTTP client of the chat backend: contacts, history,
// wallpapers, uploads, user search and the HTTP fallbacks for edits and
// deletions.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// APIError is a non-2xx response.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	msg := e.Body
	if m := gjson.Get(e.Body, "message"); m.Type == gjson.String {
		msg = m.Str
	} else if m := gjson.Get(e.Body, "error"); m.Type == gjson.String {
		msg = m.Str
	}
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return fmt.Sprintf("api error (status %d): %s", e.Status, msg)
}

// NotFound reports whether the server answered 404.
func (e *APIError) NotFound() bool { return e.Status == http.StatusNotFound }

// Client talks to the REST API of one user.
type Client struct {
	baseURL    string
	token      string
	self       string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a client. self is the local user id, used to normalize
// history messages.
func NewClient(baseURL, token, self string, timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		self:       self,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.Named("rest"),
	}
}

// Self returns the local user id.
func (c *Client) Self() string { return c.self }

func (c *Client) endpoint(path string, q url.Values) string {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

// do sends a request and returns the body of a 2xx response.
func (c *Client) do(ctx context.Context, method, path string, q url.Values, body io.Reader, contentType string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, q), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", path, err)
	}
	c.logger.Debug("request done",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)),
	)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{Status: resp.StatusCode, Body: string(raw)}
	}
	return raw, nil
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values) (gjson.Result, error) {
	raw, err := c.do(ctx, http.MethodGet, path, q, nil, "")
	if err != nil {
		return gjson.Result{}, err
	}
	if len(raw) > 0 && !gjson.ValidBytes(raw) {
		return gjson.Result{}, fmt.Errorf("GET %s: invalid json response", path)
	}
	return gjson.ParseBytes(raw), nil
}

func (c *Client) sendJSON(ctx context.Context, method, path string, v any) (gjson.Result, error) {
	var body io.Reader
	if v != nil {
		b, err := json.Marshal(v)
		if err != nil {
			return gjson.Result{}, fmt.Errorf("encode %s body: %w", path, err)
		}
		body = bytes.NewReader(b)
	}
	raw, err := c.do(ctx, method, path, nil, body, "application/json")
	if err != nil {
		return gjson.Result{}, err
	}
	return gjson.ParseBytes(raw), nil
}

// unwrap finds the payload in the envelopes different endpoints use:
// {"data": {"<key>": ...}}, {"data": ...}, {"<key>": ...} or the bare value.
func unwrap(r gjson.Result, keys ...string) gjson.Result {
	for _, k := range keys {
		if v := r.Get("data." + k); v.Exists() && v.Type != gjson.Null {
			return v
		}
	}
	for _, k := range keys {
		if v := r.Get(k); v.Exists() && v.Type != gjson.Null {
			return v
		}
	}
	if v := r.Get("data"); v.Exists() && v.Type != gjson.Null {
		return v
	}
	return r
}

// Ping checks that the API is reachable and the token accepted.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/api/health", nil, nil, "")
	return err
}
