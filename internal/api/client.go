// Package api is a typed client for the print library REST backend.
//
// Every method takes a context; cancelling it aborts the HTTP exchange and
// the method returns an *Error of KindCancelled. Supersession of calls is
// not handled here; see package request.
package api

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
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultTimeout bounds every JSON call. Downloads are bounded only by
	// their context.
	DefaultTimeout = 30 * time.Second

	maxErrorBody = 64 << 10
	maxImageSize = 32 << 20
)

type Client struct {
	base    *url.URL
	http    *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the transport client. Its Timeout should be zero;
// JSON calls are bounded by WithTimeout instead so downloads can run long.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New returns a client for the backend at baseURL. An empty baseURL is an
// error; callers resolve the default origin from configuration.
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("api: base URL is required")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("api: parse base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("api: base URL %q must be http or https", baseURL)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	u.RawQuery = ""
	u.Fragment = ""

	c := &Client{
		base:    u,
		http:    &http.Client{},
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the backend origin the client talks to.
func (c *Client) BaseURL() string { return c.base.String() }

// endpoint joins the API path elements onto the base URL. Elements are
// unescaped; the URL encoder escapes them.
func (c *Client) endpoint(elems ...string) *url.URL {
	u := *c.base
	parts := append([]string{c.base.Path}, elems...)
	u.Path = path.Join(parts...)
	if !strings.HasPrefix(u.Path, "/") {
		u.Path = "/" + u.Path
	}
	return &u
}

// query builds a query string that keeps insertion order, so requests are
// stable and readable in logs. Empty values are skipped.
type query []string

func (q query) add(key, value string) query {
	if value == "" {
		return q
	}
	return append(q, url.QueryEscape(key)+"="+url.QueryEscape(value))
}

func (q query) addInt(key string, value int) query {
	if value <= 0 {
		return q
	}
	return q.add(key, fmt.Sprint(value))
}

func (q query) encode() string { return strings.Join(q, "&") }

func (c *Client) getJSON(ctx context.Context, u *url.URL, out any) error {
	return c.sendJSON(ctx, http.MethodGet, u, nil, out)
}

func (c *Client) sendJSON(ctx context.Context, method string, u *url.URL, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("api: encode %s %s: %w", method, u.Path, err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("api: build %s %s: %w", method, u.Path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctxErr := contextError(req.Context()); ctxErr != nil {
			return ctxErr
		}
		return &Error{Kind: KindDecode, Err: fmt.Errorf("decode %s %s: %w", method, u.Path, err)}
	}
	return nil
}

// do sends req and maps every failure onto the error taxonomy. On success
// the caller owns resp.Body.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	id := uuid.NewString()
	req.Header.Set("X-Request-ID", id)
	start := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := contextError(req.Context()); ctxErr != nil {
			if ctxErr.Kind == KindCancelled {
				c.logger.Debug("request cancelled", "method", req.Method, "path", req.URL.Path, "request_id", id)
			} else {
				c.logger.Warn("request timed out", "method", req.Method, "path", req.URL.Path, "request_id", id)
			}
			return nil, ctxErr
		}
		c.logger.Warn("network error", "method", req.Method, "path", req.URL.Path, "request_id", id, "err", err)
		return nil, &Error{Kind: KindNetwork, Err: err}
	}

	c.logger.Debug("request",
		"method", req.Method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
		"request_id", id,
	)

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := serverError(resp.StatusCode, body)
		if resp.StatusCode >= 500 {
			c.logger.Error("server error", "method", req.Method, "path", req.URL.Path, "status", resp.StatusCode, "request_id", id, "message", apiErr.Message)
		}
		return nil, apiErr
	}
	return resp, nil
}

// contextError converts a finished context into the matching *Error, or
// nil if the context is still live.
func contextError(ctx context.Context) *Error {
	switch err := ctx.Err(); {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		return &Error{Kind: KindCancelled, Err: context.Canceled}
	default:
		return &Error{Kind: KindNetwork, Err: err}
	}
}
