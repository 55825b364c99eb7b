// Package backend is the typed HTTP client for the knowledge base API.
// Every call runs through monitor.Execute so that failures feed the
// connectivity state.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"kbdash/internal/apperrors"
	"kbdash/internal/config"
	"kbdash/internal/logger"
	"kbdash/internal/monitor"
)

// TokenSource yields the current bearer token, or "" when logged out.
type TokenSource interface {
	Token() string
}

type authMode int

const (
	authNone authMode = iota
	authOptional
	authRequired
)

type request struct {
	method      string
	path        string
	auth        authMode
	token       string
	body        any
	rawBody     func() (io.Reader, string)
	description string
}

// Client talks to the backend on behalf of the logged in user.
type Client struct {
	baseURL string
	http    *http.Client
	monitor *monitor.Monitor
	tokens  TokenSource
	log     *logger.Logger

	fetch    monitor.Policy
	mutation monitor.Policy
	query    monitor.Policy
	upload   monitor.Policy
}

// New builds a client for cfg.Backend.BaseURL.
func New(cfg config.Config, mon *monitor.Monitor, tokens TokenSource, log *logger.Logger) *Client {
	if log == nil {
		log = logger.NewNop()
	}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.Backend.BaseURL, "/"),
		http:     &http.Client{Transport: transport},
		monitor:  mon,
		tokens:   tokens,
		log:      log.With("component", "backend"),
		fetch:    monitor.DataFetchPolicy(cfg.Retry),
		mutation: monitor.SingleAttempt(cfg.Requests.MutationTimeout()),
		query:    monitor.SingleAttempt(cfg.Requests.QueryTimeout()),
		upload:   monitor.SingleAttempt(cfg.Requests.UploadTimeout()),
	}
}

// BaseURL returns the backend root the client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func run[T any](ctx context.Context, c *Client, policy monitor.Policy, req request) (T, error) {
	return monitor.Execute(ctx, c.monitor, policy, func(ctx context.Context) (T, error) {
		var out T
		err := c.attempt(ctx, req, &out)
		return out, err
	})
}

func exec(ctx context.Context, c *Client, policy monitor.Policy, req request) error {
	_, err := monitor.Execute(ctx, c.monitor, policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.attempt(ctx, req, nil)
	})
	return err
}

func (c *Client) attempt(ctx context.Context, r request, out any) error {
	var (
		body        io.Reader
		contentType string
	)
	switch {
	case r.rawBody != nil:
		body, contentType = r.rawBody()
	case r.body != nil:
		payload, err := json.Marshal(r.body)
		if err != nil {
			return apperrors.NewInternalError("encode request body", err)
		}
		body = bytes.NewReader(payload)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, body)
	if err != nil {
		if closer, ok := body.(io.Closer); ok {
			_ = closer.Close()
		}
		return apperrors.NewInternalError("build request", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	// Read per attempt so a logout between retries is honoured.
	token := r.token
	if token == "" && r.auth != authNone && c.tokens != nil {
		token = c.tokens.Token()
	}
	if token == "" && r.auth == authRequired {
		return apperrors.NewAuthorizationError("not logged in")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return classifyTransport(r, err)
	}
	defer resp.Body.Close()

	c.log.Debug("backend call", "method", r.method, "path", r.path, "status", resp.StatusCode,
		"latency", time.Since(started), "request_id", requestID)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return apperrors.NewUpstreamError(resp.StatusCode, errorDetail(raw))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return classifyTransport(r, ctxErr)
		}
		return apperrors.NewMalformedError(fmt.Sprintf("decode %s response", r.describe()), err)
	}
	return nil
}

func (r request) describe() string {
	if r.description != "" {
		return r.description
	}
	return r.method + " " + r.path
}

func classifyTransport(r request, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return apperrors.NewTimeoutError(fmt.Sprintf("%s timed out", r.describe()), err)
	}
	return apperrors.NewNetworkError(fmt.Sprintf("%s failed: backend unreachable", r.describe()), err)
}

// errorDetail extracts a user facing message from an error body.
// FastAPI style {"detail": "..."} and {"detail": [{"msg": "..."}]} are understood.
func errorDetail(raw []byte) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	var envelope struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
		Error   string          `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		text := string(raw)
		if len(text) > 200 {
			text = text[:200]
		}
		if strings.HasPrefix(text, "<") {
			return ""
		}
		return text
	}
	if len(envelope.Detail) > 0 {
		var detail string
		if err := json.Unmarshal(envelope.Detail, &detail); err == nil {
			return detail
		}
		var items []struct {
			Msg string `json:"msg"`
		}
		if err := json.Unmarshal(envelope.Detail, &items); err == nil {
			msgs := make([]string, 0, len(items))
			for _, item := range items {
				if item.Msg != "" {
					msgs = append(msgs, item.Msg)
				}
			}
			return strings.Join(msgs, "; ")
		}
	}
	if envelope.Message != "" {
		return envelope.Message
	}
	return envelope.Error
}
