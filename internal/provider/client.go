// Package provider is the HTTP transport to the remote generation API.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/georgeshao/genstudio/internal/config"
	"github.com/georgeshao/genstudio/internal/extract"
)

var (
	ErrMissingCredential = errors.New("missing API key")
	ErrMalformedResponse = errors.New("malformed response")
)

// APIError is a non-2xx reply, or a 2xx reply whose body carries an error.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("provider returned status %d", e.StatusCode)
	}
	return e.Message
}

type Config struct {
	Timeout           time.Duration
	RequestsPerSecond float64
}

type Client struct {
	httpClient *http.Client
	limit      rate.Limit
	burst      int
	logger     *slog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limit:      rate.Limit(rps),
		burst:      int(math.Ceil(rps)),
		logger:     logger,
		limiters:   make(map[string]*rate.Limiter),
	}
}

// PostJSON sends payload to path under the credential's base URL. The parsed
// body is returned alongside an *APIError so callers can still inspect it.
func (c *Client) PostJSON(ctx context.Context, cred config.Credential, path string, payload any) (extract.Node, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return extract.Node{}, fmt.Errorf("failed to marshal request: %w", err)
	}
	return c.send(ctx, cred, http.MethodPost, path, body)
}

func (c *Client) GetJSON(ctx context.Context, cred config.Credential, path string) (extract.Node, error) {
	return c.send(ctx, cred, http.MethodGet, path, nil)
}

func (c *Client) send(ctx context.Context, cred config.Credential, method, path string, body []byte) (extract.Node, error) {
	if !cred.Valid() {
		return extract.Node{}, ErrMissingCredential
	}

	if err := c.limiter(cred.APIKey).Wait(ctx); err != nil {
		return extract.Node{}, err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, joinURL(cred.BaseURL, path), reader)
	if err != nil {
		return extract.Node{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cred.APIKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return extract.Node{}, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return extract.Node{}, fmt.Errorf("failed to read response body: %w", err)
	}

	node, parseErr := extract.Parse(raw)
	ok := resp.StatusCode >= 200 && resp.StatusCode < 300

	if parseErr != nil {
		if !ok {
			return extract.Node{}, &APIError{StatusCode: resp.StatusCode, Message: snippet(raw)}
		}
		return extract.Node{}, fmt.Errorf("%w: %v", ErrMalformedResponse, parseErr)
	}

	if msg, failed := ErrorMessage(node); failed {
		return node, &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	if !ok {
		return node, &APIError{StatusCode: resp.StatusCode}
	}

	c.logger.Debug("provider call", "method", method, "path", path, "status", resp.StatusCode)
	return node, nil
}

func (c *Client) limiter(key string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	if l, ok := c.limiters[key]; ok {
		return l
	}
	l := rate.NewLimiter(c.limit, c.burst)
	c.limiters[key] = l
	return l
}

// ErrorMessage reports the body's "error" member: its message when it is an
// object carrying one, the serialized member otherwise.
func ErrorMessage(body extract.Node) (string, bool) {
	e, ok := body.Get("error")
	if !ok || !e.Truthy() {
		return "", false
	}
	if msg := e.Lookup("message").Str(); msg != "" {
		return msg, true
	}
	if s := e.Str(); s != "" {
		return s, true
	}
	return e.String(), true
}

func joinURL(base, path string) string {
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(path, "/")
}

func snippet(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
