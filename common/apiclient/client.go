package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"takahome/common/auth"
	commonlog "takahome/common/log"
)

const (
	defaultHTTPTimeout      = 30 * time.Second
	defaultFailThreshold    = 3
	defaultEndpointCooldown = 10 * time.Second
)

type Options struct {
	Timeout          time.Duration
	FailThreshold    int
	EndpointCooldown time.Duration
	HTTPClient       *http.Client
}

// Client talks to the marketplace REST API. Idempotent reads fail over
// across the configured endpoints; an endpoint that keeps failing is put on
// cooldown.
type Client struct {
	endpoints []string
	http      *http.Client
	tokens    auth.TokenProvider
	next      uint32

	failThreshold    int
	endpointCooldown time.Duration

	mu         sync.Mutex
	failureCnt map[string]int
	cooldownTo map[string]time.Time
}

func New(tokens auth.TokenProvider, opts Options, endpoints ...string) *Client {
	normalized := normalizeEndpoints(endpoints)
	if opts.Timeout <= 0 {
		opts.Timeout = defaultHTTPTimeout
	}
	if opts.FailThreshold <= 0 {
		opts.FailThreshold = defaultFailThreshold
	}
	if opts.EndpointCooldown <= 0 {
		opts.EndpointCooldown = defaultEndpointCooldown
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	return &Client{
		endpoints:        normalized,
		http:             httpClient,
		tokens:           tokens,
		failThreshold:    opts.FailThreshold,
		endpointCooldown: opts.EndpointCooldown,
		failureCnt:       make(map[string]int, len(normalized)),
		cooldownTo:       make(map[string]time.Time, len(normalized)),
	}
}

// BaseURL returns the first configured endpoint.
func (c *Client) BaseURL() string {
	if len(c.endpoints) == 0 {
		return ""
	}
	return c.endpoints[0]
}

func Get[T any](ctx context.Context, c *Client, path string, query url.Values) (Envelope[T], error) {
	status, raw, err := c.do(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return Envelope[T]{}, err
	}
	return checkEnvelope[T](status, raw)
}

func Post[T any](ctx context.Context, c *Client, path string, payload any) (Envelope[T], error) {
	status, raw, err := c.do(ctx, http.MethodPost, path, nil, payload)
	if err != nil {
		return Envelope[T]{}, err
	}
	return checkEnvelope[T](status, raw)
}

func Patch[T any](ctx context.Context, c *Client, path string, payload any) (Envelope[T], error) {
	status, raw, err := c.do(ctx, http.MethodPatch, path, nil, payload)
	if err != nil {
		return Envelope[T]{}, err
	}
	return checkEnvelope[T](status, raw)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload any) (int, []byte, error) {
	if len(c.endpoints) == 0 {
		return 0, nil, &Error{Message: "api endpoint is not configured", Code: CodeUnknown}
	}
	var body []byte
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = b
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	token := c.bearerToken(ctx)

	attempts := 1
	if method == http.MethodGet {
		attempts = len(c.endpoints)
	}
	start := int(atomic.AddUint32(&c.next, 1)-1) % len(c.endpoints)
	var lastErr error
	for offset := 0; offset < attempts; offset++ {
		endpoint := c.endpoints[(start+offset)%len(c.endpoints)]
		if attempts > 1 && c.isCoolingDown(endpoint, time.Now()) {
			continue
		}
		startedAt := time.Now()
		status, raw, err := c.send(ctx, method, endpoint+path, token, body)
		if err != nil {
			commonlog.Warnf("event=api_request action=%s status=failed endpoint=%s path=%s latency_ms=%d error=%v", method, endpoint, path, time.Since(startedAt).Milliseconds(), err)
			lastErr = &Error{Message: "cannot reach server", Code: CodeNetwork, Err: err}
			c.onFailure(endpoint, time.Now())
			if ctx.Err() != nil {
				return 0, nil, lastErr
			}
			continue
		}
		commonlog.Debugf("event=api_request action=%s status=%d endpoint=%s path=%s latency_ms=%d", method, status, endpoint, path, time.Since(startedAt).Milliseconds())
		if status >= 500 {
			lastErr = errorFromResponse(status, raw)
			c.onFailure(endpoint, time.Now())
			if offset+1 < attempts {
				continue
			}
			return status, raw, lastErr
		}
		c.onSuccess(endpoint)
		if status == http.StatusUnauthorized {
			c.invalidateToken(ctx)
		}
		if status >= 300 {
			return status, raw, errorFromResponse(status, raw)
		}
		return status, raw, nil
	}
	if lastErr == nil {
		lastErr = &Error{Message: "all api endpoints are cooling down", Code: CodeNetwork}
	}
	return 0, nil, lastErr
}

func (c *Client) send(ctx context.Context, method, target, token string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, raw, nil
}

func (c *Client) bearerToken(ctx context.Context) string {
	if c.tokens == nil {
		return ""
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		if !errors.Is(err, auth.ErrNoToken) {
			commonlog.Warnf("event=api_token action=read status=failed error=%v", err)
		}
		return ""
	}
	return token
}

func (c *Client) invalidateToken(ctx context.Context) {
	inv, ok := c.tokens.(auth.TokenInvalidator)
	if !ok {
		return
	}
	if err := inv.Invalidate(ctx); err != nil {
		commonlog.Warnf("event=api_token action=invalidate status=failed error=%v", err)
		return
	}
	commonlog.Infof("event=api_token action=invalidate status=ok reason=unauthorized")
}

func normalizeEndpoints(endpoints []string) []string {
	result := make([]string, 0, len(endpoints))
	seen := map[string]struct{}{}
	for _, endpoint := range endpoints {
		normalized := strings.TrimRight(strings.TrimSpace(endpoint), "/")
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		result = append(result, normalized)
	}
	return result
}

func (c *Client) isCoolingDown(endpoint string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	until, ok := c.cooldownTo[endpoint]
	if !ok {
		return false
	}
	if now.After(until) {
		delete(c.cooldownTo, endpoint)
		return false
	}
	return true
}

func (c *Client) onFailure(endpoint string, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	count := c.failureCnt[endpoint] + 1
	c.failureCnt[endpoint] = count
	if count >= c.failThreshold {
		c.cooldownTo[endpoint] = now.Add(c.endpointCooldown)
		c.failureCnt[endpoint] = 0
	}
}

func (c *Client) onSuccess(endpoint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failureCnt[endpoint] = 0
	delete(c.cooldownTo, endpoint)
}
