// Episodic - Personal Media Tracking and Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/episodic

package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/episodic/internal/logging"
	"github.com/tomtom215/episodic/internal/metrics"
)

// ErrCircuitOpen is returned when the circuit breaker rejects a request.
var ErrCircuitOpen = errors.New("remote: circuit open")

// errServerStatus marks a 5xx response inside the breaker so it counts as
// a failure. It never escapes Do.
var errServerStatus = errors.New("server error status")

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 16 << 20

// Request describes one API call relative to the client's base URL.
type Request struct {
	Method string
	Path   string
	Query  url.Values

	// Body is encoded as JSON when non-nil.
	Body interface{}
}

// Get returns a GET request for path.
func Get(path string, query url.Values) Request {
	return Request{Method: http.MethodGet, Path: path, Query: query}
}

// Post returns a POST request for path with a JSON body.
func Post(path string, body interface{}) Request {
	return Request{Method: http.MethodPost, Path: path, Body: body}
}

// ClientConfig configures a Client.
type ClientConfig struct {
	// Name labels logs and metrics ("tracker", "metadata").
	Name    string
	BaseURL string

	// Header is sent with every request.
	Header http.Header

	// Query is merged into every request's query string.
	Query url.Values

	Timeout    time.Duration
	MaxRetries int
	Breaker    BreakerConfig

	// HTTPClient overrides the default client; Timeout is ignored then.
	HTTPClient *http.Client

	// RetryBaseDelay is the first 429 backoff step. Defaults to 1s.
	RetryBaseDelay time.Duration
}

// Client executes requests against one remote API.
type Client struct {
	name       string
	baseURL    string
	header     http.Header
	query      url.Values
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
	cb         *gobreaker.CircuitBreaker[*Response]
}

// NewClient creates a Client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Name == "" {
		return nil, errors.New("remote: client name is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("remote: invalid base URL %q", cfg.BaseURL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = time.Second
	}

	return &Client{
		name:       cfg.Name,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		header:     cfg.Header.Clone(),
		query:      cfg.Query,
		httpClient: httpClient,
		maxRetries: cfg.MaxRetries,
		baseDelay:  cfg.RetryBaseDelay,
		cb:         newBreaker(cfg.Name, cfg.Breaker),
	}, nil
}

// Name returns the client name.
func (c *Client) Name() string {
	return c.name
}

// Do executes req. A non-nil error means no usable response was received
// (transport failure, open circuit, cancelled context or exhausted 429
// retries). Any HTTP status, including 5xx, is returned as a Response
// with Success set accordingly.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	resp, err := c.cb.Execute(func() (*Response, error) {
		resp, err := c.doWithRateLimit(ctx, req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 {
			return resp, errServerStatus
		}
		return resp, nil
	})

	switch {
	case err == nil:
		metrics.CircuitBreakerRequests.WithLabelValues(c.name, "success").Inc()
		return resp, nil
	case errors.Is(err, errServerStatus):
		metrics.CircuitBreakerRequests.WithLabelValues(c.name, "failure").Inc()
		return resp, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CircuitBreakerRequests.WithLabelValues(c.name, "rejected").Inc()
		logging.Ctx(ctx).Warn().Str("client", c.name).Err(err).Msg("[CIRCUIT BREAKER] Request rejected")
		return nil, fmt.Errorf("%w: %s: %v", ErrCircuitOpen, c.name, err)
	default:
		metrics.CircuitBreakerRequests.WithLabelValues(c.name, "failure").Inc()
		return nil, err
	}
}

func (c *Client) newRequest(ctx context.Context, req Request) (*http.Request, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader = http.NoBody
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+req.Path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	for k, vs := range c.header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	if len(c.query) > 0 || len(req.Query) > 0 {
		q := url.Values{}
		for k, vs := range c.query {
			q[k] = append([]string(nil), vs...)
		}
		for k, vs := range req.Query {
			q[k] = append(q[k], vs...)
		}
		httpReq.URL.RawQuery = q.Encode()
	}
	return httpReq, nil
}

// doWithRateLimit retries HTTP 429 with exponential backoff, preferring
// the server's Retry-After when present.
func (c *Client) doWithRateLimit(ctx context.Context, req Request) (*Response, error) {
	log := logging.Ctx(ctx)

	for attempt := 0; ; attempt++ {
		httpReq, err := c.newRequest(ctx, req)
		if err != nil {
			return nil, err
		}

		start := time.Now()
		httpResp, err := c.httpClient.Do(httpReq)
		if err != nil {
			metrics.RecordRemoteRequest(c.name, "error", time.Since(start))
			return nil, fmt.Errorf("%s %s: %w", httpReq.Method, req.Path, err)
		}
		body, readErr := io.ReadAll(io.LimitReader(httpResp.Body, maxBodyBytes))
		httpResp.Body.Close()
		metrics.RecordRemoteRequest(c.name, strconv.Itoa(httpResp.StatusCode), time.Since(start))
		if readErr != nil {
			return nil, fmt.Errorf("read response: %w", readErr)
		}

		if httpResp.StatusCode != http.StatusTooManyRequests {
			log.Debug().
				Str("client", c.name).
				Str("method", httpReq.Method).
				Str("path", req.Path).
				Int("status", httpResp.StatusCode).
				Msg("Remote request completed")
			return &Response{
				Success:    httpResp.StatusCode >= 200 && httpResp.StatusCode <= 299,
				StatusCode: httpResp.StatusCode,
				Header:     httpResp.Header,
				Body:       body,
			}, nil
		}

		if attempt >= c.maxRetries {
			return nil, fmt.Errorf("%s: rate limit exceeded after %d retries", c.name, c.maxRetries)
		}

		delay := c.baseDelay * (1 << attempt)
		if retryAfter := httpResp.Header.Get("Retry-After"); retryAfter != "" {
			if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds >= 0 {
				delay = time.Duration(seconds) * time.Second
			}
		}

		metrics.RemoteRetries.WithLabelValues(c.name).Inc()
		log.Warn().
			Str("client", c.name).
			Dur("retry_delay", delay).
			Int("attempt", attempt+1).
			Int("max_retries", c.maxRetries).
			Msg("Remote API rate limited (HTTP 429), retrying")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}
