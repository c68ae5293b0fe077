package upstream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"
)

// TokenRefresher forces a credential refresh, invoked on a 403 before the
// request is retried.
type TokenRefresher interface {
	ForceRefresh(ctx context.Context) (string, error)
}

// RateLimitNotifier is told about a 429 response so it can extend its
// backoff window; satisfied by ratelimit.Limiter.
type RateLimitNotifier interface {
	On429Received()
}

// StatusError is returned once retries are exhausted against a non-2xx
// response whose status code was not otherwise classified.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream: status %d: %s", e.StatusCode, e.Body)
}

// ClassifiedError is returned once retries are exhausted against a
// transport-level failure, carrying the structured classification.
type ClassifiedError struct {
	Info ErrorInfo
}

func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("upstream: %s: %s", e.Info.Category, e.Info.UserMessage)
}

// Config controls retry and timeout behavior of a Client.
type Config struct {
	MaxRetries          int
	BaseBackoff         time.Duration // multiplied by 2^attempt
	ConnectTimeout      time.Duration
	RequestTimeout      time.Duration // envelope for a non-streaming call
	StreamReadTimeout   time.Duration // per-read deadline for a streaming call
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
}

func (c *Config) applyDefaults() {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = time.Second
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 30 * time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 300 * time.Second
	}
	if c.StreamReadTimeout <= 0 {
		c.StreamReadTimeout = 300 * time.Second
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = 100
	}
	if c.MaxIdleConnsPerHost <= 0 {
		c.MaxIdleConnsPerHost = 10
	}
	if c.IdleConnTimeout <= 0 {
		c.IdleConnTimeout = 90 * time.Second
	}
}

// Client performs HTTP calls to the upstream provider with layered retry:
// 403 forces a credential refresh and retries, 429 backs off and notifies
// the rate limiter, 5xx and classified-retryable transport errors back off
// and retry, everything else fails fast. It holds one connection-pooled
// client for non-streaming calls; streaming calls get a fresh client per
// request so a stalled stream doesn't poison the shared pool.
type Client struct {
	cfg       Config
	shared    *http.Client
	refresher TokenRefresher
	limiter   RateLimitNotifier
	log       *slog.Logger
}

// NewClient constructs a Client. refresher and limiter may be nil.
func NewClient(cfg Config, refresher TokenRefresher, limiter RateLimitNotifier, logger *slog.Logger) *Client {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	transport := &http.Transport{
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		ForceAttemptHTTP2:   true,
	}
	return &Client{
		cfg:       cfg,
		shared:    &http.Client{Transport: transport, Timeout: cfg.RequestTimeout},
		refresher: refresher,
		limiter:   limiter,
		log:       logger.With("component", "upstream.client"),
	}
}

// Close releases idle connections held by the shared client.
func (c *Client) Close() {
	if t, ok := c.shared.Transport.(*http.Transport); ok {
		t.CloseIdleConnections()
	}
}

// Do performs a non-streaming request against the shared connection-pooled
// client, applying the retry table and returning the first 2xx response.
// The caller owns closing resp.Body.
func (c *Client) Do(ctx context.Context, method, url string, body []byte, headers http.Header, authHeader string) (*http.Response, error) {
	return c.do(ctx, c.shared, method, url, body, headers, authHeader, false)
}

// DoStreaming performs a streaming request on a fresh, single-use client so
// a stalled or long-lived stream never ties up the shared pool. The
// per-read deadline is enforced by the caller as it consumes resp.Body.
func (c *Client) DoStreaming(ctx context.Context, method, url string, body []byte, headers http.Header, authHeader string) (*http.Response, error) {
	transport := &http.Transport{ForceAttemptHTTP2: true}
	client := &http.Client{Transport: transport}
	resp, err := c.do(ctx, client, method, url, body, headers, authHeader, true)
	if err != nil {
		transport.CloseIdleConnections()
	}
	return resp, err
}

func (c *Client) do(ctx context.Context, httpClient *http.Client, method, url string, body []byte, headers http.Header, authHeader string, streaming bool) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("upstream: build request: %w", err)
		}
		for k, vs := range headers {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		if authHeader != "" {
			req.Header.Set("Authorization", "Bearer "+authHeader)
		}
		if streaming {
			req.Header.Set("Connection", "close")
		}

		resp, err := httpClient.Do(req)
		if err != nil {
			lastErr = err
			info := Classify(err)
			if !info.Retryable || attempt == c.cfg.MaxRetries {
				if !info.Retryable {
					return nil, &ClassifiedError{Info: info}
				}
				break
			}
			c.log.Warn("upstream request failed, retrying",
				"attempt", attempt+1, "category", info.Category, "error", err)
			c.sleep(ctx, attempt)
			continue
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return resp, nil

		case resp.StatusCode == http.StatusForbidden:
			drain(resp)
			if attempt == c.cfg.MaxRetries {
				lastErr = &StatusError{StatusCode: resp.StatusCode}
				break
			}
			if c.refresher != nil {
				if newToken, rerr := c.refresher.ForceRefresh(ctx); rerr == nil {
					authHeader = newToken
				} else {
					c.log.Warn("force refresh after 403 failed", "error", rerr)
				}
			}
			c.log.Warn("upstream returned 403, retrying after refresh", "attempt", attempt+1)
			continue

		case resp.StatusCode == http.StatusTooManyRequests:
			bodyText := drain(resp)
			lastErr = &StatusError{StatusCode: resp.StatusCode, Body: bodyText}
			if c.limiter != nil {
				c.limiter.On429Received()
			}
			if attempt == c.cfg.MaxRetries {
				break
			}
			c.log.Warn("upstream rate limited, backing off", "attempt", attempt+1)
			c.sleep(ctx, attempt)
			continue

		case resp.StatusCode >= 500:
			bodyText := drain(resp)
			lastErr = &StatusError{StatusCode: resp.StatusCode, Body: bodyText}
			if attempt == c.cfg.MaxRetries {
				break
			}
			c.log.Warn("upstream server error, retrying", "status", resp.StatusCode, "attempt", attempt+1)
			c.sleep(ctx, attempt)
			continue

		default:
			bodyText := drain(resp)
			return nil, &StatusError{StatusCode: resp.StatusCode, Body: bodyText}
		}
		break
	}

	if classified, ok := lastErr.(*ClassifiedError); ok {
		return nil, classified
	}
	if statusErr, ok := lastErr.(*StatusError); ok {
		return nil, statusErr
	}
	if lastErr != nil {
		info := Classify(lastErr)
		return nil, &ClassifiedError{Info: info}
	}
	return nil, fmt.Errorf("upstream: retries exhausted with no recorded error")
}

func (c *Client) sleep(ctx context.Context, attempt int) {
	backoff := time.Duration(math.Pow(2, float64(attempt))) * c.cfg.BaseBackoff
	select {
	case <-ctx.Done():
	case <-time.After(backoff):
	}
}

func drain(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	resp.Body.Close()
	return string(body)
}

// ResponseStatus maps a terminal upstream failure to the HTTP status the
// gateway should return to its own caller: 502 for a non-streaming
// request, 504 for a streaming one, per the classified or status error's
// own hint where available.
func ResponseStatus(err error, streaming bool) int {
	if classified, ok := err.(*ClassifiedError); ok {
		return classified.Info.SuggestedStatus
	}
	if streaming {
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}
