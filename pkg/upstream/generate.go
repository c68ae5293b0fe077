package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"mercator-hq/relay/pkg/accounts/auth"
	"mercator-hq/relay/pkg/eventstream"
	"mercator-hq/relay/pkg/unified"
)

// ErrFirstTokenTimeout is returned when no byte of the response body arrived
// within GenerateConfig.FirstTokenTimeout of the request being sent.
var ErrFirstTokenTimeout = errors.New("upstream: first token timeout")

// ErrStreamingReadTimeout is returned when the stream went idle for longer
// than GenerateConfig.StreamingReadTimeout after having already produced at
// least one byte.
var ErrStreamingReadTimeout = errors.New("upstream: streaming read timeout")

// GenerateConfig controls the read-timeout behavior of a Generate call.
// net/http gives a response body no native per-read deadline once the
// connection is established, so Generate enforces one itself by cancelling
// the request's own context from a watchdog timer reset on every chunk
// received; resp.Body.Read then unblocks with the context's error.
type GenerateConfig struct {
	FirstTokenTimeout    time.Duration
	FirstTokenMaxRetries int
	StreamingReadTimeout time.Duration
}

func (c *GenerateConfig) applyDefaults() {
	if c.FirstTokenTimeout <= 0 {
		c.FirstTokenTimeout = 30 * time.Second
	}
	if c.FirstTokenMaxRetries <= 0 {
		c.FirstTokenMaxRetries = 1
	}
	if c.StreamingReadTimeout <= 0 {
		c.StreamingReadTimeout = 60 * time.Second
	}
}

// Generate posts payload to the account's generateAssistantResponse
// endpoint and feeds the decoded binary-framed event stream to onEvent as
// it arrives. It returns the tool calls finalized over the course of the
// stream once the body is exhausted. A first-token timeout repeats the
// whole request on a fresh connection, for at most cfg.FirstTokenMaxRetries
// attempts in all; a read timeout after the first byte does
// not retry, since partial output has already been emitted to onEvent.
func Generate(ctx context.Context, client *Client, manager *auth.Manager, payload *unified.Payload, cfg GenerateConfig, onEvent func(eventstream.Event)) ([]*eventstream.ToolCall, error) {
	cfg.applyDefaults()

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("upstream: encode generateAssistantResponse payload: %w", err)
	}
	url := manager.APIHost() + "/generateAssistantResponse"

	var lastErr error
	for attempt := 0; attempt < cfg.FirstTokenMaxRetries; attempt++ {
		toolCalls, err := generateOnce(ctx, client, manager, url, body, cfg, onEvent)
		if err == nil {
			return toolCalls, nil
		}
		lastErr = err
		if !errors.Is(err, ErrFirstTokenTimeout) {
			return nil, err
		}
	}
	return nil, lastErr
}

func generateOnce(ctx context.Context, client *Client, manager *auth.Manager, url string, body []byte, cfg GenerateConfig, onEvent func(eventstream.Event)) ([]*eventstream.ToolCall, error) {
	token, err := manager.GetAccessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("upstream: get access token: %w", err)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	headers := http.Header{
		"Content-Type": []string{"application/json"},
		"Accept":       []string{"application/vnd.amazon.eventstream"},
	}
	resp, err := client.DoStreaming(streamCtx, http.MethodPost, url, body, headers, token)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var idleExpired atomic.Bool
	watchdog := time.AfterFunc(cfg.FirstTokenTimeout, func() {
		idleExpired.Store(true)
		cancel()
	})
	defer watchdog.Stop()

	parser := eventstream.New(nil)
	buf := make([]byte, 32*1024)
	receivedFirst := false

	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			receivedFirst = true
			idleExpired.Store(false)
			watchdog.Reset(cfg.StreamingReadTimeout)
			for _, ev := range parser.Feed(buf[:n]) {
				onEvent(ev)
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			if idleExpired.Load() {
				if !receivedFirst {
					return nil, ErrFirstTokenTimeout
				}
				return nil, ErrStreamingReadTimeout
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("upstream: read response body: %w", readErr)
		}
	}

	toolCalls := parser.ToolCalls()
	for _, tc := range toolCalls {
		onEvent(eventstream.Event{Type: eventstream.EventToolCall, ToolCall: tc})
	}
	return toolCalls, nil
}
