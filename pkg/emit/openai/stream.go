// Package openai re-emits a parsed upstream event stream as OpenAI-dialect
// chat.completion.chunk SSE frames, and builds the equivalent non-streaming
// response body.
package openai

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"mercator-hq/relay/pkg/emit"
	"mercator-hq/relay/pkg/eventstream"
	"mercator-hq/relay/pkg/thinking"
)

// Stream writes OpenAI SSE chunks to w as events are fed to it. It is not
// safe for concurrent use.
type Stream struct {
	w        io.Writer
	flusher  http.Flusher
	id       string
	model    string
	created  int64
	sentRole bool
	toolIdx  int
	toolCalls []emittedToolCall
	thinkingMode thinking.Mode
	seg      *thinking.Segmenter
	emitted  []string
}

type emittedToolCall struct {
	id, name, arguments string
}

// NewStream constructs a Stream for one response. created should be a
// caller-supplied Unix timestamp (Date.now()-equivalents are unavailable to
// the pieces that drive this during tests/replays).
func NewStream(w io.Writer, id, model string, created int64, thinkingMode thinking.Mode) *Stream {
	flusher, _ := w.(http.Flusher)
	return &Stream{
		w: w, flusher: flusher, id: id, model: model, created: created,
		thinkingMode: thinkingMode, seg: thinking.New(thinkingMode),
	}
}

// Feed processes one decoded upstream event, writing zero or more SSE
// frames.
func (s *Stream) Feed(ev eventstream.Event) error {
	switch ev.Type {
	case eventstream.EventContent:
		for _, seg := range s.seg.Feed(ev.Content) {
			if err := s.writeContentSegment(seg); err != nil {
				return err
			}
		}
	case eventstream.EventToolCall:
		if ev.ToolCall == nil {
			return nil
		}
		idx := s.toolIdx
		s.toolIdx++
		s.toolCalls = append(s.toolCalls, emittedToolCall{id: ev.ToolCall.ID, name: ev.ToolCall.Name, arguments: ev.ToolCall.Arguments})
		return s.writeChunk(map[string]any{
			"index": 0,
			"delta": map[string]any{
				"tool_calls": []map[string]any{{
					"index": idx,
					"id":    ev.ToolCall.ID,
					"type":  "function",
					"function": map[string]any{
						"name":      ev.ToolCall.Name,
						"arguments": ev.ToolCall.Arguments,
					},
				}},
			},
		})
	}
	return nil
}

func (s *Stream) writeContentSegment(seg thinking.Segment) error {
	s.emitted = append(s.emitted, seg.Text)
	delta := map[string]any{}
	switch {
	case seg.Kind == thinking.KindThinking && s.thinkingMode == thinking.ModeAsReasoningContent:
		delta["reasoning_content"] = seg.Text
	default:
		delta["content"] = seg.Text
	}
	return s.writeChunk(map[string]any{"index": 0, "delta": delta})
}

func (s *Stream) writeChunk(choiceExtra map[string]any) error {
	choice := map[string]any{"index": 0, "finish_reason": nil}
	for k, v := range choiceExtra {
		choice[k] = v
	}
	if !s.sentRole {
		if delta, ok := choice["delta"].(map[string]any); ok {
			delta["role"] = "assistant"
		}
		s.sentRole = true
	}
	return s.writeFrame(map[string]any{
		"id": s.id, "object": "chat.completion.chunk", "created": s.created, "model": s.model,
		"choices": []map[string]any{choice},
	})
}

// Finish emits the trailing finish_reason+usage chunk and the terminal
// [DONE] frame.
func (s *Stream) Finish(usage emit.Usage) error {
	for _, seg := range s.seg.Flush() {
		if err := s.writeContentSegment(seg); err != nil {
			return err
		}
	}

	finishReason := "stop"
	if len(s.toolCalls) > 0 {
		finishReason = "tool_calls"
	}
	if err := s.writeFrame(map[string]any{
		"id": s.id, "object": "chat.completion.chunk", "created": s.created, "model": s.model,
		"choices": []map[string]any{{"index": 0, "delta": map[string]any{}, "finish_reason": finishReason}},
		"usage": map[string]any{
			"prompt_tokens":     usage.PromptTokens,
			"completion_tokens": usage.CompletionTokens,
			"total_tokens":      usage.TotalTokens,
		},
	}); err != nil {
		return err
	}
	_, err := fmt.Fprint(s.w, "data: [DONE]\n\n")
	s.flush()
	return err
}

// EmittedText returns every content segment emitted so far, reasoning and
// regular text alike, in emission order.
func (s *Stream) EmittedText() []string { return s.emitted }

func (s *Stream) writeFrame(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("openai: marshal chunk: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", b); err != nil {
		return err
	}
	s.flush()
	return nil
}

func (s *Stream) flush() {
	if s.flusher != nil {
		s.flusher.Flush()
	}
}

// WriteError writes a mid-stream error followed by a best-effort [DONE]
// terminator, used when the upstream fails after the first byte has
// already been delivered to the client.
func (s *Stream) WriteError(message string) {
	fmt.Fprintf(s.w, "data: %s\n\n", mustJSON(map[string]any{"error": map[string]any{"message": message, "type": "upstream_transport"}}))
	fmt.Fprint(s.w, "data: [DONE]\n\n")
	s.flush()
}

func mustJSON(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}

// NowUnix returns the current Unix time, for callers to pass in as the
// created timestamp; Stream itself never reads the clock.
func NowUnix() int64 { return time.Now().Unix() }
