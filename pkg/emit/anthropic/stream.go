// Package anthropic re-emits a parsed upstream event stream as Anthropic
// typed SSE events, and builds the equivalent non-streaming response body.
package anthropic

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"mercator-hq/relay/pkg/emit"
	"mercator-hq/relay/pkg/eventstream"
	"mercator-hq/relay/pkg/thinking"
)

type blockKind int

const (
	blockNone blockKind = iota
	blockThinking
	blockText
	blockToolUse
)

// Stream writes Anthropic typed SSE events to w. It is not safe for
// concurrent use.
type Stream struct {
	w       io.Writer
	flusher http.Flusher
	id      string
	model   string

	started    bool
	curBlock   blockKind
	curIndex   int
	nextIndex  int
	toolCallCount int
	emitted    []string
	seg        *thinking.Segmenter
	thinkingMode thinking.Mode
}

// NewStream constructs a Stream for one response.
func NewStream(w io.Writer, id, model string, thinkingMode thinking.Mode) *Stream {
	flusher, _ := w.(http.Flusher)
	return &Stream{w: w, flusher: flusher, id: id, model: model, curBlock: blockNone, thinkingMode: thinkingMode, seg: thinking.New(thinkingMode)}
}

func (s *Stream) ensureStarted() error {
	if s.started {
		return nil
	}
	s.started = true
	return s.writeEvent("message_start", map[string]any{
		"type": "message_start",
		"message": map[string]any{
			"id": s.id, "type": "message", "role": "assistant", "model": s.model,
			"content": []any{}, "stop_reason": nil,
			"usage": map[string]any{"input_tokens": 0, "output_tokens": 0},
		},
	})
}

// Feed processes one decoded upstream event.
func (s *Stream) Feed(ev eventstream.Event) error {
	if err := s.ensureStarted(); err != nil {
		return err
	}
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
		if err := s.closeCurrentBlock(); err != nil {
			return err
		}
		idx := s.nextIndex
		s.nextIndex++
		s.toolCallCount++
		if err := s.writeEvent("content_block_start", map[string]any{
			"type": "content_block_start", "index": idx,
			"content_block": map[string]any{"type": "tool_use", "id": ev.ToolCall.ID, "name": ev.ToolCall.Name, "input": map[string]any{}},
		}); err != nil {
			return err
		}
		if err := s.writeEvent("content_block_delta", map[string]any{
			"type": "content_block_delta", "index": idx,
			"delta": map[string]any{"type": "input_json_delta", "partial_json": ev.ToolCall.Arguments},
		}); err != nil {
			return err
		}
		return s.writeEvent("content_block_stop", map[string]any{"type": "content_block_stop", "index": idx})
	}
	return nil
}

func (s *Stream) writeContentSegment(seg thinking.Segment) error {
	s.emitted = append(s.emitted, seg.Text)
	wantKind := blockText
	if seg.Kind == thinking.KindThinking {
		wantKind = blockThinking
	}
	if s.curBlock != wantKind {
		if err := s.closeCurrentBlock(); err != nil {
			return err
		}
		idx := s.nextIndex
		s.nextIndex++
		s.curIndex = idx
		s.curBlock = wantKind
		blockType := "text"
		if wantKind == blockThinking {
			blockType = "thinking"
		}
		if err := s.writeEvent("content_block_start", map[string]any{
			"type": "content_block_start", "index": idx,
			"content_block": map[string]any{"type": blockType},
		}); err != nil {
			return err
		}
	}
	deltaType := "text_delta"
	deltaField := "text"
	if s.curBlock == blockThinking {
		deltaType = "thinking_delta"
		deltaField = "thinking"
	}
	return s.writeEvent("content_block_delta", map[string]any{
		"type": "content_block_delta", "index": s.curIndex,
		"delta": map[string]any{"type": deltaType, deltaField: seg.Text},
	})
}

func (s *Stream) closeCurrentBlock() error {
	if s.curBlock == blockNone {
		return nil
	}
	idx := s.curIndex
	s.curBlock = blockNone
	return s.writeEvent("content_block_stop", map[string]any{"type": "content_block_stop", "index": idx})
}

// Finish emits the final content_block_stop (if any block is open),
// message_delta (stop_reason+usage), and message_stop events.
func (s *Stream) Finish(usage emit.Usage) error {
	if err := s.ensureStarted(); err != nil {
		return err
	}
	for _, seg := range s.seg.Flush() {
		if err := s.writeContentSegment(seg); err != nil {
			return err
		}
	}
	if err := s.closeCurrentBlock(); err != nil {
		return err
	}

	stopReason := "end_turn"
	if s.toolCallCount > 0 {
		stopReason = "tool_use"
	}
	if err := s.writeEvent("message_delta", map[string]any{
		"type": "message_delta",
		"delta": map[string]any{"stop_reason": stopReason, "stop_sequence": nil},
		"usage": map[string]any{"output_tokens": usage.CompletionTokens},
	}); err != nil {
		return err
	}
	return s.writeEvent("message_stop", map[string]any{"type": "message_stop"})
}

// WriteError emits a typed Anthropic error event, used both for stream
// setup failure and for mid-stream failure after the first byte has
// already been delivered.
func (s *Stream) WriteError(errType, message string) {
	fmt.Fprintf(s.w, "event: error\ndata: %s\n\n", mustJSON(map[string]any{
		"type": "error", "error": map[string]any{"type": errType, "message": message},
	}))
	s.flush()
}

// EmittedText returns every content segment emitted so far, thinking and
// regular text alike, in emission order.
func (s *Stream) EmittedText() []string { return s.emitted }

func (s *Stream) writeEvent(eventName string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("anthropic: marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", eventName, b); err != nil {
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

func mustJSON(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}
