package eventstream

import "testing"

func TestFindMatchingBrace(t *testing.T) {
	tests := []struct {
		text string
		pos  int
		want int
	}{
		{`{"a": {"b": 1}}`, 0, 14},
		{`{"a": "{}"}`, 0, 10},
		{`{"a": 1`, 0, -1},
		{`["a"]`, 0, -1},
	}
	for _, tt := range tests {
		if got := findMatchingBrace(tt.text, tt.pos); got != tt.want {
			t.Errorf("findMatchingBrace(%q, %d) = %d, want %d", tt.text, tt.pos, got, tt.want)
		}
	}
}

func TestParserContentDedup(t *testing.T) {
	p := New(nil)
	events := p.Feed([]byte(`{"content":"hello"}{"content":"hello"}{"content":"world"}`))
	if len(events) != 2 {
		t.Fatalf("expected 2 events after dedup, got %d", len(events))
	}
	if events[0].Content != "hello" || events[1].Content != "world" {
		t.Errorf("unexpected content sequence: %+v", events)
	}
}

func TestParserSkipsFollowupPrompt(t *testing.T) {
	p := New(nil)
	events := p.Feed([]byte(`{"content":"x","followupPrompt":"continue?"}`))
	if len(events) != 0 {
		t.Errorf("expected followupPrompt content to be skipped, got %+v", events)
	}
}

func TestParserToolCallLifecycle(t *testing.T) {
	p := New(nil)
	p.Feed([]byte(`{"name":"get_weather","toolUseId":"t1","input":""}`))
	p.Feed([]byte(`{"input":"{\"city\": \"London\"}"}`))
	p.Feed([]byte(`{"stop":true}`))

	calls := p.ToolCalls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(calls))
	}
	if calls[0].Name != "get_weather" || calls[0].ID != "t1" {
		t.Errorf("unexpected tool call: %+v", calls[0])
	}
	if calls[0].Arguments != `{"city":"London"}` {
		t.Errorf("arguments = %q", calls[0].Arguments)
	}
}

func TestParserDetectsTruncatedToolCall(t *testing.T) {
	p := New(nil)
	p.Feed([]byte(`{"name":"big_call","toolUseId":"t2","input":"{\"a\": [1,2,3"}`))
	p.Feed([]byte(`{"stop":true}`))

	calls := p.ToolCalls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(calls))
	}
	if !calls[0].Truncated {
		t.Errorf("expected Truncated = true, got %+v", calls[0])
	}
	if calls[0].Arguments != "{}" {
		t.Errorf("expected fallback empty-object arguments, got %q", calls[0].Arguments)
	}
}

func TestParserChunkBoundarySplit(t *testing.T) {
	p := New(nil)
	full := `{"content":"partial data arriving across chunks"}`
	var events []Event
	for i := 0; i < len(full); i += 7 {
		end := i + 7
		if end > len(full) {
			end = len(full)
		}
		events = append(events, p.Feed([]byte(full[i:end]))...)
	}
	if len(events) != 1 || events[0].Content != "partial data arriving across chunks" {
		t.Errorf("unexpected events across split feed: %+v", events)
	}
}

func TestParseBracketToolCalls(t *testing.T) {
	text := `[Called get_weather with args: {"city": "London"}]`
	calls := ParseBracketToolCalls(text)
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if calls[0].Name != "get_weather" {
		t.Errorf("Name = %q", calls[0].Name)
	}
	if calls[0].Arguments != `{"city":"London"}` {
		t.Errorf("Arguments = %q", calls[0].Arguments)
	}
}

func TestDeduplicateToolCallsByID(t *testing.T) {
	calls := []*ToolCall{
		{ID: "a", Name: "f", Arguments: "{}"},
		{ID: "a", Name: "f", Arguments: `{"x":1}`},
	}
	unique := DeduplicateToolCalls(calls)
	if len(unique) != 1 {
		t.Fatalf("expected 1 unique call, got %d", len(unique))
	}
	if unique[0].Arguments != `{"x":1}` {
		t.Errorf("expected the longer non-empty arguments to win, got %q", unique[0].Arguments)
	}
}

func TestDeduplicateToolCallsByNameAndArgs(t *testing.T) {
	calls := []*ToolCall{
		{ID: "", Name: "f", Arguments: `{"x":1}`},
		{ID: "", Name: "f", Arguments: `{"x":1}`},
		{ID: "", Name: "g", Arguments: `{"x":1}`},
	}
	unique := DeduplicateToolCalls(calls)
	if len(unique) != 2 {
		t.Fatalf("expected 2 unique calls, got %d", len(unique))
	}
}

func TestDiagnoseTruncation(t *testing.T) {
	tests := []struct {
		name        string
		in          string
		isTruncated bool
	}{
		{"empty", "", false},
		{"missing closing brace", `{"a": 1`, true},
		{"unclosed string", `{"a": "b`, true},
		{"balanced but malformed", `{"a": ,}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := diagnoseTruncation(tt.in)
			if d.IsTruncated != tt.isTruncated {
				t.Errorf("diagnoseTruncation(%q).IsTruncated = %v, want %v (reason=%s)", tt.in, d.IsTruncated, tt.isTruncated, d.Reason)
			}
		})
	}
}
