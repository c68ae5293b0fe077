package thinking

import "testing"

func collect(t *testing.T, s *Segmenter, chunks []string) []Segment {
	t.Helper()
	var out []Segment
	for _, c := range chunks {
		out = append(out, s.Feed(c)...)
	}
	out = append(out, s.Flush()...)
	return out
}

func joinKind(segs []Segment, kind Kind) string {
	var out string
	for _, s := range segs {
		if s.Kind == kind {
			out += s.Text
		}
	}
	return out
}

func TestAsReasoningContentSplitsChannels(t *testing.T) {
	s := New(ModeAsReasoningContent)
	segs := collect(t, s, []string{"hello <thinking>let me ", "think</thinking> world"})

	if got := joinKind(segs, KindRegular); got != "hello  world" {
		t.Fatalf("regular channel = %q", got)
	}
	if got := joinKind(segs, KindThinking); got != "let me think" {
		t.Fatalf("thinking channel = %q", got)
	}
}

func TestStripTagsKeepsTextAsRegular(t *testing.T) {
	s := New(ModeStripTags)
	segs := collect(t, s, []string{"a <think>b</think> c"})
	if got := joinKind(segs, KindRegular); got != "a b c" {
		t.Fatalf("regular channel = %q", got)
	}
	if got := joinKind(segs, KindThinking); got != "" {
		t.Fatalf("expected no thinking segments, got %q", got)
	}
}

func TestRemoveDropsThinkingText(t *testing.T) {
	s := New(ModeRemove)
	segs := collect(t, s, []string{"a <reasoning>hidden</reasoning> b"})
	if got := joinKind(segs, KindRegular); got != "a  b" {
		t.Fatalf("regular channel = %q", got)
	}
}

func TestPassEmitsVerbatim(t *testing.T) {
	s := New(ModePass)
	var out string
	for _, seg := range s.Feed("a <thinking>x</thinking> b") {
		out += seg.Text
	}
	if out != "a <thinking>x</thinking> b" {
		t.Fatalf("pass mode altered content: %q", out)
	}
}

func TestTagSplitAcrossChunkBoundary(t *testing.T) {
	s := New(ModeAsReasoningContent)
	segs := collect(t, s, []string{"x <thin", "king>y</thi", "nking> z"})
	if got := joinKind(segs, KindThinking); got != "y" {
		t.Fatalf("thinking channel = %q", got)
	}
	if got := joinKind(segs, KindRegular); got != "x  z" {
		t.Fatalf("regular channel = %q", got)
	}
}

func TestOverflowingPrefixBufferDisablesDetection(t *testing.T) {
	s := New(ModeAsReasoningContent)
	// Twenty bytes of text followed by a partial "<thinking" tag fill the
	// prefix buffer before the tag completes, so detection is disabled and
	// the tag finished by the next chunk comes through as regular text.
	segs := collect(t, s, []string{"aaaaaaaaaaaaaaaaaaaa<thin", "king>x</thinking>"})
	if got := joinKind(segs, KindThinking); got != "" {
		t.Fatalf("expected detection to give up, got thinking=%q", got)
	}
}
