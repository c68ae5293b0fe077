package resolver

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"dash to dot", "claude-haiku-4-5", "claude-haiku-4.5"},
		{"strip date suffix", "claude-haiku-4-5-20251001", "claude-haiku-4.5"},
		{"strip latest suffix", "claude-haiku-4-5-latest", "claude-haiku-4.5"},
		{"no minor with date", "claude-sonnet-4-20250514", "claude-sonnet-4"},
		{"no minor no date", "claude-sonnet-4", "claude-sonnet-4"},
		{"legacy format", "claude-3-7-sonnet", "claude-3.7-sonnet"},
		{"legacy with date", "claude-3-7-sonnet-20250219", "claude-3.7-sonnet"},
		{"inverted with suffix", "claude-4.5-opus-high", "claude-opus-4.5"},
		{"inverted with suffix sonnet", "claude-4.5-sonnet-low", "claude-sonnet-4.5"},
		{"1m suffix preserved", "claude-sonnet-4-5-1m", "claude-sonnet-4.5-1m"},
		{"unrecognized passthrough", "auto", "auto"},
		{"empty", "", ""},
		{"already dotted with date", "claude-3.7-sonnet-20250219", "claude-3.7-sonnet"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestExtractFamily(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"claude-haiku-4.5", "haiku"},
		{"claude-sonnet-4-5", "sonnet"},
		{"claude-3.7-sonnet", "sonnet"},
		{"gpt-4", ""},
	}
	for _, tt := range tests {
		if got := ExtractFamily(tt.in); got != tt.want {
			t.Errorf("ExtractFamily(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

type fakeCache struct {
	valid map[string]bool
	all   []string
}

func (f *fakeCache) IsValidModel(id string) bool { return f.valid[id] }
func (f *fakeCache) AllModelIDs() []string        { return f.all }

func TestResolve(t *testing.T) {
	cache := &fakeCache{
		valid: map[string]bool{"claude-opus-4.5": true},
		all:   []string{"claude-opus-4.5"},
	}
	r := New(cache, Config{
		HiddenModels: map[string]string{
			"claude-sonnet-4.5": "claude-sonnet-4.5-1m",
		},
		Aliases: map[string]string{
			"auto-relay": "auto",
		},
	}, nil)

	t.Run("hidden model upgrade takes priority over cache", func(t *testing.T) {
		res := r.Resolve("claude-sonnet-4.5")
		if res.InternalID != "claude-sonnet-4.5-1m" {
			t.Errorf("InternalID = %q, want claude-sonnet-4.5-1m", res.InternalID)
		}
		if res.Source != SourceHidden {
			t.Errorf("Source = %q, want hidden", res.Source)
		}
		if !res.Verified {
			t.Error("expected Verified = true")
		}
	})

	t.Run("cache hit", func(t *testing.T) {
		res := r.Resolve("claude-opus-4-5")
		if res.InternalID != "claude-opus-4.5" {
			t.Errorf("InternalID = %q, want claude-opus-4.5", res.InternalID)
		}
		if res.Source != SourceCache {
			t.Errorf("Source = %q, want cache", res.Source)
		}
	})

	t.Run("alias resolved before normalization", func(t *testing.T) {
		res := r.Resolve("auto-relay")
		if res.InternalID != "auto" {
			t.Errorf("InternalID = %q, want auto", res.InternalID)
		}
	})

	t.Run("passthrough for unknown model", func(t *testing.T) {
		res := r.Resolve("gpt-4o")
		if res.Source != SourcePassthrough {
			t.Errorf("Source = %q, want passthrough", res.Source)
		}
		if res.Verified {
			t.Error("expected Verified = false for passthrough")
		}
	})

	t.Run("resolve never panics on empty input", func(t *testing.T) {
		res := r.Resolve("")
		if res.Source != SourcePassthrough {
			t.Errorf("Source = %q, want passthrough", res.Source)
		}
	})
}

func TestSuggestionsFor(t *testing.T) {
	cache := &fakeCache{
		valid: map[string]bool{"claude-opus-4.5": true, "claude-haiku-4.5": true},
		all:   []string{"claude-opus-4.5", "claude-haiku-4.5"},
	}
	r := New(cache, Config{}, nil)

	suggestions := r.SuggestionsFor("claude-opus-4-1")
	for _, s := range suggestions {
		if ExtractFamily(s) != "opus" {
			t.Errorf("suggestion %q is not from the opus family", s)
		}
	}

	all := r.SuggestionsFor("unknown-model")
	if len(all) != 2 {
		t.Errorf("expected all models when family undetermined, got %v", all)
	}
}
