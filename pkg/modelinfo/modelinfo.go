// Package modelinfo carries the per-model context-window sizes the token
// accounting step (C5) needs to turn an upstream context-usage percentage
// into an absolute token count.
package modelinfo

import "strings"

const defaultMaxInputTokens = 200_000

var maxInputTokens = map[string]int{
	"claude-sonnet-4.5":    200_000,
	"claude-sonnet-4.5-1m": 1_000_000,
	"claude-opus-4.5":      200_000,
	"claude-opus-4.6":      200_000,
	"claude-haiku-4.5":     200_000,
	"claude-3.7-sonnet":    200_000,
}

// MaxInputTokens returns the configured context window for a resolved model
// id, falling back to a conservative default for anything unrecognized —
// the resolver never rejects a model name, so this never fails either.
func MaxInputTokens(model string) int {
	if n, ok := maxInputTokens[model]; ok {
		return n
	}
	if strings.HasSuffix(model, "-1m") {
		return 1_000_000
	}
	return defaultMaxInputTokens
}
