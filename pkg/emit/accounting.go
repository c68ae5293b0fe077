// Package emit holds the pieces shared by the two dialect-specific
// streaming re-emitters (pkg/emit/openai, pkg/emit/anthropic): token
// accounting and a crude local tokenizer used when the upstream doesn't
// report a context-usage percentage.
package emit

import (
	"strings"

	"mercator-hq/relay/pkg/modelinfo"
)

const (
	defaultEstimateCorrection = 0.95
	defaultPostHocCorrection  = 1.15
)

// Usage is the token accounting for one completed request, tagged with how
// it was derived so logs can distinguish the two provenances.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	// FromContextUsage is true when PromptTokens/TotalTokens were derived
	// from the upstream's reported context-window percentage rather than
	// local estimation.
	FromContextUsage bool
}

// EstimateTokens is a crude, fast, local token-count estimate: roughly one
// token per four characters, the same order-of-magnitude heuristic the
// reference client uses when it has no real tokenizer available.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return len(text) / 4
}

// AccountFromContextUsage computes prompt/total tokens from an upstream
// context_usage percentage, per spec: total = round(pct/100 * max_input),
// prompt = max(0, total - completion).
func AccountFromContextUsage(contextUsagePercent float64, model string, completionTokens int) Usage {
	maxInput := modelinfo.MaxInputTokens(model)
	total := int(contextUsagePercent/100*float64(maxInput) + 0.5)
	prompt := total - completionTokens
	if prompt < 0 {
		prompt = 0
	}
	return Usage{PromptTokens: prompt, CompletionTokens: completionTokens, TotalTokens: total, FromContextUsage: true}
}

// AccountFromLocalEstimate falls back to tokenizing the original request
// text locally, applying a pre-estimate correction factor and a post-hoc
// correction once the completion length is known.
func AccountFromLocalEstimate(requestText string, completionTokens int, estimateCorrection, postHocCorrection float64) Usage {
	if estimateCorrection <= 0 {
		estimateCorrection = defaultEstimateCorrection
	}
	if postHocCorrection <= 0 {
		postHocCorrection = defaultPostHocCorrection
	}
	prompt := int(float64(EstimateTokens(requestText))*estimateCorrection*postHocCorrection + 0.5)
	return Usage{
		PromptTokens:     prompt,
		CompletionTokens: completionTokens,
		TotalTokens:      prompt + completionTokens,
		FromContextUsage: false,
	}
}

// CountCompletionTokens estimates the completion token count over the
// concatenated text actually emitted to the client.
func CountCompletionTokens(emitted []string) int {
	return EstimateTokens(strings.Join(emitted, ""))
}
