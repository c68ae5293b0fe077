package truncation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"mercator-hq/relay/pkg/unified"
)

// HashText returns the stable content hash used as the by_content_hash key.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

const recoveryNoticeFmt = "[Note: this tool result was truncated by the upstream provider (%s, %d bytes). The original content below may be incomplete.]\n\n"

// Rewrite walks a unified message sequence, consuming any matching
// truncation records and rewriting the affected turns in place: a
// tool_result whose tool_use_id has a recorded truncation gets a synthetic
// notice prepended to its content, and an assistant message whose text
// hashes to a recorded truncation gets a synthetic user message inserted
// immediately after it.
func Rewrite(ctx context.Context, store *Store, messages []unified.Message) ([]unified.Message, error) {
	if store == nil || !store.enabled {
		return messages, nil
	}

	out := make([]unified.Message, 0, len(messages))
	for _, m := range messages {
		if len(m.ToolResults) > 0 {
			rewritten := make([]unified.ToolResult, len(m.ToolResults))
			for i, tr := range m.ToolResults {
				rec, found, err := store.TakeToolResult(ctx, tr.ToolUseID)
				if err != nil {
					return nil, err
				}
				if found {
					tr.Content = fmt.Sprintf(recoveryNoticeFmt, rec.Reason, rec.SizeBytes) + tr.Content
				}
				rewritten[i] = tr
			}
			m.ToolResults = rewritten
		}
		out = append(out, m)

		if m.Role == unified.RoleAssistant && m.Text != "" {
			rec, found, err := store.TakeMessage(ctx, HashText(m.Text))
			if err != nil {
				return nil, err
			}
			if found {
				out = append(out, unified.Message{
					Role: unified.RoleUser,
					Text: fmt.Sprintf("[System notice: the prior assistant message (hash %s) was truncated by the upstream provider and may be incomplete.]", rec.MessageHash),
				})
			}
		}
	}
	return out, nil
}
