package eventstream

import (
	"encoding/json"
	"regexp"

	"github.com/google/uuid"
)

var bracketPattern = regexp.MustCompile(`(?i)\[Called\s+(\w+)\s+with\s+args:\s*`)

// ParseBracketToolCalls extracts tool calls written inline in model output
// as "[Called toolname with args: {...}]" text, a fallback some models use
// instead of emitting structured tool-call events. This is a narrow
// heuristic for that one syntax, not a general-purpose tool-call grammar.
func ParseBracketToolCalls(text string) []*ToolCall {
	if text == "" {
		return nil
	}

	var calls []*ToolCall
	for _, m := range bracketPattern.FindAllStringSubmatchIndex(text, -1) {
		nameStart, nameEnd := m[2], m[3]
		argsStart := m[1]
		name := text[nameStart:nameEnd]

		jsonStart := -1
		for i := argsStart; i < len(text); i++ {
			if text[i] == '{' {
				jsonStart = i
				break
			}
		}
		if jsonStart == -1 {
			continue
		}
		jsonEnd := findMatchingBrace(text, jsonStart)
		if jsonEnd == -1 {
			continue
		}

		jsonStr := text[jsonStart : jsonEnd+1]
		var args any
		if err := json.Unmarshal([]byte(jsonStr), &args); err != nil {
			continue
		}
		normalized, err := json.Marshal(args)
		if err != nil {
			continue
		}

		calls = append(calls, &ToolCall{
			ID:        "call_" + uuid.NewString(),
			Name:      name,
			Arguments: string(normalized),
		})
	}
	return calls
}

// DeduplicateToolCalls removes duplicate tool calls using the same
// two-pass rule as the reference implementation: first collapse by id
// (keeping the variant with the longer, non-empty argument string), then
// collapse the remainder by name+arguments.
func DeduplicateToolCalls(calls []*ToolCall) []*ToolCall {
	byID := make(map[string]*ToolCall)
	var order []string
	var withoutID []*ToolCall

	for _, tc := range calls {
		if tc.ID == "" {
			withoutID = append(withoutID, tc)
			continue
		}
		existing, ok := byID[tc.ID]
		if !ok {
			byID[tc.ID] = tc
			order = append(order, tc.ID)
			continue
		}
		if tc.Arguments != "{}" && (existing.Arguments == "{}" || len(tc.Arguments) > len(existing.Arguments)) {
			byID[tc.ID] = tc
		}
	}

	candidates := make([]*ToolCall, 0, len(order)+len(withoutID))
	for _, id := range order {
		candidates = append(candidates, byID[id])
	}
	candidates = append(candidates, withoutID...)

	seen := make(map[string]struct{}, len(candidates))
	unique := make([]*ToolCall, 0, len(candidates))
	for _, tc := range candidates {
		args := tc.Arguments
		if args == "" {
			args = "{}"
		}
		key := tc.Name + "-" + args
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, tc)
	}
	return unique
}
