package handlers

import (
	"context"
	"net/http"
	"time"

	"mercator-hq/relay/pkg/accounts/auth"
	"mercator-hq/relay/pkg/emit"
	emitopenai "mercator-hq/relay/pkg/emit/openai"
	"mercator-hq/relay/pkg/eventstream"
	"mercator-hq/relay/pkg/relayerr"
	"mercator-hq/relay/pkg/thinking"
	"mercator-hq/relay/pkg/translate/openai"
	"mercator-hq/relay/pkg/truncation"
	"mercator-hq/relay/pkg/unified"
	"mercator-hq/relay/pkg/upstream"
	"mercator-hq/relay/pkg/usage"

	"mercator-hq/relay/pkg/apikeys"
)

// ChatCompletions handles POST /v1/chat/completions, the OpenAI-dialect
// entry point.
func (d *Deps) ChatCompletions(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req openai.ChatRequest
	if err := decodeRequest(w, r, &req); err != nil {
		writeOpenAIError(w, err)
		return
	}

	messages, system, tools, err := openai.Translate(req)
	if err != nil {
		writeOpenAIError(w, err)
		return
	}

	resolution := d.Resolver.Resolve(req.Model)

	messages, err = truncation.Rewrite(r.Context(), d.Truncation, messages)
	if err != nil {
		d.logger().Error("truncation rewrite failed", "error", err)
		writeOpenAIError(w, err)
		return
	}

	payload, err := unified.Build(unified.BuildInput{
		Messages:          messages,
		System:            system,
		Model:             resolution.InternalID,
		Tools:             tools,
		ConversationID:    newConversationID(),
		InjectThinking:    d.shouldInjectThinking(resolution.InternalID),
		MaxThinkingLength: d.Behavior.FakeReasoning.MaxThinkingLength,
		ToolDescMaxLength: d.Behavior.ToolDescriptionMaxLength,
	})
	if err != nil {
		writeOpenAIError(w, err)
		return
	}

	if _, err := d.Limiter.Acquire(r.Context()); err != nil {
		writeOpenAIError(w, relayerr.Wrap(relayerr.KindRateLimit, http.StatusTooManyRequests, "rate limit wait cancelled", err))
		return
	}
	defer d.Limiter.Release()

	accountID, manager, err := d.Pool.GetAccount(r.Context())
	if err != nil {
		writeOpenAIError(w, relayerr.Wrap(relayerr.KindAccountUnhealthy, http.StatusServiceUnavailable, "no healthy upstream account available", err))
		return
	}
	if manager.Type() == auth.TypeDesktop {
		payload.ProfileARN = manager.ProfileARN()
	}

	thinkingMode := thinking.Mode(d.Behavior.FakeReasoning.Mode)
	requestText := system
	for _, m := range messages {
		requestText += m.Text
	}

	if req.Stream {
		d.streamChatCompletion(w, r.Context(), accountID, manager, payload, resolution.InternalID, thinkingMode, requestText, start)
		return
	}
	d.completeChatCompletion(w, r.Context(), accountID, manager, payload, resolution.InternalID, thinkingMode, requestText, start)
}

func (d *Deps) streamChatCompletion(w http.ResponseWriter, ctx context.Context, accountID int64, manager *auth.Manager, payload *unified.Payload, model string, thinkingMode thinking.Mode, requestText string, start time.Time) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	stream := emitopenai.NewStream(w, "chatcmpl-"+newConversationID(), model, emitopenai.NowUnix(), thinkingMode)

	var contextUsagePct float64
	var sawContextUsage bool
	onEvent := func(ev eventstream.Event) {
		if ev.Type == eventstream.EventContextUsage {
			contextUsagePct = ev.ContextUsagePercentage
			sawContextUsage = true
		}
		if err := stream.Feed(ev); err != nil {
			d.logger().Warn("failed writing stream chunk", "error", err)
		}
	}

	_, err := upstream.Generate(ctx, d.Client, manager, payload, d.generateConfig(), onEvent)
	statusCode := http.StatusOK
	if err != nil {
		d.logger().Error("upstream generate failed mid-stream", "error", err)
		stream.WriteError(err.Error())
		_ = d.Pool.ReportError(ctx, accountID, err.Error())
		d.recordAccountOutcome(accountID, "upstream_error")
		statusCode = upstream.ResponseStatus(err, true)
	} else {
		_ = d.Pool.ReportSuccess(ctx, accountID)
		d.recordAccountOutcome(accountID, "")
	}

	completionTokens := emit.CountCompletionTokens(stream.EmittedText())
	var u emit.Usage
	if sawContextUsage {
		u = emit.AccountFromContextUsage(contextUsagePct, model, completionTokens)
	} else {
		u = emit.AccountFromLocalEstimate(requestText, completionTokens, d.Behavior.TokenEstimateCorrection, 0)
	}
	if err == nil {
		if ferr := stream.Finish(u); ferr != nil {
			d.logger().Warn("failed writing final stream chunk", "error", ferr)
		}
	}

	d.recordUsage(ctx, accountID, model, "/v1/chat/completions", u, statusCode, start)
}

func (d *Deps) completeChatCompletion(w http.ResponseWriter, ctx context.Context, accountID int64, manager *auth.Manager, payload *unified.Payload, model string, thinkingMode thinking.Mode, requestText string, start time.Time) {
	seg := thinking.New(thinkingMode)
	var textParts []string
	var toolCalls []emitopenai.ToolCallOut

	var contextUsagePct float64
	var sawContextUsage bool
	onEvent := func(ev eventstream.Event) {
		switch ev.Type {
		case eventstream.EventContent:
			for _, s := range seg.Feed(ev.Content) {
				textParts = append(textParts, s.Text)
			}
		case eventstream.EventToolCall:
			if ev.ToolCall != nil {
				toolCalls = append(toolCalls, emitopenai.ToolCallOut{ID: ev.ToolCall.ID, Name: ev.ToolCall.Name, Arguments: ev.ToolCall.Arguments})
				d.recordTruncatedToolCall(ctx, ev.ToolCall)
			}
		case eventstream.EventContextUsage:
			contextUsagePct = ev.ContextUsagePercentage
			sawContextUsage = true
		}
	}

	_, err := upstream.Generate(ctx, d.Client, manager, payload, d.generateConfig(), onEvent)
	if err != nil {
		d.logger().Error("upstream generate failed", "error", err)
		_ = d.Pool.ReportError(ctx, accountID, err.Error())
		d.recordAccountOutcome(accountID, "upstream_error")
		statusCode := upstream.ResponseStatus(err, false)
		writeJSON(w, statusCode, relayerr.Wrap(relayerr.KindUpstreamTransport, statusCode, "upstream request failed", err).OpenAIBody())
		d.recordUsage(ctx, accountID, model, "/v1/chat/completions", emit.Usage{}, statusCode, start)
		return
	}
	_ = d.Pool.ReportSuccess(ctx, accountID)
	d.recordAccountOutcome(accountID, "")

	for _, s := range seg.Flush() {
		textParts = append(textParts, s.Text)
	}
	text := joinStrings(textParts)

	completionTokens := emit.EstimateTokens(text)
	var u emit.Usage
	if sawContextUsage {
		u = emit.AccountFromContextUsage(contextUsagePct, model, completionTokens)
	} else {
		u = emit.AccountFromLocalEstimate(requestText, completionTokens, d.Behavior.TokenEstimateCorrection, 0)
	}

	body := emitopenai.BuildResponse("chatcmpl-"+newConversationID(), model, emitopenai.NowUnix(), text, toolCalls, u)
	writeJSON(w, http.StatusOK, body)
	d.recordUsage(ctx, accountID, model, "/v1/chat/completions", u, http.StatusOK, start)
}

func (d *Deps) recordTruncatedToolCall(ctx context.Context, tc *eventstream.ToolCall) {
	if !tc.Truncated {
		return
	}
	rec := truncation.ToolResult{ToolName: tc.Name, Reason: tc.TruncationReason, SizeBytes: int64(len(tc.Arguments))}
	if err := d.Truncation.PutToolResult(ctx, tc.ID, rec); err != nil {
		d.logger().Warn("failed to record truncated tool call", "tool_use_id", tc.ID, "error", err)
	}
}

func (d *Deps) recordUsage(ctx context.Context, accountID int64, model, endpoint string, u emit.Usage, statusCode int, start time.Time) {
	key, _ := apikeys.FromContext(ctx)
	var keyID int64
	if key != nil {
		keyID = key.ID
	}
	rec := usage.Record{
		APIKeyID:     keyID,
		AccountID:    accountID,
		Model:        model,
		Endpoint:     endpoint,
		InputTokens:  int64(u.PromptTokens),
		OutputTokens: int64(u.CompletionTokens),
		StatusCode:   statusCode,
		DurationMS:   durationSince(start),
	}
	if err := d.Usage.Append(ctx, rec); err != nil {
		d.logger().Warn("failed to record usage", "error", err)
	}
	d.recordRequestMetric(endpoint, model, statusCode, start, int(rec.InputTokens+rec.OutputTokens))
}

func joinStrings(parts []string) string {
	total := 0
	for _, p := range parts {
		total += len(p)
	}
	out := make([]byte, 0, total)
	for _, p := range parts {
		out = append(out, p...)
	}
	return string(out)
}
