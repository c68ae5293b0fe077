package handlers

import (
	"context"
	"net/http"
	"time"

	"mercator-hq/relay/pkg/accounts/auth"
	"mercator-hq/relay/pkg/emit"
	emitanthropic "mercator-hq/relay/pkg/emit/anthropic"
	"mercator-hq/relay/pkg/eventstream"
	"mercator-hq/relay/pkg/relayerr"
	"mercator-hq/relay/pkg/thinking"
	"mercator-hq/relay/pkg/translate/anthropic"
	"mercator-hq/relay/pkg/truncation"
	"mercator-hq/relay/pkg/unified"
	"mercator-hq/relay/pkg/upstream"
)

// Messages handles POST /v1/messages, the Anthropic-dialect entry point.
func (d *Deps) Messages(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req anthropic.MessagesRequest
	if err := decodeRequest(w, r, &req); err != nil {
		writeAnthropicError(w, err)
		return
	}

	messages, system, tools, err := anthropic.Translate(req)
	if err != nil {
		writeAnthropicError(w, err)
		return
	}

	resolution := d.Resolver.Resolve(req.Model)

	messages, err = truncation.Rewrite(r.Context(), d.Truncation, messages)
	if err != nil {
		d.logger().Error("truncation rewrite failed", "error", err)
		writeAnthropicError(w, err)
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
		writeAnthropicError(w, err)
		return
	}

	if _, err := d.Limiter.Acquire(r.Context()); err != nil {
		writeAnthropicError(w, relayerr.Wrap(relayerr.KindRateLimit, http.StatusTooManyRequests, "rate limit wait cancelled", err))
		return
	}
	defer d.Limiter.Release()

	accountID, manager, err := d.Pool.GetAccount(r.Context())
	if err != nil {
		writeAnthropicError(w, relayerr.Wrap(relayerr.KindAccountUnhealthy, http.StatusServiceUnavailable, "no healthy upstream account available", err))
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
		d.streamMessages(w, r.Context(), accountID, manager, payload, resolution.InternalID, thinkingMode, requestText, start)
		return
	}
	d.completeMessages(w, r.Context(), accountID, manager, payload, resolution.InternalID, thinkingMode, requestText, start)
}

func (d *Deps) streamMessages(w http.ResponseWriter, ctx context.Context, accountID int64, manager *auth.Manager, payload *unified.Payload, model string, thinkingMode thinking.Mode, requestText string, start time.Time) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	stream := emitanthropic.NewStream(w, "msg_"+newConversationID(), model, thinkingMode)

	var contextUsagePct float64
	var sawContextUsage bool
	onEvent := func(ev eventstream.Event) {
		if ev.Type == eventstream.EventContextUsage {
			contextUsagePct = ev.ContextUsagePercentage
			sawContextUsage = true
		}
		if err := stream.Feed(ev); err != nil {
			d.logger().Warn("failed writing stream event", "error", err)
		}
	}

	_, err := upstream.Generate(ctx, d.Client, manager, payload, d.generateConfig(), onEvent)
	statusCode := http.StatusOK
	if err != nil {
		d.logger().Error("upstream generate failed mid-stream", "error", err)
		errType := string(relayerr.KindUpstreamTransport)
		if relayErr, ok := relayerr.As(err); ok {
			errType = string(relayErr.Kind)
		}
		stream.WriteError(errType, err.Error())
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
			d.logger().Warn("failed writing final stream event", "error", ferr)
		}
	}

	d.recordUsage(ctx, accountID, model, "/v1/messages", u, statusCode, start)
}

func (d *Deps) completeMessages(w http.ResponseWriter, ctx context.Context, accountID int64, manager *auth.Manager, payload *unified.Payload, model string, thinkingMode thinking.Mode, requestText string, start time.Time) {
	seg := thinking.New(thinkingMode)
	var textParts, thinkingParts []string
	var toolCalls []emitanthropic.ToolUseOut

	var contextUsagePct float64
	var sawContextUsage bool
	onEvent := func(ev eventstream.Event) {
		switch ev.Type {
		case eventstream.EventContent:
			for _, s := range seg.Feed(ev.Content) {
				if s.Kind == thinking.KindThinking {
					thinkingParts = append(thinkingParts, s.Text)
				} else {
					textParts = append(textParts, s.Text)
				}
			}
		case eventstream.EventToolCall:
			if ev.ToolCall != nil {
				toolCalls = append(toolCalls, emitanthropic.ToolUseOut{ID: ev.ToolCall.ID, Name: ev.ToolCall.Name, Input: ev.ToolCall.Arguments})
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
		writeJSON(w, statusCode, relayerr.Wrap(relayerr.KindUpstreamTransport, statusCode, "upstream request failed", err).AnthropicBody())
		d.recordUsage(ctx, accountID, model, "/v1/messages", emit.Usage{}, statusCode, start)
		return
	}
	_ = d.Pool.ReportSuccess(ctx, accountID)
	d.recordAccountOutcome(accountID, "")

	for _, s := range seg.Flush() {
		if s.Kind == thinking.KindThinking {
			thinkingParts = append(thinkingParts, s.Text)
		} else {
			textParts = append(textParts, s.Text)
		}
	}
	text := joinStrings(textParts)
	thinkingText := joinStrings(thinkingParts)

	completionTokens := emit.EstimateTokens(text + thinkingText)
	var u emit.Usage
	if sawContextUsage {
		u = emit.AccountFromContextUsage(contextUsagePct, model, completionTokens)
	} else {
		u = emit.AccountFromLocalEstimate(requestText, completionTokens, d.Behavior.TokenEstimateCorrection, 0)
	}

	body := emitanthropic.BuildResponse("msg_"+newConversationID(), model, text, thinkingText, toolCalls, u)
	writeJSON(w, http.StatusOK, body)
	d.recordUsage(ctx, accountID, model, "/v1/messages", u, http.StatusOK, start)
}
