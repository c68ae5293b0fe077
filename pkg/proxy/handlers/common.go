package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"mercator-hq/relay/pkg/relayerr"
)

// decodeRequest decodes a JSON body into v, capping how much of the body is
// read so an oversized payload fails fast instead of exhausting memory.
func decodeRequest(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return relayerr.Wrap(relayerr.KindInvalidRequest, http.StatusBadRequest, "invalid JSON request body", err)
	}
	return nil
}

// writeOpenAIError renders err (converting a bare error to a generic
// upstream_transport Error first) as an OpenAI-shaped JSON error body.
func writeOpenAIError(w http.ResponseWriter, err error) {
	relayErr, ok := relayerr.As(err)
	if !ok {
		relayErr = relayerr.Wrap(relayerr.KindUpstreamTransport, http.StatusBadGateway, "upstream request failed", err)
	}
	writeJSON(w, relayErr.StatusCode, relayErr.OpenAIBody())
}

// writeAnthropicError renders err as an Anthropic-shaped JSON error body.
func writeAnthropicError(w http.ResponseWriter, err error) {
	relayErr, ok := relayerr.As(err)
	if !ok {
		relayErr = relayerr.Wrap(relayerr.KindUpstreamTransport, http.StatusBadGateway, "upstream request failed", err)
	}
	writeJSON(w, relayErr.StatusCode, relayErr.AnthropicBody())
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func newConversationID() string {
	return uuid.NewString()
}
