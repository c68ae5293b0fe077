// Package relayerr defines the gateway's error taxonomy: eight kinds, each
// with a default HTTP status, plus renderers for each client dialect's
// error shape.
package relayerr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind discriminates the error taxonomy.
type Kind string

const (
	KindAuthentication    Kind = "authentication_error"
	KindInvalidRequest    Kind = "invalid_request"
	KindRateLimit         Kind = "rate_limit_error"
	KindUpstreamTransport Kind = "upstream_transport"
	KindUpstreamAPI       Kind = "upstream_api_error"
	KindTruncation        Kind = "truncation"
	KindFirstTokenTimeout Kind = "first_token_timeout"
	KindAccountUnhealthy  Kind = "account_unhealthy"
)

// Error is the gateway's typed error, carrying enough to both answer the
// client in its dialect and log the technical cause.
type Error struct {
	Kind       Kind
	StatusCode int
	Message    string
	Param      string
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an Error with an explicit status code.
func New(kind Kind, status int, message string) *Error {
	return &Error{Kind: kind, StatusCode: status, Message: message}
}

// Newf is New with fmt.Sprintf-style formatting.
func Newf(kind Kind, status int, format string, args ...any) *Error {
	return New(kind, status, fmt.Sprintf(format, args...))
}

// Wrap constructs an Error carrying an underlying cause for logging.
func Wrap(kind Kind, status int, message string, cause error) *Error {
	return &Error{Kind: kind, StatusCode: status, Message: message, Cause: cause}
}

// DefaultStatus returns the taxonomy's default HTTP status for a kind, used
// when a call site doesn't have a more specific one (e.g. from upstream
// classification).
func DefaultStatus(kind Kind) int {
	switch kind {
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindInvalidRequest:
		return http.StatusBadRequest
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindUpstreamTransport:
		return http.StatusBadGateway
	case KindUpstreamAPI:
		return http.StatusBadGateway
	case KindTruncation:
		return http.StatusOK
	case KindFirstTokenTimeout:
		return http.StatusGatewayTimeout
	case KindAccountUnhealthy:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// OpenAIBody renders the error in OpenAI's {error:{message,type,code,param}} shape.
func (e *Error) OpenAIBody() map[string]any {
	body := map[string]any{
		"message": e.Message,
		"type":    string(e.Kind),
		"code":    string(e.Kind),
	}
	if e.Param != "" {
		body["param"] = e.Param
	}
	return map[string]any{"error": body}
}

// AnthropicBody renders the error in Anthropic's {type:"error", error:{type,message}} shape.
func (e *Error) AnthropicBody() map[string]any {
	return map[string]any{
		"type": "error",
		"error": map[string]any{
			"type":    string(e.Kind),
			"message": e.Message,
		},
	}
}

// As extracts an *Error from err, if it is (or wraps) one.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
