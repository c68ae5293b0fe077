// Package upstream wraps the HTTP calls made to the upstream provider:
// connection-pooled requests for non-streaming calls, a fresh per-request
// client for streaming calls, layered retry on 403/429/5xx/transport
// errors, and classification of transport failures into actionable,
// user-facing messages.
package upstream

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/url"
	"strings"
)

// Category classifies a transport-level failure.
type Category string

const (
	CategoryDNSResolution      Category = "dns_resolution"
	CategoryConnectionRefused  Category = "connection_refused"
	CategoryConnectionReset    Category = "connection_reset"
	CategoryNetworkUnreachable Category = "network_unreachable"
	CategoryTimeoutConnect     Category = "timeout_connect"
	CategoryTimeoutRead        Category = "timeout_read"
	CategorySSL                Category = "ssl_error"
	CategoryProxy              Category = "proxy_error"
	CategoryUnknown            Category = "unknown"
)

// ErrorInfo is the structured classification of a transport error, with
// enough detail to both log usefully and surface a helpful message to the
// client.
type ErrorInfo struct {
	Category            Category
	UserMessage         string
	TroubleshootingSteps []string
	TechnicalDetails    string
	Retryable           bool
	SuggestedStatus     int
}

// Classify analyzes a transport-level error (as returned by http.Client.Do)
// and returns structured, user-facing classification.
func Classify(err error) ErrorInfo {
	technical := err.Error()

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return classifyTimeout(urlErr, technical)
		}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ErrorInfo{
			Category:    CategoryDNSResolution,
			UserMessage: "DNS resolution failed - cannot resolve the provider's domain name.",
			TroubleshootingSteps: []string{
				"Check your internet connection",
				"Try changing DNS servers to Google DNS (8.8.8.8, 8.8.4.4) or Cloudflare (1.1.1.1, 1.0.0.1)",
				"Temporarily disable VPN if you're using one",
				"Check if firewall/antivirus is blocking DNS requests",
				"Verify the domain name is correct and the service is operational",
			},
			TechnicalDetails: technical,
			Retryable:        true,
			SuggestedStatus:  502,
		}
	}

	if _, ok := err.(*tls.CertificateVerificationError); ok || strings.Contains(technical, "x509") ||
		strings.Contains(strings.ToLower(technical), "tls") || strings.Contains(technical, "certificate") {
		return ErrorInfo{
			Category:    CategorySSL,
			UserMessage: "SSL/TLS error - secure connection could not be established.",
			TroubleshootingSteps: []string{
				"Check system date and time (incorrect time causes SSL errors)",
				"Update SSL certificates on your system",
				"Check if antivirus/firewall is intercepting HTTPS traffic",
				"Verify the server's SSL certificate is valid",
			},
			TechnicalDetails: technical,
			Retryable:        false,
			SuggestedStatus:  502,
		}
	}

	switch {
	case containsAny(technical, "connection refused", "ECONNREFUSED"):
		return ErrorInfo{
			Category:    CategoryConnectionRefused,
			UserMessage: "Connection refused - the server is not accepting connections.",
			TroubleshootingSteps: []string{
				"The service may be temporarily down",
				"Check if the service is running and accessible",
				"Verify firewall is not blocking the connection",
				"Try again in a few moments",
			},
			TechnicalDetails: technical,
			Retryable:        true,
			SuggestedStatus:  502,
		}
	case containsAny(technical, "connection reset", "ECONNRESET"):
		return ErrorInfo{
			Category:    CategoryConnectionReset,
			UserMessage: "Connection reset - the server closed the connection unexpectedly.",
			TroubleshootingSteps: []string{
				"This is usually a temporary server issue",
				"Try again in a few moments",
				"Check if VPN/proxy is interfering with the connection",
				"Verify network stability",
			},
			TechnicalDetails: technical,
			Retryable:        true,
			SuggestedStatus:  502,
		}
	case containsAny(technical, "network is unreachable", "no route to host", "ENETUNREACH"):
		return ErrorInfo{
			Category:    CategoryNetworkUnreachable,
			UserMessage: "Network unreachable - cannot reach the server's network.",
			TroubleshootingSteps: []string{
				"Check your internet connection",
				"Verify network adapter is enabled and working",
				"Check routing table if using VPN",
				"Try disabling VPN temporarily",
				"Restart network adapter or router",
			},
			TechnicalDetails: technical,
			Retryable:        true,
			SuggestedStatus:  502,
		}
	case containsAny(technical, "proxy"):
		return ErrorInfo{
			Category:    CategoryProxy,
			UserMessage: "Proxy connection failed - cannot connect through the configured proxy.",
			TroubleshootingSteps: []string{
				"Check proxy configuration (HTTP_PROXY, HTTPS_PROXY environment variables)",
				"Verify proxy server is accessible",
				"Try disabling proxy temporarily",
				"Check proxy authentication credentials if required",
			},
			TechnicalDetails: technical,
			Retryable:        true,
			SuggestedStatus:  502,
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return classifyTimeout(err, technical)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return classifyTimeout(err, technical)
	}

	return ErrorInfo{
		Category:    CategoryUnknown,
		UserMessage: "Network request failed due to an unexpected error.",
		TroubleshootingSteps: []string{
			"Check your internet connection",
			"Verify firewall/antivirus settings",
			"Try again in a few moments",
			"Check the debug logs for more details",
		},
		TechnicalDetails: technical,
		Retryable:        true,
		SuggestedStatus:  502,
	}
}

func classifyTimeout(err error, technical string) ErrorInfo {
	// A connect-phase timeout has no bytes read yet; net/http doesn't
	// expose the phase directly, so the connect/read distinction is
	// inferred from the error text the transport attaches.
	if containsAny(technical, "connect", "dial") {
		return ErrorInfo{
			Category:    CategoryTimeoutConnect,
			UserMessage: "Connection timeout - server did not respond to connection attempt.",
			TroubleshootingSteps: []string{
				"Check your internet connection speed",
				"The server may be overloaded or slow to respond",
				"Try again in a few moments",
				"Check if firewall is delaying connections",
			},
			TechnicalDetails: technical,
			Retryable:        true,
			SuggestedStatus:  504,
		}
	}
	return ErrorInfo{
		Category:    CategoryTimeoutRead,
		UserMessage: "Read timeout - server stopped responding during data transfer.",
		TroubleshootingSteps: []string{
			"The server may be processing a complex request",
			"Check your internet connection stability",
			"Try again with a simpler request",
			"The service may be experiencing high load",
		},
		TechnicalDetails: technical,
		Retryable:        true,
		SuggestedStatus:  504,
	}
}

func containsAny(s string, needles ...string) bool {
	lower := strings.ToLower(s)
	for _, n := range needles {
		if strings.Contains(lower, strings.ToLower(n)) {
			return true
		}
	}
	return false
}
