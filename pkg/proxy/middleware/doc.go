// Package middleware provides HTTP middleware for cross-cutting concerns
// shared by both client dialects the gateway serves.
//
// This package implements middleware functions that handle common functionality
// across all HTTP requests including request ID generation, logging, CORS,
// panic recovery, and timeout enforcement. Recovery and timeout render their
// error body in whichever dialect's shape the request path implies.
//
// # Middleware Chain
//
// Middleware functions are chained in a specific order for optimal functionality:
//
//	handler = Recovery(Logging(RequestID(CORS(Timeout(handler)))))
//
// Order (innermost to outermost):
//  1. Timeout: Enforce per-request timeout
//  2. CORS: Add Cross-Origin Resource Sharing headers
//  3. RequestID: Generate and propagate request ID
//  4. Logging: Log request/response details
//  5. Recovery: Recover from panics
//
// # Middleware Types
//
// Request tracking:
//   - RequestIDMiddleware: Generate unique request ID, add to context and response headers
//   - LoggingMiddleware: Log request/response with method, path, status, latency
//
// Security and resilience:
//   - CORSMiddleware: Add CORS headers based on configuration
//   - RecoveryMiddleware: Recover from panics, return 500 error
//   - TimeoutMiddleware: Enforce per-request timeout from configuration
//
// # Request ID
//
// RequestIDMiddleware keeps a client-supplied X-Request-ID, or generates one
// from 16 random bytes, hex-encoded:
//
//	X-Request-ID: 3f9a1c0e5b7d42e8a6c4f0b1d2e3f4a5
//
// The request ID is:
//   - Added to context for handler access
//   - Included in response headers
//   - Logged with the request-completed and panic log lines
//   - Not forwarded on upstream requests
//
// # Logging
//
// LoggingMiddleware uses structured logging (log/slog) to record request details:
//
//	{
//	  "time": "2025-11-16T10:30:00Z",
//	  "level": "INFO",
//	  "msg": "request completed",
//	  "method": "POST",
//	  "path": "/v1/chat/completions",
//	  "status": 200,
//	  "latency_ms": 1250,
//	  "request_id": "3f9a1c0e5b7d42e8a6c4f0b1d2e3f4a5",
//	  "user_agent": "openai-python/1.0.0"
//	}
//
// # CORS
//
// CORSMiddleware adds Cross-Origin Resource Sharing headers for web clients:
//
//	Access-Control-Allow-Origin: https://example.com
//	Access-Control-Allow-Methods: GET, POST, OPTIONS
//	Access-Control-Allow-Headers: Authorization, Content-Type
//	Access-Control-Max-Age: 3600
//
// CORS configuration is loaded from the Configuration System:
//
//	server:
//	  cors:
//	    enabled: true
//	    allowed_origins: ["https://example.com", "https://app.example.com"]
//	    allowed_methods: ["GET", "POST", "OPTIONS"]
//	    allowed_headers: ["Authorization", "Content-Type"]
//	    max_age: 3600
//
// # Recovery
//
// RecoveryMiddleware catches panics in handlers and converts them to HTTP 500
// errors, in the OpenAI shape:
//
//	{
//	  "error": {
//	    "message": "An internal error occurred. Please try again later.",
//	    "type": "upstream_transport",
//	    "code": "upstream_transport"
//	  }
//	}
//
// or, for /v1/messages paths, in the Anthropic error shape.
//
// The panic stack trace is logged but not exposed to clients for security.
//
// # Timeout
//
// TimeoutMiddleware enforces per-request timeout using context.WithTimeout:
//
//	ctx, cancel := context.WithTimeout(r.Context(), timeout)
//	defer cancel()
//
// If the timeout is exceeded:
//   - Request context is cancelled
//   - Handler receives context.DeadlineExceeded
//   - Client receives 504 Gateway Timeout
//
// # Context Values
//
// Middleware stores values in context for handler access:
//
//	type contextKey string
//
//	const (
//	    RequestIDKey contextKey = "request_id"
//	    StartTimeKey contextKey = "start_time"
//	)
//
// Handlers can retrieve values:
//
//	requestID := r.Context().Value(middleware.RequestIDKey).(string)
//
// # Performance
//
// Middleware overhead is minimal:
//
//   - <1ms total middleware execution time
//   - Request ID generation: <10µs (16 random bytes)
//   - Logging: <100µs (structured JSON)
//   - CORS: <10µs (header writing)
//   - Recovery: No overhead when no panic occurs
//   - Timeout: <10µs (context creation)
//
// # Thread Safety
//
// All middleware functions are thread-safe and can be called concurrently
// from multiple goroutines.
package middleware
