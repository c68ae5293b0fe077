// Package server provides the main HTTP proxy server for relay traffic.
//
// This package ties together the request pipeline (translation, resolution,
// the account pool, the upstream client, and the dialect re-emitters) and
// provides server lifecycle management including start, shutdown, and
// health checks.
//
// # Basic Usage
//
// Creating and starting a server:
//
//	deps := &handlers.Deps{ /* resolver, pool, client, ... */ }
//	keys := apikeys.NewMiddleware(apiKeyManager, logger)
//	collector := metrics.NewCollector(&cfg.Metrics, nil) // nil if disabled
//	srv := server.NewServer(cfg.Server, deps, keys, collector, logger)
//	if err := srv.Start(context.Background()); err != nil {
//	    log.Fatal(err)
//	}
//
// # Graceful Shutdown
//
// The server handles graceful shutdown automatically when receiving SIGTERM
// or SIGINT, or it can be triggered programmatically via Shutdown.
//
// # Routes
//
//   - POST /v1/chat/completions - OpenAI-dialect chat completion
//   - POST /v1/messages - Anthropic-dialect messages
//   - GET  /v1/models - model listing
//   - GET  / and /health - liveness probe
//   - GET  /ready - readiness probe (account pool health)
//   - GET  /metrics - Prometheus metrics, mounted only when enabled
//
// # Middleware Chain
//
// Requests pass through the following middleware (innermost to outermost):
//  1. Timeout: enforces a per-request deadline
//  2. CORS: adds cross-origin headers
//  3. RequestID: generates a request ID for tracing
//  4. Logging: logs request/response details
//  5. Recovery: recovers from panics and returns a 500
//
// API key validation runs inside the mux, ahead of the /v1/ handlers only —
// the liveness and readiness probes stay unauthenticated for load balancers.
package server
