// Package telemetry groups the gateway's observability surface.
//
// Currently this is just Prometheus metrics (pkg/telemetry/metrics);
// request logging goes through the standard log/slog logger threaded
// through config and handed to each component at startup instead of a
// separate telemetry-owned logger.
package telemetry
