// Package observability provides monitoring and debugging capabilities for
// Warden through metrics, structured logging, and distributed tracing.
//
// The package implements the three pillars of observability:
//
//  1. Metrics - Quantitative measurements using Prometheus
//  2. Logging - Structured slog-based logs with sensitive data redaction
//  3. Tracing - Distributed tracing with OpenTelemetry
//
// Metrics cover tool executions, policy decisions, sandbox invocations,
// job dispatch, commit-gate outcomes, and memory enforcement. Logging
// automatically correlates records with the run, job, tenant, and agent ids
// carried in the request context, and redacts secret-shaped values before
// they reach the output stream.
package observability
