// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/runs to queue an ingestion run for an execution date.
//   - GET /v1/runs and /v1/runs/{run_id} for run bookkeeping.
package api
