// Package api serves the crawler's snapshot files over a read-only HTTP interface. Routes:
//   - GET /healthz for liveness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/draws, /v1/draws/latest and /v1/draws/{round} for the draw history.
//   - GET /v1/stores and /v1/stores/retired for the store registries.
package api
