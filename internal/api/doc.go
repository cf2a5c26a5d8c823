// Package api hosts the operator HTTP surface. Routes:
//   - GET /healthz and /readyz for probes; ready once a poll cycle finished.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/state for the dedup ledger size, watermark and last cycle.
package api
