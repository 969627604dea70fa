// Package api hosts the operator HTTP server. Routes:
//   - GET /healthz for liveness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/scans/{scan_id}/top for the most viral items of a scan.
package api
