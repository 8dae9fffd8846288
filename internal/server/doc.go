// Package server implements the switchmap inspector: a small HTTP server
// that drives a pipeline and streams its output changes.
//
// Routes:
//
//	GET  /healthz   liveness probe
//	GET  /output    current snapshot as JSON
//	POST /input     {"query": 3} sets the pipeline query
//	GET  /ws        websocket stream of snapshot and change messages
//	GET  /metrics   Prometheus exposition (when a registry is configured)
package server
