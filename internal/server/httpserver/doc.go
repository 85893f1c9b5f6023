// Package httpserver provides the admin HTTP server for wamesh-server.
//
// It serves operational endpoints only:
//
//   - GET /healthz: liveness plus live session counts and build info
//   - GET /metrics: Prometheus exposition
//
// Requests pass through RequestID, Recover and AccessLog middleware.
package httpserver
