// Package metric holds the Prometheus metrics for wamesh.
//
//   - prometheus.go: the per-process Registry and its /metrics handler
//   - collector.go: a collector that reports live sessions by state
//
// A Registry owns its own prometheus.Registry rather than the global
// default one so tests can build as many as they like.
package metric
