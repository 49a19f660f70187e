// Package observability exposes the engine's progress as Prometheus
// metrics, fed through the lifecycle hooks rather than instrumenting
// the runtime directly.
package observability
