// Package executors ships the five reference NodeExecutor variants
// (task, gate, concierge, qa, end), a registry of pluggable generation
// backends, and the binding that resolves which executor runs a node.
// Executors perform work, not control flow; all routing stays in the
// engine.
package executors
