// Package domain holds the core value types of the workflow engine:
// plans (nodes, edges), execution state, working-memory context, and
// the error taxonomy. It has no dependencies on the runtime or on any
// adapter; every other package speaks in these types.
package domain
