// Package ports defines the interfaces at the engine boundary:
// NodeExecutor (the work contract), StatePersistence and
// ExecutionLocker (durability and coordination), and PlanSource (where
// plan definitions come from). Adapters implement these; the runtime
// depends only on them. Reusable contract test suites for the
// persistence and locking ports live here so every adapter proves the
// same behavior.
package ports
