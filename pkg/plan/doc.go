// Package plan loads, validates, and caches workflow plan definitions.
// The loader accepts YAML or JSON; the validator rejects structurally
// illegal plans with a complete list of findings; the registry caches
// validated plans by (id, version) for the life of the process.
package plan
