// Package runtime contains the plan executor: the state machine that
// drives one execution through its plan graph. It owns edge routing,
// condition evaluation, outcome mapping, the retry circuit breaker,
// escalation handling, and the persist-before-advance ordering that
// makes executions replayable.
package runtime
