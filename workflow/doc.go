// Package workflow implements the orchestration engine: a directed graph of
// named steps with guard predicates, dependency ordering and concurrent
// execution of independent steps. After every step the engine persists a
// snapshot of the workflow state, accumulates reported cost and appends the
// step to the agent trace in true completion order.
package workflow
