// Package agent implements the workflow steps of the query pipeline: intent
// classification, context retrieval, structured querying, long-running
// delegation and answer synthesis. Each agent is one workflow.Step with a
// narrow, independently testable contract and exclusive write access to its
// own fields on the workflow state.
package agent
