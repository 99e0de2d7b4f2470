// Package core defines the shared data model and service abstractions for
// ContextMesh: the immutable Query, the WorkflowState threaded through one
// orchestration run, durable records (conversations, analytics, checkpoints)
// and the collaborator interfaces implemented by the vector, store and
// checkpoint packages.
//
// The package intentionally contains no orchestration logic. Agents and the
// workflow engine depend on core; core depends on nothing but logging.
package core
