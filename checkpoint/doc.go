// Package checkpoint implements the delegate-analysis checkpoint store with
// optimistic concurrency: writes are conditional on the last observed stage
// index, so concurrent runs for the same subject cannot both advance past the
// same stage. The Redis store is the production implementation; the in-memory
// store mirrors its semantics for tests.
package checkpoint
