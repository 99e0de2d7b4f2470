// Package store provides the persistence adapters: Postgres-backed
// implementations of the row, conversation, analytics and state-snapshot
// stores, plus in-memory equivalents for tests and single-process use.
package store
