// Package vector provides the retrieval substrate: document chunking, an
// in-memory cosine index for tests and small deployments, a pgvector-backed
// index for production, keyword search and hybrid score blending.
package vector
