// Package storage provides decision trace persistence backends: an
// in-memory store for tests, an append-only JSONL file with size-based
// rotation, and a SQLite database.
package storage
