// Package trace implements the append-only, hash-chained decision trace.
//
// Every policy decision is recorded exactly once. Each record carries the
// hash of its predecessor and its own hash over a canonical serialization,
// forming a chain whose integrity can be verified offline. Appends are
// strictly serialized through a single Log writer; reads are safe for any
// number of concurrent callers.
package trace
