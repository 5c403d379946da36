// Package store holds the active policy and controls its lifecycle:
// validation, atomic activation, rule toggling, and preset loading.
//
// The store hands out immutable snapshots. Evaluations in flight keep the
// snapshot they started with; activation and toggling swap a pointer and
// never mutate a snapshot another goroutine may be reading.
package store
