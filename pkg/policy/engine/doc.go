// Package engine evaluates prompts against the active policy and records
// the outcome in the decision trace.
//
// The matcher is pure first-match over an immutable snapshot; the
// dispatcher turns a match (or the policy defaults) into exactly one
// recorded Decision, deduplicating retried evaluations by idempotency key.
package engine
