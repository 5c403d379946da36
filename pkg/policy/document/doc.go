// Package document defines the persisted policy document model: the ordered
// rule set, match criteria, actions, and policy-wide defaults, together with
// YAML parsing, serialization, and structural validation.
//
// A Document is immutable once loaded. Round-tripping a document through
// Parse → Serialize → Parse preserves rule order, ids, and evaluation
// semantics.
package document
