// Package export writes decision trace entries to external formats for
// audit review and offline analysis.
package export
