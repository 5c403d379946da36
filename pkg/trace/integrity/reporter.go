// Package integrity runs on-demand and scheduled verification of the
// decision trace hash chain.
package integrity

import (
	"context"
	"log/slog"

	"atlasbridge-hq/atlasbridge/pkg/telemetry/metrics"
	"atlasbridge-hq/atlasbridge/pkg/trace"
)

// Reporter produces integrity reports and feeds the verification result
// into metrics.
type Reporter struct {
	log     *trace.Log
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewReporter creates a reporter. metrics may be nil.
func NewReporter(log *trace.Log, m *metrics.Metrics) *Reporter {
	return &Reporter{
		log:     log,
		metrics: m,
		logger:  slog.Default().With("component", "trace.integrity"),
	}
}

// Verify re-walks the trace and returns the report. Verification never
// repairs anything; a broken chain is reported, not rewritten.
func (r *Reporter) Verify(ctx context.Context) (*trace.IntegrityReport, error) {
	report, err := r.log.Verify(ctx)
	if err != nil {
		return nil, err
	}

	r.metrics.RecordChainValid(report.HashChainValid)

	if report.HashChainValid {
		r.logger.Info("trace integrity verified",
			"total_entries", report.TotalTraceEntries,
			"trace_hash", report.TraceHashSummary,
		)
	} else {
		r.logger.Error("trace integrity verification FAILED",
			"total_entries", report.TotalTraceEntries,
			"invalid_components", len(report.Components)-1,
		)
	}
	return report, nil
}
