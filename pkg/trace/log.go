package trace

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Log is the single writer for the decision trace. It serializes appends so
// hash-chain computation never interleaves, and delegates persistence to a
// Storage backend. Reads go straight to the backend and may run concurrently
// with appends.
type Log struct {
	mu       sync.Mutex
	storage  Storage
	lastHash string
	logger   *slog.Logger
}

// NewLog creates a trace log over the given backend and restores chain
// continuity from the backend's last entry.
func NewLog(ctx context.Context, storage Storage) (*Log, error) {
	last, err := storage.Last(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read trace head: %w", err)
	}

	lastHash := GenesisHash
	if last != nil {
		lastHash = last.Hash
	}

	return &Log{
		storage:  storage,
		lastHash: lastHash,
		logger:   slog.Default().With("component", "trace.log"),
	}, nil
}

// Append assigns prev_hash and hash to the decision and persists it. The
// input's PrevHash and Hash fields are overwritten; everything else is
// recorded as given. Returns the completed record.
func (l *Log) Append(ctx context.Context, d *Decision) (*Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.appendLocked(ctx, d)
}

// AppendIdempotent appends the decision unless one is already recorded
// under the given dedup key, in which case the recorded decision is
// returned with replayed=true. The lookup and the append share the writer
// lock, so concurrent retries of one prompt record exactly one entry.
func (l *Log) AppendIdempotent(ctx context.Context, key string, d *Decision) (*Decision, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	existing, err := l.storage.FindByIdempotencyKey(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, true, nil
	}

	recorded, err := l.appendLocked(ctx, d)
	if err != nil {
		return nil, false, err
	}
	return recorded, false, nil
}

func (l *Log) appendLocked(ctx context.Context, d *Decision) (*Decision, error) {
	if rotator, ok := l.storage.(Rotator); ok {
		rotated, err := rotator.MaybeRotate()
		if err != nil {
			l.logger.Warn("trace rotation failed, continuing on active segment", "error", err)
		} else if rotated {
			// A fresh segment starts a fresh chain.
			l.lastHash = GenesisHash
			l.logger.Info("trace segment rotated")
		}
	}

	entry := *d
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	entry.PrevHash = l.lastHash

	hash, err := ComputeHash(l.lastHash, &entry)
	if err != nil {
		return nil, err
	}
	entry.Hash = hash

	if err := l.storage.Append(ctx, &entry); err != nil {
		return nil, err
	}
	l.lastHash = hash

	l.logger.Debug("decision appended",
		"decision_id", entry.ID,
		"session_id", entry.SessionID,
		"action_type", entry.ActionType,
	)

	return &entry, nil
}

// List returns decisions in append order, optionally filtered by session id.
func (l *Log) List(ctx context.Context, sessionID string) ([]*Decision, error) {
	return l.storage.List(ctx, sessionID)
}

// Count returns the number of recorded decisions.
func (l *Log) Count(ctx context.Context) (int64, error) {
	return l.storage.Count(ctx)
}

// FindByIdempotencyKey returns the decision already recorded under the given
// dedup key, or nil when none exists.
func (l *Log) FindByIdempotencyKey(ctx context.Context, key string) (*Decision, error) {
	return l.storage.FindByIdempotencyKey(ctx, key)
}

// Verify re-walks the trace from genesis, recomputing every hash from its
// recorded fields. The first mismatch marks the chain invalid from that entry
// forward; verification is reported, never auto-repaired.
//
// Entries written without hash fields (by older versions) are treated as
// chain-start entries.
func (l *Log) Verify(ctx context.Context) (*IntegrityReport, error) {
	entries, err := l.storage.List(ctx, "")
	if err != nil {
		return nil, err
	}

	report := &IntegrityReport{
		OverallStatus:     StatusOK,
		HashChainValid:    true,
		TotalTraceEntries: int64(len(entries)),
		VerifiedAt:        time.Now().UTC(),
	}

	prevHash := GenesisHash
	chainBroken := false

	for i, entry := range entries {
		if entry.Hash == "" {
			// Legacy entry: restart the chain after it.
			prevHash = GenesisHash
			continue
		}

		entryOK := true

		if !chainBroken && entry.PrevHash != prevHash {
			entryOK = false
		}

		recomputed, err := ComputeHash(entry.PrevHash, entry)
		if err != nil {
			return nil, err
		}
		if recomputed != entry.Hash {
			entryOK = false
		}

		if !entryOK || chainBroken {
			// Everything from the first bad entry onward is untrusted.
			chainBroken = true
			report.HashChainValid = false
			report.OverallStatus = StatusInvalid
			report.Components = append(report.Components, ComponentStatus{
				Component: fmt.Sprintf("trace_entry_%d", i),
				Status:    StatusInvalid,
				Hash:      entry.Hash,
			})
		}

		prevHash = entry.Hash
	}

	if len(entries) > 0 {
		report.TraceHashSummary = entries[len(entries)-1].Hash
	}
	report.Components = append(report.Components, ComponentStatus{
		Component: "hash_chain",
		Status:    report.OverallStatus,
		Hash:      report.TraceHashSummary,
	})

	return report, nil
}

// Close releases the underlying storage backend.
func (l *Log) Close() error {
	return l.storage.Close()
}
