package trace_test

import (
	"context"
	"fmt"
	"testing"

	"atlasbridge-hq/atlasbridge/pkg/policy/document"
	"atlasbridge-hq/atlasbridge/pkg/trace"
	"atlasbridge-hq/atlasbridge/pkg/trace/storage"
)

func makeDecision(promptID string) *trace.Decision {
	ruleID := "rule-1"
	return &trace.Decision{
		ID:             "d-" + promptID,
		SessionID:      "s-001",
		PromptID:       promptID,
		PromptType:     document.PromptYesNo,
		MatchedRuleID:  &ruleID,
		ActionType:     document.ActionAutoReply,
		ActionValue:    "y",
		Confidence:     document.ConfidenceHigh,
		AutonomyMode:   document.AutonomyFull,
		Explanation:    "test decision",
		PolicyHash:     "abc123",
		IdempotencyKey: trace.IdempotencyKey("abc123", promptID, "s-001"),
	}
}

func newLog(t *testing.T) (*trace.Log, *storage.MemoryStorage) {
	t.Helper()
	store := storage.NewMemoryStorage()
	log, err := trace.NewLog(context.Background(), store)
	if err != nil {
		t.Fatalf("NewLog() error: %v", err)
	}
	return log, store
}

func TestAppend_FirstEntryHasGenesisPrevHash(t *testing.T) {
	log, _ := newLog(t)

	d, err := log.Append(context.Background(), makeDecision("p-001"))
	if err != nil {
		t.Fatalf("Append() error: %v", err)
	}

	if d.PrevHash != trace.GenesisHash {
		t.Errorf("first entry prev_hash = %q, want genesis", d.PrevHash)
	}
	if len(d.Hash) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(d.Hash))
	}
}

func TestAppend_ChainIsContiguous(t *testing.T) {
	log, _ := newLog(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := log.Append(ctx, makeDecision(fmt.Sprintf("p-%03d", i))); err != nil {
			t.Fatalf("Append() error: %v", err)
		}
	}

	entries, err := log.List(ctx, "")
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(entries) != 5 {
		t.Fatalf("len(entries) = %d, want 5", len(entries))
	}

	if entries[0].PrevHash != trace.GenesisHash {
		t.Errorf("entry 0 prev_hash = %q, want genesis", entries[0].PrevHash)
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].PrevHash != entries[i-1].Hash {
			t.Errorf("entry %d: prev_hash should equal entry %d's hash", i, i-1)
		}
	}
}

func TestComputeHash_Deterministic(t *testing.T) {
	d := makeDecision("p-001")
	d.PrevHash = ""

	h1, err := trace.ComputeHash("", d)
	if err != nil {
		t.Fatalf("ComputeHash() error: %v", err)
	}
	h2, err := trace.ComputeHash("", d)
	if err != nil {
		t.Fatalf("ComputeHash() error: %v", err)
	}
	if h1 != h2 {
		t.Errorf("same input produced different hashes: %s != %s", h1, h2)
	}

	h3, err := trace.ComputeHash("different", d)
	if err != nil {
		t.Fatalf("ComputeHash() error: %v", err)
	}
	if h3 == h1 {
		t.Error("different prev_hash should produce a different hash")
	}
}

func TestVerify_EmptyTraceIsValid(t *testing.T) {
	log, _ := newLog(t)

	report, err := log.Verify(context.Background())
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if !report.HashChainValid {
		t.Error("empty trace should verify valid")
	}
	if report.OverallStatus != trace.StatusOK {
		t.Errorf("overall_status = %q, want ok", report.OverallStatus)
	}
	if report.TotalTraceEntries != 0 {
		t.Errorf("total_trace_entries = %d, want 0", report.TotalTraceEntries)
	}
}

func TestVerify_ValidChainPasses(t *testing.T) {
	log, _ := newLog(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := log.Append(ctx, makeDecision(fmt.Sprintf("p-%03d", i))); err != nil {
			t.Fatalf("Append() error: %v", err)
		}
	}

	report, err := log.Verify(ctx)
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if !report.HashChainValid {
		t.Errorf("valid chain reported invalid: %+v", report.Components)
	}
	if report.TotalTraceEntries != 5 {
		t.Errorf("total_trace_entries = %d, want 5", report.TotalTraceEntries)
	}
	if report.TraceHashSummary == "" {
		t.Error("trace_hash_summary should carry the chain head hash")
	}
}

func TestVerify_TamperInvalidatesFromEntryForward(t *testing.T) {
	log, store := newLog(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := log.Append(ctx, makeDecision(fmt.Sprintf("p-%03d", i))); err != nil {
			t.Fatalf("Append() error: %v", err)
		}
	}

	// Alter entry #1's recorded action type in storage.
	store.Tamper(1, func(d *trace.Decision) {
		d.ActionType = document.ActionDeny
	})

	report, err := log.Verify(ctx)
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if report.HashChainValid {
		t.Fatal("tampered chain reported valid")
	}
	if report.OverallStatus != trace.StatusInvalid {
		t.Errorf("overall_status = %q, want invalid", report.OverallStatus)
	}

	// Entries 1 and 2 are flagged; entry 0 is not.
	flagged := map[string]bool{}
	for _, c := range report.Components {
		flagged[c.Component] = true
	}
	if flagged["trace_entry_0"] {
		t.Error("entry before the tampered one should not be flagged")
	}
	if !flagged["trace_entry_1"] {
		t.Error("tampered entry should be flagged")
	}
	if !flagged["trace_entry_2"] {
		t.Error("entries after the tampered one should be flagged")
	}
}

func TestVerify_BrokenLinkageDetected(t *testing.T) {
	log, store := newLog(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := log.Append(ctx, makeDecision(fmt.Sprintf("p-%03d", i))); err != nil {
			t.Fatalf("Append() error: %v", err)
		}
	}

	// Rewrite entry #2 with a self-consistent hash but wrong linkage.
	store.Tamper(2, func(d *trace.Decision) {
		d.PrevHash = "forged"
		h, err := trace.ComputeHash(d.PrevHash, d)
		if err != nil {
			t.Fatalf("ComputeHash() error: %v", err)
		}
		d.Hash = h
	})

	report, err := log.Verify(ctx)
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if report.HashChainValid {
		t.Fatal("chain with forged linkage reported valid")
	}
}

func TestVerify_LegacyEntriesStartNewChain(t *testing.T) {
	store := storage.NewMemoryStorage()
	ctx := context.Background()

	// A legacy entry without hash fields, followed by a fresh chain.
	legacy := makeDecision("p-legacy")
	legacy.Hash = ""
	legacy.PrevHash = ""
	if err := store.Append(ctx, legacy); err != nil {
		t.Fatalf("Append() error: %v", err)
	}

	log, err := trace.NewLog(ctx, store)
	if err != nil {
		t.Fatalf("NewLog() error: %v", err)
	}
	if _, err := log.Append(ctx, makeDecision("p-001")); err != nil {
		t.Fatalf("Append() error: %v", err)
	}

	report, err := log.Verify(ctx)
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if !report.HashChainValid {
		t.Errorf("legacy entry should be tolerated as chain start: %+v", report.Components)
	}
}

func TestFindByIdempotencyKey(t *testing.T) {
	log, _ := newLog(t)
	ctx := context.Background()

	d := makeDecision("p-001")
	appended, err := log.Append(ctx, d)
	if err != nil {
		t.Fatalf("Append() error: %v", err)
	}

	found, err := log.FindByIdempotencyKey(ctx, d.IdempotencyKey)
	if err != nil {
		t.Fatalf("FindByIdempotencyKey() error: %v", err)
	}
	if found == nil {
		t.Fatal("expected decision for known idempotency key")
	}
	if found.Hash != appended.Hash {
		t.Errorf("found wrong decision: hash %s != %s", found.Hash, appended.Hash)
	}

	missing, err := log.FindByIdempotencyKey(ctx, "nope")
	if err != nil {
		t.Fatalf("FindByIdempotencyKey() error: %v", err)
	}
	if missing != nil {
		t.Error("unknown key should return nil")
	}
}

func TestList_SessionFilter(t *testing.T) {
	log, _ := newLog(t)
	ctx := context.Background()

	d1 := makeDecision("p-001")
	d2 := makeDecision("p-002")
	d2.SessionID = "s-002"
	if _, err := log.Append(ctx, d1); err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	if _, err := log.Append(ctx, d2); err != nil {
		t.Fatalf("Append() error: %v", err)
	}

	entries, err := log.List(ctx, "s-002")
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(entries) != 1 || entries[0].PromptID != "p-002" {
		t.Errorf("session filter returned wrong entries: %+v", entries)
	}
}

func TestAppend_ConcurrentAppendsStayChained(t *testing.T) {
	log, _ := newLog(t)
	ctx := context.Background()

	const n = 50
	done := make(chan error, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			_, err := log.Append(ctx, makeDecision(fmt.Sprintf("p-%03d", i)))
			done <- err
		}(i)
	}
	for i := 0; i < n; i++ {
		if err := <-done; err != nil {
			t.Fatalf("Append() error: %v", err)
		}
	}

	report, err := log.Verify(ctx)
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if !report.HashChainValid {
		t.Error("concurrent appends broke the hash chain")
	}
	if report.TotalTraceEntries != n {
		t.Errorf("total_trace_entries = %d, want %d", report.TotalTraceEntries, n)
	}
}
