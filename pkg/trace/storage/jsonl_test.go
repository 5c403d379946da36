package storage_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"atlasbridge-hq/atlasbridge/pkg/policy/document"
	"atlasbridge-hq/atlasbridge/pkg/trace"
	"atlasbridge-hq/atlasbridge/pkg/trace/storage"
)

func testDecision(promptID, sessionID string) *trace.Decision {
	return &trace.Decision{
		ID:             "d-" + promptID,
		SessionID:      sessionID,
		PromptID:       promptID,
		PromptType:     document.PromptYesNo,
		ActionType:     document.ActionAutoReply,
		ActionValue:    "y",
		Confidence:     document.ConfidenceHigh,
		AutonomyMode:   document.AutonomyFull,
		Explanation:    "test",
		PolicyHash:     "abc123",
		IdempotencyKey: trace.IdempotencyKey("abc123", promptID, sessionID),
	}
}

func TestJSONL_AppendAndList(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewJSONLStorage(storage.DefaultJSONLConfig(filepath.Join(dir, "trace.jsonl")))
	if err != nil {
		t.Fatalf("NewJSONLStorage() error: %v", err)
	}
	defer store.Close()

	log, err := trace.NewLog(context.Background(), store)
	if err != nil {
		t.Fatalf("NewLog() error: %v", err)
	}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := log.Append(ctx, testDecision(fmt.Sprintf("p-%03d", i), "s-001")); err != nil {
			t.Fatalf("Append() error: %v", err)
		}
	}

	entries, err := store.List(ctx, "")
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("len(entries) = %d, want 3", len(entries))
	}
	for i, entry := range entries {
		want := fmt.Sprintf("p-%03d", i)
		if entry.PromptID != want {
			t.Errorf("entry %d prompt_id = %q, want %q", i, entry.PromptID, want)
		}
	}
}

func TestJSONL_ChainSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trace.jsonl")
	ctx := context.Background()

	store, err := storage.NewJSONLStorage(storage.DefaultJSONLConfig(path))
	if err != nil {
		t.Fatalf("NewJSONLStorage() error: %v", err)
	}
	log, err := trace.NewLog(ctx, store)
	if err != nil {
		t.Fatalf("NewLog() error: %v", err)
	}
	if _, err := log.Append(ctx, testDecision("p-001", "s-001")); err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	// Reopen and continue the chain.
	store2, err := storage.NewJSONLStorage(storage.DefaultJSONLConfig(path))
	if err != nil {
		t.Fatalf("NewJSONLStorage() error: %v", err)
	}
	defer store2.Close()
	log2, err := trace.NewLog(ctx, store2)
	if err != nil {
		t.Fatalf("NewLog() error: %v", err)
	}
	if _, err := log2.Append(ctx, testDecision("p-002", "s-001")); err != nil {
		t.Fatalf("Append() error: %v", err)
	}

	report, err := log2.Verify(ctx)
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if !report.HashChainValid {
		t.Errorf("chain across reopen should verify valid: %+v", report.Components)
	}
	if report.TotalTraceEntries != 2 {
		t.Errorf("total_trace_entries = %d, want 2", report.TotalTraceEntries)
	}
}

func TestJSONL_RotationStartsFreshChain(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trace.jsonl")
	ctx := context.Background()

	store, err := storage.NewJSONLStorage(&storage.JSONLConfig{
		Path:        path,
		MaxBytes:    1, // force rotation on every append after the first
		MaxArchives: 3,
	})
	if err != nil {
		t.Fatalf("NewJSONLStorage() error: %v", err)
	}
	defer store.Close()

	log, err := trace.NewLog(ctx, store)
	if err != nil {
		t.Fatalf("NewLog() error: %v", err)
	}

	if _, err := log.Append(ctx, testDecision("p-001", "s-001")); err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	second, err := log.Append(ctx, testDecision("p-002", "s-001"))
	if err != nil {
		t.Fatalf("Append() error: %v", err)
	}

	if second.PrevHash != trace.GenesisHash {
		t.Errorf("post-rotation entry prev_hash = %q, want genesis", second.PrevHash)
	}
	if _, err := os.Stat(path + ".1"); err != nil {
		t.Errorf("expected archive %s.1 to exist: %v", path, err)
	}

	// The active file now holds a single valid chain.
	report, err := log.Verify(ctx)
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if !report.HashChainValid {
		t.Errorf("post-rotation chain should verify valid: %+v", report.Components)
	}
	if report.TotalTraceEntries != 1 {
		t.Errorf("active segment entries = %d, want 1", report.TotalTraceEntries)
	}
}

func TestJSONL_RotationDropsOldestArchive(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trace.jsonl")
	ctx := context.Background()

	store, err := storage.NewJSONLStorage(&storage.JSONLConfig{
		Path:        path,
		MaxBytes:    1,
		MaxArchives: 2,
	})
	if err != nil {
		t.Fatalf("NewJSONLStorage() error: %v", err)
	}
	defer store.Close()

	log, err := trace.NewLog(ctx, store)
	if err != nil {
		t.Fatalf("NewLog() error: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := log.Append(ctx, testDecision(fmt.Sprintf("p-%03d", i), "s-001")); err != nil {
			t.Fatalf("Append() error: %v", err)
		}
	}

	if _, err := os.Stat(path + ".1"); err != nil {
		t.Errorf("archive .1 should exist: %v", err)
	}
	if _, err := os.Stat(path + ".2"); err != nil {
		t.Errorf("archive .2 should exist: %v", err)
	}
	if _, err := os.Stat(path + ".3"); !os.IsNotExist(err) {
		t.Errorf("archive .3 should not exist beyond max_archives, stat err = %v", err)
	}
}

func TestJSONL_SkipsCorruptLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trace.jsonl")
	ctx := context.Background()

	store, err := storage.NewJSONLStorage(storage.DefaultJSONLConfig(path))
	if err != nil {
		t.Fatalf("NewJSONLStorage() error: %v", err)
	}
	defer store.Close()

	if err := store.Append(ctx, testDecision("p-001", "s-001")); err != nil {
		t.Fatalf("Append() error: %v", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.WriteString("{not json\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	f.Close()

	if err := store.Append(ctx, testDecision("p-002", "s-001")); err != nil {
		t.Fatalf("Append() error: %v", err)
	}

	entries, err := store.List(ctx, "")
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("len(entries) = %d, want 2 (corrupt line skipped)", len(entries))
	}
}

func TestMemory_FindByIdempotencyKey(t *testing.T) {
	store := storage.NewMemoryStorage()
	ctx := context.Background()

	d := testDecision("p-001", "s-001")
	if err := store.Append(ctx, d); err != nil {
		t.Fatalf("Append() error: %v", err)
	}

	found, err := store.FindByIdempotencyKey(ctx, d.IdempotencyKey)
	if err != nil {
		t.Fatalf("FindByIdempotencyKey() error: %v", err)
	}
	if found == nil || found.PromptID != "p-001" {
		t.Errorf("expected stored decision, got %+v", found)
	}
}
