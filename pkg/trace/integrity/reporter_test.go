package integrity_test

import (
	"context"
	"testing"

	"atlasbridge-hq/atlasbridge/pkg/policy/document"
	"atlasbridge-hq/atlasbridge/pkg/trace"
	"atlasbridge-hq/atlasbridge/pkg/trace/integrity"
	"atlasbridge-hq/atlasbridge/pkg/trace/storage"
)

func TestReporter_Verify(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	log, err := trace.NewLog(ctx, store)
	if err != nil {
		t.Fatalf("NewLog() error: %v", err)
	}

	for i := 0; i < 3; i++ {
		_, err := log.Append(ctx, &trace.Decision{
			ID:           "d-00" + string(rune('1'+i)),
			SessionID:    "s-001",
			PromptID:     "p-001",
			PromptType:   document.PromptYesNo,
			ActionType:   document.ActionRequireHuman,
			Confidence:   document.ConfidenceHigh,
			AutonomyMode: document.AutonomyFull,
		})
		if err != nil {
			t.Fatalf("Append() error: %v", err)
		}
	}

	reporter := integrity.NewReporter(log, nil)
	report, err := reporter.Verify(ctx)
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if !report.HashChainValid {
		t.Error("intact chain should verify valid")
	}

	store.Tamper(0, func(d *trace.Decision) { d.Explanation = "edited" })

	report, err = reporter.Verify(ctx)
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if report.HashChainValid {
		t.Error("tampered chain should verify invalid")
	}
}

func TestScheduler_EmptyScheduleIsNoOp(t *testing.T) {
	ctx := context.Background()
	log, err := trace.NewLog(ctx, storage.NewMemoryStorage())
	if err != nil {
		t.Fatalf("NewLog() error: %v", err)
	}

	s := integrity.NewScheduler(integrity.NewReporter(log, nil), "")
	if err := s.Start(ctx); err != nil {
		t.Errorf("Start() with empty schedule should succeed, got %v", err)
	}
	s.Stop()
}

func TestScheduler_RejectsBadExpression(t *testing.T) {
	ctx := context.Background()
	log, err := trace.NewLog(ctx, storage.NewMemoryStorage())
	if err != nil {
		t.Fatalf("NewLog() error: %v", err)
	}

	s := integrity.NewScheduler(integrity.NewReporter(log, nil), "not a cron expr")
	if err := s.Start(ctx); err == nil {
		t.Error("Start() should reject an invalid cron expression")
	}
}
