package approval_test

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"atlasbridge-hq/atlasbridge/pkg/approval"
	"atlasbridge-hq/atlasbridge/pkg/approval/store"
)

func submitInput() *approval.SubmitInput {
	return &approval.SubmitInput{
		ToolName:  "Bash",
		ToolInput: json.RawMessage(`{"command":"rm -rf build"}`),
		ToolUseID: "tu-001",
		CWD:       "/home/dev/work",
		SessionID: "s-001",
	}
}

func newCorrelator(t *testing.T, opts ...approval.Option) *approval.Correlator {
	t.Helper()
	c := approval.NewCorrelator(store.NewMemoryStore(), opts...)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestSubmitAndDecide_Allow(t *testing.T) {
	c := newCorrelator(t)
	ctx := context.Background()

	req, resolved, err := c.Submit(ctx, submitInput())
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	if req.Status != approval.StatusPending {
		t.Errorf("status = %s, want pending", req.Status)
	}

	updated := json.RawMessage(`{"command":"rm -rf build/tmp"}`)
	if err := c.Decide(ctx, req.ID, approval.DecisionAllow, updated, "", "looks safe"); err != nil {
		t.Fatalf("Decide() error: %v", err)
	}

	select {
	case res := <-resolved:
		if res.PermissionDecision != approval.DecisionAllow {
			t.Errorf("permission_decision = %q, want allow", res.PermissionDecision)
		}
		if string(res.UpdatedInput) != string(updated) {
			t.Errorf("updated_input = %s", res.UpdatedInput)
		}
	case <-time.After(time.Second):
		t.Fatal("held caller never received the resolution")
	}

	stored, err := c.Get(ctx, req.ID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if stored.Status != approval.StatusAllowed {
		t.Errorf("stored status = %s, want allowed", stored.Status)
	}
	if stored.DecidedAt == nil {
		t.Error("decided_at should be set")
	}
}

func TestDecide_SecondCallGetsAlreadyDecided(t *testing.T) {
	c := newCorrelator(t)
	ctx := context.Background()

	req, resolved, err := c.Submit(ctx, submitInput())
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}

	if err := c.Decide(ctx, req.ID, approval.DecisionAllow, nil, "", ""); err != nil {
		t.Fatalf("first Decide() error: %v", err)
	}
	<-resolved

	err = c.Decide(ctx, req.ID, approval.DecisionDeny, nil, "", "")
	var already *approval.AlreadyDecidedError
	if !errors.As(err, &already) {
		t.Errorf("second Decide() error = %v, want AlreadyDecidedError", err)
	}
}

func TestDecide_UnknownID(t *testing.T) {
	c := newCorrelator(t)

	err := c.Decide(context.Background(), "no-such-id", approval.DecisionAllow, nil, "", "")
	var notFound *approval.NotFoundError
	if !errors.As(err, &notFound) {
		t.Errorf("Decide() error = %v, want NotFoundError", err)
	}
}

func TestDecide_InvalidDecision(t *testing.T) {
	c := newCorrelator(t)
	ctx := context.Background()

	req, _, err := c.Submit(ctx, submitInput())
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}

	err = c.Decide(ctx, req.ID, "maybe", nil, "", "")
	var invalid *approval.InvalidDecisionError
	if !errors.As(err, &invalid) {
		t.Errorf("Decide() error = %v, want InvalidDecisionError", err)
	}
}

func TestTimeout_ResolvesToDeny(t *testing.T) {
	c := newCorrelator(t, approval.WithTimeout(30*time.Millisecond))
	ctx := context.Background()

	req, resolved, err := c.Submit(ctx, submitInput())
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}

	select {
	case res := <-resolved:
		if res.PermissionDecision != approval.DecisionDeny {
			t.Errorf("permission_decision = %q, want deny", res.PermissionDecision)
		}
		if res.Reason != approval.TimeoutReason {
			t.Errorf("reason = %q, want timeout reason", res.Reason)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout never resolved the held caller")
	}

	stored, err := c.Get(ctx, req.ID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if stored.Status != approval.StatusDenied {
		t.Errorf("stored status = %s, want denied", stored.Status)
	}

	// A late decide fails.
	err = c.Decide(ctx, req.ID, approval.DecisionAllow, nil, "", "")
	var already *approval.AlreadyDecidedError
	if !errors.As(err, &already) {
		t.Errorf("late Decide() error = %v, want AlreadyDecidedError", err)
	}
}

func TestDecide_CancelsTimeoutTimer(t *testing.T) {
	c := newCorrelator(t, approval.WithTimeout(50*time.Millisecond))
	ctx := context.Background()

	req, resolved, err := c.Submit(ctx, submitInput())
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	if err := c.Decide(ctx, req.ID, approval.DecisionAllow, nil, "", ""); err != nil {
		t.Fatalf("Decide() error: %v", err)
	}
	<-resolved

	// Wait past the timeout; a stray timer firing would flip the status.
	time.Sleep(100 * time.Millisecond)
	stored, err := c.Get(ctx, req.ID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if stored.Status != approval.StatusAllowed {
		t.Errorf("stored status = %s, a cancelled timer must not overwrite the decision", stored.Status)
	}
}

func TestDecide_ConcurrentCallsResolveExactlyOnce(t *testing.T) {
	c := newCorrelator(t)
	ctx := context.Background()

	req, resolved, err := c.Submit(ctx, submitInput())
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}

	const callers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			decision := approval.DecisionAllow
			if i%2 == 1 {
				decision = approval.DecisionDeny
			}
			if err := c.Decide(ctx, req.ID, decision, nil, "", ""); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if successes != 1 {
		t.Errorf("successful decides = %d, want exactly 1", successes)
	}

	select {
	case <-resolved:
	case <-time.After(time.Second):
		t.Fatal("held caller never resolved")
	}
	select {
	case res := <-resolved:
		t.Fatalf("resolution channel received a second value: %+v", res)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNotifications_PendingAndDecided(t *testing.T) {
	c := newCorrelator(t)
	ctx := context.Background()

	events, cancel := c.Subscribe()
	defer cancel()

	req, resolved, err := c.Submit(ctx, submitInput())
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	if err := c.Decide(ctx, req.ID, approval.DecisionDeny, nil, "", "not in this repo"); err != nil {
		t.Fatalf("Decide() error: %v", err)
	}
	<-resolved

	want := []string{"pending", "decided"}
	for _, wantType := range want {
		select {
		case n := <-events:
			if n.Type != wantType || n.RequestID != req.ID {
				t.Errorf("notification = %+v, want type %q for %s", n, wantType, req.ID)
			}
		case <-time.After(time.Second):
			t.Fatalf("missing %q notification", wantType)
		}
	}
}

func TestAlwaysAllowRule_PersistedBestEffort(t *testing.T) {
	path := filepath.Join(t.TempDir(), "permissions.json")
	sink, err := approval.NewFilePermissionList(path)
	if err != nil {
		t.Fatalf("NewFilePermissionList() error: %v", err)
	}

	c := newCorrelator(t, approval.WithPermissionSink(sink))
	ctx := context.Background()

	req, resolved, err := c.Submit(ctx, submitInput())
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	if err := c.Decide(ctx, req.ID, approval.DecisionAllow, nil, "Bash(rm -rf build)", ""); err != nil {
		t.Fatalf("Decide() error: %v", err)
	}
	<-resolved

	rules, err := sink.Rules()
	if err != nil {
		t.Fatalf("Rules() error: %v", err)
	}
	if len(rules) != 1 || rules[0] != "Bash(rm -rf build)" {
		t.Errorf("persisted rules = %v", rules)
	}
}

func TestFilePermissionList_Dedupes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "permissions.json")
	sink, err := approval.NewFilePermissionList(path)
	if err != nil {
		t.Fatalf("NewFilePermissionList() error: %v", err)
	}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := sink.AddAlwaysAllowRule(ctx, "Bash(make test)"); err != nil {
			t.Fatalf("AddAlwaysAllowRule() error: %v", err)
		}
	}
	rules, err := sink.Rules()
	if err != nil {
		t.Fatalf("Rules() error: %v", err)
	}
	if len(rules) != 1 {
		t.Errorf("rules = %v, want one deduplicated entry", rules)
	}
}

func TestList_FiltersByStatus(t *testing.T) {
	c := newCorrelator(t)
	ctx := context.Background()

	first, resolved, err := c.Submit(ctx, submitInput())
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	if _, _, err := c.Submit(ctx, submitInput()); err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	if err := c.Decide(ctx, first.ID, approval.DecisionAllow, nil, "", ""); err != nil {
		t.Fatalf("Decide() error: %v", err)
	}
	<-resolved

	pending, err := c.List(ctx, approval.StatusPending)
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("pending = %d, want 1", len(pending))
	}

	all, err := c.List(ctx, "")
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("all = %d, want 2", len(all))
	}
}
