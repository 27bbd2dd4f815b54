package webhooks

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryLedger_ClaimIsExclusiveUntilLeaseExpires(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ledger := NewMemoryLedger()
	ledger.Now = func() time.Time { return now }
	ctx := context.Background()

	first, claimed, err := ledger.Claim(ctx, "GOOGLE", "d1", time.Minute)
	if err != nil || !claimed {
		t.Fatalf("expected first claim, got claimed=%v err=%v", claimed, err)
	}
	if _, claimed, _ := ledger.Claim(ctx, "GOOGLE", "d1", time.Minute); claimed {
		t.Fatalf("expected in-flight delivery to stay claimed")
	}

	now = now.Add(2 * time.Minute)
	second, claimed, err := ledger.Claim(ctx, "GOOGLE", "d1", time.Minute)
	if err != nil || !claimed {
		t.Fatalf("expected reclaim after lease expiry, got claimed=%v err=%v", claimed, err)
	}
	if second.Attempts != 2 || second.ClaimID == first.ClaimID {
		t.Fatalf("expected a fresh claim on attempt 2, got %#v", second)
	}
	// The stale claim no longer settles the record.
	if err := ledger.Complete(ctx, first.ClaimID); err != nil {
		t.Fatalf("complete stale: %v", err)
	}
	record, _ := ledger.Get("GOOGLE", "d1")
	if record.Status != DeliveryStatusProcessing {
		t.Fatalf("expected stale completion to be ignored, got %q", record.Status)
	}
}

func TestMemoryLedger_FailSchedulesRetryThenDead(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ledger := NewMemoryLedger()
	ledger.Now = func() time.Time { return now }
	ctx := context.Background()

	claim, _, _ := ledger.Claim(ctx, "MICROSOFT", "d1", time.Minute)
	if err := ledger.Fail(ctx, claim.ClaimID, errors.New("boom"), now.Add(10*time.Second), 2); err != nil {
		t.Fatalf("fail: %v", err)
	}
	record, _ := ledger.Get("MICROSOFT", "d1")
	if record.Status != DeliveryStatusRetryReady || record.LastError != "boom" {
		t.Fatalf("expected retry_ready with error, got %#v", record)
	}
	if _, claimed, _ := ledger.Claim(ctx, "MICROSOFT", "d1", time.Minute); claimed {
		t.Fatalf("expected retry to wait for next attempt time")
	}

	now = now.Add(11 * time.Second)
	claim, claimed, _ := ledger.Claim(ctx, "MICROSOFT", "d1", time.Minute)
	if !claimed {
		t.Fatalf("expected retry claim after next attempt time")
	}
	if err := ledger.Fail(ctx, claim.ClaimID, errors.New("boom again"), now.Add(time.Minute), 2); err != nil {
		t.Fatalf("fail: %v", err)
	}
	record, _ = ledger.Get("MICROSOFT", "d1")
	if record.Status != DeliveryStatusDead {
		t.Fatalf("expected dead after max attempts, got %q", record.Status)
	}
	if _, claimed, _ := ledger.Claim(ctx, "MICROSOFT", "d1", time.Minute); claimed {
		t.Fatalf("expected dead delivery to stay settled")
	}
}

func TestMemoryLedger_EvictsSettledRecordsAfterRetention(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ledger := NewMemoryLedger()
	ledger.Now = func() time.Time { return now }
	ledger.Retention = time.Minute
	ctx := context.Background()

	claim, _, _ := ledger.Claim(ctx, "GOOGLE", "d1", time.Minute)
	if err := ledger.Complete(ctx, claim.ClaimID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, claimed, _ := ledger.Claim(ctx, "GOOGLE", "d1", time.Minute); claimed {
		t.Fatalf("expected processed delivery to dedupe")
	}
	now = now.Add(2 * time.Minute)
	if _, claimed, _ := ledger.Claim(ctx, "GOOGLE", "d1", time.Minute); !claimed {
		t.Fatalf("expected evicted delivery to be claimable again")
	}
}

func TestMemoryLedger_Validation(t *testing.T) {
	ledger := NewMemoryLedger()
	if _, _, err := ledger.Claim(context.Background(), "", "d1", time.Minute); err == nil {
		t.Fatalf("expected provider validation error")
	}
	if err := ledger.Complete(context.Background(), " "); err == nil {
		t.Fatalf("expected claim id validation error")
	}
}

func TestBurstController_CoalescesWithinWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	controller := NewBurstController(BurstOptions{
		Mode:   BurstModeCoalesce,
		Window: 30 * time.Second,
		Now:    func() time.Time { return now },
	})
	ctx := context.Background()

	if decision, _ := controller.Allow(ctx, "conn_1:calendar"); !decision.Allow {
		t.Fatalf("expected first notification to pass")
	}
	decision, _ := controller.Allow(ctx, "conn_1:calendar")
	if decision.Allow || decision.Metadata["coalesced"] != true {
		t.Fatalf("expected second notification to coalesce, got %#v", decision)
	}
	if decision, _ := controller.Allow(ctx, "conn_1:email"); !decision.Allow {
		t.Fatalf("expected other scope to pass")
	}
	now = now.Add(31 * time.Second)
	if decision, _ := controller.Allow(ctx, "conn_1:calendar"); !decision.Allow {
		t.Fatalf("expected notification after window to pass")
	}
}

func TestBurstController_NoneModeAllowsEverything(t *testing.T) {
	controller := NewBurstController(BurstOptions{Mode: "whatever"})
	for i := 0; i < 3; i++ {
		if decision, _ := controller.Allow(context.Background(), "k"); !decision.Allow {
			t.Fatalf("expected none mode to allow all")
		}
	}
}

func TestExponentialRetryPolicy(t *testing.T) {
	policy := ExponentialRetryPolicy{Initial: time.Second, Max: 5 * time.Second}
	expected := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	for i, want := range expected {
		if got := policy.NextDelay(i + 1); got != want {
			t.Fatalf("attempt %d: expected %s, got %s", i+1, want, got)
		}
	}
}
