package webhooks

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-crm-sync/core"
	"github.com/goliatone/go-crm-sync/store/memory"
)

type recordingTrigger struct {
	mu       sync.Mutex
	requests []core.RunSyncRequest
	err      error
}

func (r *recordingTrigger) EnqueueSync(_ context.Context, req core.RunSyncRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
	return r.err
}

func (r *recordingTrigger) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.requests)
}

type processorFixture struct {
	processor *Processor
	ledger    *MemoryLedger
	trigger   *recordingTrigger
	conns     *memory.ConnectionStore
	conn      core.Connection
	token     string
	now       time.Time
}

func newProcessorFixture(t *testing.T) *processorFixture {
	t.Helper()
	f := &processorFixture{
		ledger:  NewMemoryLedger(),
		trigger: &recordingTrigger{},
		conns:   memory.NewConnectionStore(),
		now:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.ledger.Now = func() time.Time { return f.now }

	conn, err := f.conns.Upsert(context.Background(), core.Connection{
		UserID:   "user_1",
		Provider: core.ProviderGoogle,
		Status:   core.ConnectionStatusActive,
		Settings: core.DefaultSettings(),
	})
	if err != nil {
		t.Fatalf("seed connection: %v", err)
	}
	f.conn = conn

	tokens := ChannelTokens{Secret: "s3cret"}
	f.token, err = tokens.Sign(conn.ID)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	f.processor = NewProcessor(tokens, f.ledger, f.conns, f.trigger)
	f.processor.Now = func() time.Time { return f.now }
	f.processor.MaxAttempts = 2
	return f
}

func (f *processorFixture) notification(deliveryID string) Notification {
	return Notification{
		Provider:   core.ProviderGoogle,
		DeliveryID: deliveryID,
		Token:      f.token,
		Scope:      core.SyncScopeCalendar,
	}
}

func TestProcessor_TriggersWebhookSyncAndDedupes(t *testing.T) {
	f := newProcessorFixture(t)
	ctx := context.Background()

	result, err := f.processor.Process(ctx, f.notification("chan:1"))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if result.StatusCode != http.StatusAccepted || !result.Accepted {
		t.Fatalf("expected accepted result, got %#v", result)
	}
	if f.trigger.count() != 1 {
		t.Fatalf("expected one sync trigger, got %d", f.trigger.count())
	}
	req := f.trigger.requests[0]
	if req.UserID != "user_1" || req.Provider != core.ProviderGoogle {
		t.Fatalf("unexpected sync request %#v", req)
	}
	if req.Scope != core.SyncScopeCalendar || req.Trigger != core.SyncTriggerWebhook {
		t.Fatalf("expected calendar webhook sync, got %#v", req)
	}

	result, err = f.processor.Process(ctx, f.notification("chan:1"))
	if err != nil {
		t.Fatalf("process duplicate: %v", err)
	}
	if result.Metadata["deduped"] != true {
		t.Fatalf("expected duplicate to be deduped, got %#v", result.Metadata)
	}
	if f.trigger.count() != 1 {
		t.Fatalf("expected duplicate not to trigger a sync")
	}
}

func TestProcessor_RejectsBadToken(t *testing.T) {
	f := newProcessorFixture(t)
	n := f.notification("chan:1")
	n.Token = "conn.forged"

	result, err := f.processor.Process(context.Background(), n)
	if err == nil {
		t.Fatalf("expected token error")
	}
	if result.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", result.StatusCode)
	}
	if _, ok := f.ledger.Get("GOOGLE", "chan:1"); ok {
		t.Fatalf("expected rejected notification not to be claimed")
	}
}

func TestProcessor_HandshakeDoesNotTrigger(t *testing.T) {
	f := newProcessorFixture(t)
	n := f.notification("chan:0")
	n.Handshake = true

	result, err := f.processor.Process(context.Background(), n)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if result.StatusCode != http.StatusOK || result.Metadata["handshake"] != true {
		t.Fatalf("expected handshake ack, got %#v", result)
	}
	if f.trigger.count() != 0 {
		t.Fatalf("expected handshake not to trigger a sync")
	}
}

func TestProcessor_IgnoresInactiveAndUnknownConnections(t *testing.T) {
	f := newProcessorFixture(t)
	ctx := context.Background()

	conn := f.conn
	conn.Status = core.ConnectionStatusExpired
	if _, err := f.conns.Update(ctx, conn); err != nil {
		t.Fatalf("pause: %v", err)
	}
	result, err := f.processor.Process(ctx, f.notification("chan:1"))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if result.Metadata["ignored"] != "inactive" {
		t.Fatalf("expected inactive ignore, got %#v", result.Metadata)
	}

	token, err := f.processor.Tokens.Sign("missing")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	n := f.notification("chan:2")
	n.Token = token
	result, err = f.processor.Process(ctx, n)
	if err != nil {
		t.Fatalf("process unknown: %v", err)
	}
	if result.Metadata["ignored"] != "unknown_connection" {
		t.Fatalf("expected unknown connection ignore, got %#v", result.Metadata)
	}

	n = f.notification("chan:3")
	n.Provider = core.ProviderMicrosoft
	conn.Status = core.ConnectionStatusActive
	if _, err := f.conns.Update(ctx, conn); err != nil {
		t.Fatalf("resume: %v", err)
	}
	result, err = f.processor.Process(ctx, n)
	if err != nil {
		t.Fatalf("process mismatch: %v", err)
	}
	if result.Metadata["ignored"] != "provider_mismatch" {
		t.Fatalf("expected provider mismatch ignore, got %#v", result.Metadata)
	}
	if f.trigger.count() != 0 {
		t.Fatalf("expected ignored notifications not to trigger")
	}
}

func TestProcessor_CoalescesBursts(t *testing.T) {
	f := newProcessorFixture(t)
	f.processor.Burst = NewBurstController(BurstOptions{
		Mode: BurstModeCoalesce,
		Now:  func() time.Time { return f.now },
	})
	ctx := context.Background()

	for _, id := range []string{"chan:1", "chan:2", "chan:3"} {
		if _, err := f.processor.Process(ctx, f.notification(id)); err != nil {
			t.Fatalf("process %s: %v", id, err)
		}
	}
	if f.trigger.count() != 1 {
		t.Fatalf("expected burst to collapse into one sync, got %d", f.trigger.count())
	}
	record, _ := f.ledger.Get("GOOGLE", "chan:3")
	if record.Status != DeliveryStatusProcessed {
		t.Fatalf("expected coalesced delivery to be settled, got %q", record.Status)
	}
}

func TestProcessor_SyncInProgressCountsAsAccepted(t *testing.T) {
	f := newProcessorFixture(t)
	f.trigger.err = core.NewSyncAlreadyInProgressError("user_1", core.ProviderGoogle)

	result, err := f.processor.Process(context.Background(), f.notification("chan:1"))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if result.StatusCode != http.StatusAccepted {
		t.Fatalf("expected accepted, got %d", result.StatusCode)
	}
}

func TestProcessor_TriggerFailureRetriesThenDies(t *testing.T) {
	f := newProcessorFixture(t)
	f.trigger.err = errors.New("queue down")
	ctx := context.Background()

	if _, err := f.processor.Process(ctx, f.notification("chan:1")); err == nil {
		t.Fatalf("expected trigger failure")
	}
	record, _ := f.ledger.Get("GOOGLE", "chan:1")
	if record.Status != DeliveryStatusRetryReady || record.NextAttemptAt == nil {
		t.Fatalf("expected retry_ready, got %#v", record)
	}

	f.now = f.now.Add(time.Minute)
	if _, err := f.processor.Process(ctx, f.notification("chan:1")); err == nil {
		t.Fatalf("expected second trigger failure")
	}
	record, _ = f.ledger.Get("GOOGLE", "chan:1")
	if record.Status != DeliveryStatusDead {
		t.Fatalf("expected dead after max attempts, got %q", record.Status)
	}

	f.trigger.err = nil
	result, err := f.processor.Process(ctx, f.notification("chan:1"))
	if err != nil {
		t.Fatalf("process dead delivery: %v", err)
	}
	if result.Metadata["deduped"] != true {
		t.Fatalf("expected dead delivery to dedupe, got %#v", result.Metadata)
	}
}

func TestProcessor_RequiresCollaborators(t *testing.T) {
	var p *Processor
	if _, err := p.Process(context.Background(), Notification{}); !errors.Is(err, errProcessorMisconfigured) {
		t.Fatalf("expected misconfiguration error, got %v", err)
	}
}
