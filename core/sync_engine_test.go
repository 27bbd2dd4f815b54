package core_test

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-crm-sync/core"
	"github.com/goliatone/go-crm-sync/providers/devkit"
)

func TestRunSync_CreatesMirrorsAndRerunIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.connect(t, "usr_1")
	h.google.SetEvents(
		devkit.RemoteEventFixture("evt-1", baseTime.Add(24*time.Hour), baseTime),
		devkit.RemoteEventFixture("evt-2", baseTime.Add(48*time.Hour), baseTime),
	)
	h.google.SetEmails(
		devkit.RemoteEmailFixture("msg-1", "conv-1", "client@example.test", baseTime),
		devkit.RemoteEmailFixture("msg-2", "conv-1", "advisor@example.test", baseTime),
	)

	first := h.runSync(t, "usr_1", core.SyncScopeFull)
	if first.Status != core.SyncLogStatusCompleted {
		t.Fatalf("expected completed log, got %q (%s)", first.Status, first.FailureMessage)
	}
	if first.ItemsProcessed != 4 || first.ItemsCreated != 4 || first.ErrorCount != 0 {
		t.Fatalf("unexpected first run counters %+v", first)
	}
	if first.SyncType != core.SyncScopeFull || first.Trigger != core.SyncTriggerManual {
		t.Fatalf("unexpected log metadata %+v", first)
	}

	ctx := context.Background()
	eventsBefore, _, _ := h.svc.ListCalendarEvents(ctx, core.CalendarEventFilter{UserID: "usr_1"})
	emailsBefore, _, _ := h.svc.ListEmails(ctx, core.EmailFilter{UserID: "usr_1"})

	second := h.runSync(t, "usr_1", core.SyncScopeFull)
	if second.ItemsProcessed != 4 || second.ItemsCreated != 0 || second.ItemsUpdated != 0 {
		t.Fatalf("expected unchanged re-delivery to be a noop, got %+v", second)
	}
	eventsAfter, _, _ := h.svc.ListCalendarEvents(ctx, core.CalendarEventFilter{UserID: "usr_1"})
	emailsAfter, _, _ := h.svc.ListEmails(ctx, core.EmailFilter{UserID: "usr_1"})
	if !reflect.DeepEqual(eventsBefore, eventsAfter) || !reflect.DeepEqual(emailsBefore, emailsAfter) {
		t.Fatalf("expected mirrors to be unchanged by an idempotent rerun")
	}

	conn, _ := h.svc.GetConnection(ctx, "usr_1", core.ProviderGoogle)
	if conn.LastSyncAt == nil || conn.LastSyncError != "" {
		t.Fatalf("expected last sync recorded on connection, got %+v", conn)
	}
	for _, event := range eventsAfter {
		if event.SyncDirection != core.SyncDirectionInbound {
			t.Fatalf("expected inbound direction tag, got %q", event.SyncDirection)
		}
	}
}

func TestRunSync_RemoteUpdateOverwritesButKeepsLinks(t *testing.T) {
	h := newHarness(t)
	h.connect(t, "usr_1")
	h.google.SetEvents(devkit.RemoteEventFixture("evt-1", baseTime.Add(time.Hour), baseTime))
	h.runSync(t, "usr_1", core.SyncScopeCalendar)

	ctx := context.Background()
	stored, err := h.stores.Events.GetByExternalID(ctx, "usr_1", "evt-1")
	if err != nil {
		t.Fatalf("load mirror: %v", err)
	}
	if _, err := h.svc.LinkCalendarEvent(ctx, "usr_1", stored.ID, core.LinkPatch{HouseholdID: ptr("hh_1")}); err != nil {
		t.Fatalf("link: %v", err)
	}

	changed := devkit.RemoteEventFixture("evt-1", baseTime.Add(time.Hour), baseTime.Add(time.Minute))
	changed.Subject = "Moved review"
	h.google.SetEvents(changed)
	log := h.runSync(t, "usr_1", core.SyncScopeCalendar)
	if log.ItemsUpdated != 1 {
		t.Fatalf("expected one update, got %+v", log)
	}
	updated, _ := h.stores.Events.GetByExternalID(ctx, "usr_1", "evt-1")
	if updated.Subject != "Moved review" {
		t.Fatalf("expected remote subject applied, got %q", updated.Subject)
	}
	if updated.LinkedHouseholdID == nil || *updated.LinkedHouseholdID != "hh_1" {
		t.Fatalf("expected household link preserved")
	}
	if !updated.LastSyncedAt.Equal(h.clock.Now()) || updated.ID != stored.ID {
		t.Fatalf("unexpected mirror identity or sync stamp %+v", updated)
	}
}

func TestRunSync_DuplicateExternalIDInBatchKeepsLatest(t *testing.T) {
	h := newHarness(t)
	h.connect(t, "usr_1")
	older := devkit.RemoteEventFixture("evt-dup", baseTime.Add(time.Hour), baseTime)
	older.Subject = "older"
	newer := devkit.RemoteEventFixture("evt-dup", baseTime.Add(time.Hour), baseTime.Add(time.Minute))
	newer.Subject = "newer"
	h.google.SetEvents(newer, older)

	log := h.runSync(t, "usr_1", core.SyncScopeCalendar)
	if log.ItemsProcessed != 2 || log.ItemsCreated != 1 || log.ErrorCount != 0 {
		t.Fatalf("unexpected counters %+v", log)
	}
	events, total, err := h.svc.ListCalendarEvents(context.Background(), core.CalendarEventFilter{UserID: "usr_1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 1 || events[0].Subject != "newer" {
		t.Fatalf("expected a single mirror with the newest content, got %+v", events)
	}
}

func TestRunSync_PartialFailureRecordsItemError(t *testing.T) {
	h := newHarness(t)
	h.connect(t, "usr_1")
	remote := make([]core.RemoteEvent, 0, 10)
	for i := 1; i <= 10; i++ {
		event := devkit.RemoteEventFixture(fmt.Sprintf("evt-%02d", i), baseTime.Add(time.Duration(i)*time.Hour), baseTime)
		if i == 5 {
			event.StartAt = time.Time{}
		}
		remote = append(remote, event)
	}
	h.google.SetEvents(remote...)

	log := h.runSync(t, "usr_1", core.SyncScopeCalendar)
	if log.Status != core.SyncLogStatusCompleted {
		t.Fatalf("item failures must not fail the run, got %q", log.Status)
	}
	if log.ItemsProcessed != 10 || log.ItemsCreated != 9 || log.ErrorCount != 1 {
		t.Fatalf("unexpected counters %+v", log)
	}
	if len(log.Errors) != 1 || log.Errors[0].ItemID != "evt-05" {
		t.Fatalf("expected error for evt-05, got %+v", log.Errors)
	}
}

func TestRunSync_RemoteDeletionSoftDeletes(t *testing.T) {
	h := newHarness(t)
	h.connect(t, "usr_1")
	h.google.SetEvents(devkit.RemoteEventFixture("evt-1", baseTime.Add(time.Hour), baseTime))
	h.runSync(t, "usr_1", core.SyncScopeCalendar)

	h.google.SetEvents(core.RemoteEvent{ExternalID: "evt-1", Deleted: true, UpdatedAt: baseTime.Add(time.Minute)})
	log := h.runSync(t, "usr_1", core.SyncScopeCalendar)
	if log.ItemsDeleted != 1 {
		t.Fatalf("expected one deletion, got %+v", log)
	}
	stats, err := h.svc.GetStats(context.Background(), "usr_1")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalEvents != 0 {
		t.Fatalf("deleted events must not count, got %d", stats.TotalEvents)
	}
}

func TestRunSync_NonActiveConnectionIsRejectedWithoutLog(t *testing.T) {
	h := newHarness(t)
	h.connect(t, "usr_1")
	if _, err := h.svc.Disconnect(context.Background(), "usr_1", core.ProviderGoogle); err != nil {
		t.Fatalf("disconnect: %v", err)
	}

	_, err := h.svc.RunSync(context.Background(), core.RunSyncRequest{UserID: "usr_1", Provider: core.ProviderGoogle})
	assertErrorCode(t, err, core.ErrorIntegrationNotActive)

	logs, err := h.svc.ListSyncLogs(context.Background(), "usr_1", nil)
	if err != nil {
		t.Fatalf("list logs: %v", err)
	}
	if len(logs) != 0 {
		t.Fatalf("rejected runs must not write logs, got %d", len(logs))
	}

	_, err = h.svc.RunSync(context.Background(), core.RunSyncRequest{UserID: "usr_2", Provider: core.ProviderGoogle})
	assertErrorCode(t, err, core.ErrorNotFound)
}

func TestRunSync_ConcurrentRunIsRejected(t *testing.T) {
	h := newHarness(t)
	h.connect(t, "usr_1")
	conn, _ := h.stores.Connections.Get(context.Background(), "usr_1", core.ProviderGoogle)
	soon := baseTime.Add(time.Minute)
	conn.TokenExpiresAt = &soon
	if _, err := h.stores.Connections.Update(context.Background(), conn); err != nil {
		t.Fatalf("seed expiry: %v", err)
	}
	release := h.google.HoldRefresh()

	var (
		wg       sync.WaitGroup
		firstLog core.SyncLog
		firstErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		firstLog, firstErr = h.svc.RunSync(context.Background(), core.RunSyncRequest{UserID: "usr_1", Provider: core.ProviderGoogle})
	}()

	deadline := time.Now().Add(2 * time.Second)
	for h.google.Calls("refresh") == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	_, err := h.svc.RunSync(context.Background(), core.RunSyncRequest{UserID: "usr_1", Provider: core.ProviderGoogle})
	assertErrorCode(t, err, core.ErrorSyncAlreadyInProgress)

	release()
	wg.Wait()
	if firstErr != nil {
		t.Fatalf("first run: %v", firstErr)
	}
	if firstLog.Status != core.SyncLogStatusCompleted {
		t.Fatalf("expected first run to complete, got %+v", firstLog)
	}
	logs, _ := h.svc.ListSyncLogs(context.Background(), "usr_1", nil)
	if len(logs) != 1 {
		t.Fatalf("expected exactly one log, got %d", len(logs))
	}
}

func TestRunSync_CatastrophicFailureKeepsAppliedUpserts(t *testing.T) {
	h := newHarness(t)
	h.connect(t, "usr_1")
	h.google.SetEvents(devkit.RemoteEventFixture("evt-1", baseTime.Add(time.Hour), baseTime))
	h.google.FailEmailFetch(core.NewProviderCatastrophicError(core.ProviderGoogle, "quota exhausted", nil))

	log := h.runSync(t, "usr_1", core.SyncScopeFull)
	if log.Status != core.SyncLogStatusFailed {
		t.Fatalf("expected failed log, got %q", log.Status)
	}
	if log.FailureMessage == "" || log.CompletedAt == nil {
		t.Fatalf("expected failure message and completion time, got %+v", log)
	}
	if log.ItemsCreated != 1 {
		t.Fatalf("expected calendar upsert to be counted, got %+v", log)
	}
	if _, err := h.stores.Events.GetByExternalID(context.Background(), "usr_1", "evt-1"); err != nil {
		t.Fatalf("applied upserts must survive a failed run: %v", err)
	}
	conn, _ := h.svc.GetConnection(context.Background(), "usr_1", core.ProviderGoogle)
	if conn.LastSyncError == "" || conn.LastSyncAt != nil {
		t.Fatalf("expected last sync error recorded, got %+v", conn)
	}
	if conn.Status != core.ConnectionStatusActive {
		t.Fatalf("quota failures leave the connection active, got %q", conn.Status)
	}

	again, err := h.svc.GetSyncLog(context.Background(), "usr_1", log.ID)
	if err != nil {
		t.Fatalf("get log: %v", err)
	}
	if again.Status != core.SyncLogStatusFailed {
		t.Fatalf("expected persisted failed status, got %q", again.Status)
	}
}

func TestRunSync_RevokedProviderAuthMovesConnectionToError(t *testing.T) {
	h := newHarness(t)
	h.connect(t, "usr_1")
	h.google.FailEventFetch(core.NewAuthenticationFailedError("token revoked", nil))

	log := h.runSync(t, "usr_1", core.SyncScopeCalendar)
	if log.Status != core.SyncLogStatusFailed {
		t.Fatalf("expected failed log, got %q", log.Status)
	}
	conn, _ := h.svc.GetConnection(context.Background(), "usr_1", core.ProviderGoogle)
	if conn.Status != core.ConnectionStatusError {
		t.Fatalf("expected error status, got %q", conn.Status)
	}
}

func TestRunSync_TransientScopeErrorIsRecorded(t *testing.T) {
	h := newHarness(t)
	h.connect(t, "usr_1")
	h.google.SetEvents(devkit.RemoteEventFixture("evt-1", baseTime.Add(time.Hour), baseTime))
	h.google.FailEmailFetch(core.NewProviderTransientError(core.ProviderGoogle, "", errors.New("503 backend error")))

	log := h.runSync(t, "usr_1", core.SyncScopeFull)
	if log.Status != core.SyncLogStatusCompleted {
		t.Fatalf("transient scope errors must not fail the run, got %q", log.Status)
	}
	if log.ErrorCount != 1 || log.Errors[0].ItemID != "" {
		t.Fatalf("expected one scope level error, got %+v", log.Errors)
	}
}

func TestRunSync_ContactsScopeAndOutboundOnlyDoNoFetch(t *testing.T) {
	h := newHarness(t)
	h.connect(t, "usr_1")

	log := h.runSync(t, "usr_1", core.SyncScopeContacts)
	if log.Status != core.SyncLogStatusCompleted || log.ItemsProcessed != 0 {
		t.Fatalf("unexpected contacts log %+v", log)
	}

	h.patchSettings(t, "usr_1", core.SettingsPatch{SyncDirection: ptr(core.SyncDirectionOutbound)})
	h.google.SetEvents(devkit.RemoteEventFixture("evt-1", baseTime.Add(time.Hour), baseTime))
	log = h.runSync(t, "usr_1", core.SyncScopeFull)
	if log.Status != core.SyncLogStatusCompleted || log.ItemsProcessed != 0 {
		t.Fatalf("outbound only runs still log but fetch nothing, got %+v", log)
	}
	if h.google.Calls("fetch_events") != 0 || h.google.Calls("fetch_emails") != 0 {
		t.Fatalf("expected no fetches")
	}
}

func TestRunSync_FullScopeHonoursToggles(t *testing.T) {
	h := newHarness(t)
	h.connect(t, "usr_1")
	h.patchSettings(t, "usr_1", core.SettingsPatch{SyncEmail: ptr(false)})

	h.runSync(t, "usr_1", core.SyncScopeFull)
	if h.google.Calls("fetch_emails") != 0 || h.google.Calls("fetch_events") != 1 {
		t.Fatalf("expected only calendar fetch, got events=%d emails=%d",
			h.google.Calls("fetch_events"), h.google.Calls("fetch_emails"))
	}
	h.runSync(t, "usr_1", core.SyncScopeEmail)
	if h.google.Calls("fetch_emails") != 1 {
		t.Fatalf("explicit email scope must run despite toggle")
	}
}

func TestRunSync_RecomputesThreads(t *testing.T) {
	h := newHarness(t)
	h.connect(t, "usr_1")
	h.google.SetEmails(
		devkit.RemoteEmailFixture("msg-1", "conv-1", "client@example.test", baseTime),
		devkit.RemoteEmailFixture("msg-2", "conv-1", "other@example.test", baseTime.Add(time.Hour)),
		devkit.RemoteEmailFixture("msg-3", "conv-2", "client@example.test", baseTime),
	)
	h.runSync(t, "usr_1", core.SyncScopeEmail)

	ctx := context.Background()
	threads, total, err := h.svc.ListThreads(ctx, "usr_1", core.ThreadFilter{})
	if err != nil {
		t.Fatalf("list threads: %v", err)
	}
	if total != 2 {
		t.Fatalf("expected two threads, got %d", total)
	}
	thread, emails, err := h.svc.GetThread(ctx, "usr_1", threads[0].ID)
	if err != nil {
		t.Fatalf("get thread: %v", err)
	}
	if thread.ConversationID != "conv-1" || thread.MessageCount != 2 || len(emails) != 2 {
		t.Fatalf("expected newest thread conv-1 with two messages, got %+v (%d emails)", thread, len(emails))
	}
	if emails[0].ExternalID != "msg-1" || !thread.HasUnread {
		t.Fatalf("unexpected thread ordering or unread flag")
	}
}

func TestRunSync_SinceUsesLaterOfRequestAndLastSync(t *testing.T) {
	h := newHarness(t)
	h.connect(t, "usr_1")
	h.google.SetEvents(
		devkit.RemoteEventFixture("evt-old", baseTime.Add(time.Hour), baseTime.Add(-48*time.Hour)),
		devkit.RemoteEventFixture("evt-new", baseTime.Add(time.Hour), baseTime),
	)
	since := baseTime.Add(-time.Hour)
	log, err := h.svc.RunSync(context.Background(), core.RunSyncRequest{
		UserID:   "usr_1",
		Provider: core.ProviderGoogle,
		Scope:    core.SyncScopeCalendar,
		Since:    &since,
		Trigger:  core.SyncTriggerScheduled,
	})
	if err != nil {
		t.Fatalf("run sync: %v", err)
	}
	if log.ItemsProcessed != 1 || log.Trigger != core.SyncTriggerScheduled {
		t.Fatalf("expected only the changed event since the cursor, got %+v", log)
	}
}

func TestRunSync_InvalidScope(t *testing.T) {
	h := newHarness(t)
	h.connect(t, "usr_1")
	_, err := h.svc.RunSync(context.Background(), core.RunSyncRequest{UserID: "usr_1", Provider: core.ProviderGoogle, Scope: "weekly"})
	assertErrorCode(t, err, core.ErrorBadInput)
}
