package core_test

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-crm-sync/core"
	"github.com/goliatone/go-crm-sync/providers/devkit"
)

func seedEmails(t *testing.T, h *harness, emails ...core.RemoteEmail) map[string]core.SyncedEmail {
	t.Helper()
	h.google.SetEmails(emails...)
	h.runSync(t, "usr_1", core.SyncScopeEmail)
	out := make(map[string]core.SyncedEmail, len(emails))
	for _, remote := range emails {
		stored, err := h.stores.Emails.GetByExternalID(context.Background(), "usr_1", remote.ExternalID)
		if err != nil {
			t.Fatalf("load %s: %v", remote.ExternalID, err)
		}
		out[remote.ExternalID] = stored
	}
	return out
}

func TestLinkCalendarEvent_FieldsAreIndependent(t *testing.T) {
	h := newHarness(t)
	h.connect(t, "usr_1")
	h.google.SetEvents(devkit.RemoteEventFixture("evt-1", baseTime.Add(time.Hour), baseTime))
	h.runSync(t, "usr_1", core.SyncScopeCalendar)
	ctx := context.Background()
	stored, _ := h.stores.Events.GetByExternalID(ctx, "usr_1", "evt-1")

	linked, err := h.svc.LinkCalendarEvent(ctx, "usr_1", stored.ID, core.LinkPatch{HouseholdID: ptr("hh_1"), PersonID: ptr("per_1")})
	if err != nil {
		t.Fatalf("link: %v", err)
	}
	if *linked.LinkedHouseholdID != "hh_1" || *linked.LinkedPersonID != "per_1" {
		t.Fatalf("unexpected links %+v", linked)
	}

	linked, err = h.svc.LinkCalendarEvent(ctx, "usr_1", stored.ID, core.LinkPatch{PersonID: ptr("per_2")})
	if err != nil {
		t.Fatalf("relink person: %v", err)
	}
	if *linked.LinkedHouseholdID != "hh_1" || *linked.LinkedPersonID != "per_2" {
		t.Fatalf("expected household untouched when only person changes, got %+v", linked)
	}

	linked, err = h.svc.LinkCalendarEvent(ctx, "usr_1", stored.ID, core.LinkPatch{HouseholdID: ptr("")})
	if err != nil {
		t.Fatalf("clear household: %v", err)
	}
	if linked.LinkedHouseholdID != nil || linked.LinkedPersonID == nil {
		t.Fatalf("expected household cleared and person kept, got %+v", linked)
	}

	filtered, total, err := h.svc.ListCalendarEvents(ctx, core.CalendarEventFilter{UserID: "usr_1", PersonID: "per_2"})
	if err != nil || total != 1 || filtered[0].ID != stored.ID {
		t.Fatalf("expected event listed by person link, got %d (%v)", total, err)
	}

	_, err = h.svc.LinkCalendarEvent(ctx, "usr_2", stored.ID, core.LinkPatch{PersonID: ptr("per_9")})
	assertErrorCode(t, err, core.ErrorNotFound)
}

func TestLinkEmail_NotesAndClientFlag(t *testing.T) {
	h := newHarness(t)
	h.connect(t, "usr_1")
	emails := seedEmails(t, h, devkit.RemoteEmailFixture("msg-1", "conv-1", "someone@example.test", baseTime))
	ctx := context.Background()

	linked, err := h.svc.LinkEmail(ctx, "usr_1", emails["msg-1"].ID, core.EmailLinkPatch{
		HouseholdID:           ptr("hh_1"),
		Notes:                 ptr("Asked about rebalancing"),
		IsClientCommunication: ptr(true),
	})
	if err != nil {
		t.Fatalf("link email: %v", err)
	}
	if linked.InternalNotes != "Asked about rebalancing" || !linked.IsClientCommunication {
		t.Fatalf("unexpected email %+v", linked)
	}
	if linked.LinkedPersonID != nil || *linked.LinkedHouseholdID != "hh_1" {
		t.Fatalf("unexpected links %+v", linked)
	}

	h.clock.Advance(time.Minute)
	changed := devkit.RemoteEmailFixture("msg-1", "conv-1", "someone@example.test", baseTime.Add(time.Minute))
	changed.IsRead = true
	h.google.SetEmails(changed)
	h.runSync(t, "usr_1", core.SyncScopeEmail)

	after, err := h.svc.GetEmail(ctx, "usr_1", emails["msg-1"].ID)
	if err != nil {
		t.Fatalf("get email: %v", err)
	}
	if !after.IsRead || after.InternalNotes != "Asked about rebalancing" || !after.IsClientCommunication {
		t.Fatalf("remote update must keep local annotations, got %+v", after)
	}
}

func TestArchiveEmails_CountsOnlyChangedRows(t *testing.T) {
	h := newHarness(t)
	h.connect(t, "usr_1")
	emails := seedEmails(t, h,
		devkit.RemoteEmailFixture("msg-1", "conv-1", "a@example.test", baseTime),
		devkit.RemoteEmailFixture("msg-2", "conv-2", "b@example.test", baseTime),
	)
	ctx := context.Background()
	ids := []string{emails["msg-1"].ID, emails["msg-1"].ID, " " + emails["msg-2"].ID + " ", "unknown", ""}

	count, err := h.svc.ArchiveEmails(ctx, "usr_1", ids)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected two archived, got %d", count)
	}
	count, err = h.svc.ArchiveEmails(ctx, "usr_1", ids)
	if err != nil {
		t.Fatalf("archive again: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected re-archive to change nothing, got %d", count)
	}
	count, _ = h.svc.ArchiveEmails(ctx, "usr_2", []string{emails["msg-1"].ID})
	if count != 0 {
		t.Fatalf("foreign ids must not be archived, got %d", count)
	}
	active, total, _ := h.svc.ListEmails(ctx, core.EmailFilter{UserID: "usr_1", Archived: ptr(false)})
	if total != 0 || len(active) != 0 {
		t.Fatalf("expected no unarchived emails, got %d", total)
	}
}

func TestSync_AutoLinksCreatedEmails(t *testing.T) {
	h := newHarness(t)
	h.connect(t, "usr_1")
	h.persons.Put("usr_1",
		core.PersonRecord{ID: "per_1", HouseholdID: ptr("hh_1"), Emails: []string{"Client@Example.test"}},
		core.PersonRecord{ID: "per_2", Emails: []string{"shared@example.test"}},
		core.PersonRecord{ID: "per_3", Emails: []string{"shared@example.test"}},
	)
	emails := seedEmails(t, h,
		devkit.RemoteEmailFixture("msg-1", "conv-1", "client@example.test", baseTime),
		devkit.RemoteEmailFixture("msg-2", "conv-2", "shared@example.test", baseTime),
		devkit.RemoteEmailFixture("msg-3", "conv-3", "stranger@example.test", baseTime),
	)

	matched := emails["msg-1"]
	if matched.LinkedPersonID == nil || *matched.LinkedPersonID != "per_1" {
		t.Fatalf("expected sender matched to per_1, got %+v", matched)
	}
	if matched.LinkedHouseholdID == nil || *matched.LinkedHouseholdID != "hh_1" || !matched.IsClientCommunication {
		t.Fatalf("expected household and client flag from match, got %+v", matched)
	}
	if emails["msg-2"].LinkedPersonID != nil {
		t.Fatalf("ambiguous address must not link")
	}
	if emails["msg-3"].LinkedPersonID != nil {
		t.Fatalf("unknown address must not link")
	}
}

func TestAutoLinkEmails_IsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.connect(t, "usr_1")
	seedEmails(t, h,
		devkit.RemoteEmailFixture("msg-1", "conv-1", "client@example.test", baseTime),
		devkit.RemoteEmailFixture("msg-2", "conv-2", "stranger@example.test", baseTime),
	)
	h.persons.Put("usr_1", core.PersonRecord{ID: "per_1", Emails: []string{"client@example.test"}})
	ctx := context.Background()

	result, err := h.svc.AutoLinkEmails(ctx, "usr_1")
	if err != nil {
		t.Fatalf("auto link: %v", err)
	}
	if result.Scanned != 2 || result.Linked != 1 {
		t.Fatalf("unexpected first pass %+v", result)
	}
	result, err = h.svc.AutoLinkEmails(ctx, "usr_1")
	if err != nil {
		t.Fatalf("auto link again: %v", err)
	}
	if result.Scanned != 1 || result.Linked != 0 {
		t.Fatalf("expected second pass to link nothing, got %+v", result)
	}

	stats, _ := h.svc.GetStats(ctx, "usr_1")
	if stats.ClientEmails != 1 {
		t.Fatalf("expected one client email, got %d", stats.ClientEmails)
	}
}

func TestSync_ArchivePolicies(t *testing.T) {
	h := newHarness(t)
	h.connect(t, "usr_1")
	h.persons.Put("usr_1", core.PersonRecord{ID: "per_1", Emails: []string{"client@example.test"}})
	h.patchSettings(t, "usr_1", core.SettingsPatch{AutoArchive: ptr(true), ClientOnlyArchive: ptr(true)})

	emails := seedEmails(t, h,
		devkit.RemoteEmailFixture("msg-1", "conv-1", "client@example.test", baseTime),
		devkit.RemoteEmailFixture("msg-2", "conv-2", "stranger@example.test", baseTime),
	)
	if !emails["msg-1"].IsArchived || emails["msg-2"].IsArchived {
		t.Fatalf("expected only client mail archived, got %v/%v", emails["msg-1"].IsArchived, emails["msg-2"].IsArchived)
	}

	h.patchSettings(t, "usr_1", core.SettingsPatch{ClientOnlyArchive: ptr(false)})
	h.clock.Advance(time.Minute)
	more := seedEmails(t, h, devkit.RemoteEmailFixture("msg-3", "conv-3", "stranger@example.test", baseTime.Add(time.Minute)))
	if !more["msg-3"].IsArchived {
		t.Fatalf("expected auto archive of new mail")
	}
}

func TestGetStats(t *testing.T) {
	h := newHarness(t)
	h.connect(t, "usr_1")
	h.google.SetEvents(
		devkit.RemoteEventFixture("evt-past", baseTime.Add(-24*time.Hour), baseTime),
		devkit.RemoteEventFixture("evt-next", baseTime.Add(24*time.Hour), baseTime),
	)
	read := devkit.RemoteEmailFixture("msg-2", "conv-2", "b@example.test", baseTime)
	read.IsRead = true
	h.google.SetEmails(devkit.RemoteEmailFixture("msg-1", "conv-1", "a@example.test", baseTime), read)
	h.runSync(t, "usr_1", core.SyncScopeFull)

	stats, err := h.svc.GetStats(context.Background(), "usr_1")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalEvents != 2 || stats.UpcomingEvents != 1 {
		t.Fatalf("unexpected event stats %+v", stats)
	}
	if stats.TotalEmails != 2 || stats.UnreadEmails != 1 || stats.ClientEmails != 0 {
		t.Fatalf("unexpected email stats %+v", stats)
	}
	if stats.LastSyncAt == nil || !stats.LastSyncAt.Equal(baseTime) {
		t.Fatalf("expected last sync at %s, got %v", baseTime, stats.LastSyncAt)
	}

	empty, err := h.svc.GetStats(context.Background(), "usr_2")
	if err != nil {
		t.Fatalf("stats for empty user: %v", err)
	}
	if empty != (core.Stats{}) {
		t.Fatalf("expected zero stats, got %+v", empty)
	}
}

func TestListSyncLogs_NewestFirst(t *testing.T) {
	h := newHarness(t)
	h.connect(t, "usr_1")
	first := h.runSync(t, "usr_1", core.SyncScopeCalendar)
	h.clock.Advance(time.Minute)
	second := h.runSync(t, "usr_1", core.SyncScopeEmail)

	logs, err := h.svc.ListSyncLogs(context.Background(), "usr_1", nil)
	if err != nil {
		t.Fatalf("list logs: %v", err)
	}
	if len(logs) != 2 || logs[0].ID != second.ID || logs[1].ID != first.ID {
		t.Fatalf("expected newest first, got %+v", logs)
	}
	provider := core.ProviderMicrosoft
	none, _ := h.svc.ListSyncLogs(context.Background(), "usr_1", &provider)
	if len(none) != 0 {
		t.Fatalf("expected provider filter to exclude google logs")
	}
	_, err = h.svc.GetSyncLog(context.Background(), "usr_2", first.ID)
	assertErrorCode(t, err, core.ErrorNotFound)
}
