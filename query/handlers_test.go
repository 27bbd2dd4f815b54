package query

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/goliatone/go-crm-sync/core"
)

func TestListCalendarEventsQuery_QueryWrapsPage(t *testing.T) {
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	reader := stubReader{
		listEventsFn: func(_ context.Context, filter core.CalendarEventFilter) ([]core.SyncedCalendarEvent, int, error) {
			if filter.UserID != "usr_1" || filter.From == nil || !filter.From.Equal(from) || filter.Limit != 1 {
				t.Fatalf("unexpected filter: %#v", filter)
			}
			return []core.SyncedCalendarEvent{{ID: "evt_1"}}, 3, nil
		},
	}

	page, err := NewListCalendarEventsQuery(reader).Query(context.Background(), ListCalendarEventsMessage{
		Filter: core.CalendarEventFilter{UserID: "usr_1", From: &from, Limit: 1},
	})
	if err != nil {
		t.Fatalf("query calendar events: %v", err)
	}
	if len(page.Items) != 1 || page.Total != 3 {
		t.Fatalf("unexpected page: %#v", page)
	}
}

func TestGetThreadQuery_QueryReturnsDetail(t *testing.T) {
	reader := stubReader{
		getThreadFn: func(_ context.Context, userID string, threadID string) (core.EmailThread, []core.SyncedEmail, error) {
			if threadID != "thr_1" {
				t.Fatalf("unexpected thread id %q", threadID)
			}
			return core.EmailThread{ID: "thr_1", MessageCount: 2}, []core.SyncedEmail{{ID: "a"}, {ID: "b"}}, nil
		},
	}

	detail, err := NewGetThreadQuery(reader).Query(context.Background(), GetThreadMessage{UserID: "usr_1", ThreadID: "thr_1"})
	if err != nil {
		t.Fatalf("query thread: %v", err)
	}
	if detail.Thread.ID != "thr_1" || len(detail.Emails) != 2 {
		t.Fatalf("unexpected thread detail: %#v", detail)
	}
}

func TestReaderQueries_Delegate(t *testing.T) {
	provider := core.ProviderGoogle
	reader := stubReader{
		listLogsFn: func(_ context.Context, userID string, filter *core.Provider) ([]core.SyncLog, error) {
			if filter == nil || *filter != core.ProviderGoogle {
				t.Fatalf("expected provider filter")
			}
			return []core.SyncLog{{ID: "log_2"}, {ID: "log_1"}}, nil
		},
		statsFn: func(_ context.Context, userID string) (core.Stats, error) {
			return core.Stats{TotalEvents: 2, UnreadEmails: 1}, nil
		},
		listEmailsFn: func(_ context.Context, filter core.EmailFilter) ([]core.SyncedEmail, int, error) {
			return nil, 0, fmt.Errorf("store unavailable")
		},
	}

	logs, err := NewListSyncLogsQuery(reader).Query(context.Background(), ListSyncLogsMessage{UserID: "usr_1", Provider: &provider})
	if err != nil || len(logs) != 2 {
		t.Fatalf("unexpected logs %v, err %v", logs, err)
	}
	stats, err := NewGetStatsQuery(reader).Query(context.Background(), GetStatsMessage{UserID: "usr_1"})
	if err != nil || stats.TotalEvents != 2 || stats.UnreadEmails != 1 {
		t.Fatalf("unexpected stats %#v, err %v", stats, err)
	}
	if _, err := NewListEmailsQuery(reader).Query(context.Background(), ListEmailsMessage{Filter: core.EmailFilter{UserID: "usr_1"}}); err == nil {
		t.Fatalf("expected reader error to propagate")
	}
}

func TestMessageValidation(t *testing.T) {
	from := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	to := from.Add(-time.Hour)
	tests := []struct {
		name    string
		msg     interface{ Validate() error }
		wantErr bool
	}{
		{name: "list events valid", msg: ListCalendarEventsMessage{Filter: core.CalendarEventFilter{UserID: "usr_1"}}, wantErr: false},
		{name: "list events inverted range", msg: ListCalendarEventsMessage{Filter: core.CalendarEventFilter{UserID: "usr_1", From: &from, To: &to}}, wantErr: true},
		{name: "list emails negative offset", msg: ListEmailsMessage{Filter: core.EmailFilter{UserID: "usr_1", Offset: -1}}, wantErr: true},
		{name: "list threads negative limit", msg: ListThreadsMessage{UserID: "usr_1", Filter: core.ThreadFilter{Limit: -5}}, wantErr: true},
		{name: "get connection missing provider", msg: GetConnectionMessage{UserID: "usr_1"}, wantErr: true},
		{name: "get sync log valid", msg: GetSyncLogMessage{UserID: "usr_1", SyncLogID: "log_1"}, wantErr: false},
		{name: "stats missing user", msg: GetStatsMessage{}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

type stubReader struct {
	listEventsFn func(ctx context.Context, filter core.CalendarEventFilter) ([]core.SyncedCalendarEvent, int, error)
	listEmailsFn func(ctx context.Context, filter core.EmailFilter) ([]core.SyncedEmail, int, error)
	getThreadFn  func(ctx context.Context, userID string, threadID string) (core.EmailThread, []core.SyncedEmail, error)
	listLogsFn   func(ctx context.Context, userID string, provider *core.Provider) ([]core.SyncLog, error)
	statsFn      func(ctx context.Context, userID string) (core.Stats, error)
}

func (s stubReader) GetConnection(context.Context, string, core.Provider) (core.Connection, error) {
	return core.Connection{}, fmt.Errorf("get connection not configured")
}

func (s stubReader) ListConnections(context.Context, string) ([]core.Connection, error) {
	return nil, fmt.Errorf("list connections not configured")
}

func (s stubReader) ListCalendarEvents(ctx context.Context, filter core.CalendarEventFilter) ([]core.SyncedCalendarEvent, int, error) {
	if s.listEventsFn == nil {
		return nil, 0, fmt.Errorf("list events not configured")
	}
	return s.listEventsFn(ctx, filter)
}

func (s stubReader) GetCalendarEvent(context.Context, string, string) (core.SyncedCalendarEvent, error) {
	return core.SyncedCalendarEvent{}, fmt.Errorf("get event not configured")
}

func (s stubReader) ListEmails(ctx context.Context, filter core.EmailFilter) ([]core.SyncedEmail, int, error) {
	if s.listEmailsFn == nil {
		return nil, 0, fmt.Errorf("list emails not configured")
	}
	return s.listEmailsFn(ctx, filter)
}

func (s stubReader) GetEmail(context.Context, string, string) (core.SyncedEmail, error) {
	return core.SyncedEmail{}, fmt.Errorf("get email not configured")
}

func (s stubReader) ListThreads(context.Context, string, core.ThreadFilter) ([]core.EmailThread, int, error) {
	return nil, 0, fmt.Errorf("list threads not configured")
}

func (s stubReader) GetThread(ctx context.Context, userID string, threadID string) (core.EmailThread, []core.SyncedEmail, error) {
	if s.getThreadFn == nil {
		return core.EmailThread{}, nil, fmt.Errorf("get thread not configured")
	}
	return s.getThreadFn(ctx, userID, threadID)
}

func (s stubReader) ListSyncLogs(ctx context.Context, userID string, provider *core.Provider) ([]core.SyncLog, error) {
	if s.listLogsFn == nil {
		return nil, fmt.Errorf("list sync logs not configured")
	}
	return s.listLogsFn(ctx, userID, provider)
}

func (s stubReader) GetSyncLog(context.Context, string, string) (core.SyncLog, error) {
	return core.SyncLog{}, fmt.Errorf("get sync log not configured")
}

func (s stubReader) GetStats(ctx context.Context, userID string) (core.Stats, error) {
	if s.statsFn == nil {
		return core.Stats{}, fmt.Errorf("stats not configured")
	}
	return s.statsFn(ctx, userID)
}
