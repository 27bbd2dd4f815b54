package query

import (
	"context"

	"github.com/goliatone/go-crm-sync/core"
)

type ConnectionReader interface {
	GetConnection(ctx context.Context, userID string, provider core.Provider) (core.Connection, error)
	ListConnections(ctx context.Context, userID string) ([]core.Connection, error)
}

type CalendarReader interface {
	ListCalendarEvents(ctx context.Context, filter core.CalendarEventFilter) ([]core.SyncedCalendarEvent, int, error)
	GetCalendarEvent(ctx context.Context, userID string, eventID string) (core.SyncedCalendarEvent, error)
}

type EmailReader interface {
	ListEmails(ctx context.Context, filter core.EmailFilter) ([]core.SyncedEmail, int, error)
	GetEmail(ctx context.Context, userID string, emailID string) (core.SyncedEmail, error)
	ListThreads(ctx context.Context, userID string, filter core.ThreadFilter) ([]core.EmailThread, int, error)
	GetThread(ctx context.Context, userID string, threadID string) (core.EmailThread, []core.SyncedEmail, error)
}

type SyncLogReader interface {
	ListSyncLogs(ctx context.Context, userID string, provider *core.Provider) ([]core.SyncLog, error)
	GetSyncLog(ctx context.Context, userID string, id string) (core.SyncLog, error)
}

type StatsReader interface {
	GetStats(ctx context.Context, userID string) (core.Stats, error)
}

type GetConnectionQuery struct {
	reader ConnectionReader
}

func NewGetConnectionQuery(reader ConnectionReader) *GetConnectionQuery {
	return &GetConnectionQuery{reader: reader}
}

func (q *GetConnectionQuery) Query(ctx context.Context, msg GetConnectionMessage) (core.Connection, error) {
	if q == nil || q.reader == nil {
		return core.Connection{}, queryDependencyError("query: connection reader is required")
	}
	return q.reader.GetConnection(ctx, msg.UserID, msg.Provider)
}

type ListConnectionsQuery struct {
	reader ConnectionReader
}

func NewListConnectionsQuery(reader ConnectionReader) *ListConnectionsQuery {
	return &ListConnectionsQuery{reader: reader}
}

func (q *ListConnectionsQuery) Query(ctx context.Context, msg ListConnectionsMessage) ([]core.Connection, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: connection reader is required")
	}
	return q.reader.ListConnections(ctx, msg.UserID)
}

type ListCalendarEventsQuery struct {
	reader CalendarReader
}

func NewListCalendarEventsQuery(reader CalendarReader) *ListCalendarEventsQuery {
	return &ListCalendarEventsQuery{reader: reader}
}

func (q *ListCalendarEventsQuery) Query(
	ctx context.Context,
	msg ListCalendarEventsMessage,
) (Page[core.SyncedCalendarEvent], error) {
	if q == nil || q.reader == nil {
		return Page[core.SyncedCalendarEvent]{}, queryDependencyError("query: calendar reader is required")
	}
	items, total, err := q.reader.ListCalendarEvents(ctx, msg.Filter)
	if err != nil {
		return Page[core.SyncedCalendarEvent]{}, err
	}
	return Page[core.SyncedCalendarEvent]{Items: items, Total: total}, nil
}

type GetCalendarEventQuery struct {
	reader CalendarReader
}

func NewGetCalendarEventQuery(reader CalendarReader) *GetCalendarEventQuery {
	return &GetCalendarEventQuery{reader: reader}
}

func (q *GetCalendarEventQuery) Query(ctx context.Context, msg GetCalendarEventMessage) (core.SyncedCalendarEvent, error) {
	if q == nil || q.reader == nil {
		return core.SyncedCalendarEvent{}, queryDependencyError("query: calendar reader is required")
	}
	return q.reader.GetCalendarEvent(ctx, msg.UserID, msg.EventID)
}

type ListEmailsQuery struct {
	reader EmailReader
}

func NewListEmailsQuery(reader EmailReader) *ListEmailsQuery {
	return &ListEmailsQuery{reader: reader}
}

func (q *ListEmailsQuery) Query(ctx context.Context, msg ListEmailsMessage) (Page[core.SyncedEmail], error) {
	if q == nil || q.reader == nil {
		return Page[core.SyncedEmail]{}, queryDependencyError("query: email reader is required")
	}
	items, total, err := q.reader.ListEmails(ctx, msg.Filter)
	if err != nil {
		return Page[core.SyncedEmail]{}, err
	}
	return Page[core.SyncedEmail]{Items: items, Total: total}, nil
}

type GetEmailQuery struct {
	reader EmailReader
}

func NewGetEmailQuery(reader EmailReader) *GetEmailQuery {
	return &GetEmailQuery{reader: reader}
}

func (q *GetEmailQuery) Query(ctx context.Context, msg GetEmailMessage) (core.SyncedEmail, error) {
	if q == nil || q.reader == nil {
		return core.SyncedEmail{}, queryDependencyError("query: email reader is required")
	}
	return q.reader.GetEmail(ctx, msg.UserID, msg.EmailID)
}

type ListThreadsQuery struct {
	reader EmailReader
}

func NewListThreadsQuery(reader EmailReader) *ListThreadsQuery {
	return &ListThreadsQuery{reader: reader}
}

func (q *ListThreadsQuery) Query(ctx context.Context, msg ListThreadsMessage) (Page[core.EmailThread], error) {
	if q == nil || q.reader == nil {
		return Page[core.EmailThread]{}, queryDependencyError("query: email reader is required")
	}
	items, total, err := q.reader.ListThreads(ctx, msg.UserID, msg.Filter)
	if err != nil {
		return Page[core.EmailThread]{}, err
	}
	return Page[core.EmailThread]{Items: items, Total: total}, nil
}

type GetThreadQuery struct {
	reader EmailReader
}

func NewGetThreadQuery(reader EmailReader) *GetThreadQuery {
	return &GetThreadQuery{reader: reader}
}

func (q *GetThreadQuery) Query(ctx context.Context, msg GetThreadMessage) (ThreadDetail, error) {
	if q == nil || q.reader == nil {
		return ThreadDetail{}, queryDependencyError("query: email reader is required")
	}
	thread, emails, err := q.reader.GetThread(ctx, msg.UserID, msg.ThreadID)
	if err != nil {
		return ThreadDetail{}, err
	}
	return ThreadDetail{Thread: thread, Emails: emails}, nil
}

type ListSyncLogsQuery struct {
	reader SyncLogReader
}

func NewListSyncLogsQuery(reader SyncLogReader) *ListSyncLogsQuery {
	return &ListSyncLogsQuery{reader: reader}
}

func (q *ListSyncLogsQuery) Query(ctx context.Context, msg ListSyncLogsMessage) ([]core.SyncLog, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: sync log reader is required")
	}
	return q.reader.ListSyncLogs(ctx, msg.UserID, msg.Provider)
}

type GetSyncLogQuery struct {
	reader SyncLogReader
}

func NewGetSyncLogQuery(reader SyncLogReader) *GetSyncLogQuery {
	return &GetSyncLogQuery{reader: reader}
}

func (q *GetSyncLogQuery) Query(ctx context.Context, msg GetSyncLogMessage) (core.SyncLog, error) {
	if q == nil || q.reader == nil {
		return core.SyncLog{}, queryDependencyError("query: sync log reader is required")
	}
	return q.reader.GetSyncLog(ctx, msg.UserID, msg.SyncLogID)
}

type GetStatsQuery struct {
	reader StatsReader
}

func NewGetStatsQuery(reader StatsReader) *GetStatsQuery {
	return &GetStatsQuery{reader: reader}
}

func (q *GetStatsQuery) Query(ctx context.Context, msg GetStatsMessage) (core.Stats, error) {
	if q == nil || q.reader == nil {
		return core.Stats{}, queryDependencyError("query: stats reader is required")
	}
	return q.reader.GetStats(ctx, msg.UserID)
}
