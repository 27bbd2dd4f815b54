package query

import (
	"strings"

	"github.com/goliatone/go-crm-sync/core"
)

const (
	TypeGetConnection      = "crm_sync.query.connection.get"
	TypeListConnections    = "crm_sync.query.connection.list"
	TypeListCalendarEvents = "crm_sync.query.calendar_event.list"
	TypeGetCalendarEvent   = "crm_sync.query.calendar_event.get"
	TypeListEmails         = "crm_sync.query.email.list"
	TypeGetEmail           = "crm_sync.query.email.get"
	TypeListThreads        = "crm_sync.query.thread.list"
	TypeGetThread          = "crm_sync.query.thread.get"
	TypeListSyncLogs       = "crm_sync.query.sync_log.list"
	TypeGetSyncLog         = "crm_sync.query.sync_log.get"
	TypeGetStats           = "crm_sync.query.stats.get"
)

// Page is a window of a filtered collection plus the unpaged total.
type Page[T any] struct {
	Items []T
	Total int
}

// ThreadDetail is a thread with its member emails in message order.
type ThreadDetail struct {
	Thread core.EmailThread
	Emails []core.SyncedEmail
}

type GetConnectionMessage struct {
	UserID   string
	Provider core.Provider
}

func (GetConnectionMessage) Type() string { return TypeGetConnection }

func (m GetConnectionMessage) Validate() error {
	if err := requireField("user_id", m.UserID); err != nil {
		return err
	}
	return requireField("provider", string(m.Provider))
}

type ListConnectionsMessage struct {
	UserID string
}

func (ListConnectionsMessage) Type() string { return TypeListConnections }

func (m ListConnectionsMessage) Validate() error {
	return requireField("user_id", m.UserID)
}

type ListCalendarEventsMessage struct {
	Filter core.CalendarEventFilter
}

func (ListCalendarEventsMessage) Type() string { return TypeListCalendarEvents }

func (m ListCalendarEventsMessage) Validate() error {
	if err := requireField("user_id", m.Filter.UserID); err != nil {
		return err
	}
	if m.Filter.From != nil && m.Filter.To != nil && m.Filter.To.Before(*m.Filter.From) {
		return queryValidationError("to", "range end must not precede range start")
	}
	return validateWindow(m.Filter.Limit, m.Filter.Offset)
}

type GetCalendarEventMessage struct {
	UserID  string
	EventID string
}

func (GetCalendarEventMessage) Type() string { return TypeGetCalendarEvent }

func (m GetCalendarEventMessage) Validate() error {
	if err := requireField("user_id", m.UserID); err != nil {
		return err
	}
	return requireField("event_id", m.EventID)
}

type ListEmailsMessage struct {
	Filter core.EmailFilter
}

func (ListEmailsMessage) Type() string { return TypeListEmails }

func (m ListEmailsMessage) Validate() error {
	if err := requireField("user_id", m.Filter.UserID); err != nil {
		return err
	}
	return validateWindow(m.Filter.Limit, m.Filter.Offset)
}

type GetEmailMessage struct {
	UserID  string
	EmailID string
}

func (GetEmailMessage) Type() string { return TypeGetEmail }

func (m GetEmailMessage) Validate() error {
	if err := requireField("user_id", m.UserID); err != nil {
		return err
	}
	return requireField("email_id", m.EmailID)
}

type ListThreadsMessage struct {
	UserID string
	Filter core.ThreadFilter
}

func (ListThreadsMessage) Type() string { return TypeListThreads }

func (m ListThreadsMessage) Validate() error {
	if err := requireField("user_id", m.UserID); err != nil {
		return err
	}
	return validateWindow(m.Filter.Limit, m.Filter.Offset)
}

type GetThreadMessage struct {
	UserID   string
	ThreadID string
}

func (GetThreadMessage) Type() string { return TypeGetThread }

func (m GetThreadMessage) Validate() error {
	if err := requireField("user_id", m.UserID); err != nil {
		return err
	}
	return requireField("thread_id", m.ThreadID)
}

type ListSyncLogsMessage struct {
	UserID   string
	Provider *core.Provider
}

func (ListSyncLogsMessage) Type() string { return TypeListSyncLogs }

func (m ListSyncLogsMessage) Validate() error {
	return requireField("user_id", m.UserID)
}

type GetSyncLogMessage struct {
	UserID    string
	SyncLogID string
}

func (GetSyncLogMessage) Type() string { return TypeGetSyncLog }

func (m GetSyncLogMessage) Validate() error {
	if err := requireField("user_id", m.UserID); err != nil {
		return err
	}
	return requireField("sync_log_id", m.SyncLogID)
}

type GetStatsMessage struct {
	UserID string
}

func (GetStatsMessage) Type() string { return TypeGetStats }

func (m GetStatsMessage) Validate() error {
	return requireField("user_id", m.UserID)
}

func requireField(field string, value string) error {
	if strings.TrimSpace(value) == "" {
		return queryValidationError(field, field+" is required")
	}
	return nil
}

func validateWindow(limit int, offset int) error {
	if limit < 0 {
		return queryValidationError("limit", "limit must be >= 0")
	}
	if offset < 0 {
		return queryValidationError("offset", "offset must be >= 0")
	}
	return nil
}
