package query

import (
	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-crm-sync/core"
)

var (
	_ gocmd.Querier[GetConnectionMessage, core.Connection]                     = (*GetConnectionQuery)(nil)
	_ gocmd.Querier[ListConnectionsMessage, []core.Connection]                 = (*ListConnectionsQuery)(nil)
	_ gocmd.Querier[ListCalendarEventsMessage, Page[core.SyncedCalendarEvent]] = (*ListCalendarEventsQuery)(nil)
	_ gocmd.Querier[GetCalendarEventMessage, core.SyncedCalendarEvent]         = (*GetCalendarEventQuery)(nil)
	_ gocmd.Querier[ListEmailsMessage, Page[core.SyncedEmail]]                 = (*ListEmailsQuery)(nil)
	_ gocmd.Querier[GetEmailMessage, core.SyncedEmail]                         = (*GetEmailQuery)(nil)
	_ gocmd.Querier[ListThreadsMessage, Page[core.EmailThread]]                = (*ListThreadsQuery)(nil)
	_ gocmd.Querier[GetThreadMessage, ThreadDetail]                            = (*GetThreadQuery)(nil)
	_ gocmd.Querier[ListSyncLogsMessage, []core.SyncLog]                       = (*ListSyncLogsQuery)(nil)
	_ gocmd.Querier[GetSyncLogMessage, core.SyncLog]                           = (*GetSyncLogQuery)(nil)
	_ gocmd.Querier[GetStatsMessage, core.Stats]                               = (*GetStatsQuery)(nil)
)
