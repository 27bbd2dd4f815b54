package sqlstore

import "github.com/goliatone/go-crm-sync/core"

var (
	_ core.ConnectionStore    = (*ConnectionStore)(nil)
	_ core.CalendarEventStore = (*CalendarEventStore)(nil)
	_ core.EmailStore         = (*EmailStore)(nil)
	_ core.ThreadStore        = (*ThreadStore)(nil)
	_ core.SyncLogStore       = (*SyncLogStore)(nil)
	_ core.PersonDirectory    = (*PersonDirectory)(nil)
	_ core.StoreProvider      = (*RepositoryFactory)(nil)
)
