package crmsync

import (
	"fmt"

	"github.com/goliatone/go-command/runner"

	"github.com/goliatone/go-crm-sync/adapters/gocommand"
	synccommand "github.com/goliatone/go-crm-sync/command"
	syncquery "github.com/goliatone/go-crm-sync/query"
)

type CommandQueryService = gocommand.Service

type Commands struct {
	BeginAuthorization    *synccommand.BeginAuthorizationCommand
	CompleteAuthorization *synccommand.CompleteAuthorizationCommand
	Disconnect            *synccommand.DisconnectCommand
	UpdateSettings        *synccommand.UpdateSettingsCommand
	RunSync               *synccommand.RunSyncCommand
	CreateCalendarEvent   *synccommand.CreateCalendarEventCommand
	UpdateCalendarEvent   *synccommand.UpdateCalendarEventCommand
	DeleteCalendarEvent   *synccommand.DeleteCalendarEventCommand
	SendEmail             *synccommand.SendEmailCommand
	LinkCalendarEvent     *synccommand.LinkCalendarEventCommand
	LinkEmail             *synccommand.LinkEmailCommand
	ArchiveEmails         *synccommand.ArchiveEmailsCommand
	AutoLinkEmails        *synccommand.AutoLinkEmailsCommand
}

type Queries struct {
	GetConnection      *syncquery.GetConnectionQuery
	ListConnections    *syncquery.ListConnectionsQuery
	ListCalendarEvents *syncquery.ListCalendarEventsQuery
	GetCalendarEvent   *syncquery.GetCalendarEventQuery
	ListEmails         *syncquery.ListEmailsQuery
	GetEmail           *syncquery.GetEmailQuery
	ListThreads        *syncquery.ListThreadsQuery
	GetThread          *syncquery.GetThreadQuery
	ListSyncLogs       *syncquery.ListSyncLogsQuery
	GetSyncLog         *syncquery.GetSyncLogQuery
	GetStats           *syncquery.GetStatsQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	statsReader syncquery.StatsReader
}

// WithStatsReader swaps the reader behind the stats query, e.g. for a cached
// dashboard read model.
func WithStatsReader(reader syncquery.StatsReader) FacadeOption {
	return func(options *facadeOptions) {
		options.statsReader = reader
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("crmsync: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	stats := cfg.statsReader
	if stats == nil {
		stats = service
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		BeginAuthorization:    synccommand.NewBeginAuthorizationCommand(service),
		CompleteAuthorization: synccommand.NewCompleteAuthorizationCommand(service),
		Disconnect:            synccommand.NewDisconnectCommand(service),
		UpdateSettings:        synccommand.NewUpdateSettingsCommand(service),
		RunSync:               synccommand.NewRunSyncCommand(service),
		CreateCalendarEvent:   synccommand.NewCreateCalendarEventCommand(service),
		UpdateCalendarEvent:   synccommand.NewUpdateCalendarEventCommand(service),
		DeleteCalendarEvent:   synccommand.NewDeleteCalendarEventCommand(service),
		SendEmail:             synccommand.NewSendEmailCommand(service),
		LinkCalendarEvent:     synccommand.NewLinkCalendarEventCommand(service),
		LinkEmail:             synccommand.NewLinkEmailCommand(service),
		ArchiveEmails:         synccommand.NewArchiveEmailsCommand(service),
		AutoLinkEmails:        synccommand.NewAutoLinkEmailsCommand(service),
	}
	facade.queries = Queries{
		GetConnection:      syncquery.NewGetConnectionQuery(service),
		ListConnections:    syncquery.NewListConnectionsQuery(service),
		ListCalendarEvents: syncquery.NewListCalendarEventsQuery(service),
		GetCalendarEvent:   syncquery.NewGetCalendarEventQuery(service),
		ListEmails:         syncquery.NewListEmailsQuery(service),
		GetEmail:           syncquery.NewGetEmailQuery(service),
		ListThreads:        syncquery.NewListThreadsQuery(service),
		GetThread:          syncquery.NewGetThreadQuery(service),
		ListSyncLogs:       syncquery.NewListSyncLogsQuery(service),
		GetSyncLog:         syncquery.NewGetSyncLogQuery(service),
		GetStats:           syncquery.NewGetStatsQuery(stats),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

// Register subscribes every command and query with the go-command dispatcher
// through the given registry adapter.
func (f *Facade) Register(adapter *gocommand.RegistryAdapter, runnerOpts ...runner.Option) (gocommand.Subscriptions, error) {
	if f == nil || f.service == nil {
		return nil, fmt.Errorf("crmsync: facade is not configured")
	}
	return gocommand.RegisterService(adapter, f.service, runnerOpts...)
}
