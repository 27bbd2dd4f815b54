package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[BeginAuthorizationMessage]    = (*BeginAuthorizationCommand)(nil)
	_ gocmd.Commander[CompleteAuthorizationMessage] = (*CompleteAuthorizationCommand)(nil)
	_ gocmd.Commander[DisconnectMessage]            = (*DisconnectCommand)(nil)
	_ gocmd.Commander[UpdateSettingsMessage]        = (*UpdateSettingsCommand)(nil)
	_ gocmd.Commander[RunSyncMessage]               = (*RunSyncCommand)(nil)
	_ gocmd.Commander[CreateCalendarEventMessage]   = (*CreateCalendarEventCommand)(nil)
	_ gocmd.Commander[UpdateCalendarEventMessage]   = (*UpdateCalendarEventCommand)(nil)
	_ gocmd.Commander[DeleteCalendarEventMessage]   = (*DeleteCalendarEventCommand)(nil)
	_ gocmd.Commander[SendEmailMessage]             = (*SendEmailCommand)(nil)
	_ gocmd.Commander[LinkCalendarEventMessage]     = (*LinkCalendarEventCommand)(nil)
	_ gocmd.Commander[LinkEmailMessage]             = (*LinkEmailCommand)(nil)
	_ gocmd.Commander[ArchiveEmailsMessage]         = (*ArchiveEmailsCommand)(nil)
	_ gocmd.Commander[AutoLinkEmailsMessage]        = (*AutoLinkEmailsCommand)(nil)
)
