package command

import (
	"strings"

	"github.com/goliatone/go-crm-sync/core"
)

const (
	TypeBeginAuthorization    = "crm_sync.command.authorization.begin"
	TypeCompleteAuthorization = "crm_sync.command.authorization.complete"
	TypeDisconnect            = "crm_sync.command.connection.disconnect"
	TypeUpdateSettings        = "crm_sync.command.connection.update_settings"
	TypeRunSync               = "crm_sync.command.sync.run"
	TypeCreateCalendarEvent   = "crm_sync.command.calendar_event.create"
	TypeUpdateCalendarEvent   = "crm_sync.command.calendar_event.update"
	TypeDeleteCalendarEvent   = "crm_sync.command.calendar_event.delete"
	TypeSendEmail             = "crm_sync.command.email.send"
	TypeLinkCalendarEvent     = "crm_sync.command.calendar_event.link"
	TypeLinkEmail             = "crm_sync.command.email.link"
	TypeArchiveEmails         = "crm_sync.command.email.archive"
	TypeAutoLinkEmails        = "crm_sync.command.email.auto_link"
)

type BeginAuthorizationMessage struct {
	Request core.BeginAuthorizationRequest
}

func (BeginAuthorizationMessage) Type() string { return TypeBeginAuthorization }

func (m BeginAuthorizationMessage) Validate() error {
	if err := requireField("user_id", m.Request.UserID); err != nil {
		return err
	}
	return requireProvider(m.Request.Provider)
}

type CompleteAuthorizationMessage struct {
	Request core.CompleteAuthorizationRequest
}

func (CompleteAuthorizationMessage) Type() string { return TypeCompleteAuthorization }

func (m CompleteAuthorizationMessage) Validate() error {
	if err := requireField("code", m.Request.Code); err != nil {
		return err
	}
	return requireField("state", m.Request.State)
}

type DisconnectMessage struct {
	UserID   string
	Provider core.Provider
}

func (DisconnectMessage) Type() string { return TypeDisconnect }

func (m DisconnectMessage) Validate() error {
	if err := requireField("user_id", m.UserID); err != nil {
		return err
	}
	return requireProvider(m.Provider)
}

type UpdateSettingsMessage struct {
	UserID   string
	Provider core.Provider
	Patch    core.SettingsPatch
}

func (UpdateSettingsMessage) Type() string { return TypeUpdateSettings }

func (m UpdateSettingsMessage) Validate() error {
	if err := requireField("user_id", m.UserID); err != nil {
		return err
	}
	if err := requireProvider(m.Provider); err != nil {
		return err
	}
	if m.Patch.SyncDirection != nil {
		if err := m.Patch.SyncDirection.Validate(); err != nil {
			return commandWrapValidation(err, "command: invalid sync direction")
		}
	}
	return nil
}

type RunSyncMessage struct {
	Request core.RunSyncRequest
}

func (RunSyncMessage) Type() string { return TypeRunSync }

func (m RunSyncMessage) Validate() error {
	if err := requireProvider(m.Request.Provider); err != nil {
		return err
	}
	if err := m.Request.Validate(); err != nil {
		return commandWrapValidation(err, "command: invalid sync request")
	}
	return nil
}

type CreateCalendarEventMessage struct {
	UserID   string
	Provider core.Provider
	Draft    core.EventDraft
}

func (CreateCalendarEventMessage) Type() string { return TypeCreateCalendarEvent }

func (m CreateCalendarEventMessage) Validate() error {
	if err := requireField("user_id", m.UserID); err != nil {
		return err
	}
	if err := requireProvider(m.Provider); err != nil {
		return err
	}
	if err := m.Draft.Validate(); err != nil {
		return commandWrapValidation(err, "command: invalid event draft")
	}
	return nil
}

type UpdateCalendarEventMessage struct {
	UserID  string
	EventID string
	Draft   core.EventDraft
}

func (UpdateCalendarEventMessage) Type() string { return TypeUpdateCalendarEvent }

func (m UpdateCalendarEventMessage) Validate() error {
	if err := requireField("user_id", m.UserID); err != nil {
		return err
	}
	if err := requireField("event_id", m.EventID); err != nil {
		return err
	}
	if err := m.Draft.Validate(); err != nil {
		return commandWrapValidation(err, "command: invalid event draft")
	}
	return nil
}

type DeleteCalendarEventMessage struct {
	UserID  string
	EventID string
}

func (DeleteCalendarEventMessage) Type() string { return TypeDeleteCalendarEvent }

func (m DeleteCalendarEventMessage) Validate() error {
	if err := requireField("user_id", m.UserID); err != nil {
		return err
	}
	return requireField("event_id", m.EventID)
}

type SendEmailMessage struct {
	UserID   string
	Provider core.Provider
	Draft    core.EmailDraft
}

func (SendEmailMessage) Type() string { return TypeSendEmail }

func (m SendEmailMessage) Validate() error {
	if err := requireField("user_id", m.UserID); err != nil {
		return err
	}
	if err := requireProvider(m.Provider); err != nil {
		return err
	}
	if err := m.Draft.Validate(); err != nil {
		return commandWrapValidation(err, "command: invalid email draft")
	}
	return nil
}

type LinkCalendarEventMessage struct {
	UserID  string
	EventID string
	Patch   core.LinkPatch
}

func (LinkCalendarEventMessage) Type() string { return TypeLinkCalendarEvent }

func (m LinkCalendarEventMessage) Validate() error {
	if err := requireField("user_id", m.UserID); err != nil {
		return err
	}
	return requireField("event_id", m.EventID)
}

type LinkEmailMessage struct {
	UserID  string
	EmailID string
	Patch   core.EmailLinkPatch
}

func (LinkEmailMessage) Type() string { return TypeLinkEmail }

func (m LinkEmailMessage) Validate() error {
	if err := requireField("user_id", m.UserID); err != nil {
		return err
	}
	return requireField("email_id", m.EmailID)
}

type ArchiveEmailsMessage struct {
	UserID   string
	EmailIDs []string
}

func (ArchiveEmailsMessage) Type() string { return TypeArchiveEmails }

func (m ArchiveEmailsMessage) Validate() error {
	if err := requireField("user_id", m.UserID); err != nil {
		return err
	}
	if len(m.EmailIDs) == 0 {
		return commandValidationError("email_ids", "at least one email id is required")
	}
	return nil
}

type AutoLinkEmailsMessage struct {
	UserID string
}

func (AutoLinkEmailsMessage) Type() string { return TypeAutoLinkEmails }

func (m AutoLinkEmailsMessage) Validate() error {
	return requireField("user_id", m.UserID)
}

func requireField(field string, value string) error {
	if strings.TrimSpace(value) == "" {
		return commandValidationError(field, field+" is required")
	}
	return nil
}

func requireProvider(provider core.Provider) error {
	if core.ParseProvider(string(provider)) == "" {
		return commandValidationError("provider", "provider is required")
	}
	return nil
}
