package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-crm-sync/core"
)

type ConnectionService interface {
	BeginAuthorization(ctx context.Context, req core.BeginAuthorizationRequest) (core.BeginAuthorizationResponse, error)
	CompleteAuthorization(ctx context.Context, req core.CompleteAuthorizationRequest) (core.Connection, error)
	Disconnect(ctx context.Context, userID string, provider core.Provider) (core.Connection, error)
	UpdateSettings(ctx context.Context, userID string, provider core.Provider, patch core.SettingsPatch) (core.Connection, error)
}

type SyncService interface {
	RunSync(ctx context.Context, req core.RunSyncRequest) (core.SyncLog, error)
}

type OutboundService interface {
	CreateCalendarEvent(ctx context.Context, userID string, provider core.Provider, draft core.EventDraft) (core.SyncedCalendarEvent, error)
	UpdateCalendarEvent(ctx context.Context, userID string, eventID string, draft core.EventDraft) (core.SyncedCalendarEvent, error)
	DeleteCalendarEvent(ctx context.Context, userID string, eventID string) error
	SendEmail(ctx context.Context, userID string, provider core.Provider, draft core.EmailDraft) (core.SyncedEmail, error)
}

type LinkingService interface {
	LinkCalendarEvent(ctx context.Context, userID string, eventID string, patch core.LinkPatch) (core.SyncedCalendarEvent, error)
	LinkEmail(ctx context.Context, userID string, emailID string, patch core.EmailLinkPatch) (core.SyncedEmail, error)
	ArchiveEmails(ctx context.Context, userID string, ids []string) (int, error)
	AutoLinkEmails(ctx context.Context, userID string) (core.AutoLinkResult, error)
}

// MutatingService is the write side of the sync engine.
type MutatingService interface {
	ConnectionService
	SyncService
	OutboundService
	LinkingService
}

type BeginAuthorizationCommand struct {
	service ConnectionService
}

func NewBeginAuthorizationCommand(service ConnectionService) *BeginAuthorizationCommand {
	return &BeginAuthorizationCommand{service: service}
}

func (c *BeginAuthorizationCommand) Execute(ctx context.Context, msg BeginAuthorizationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: authorization service is required")
	}
	out, err := c.service.BeginAuthorization(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type CompleteAuthorizationCommand struct {
	service ConnectionService
}

func NewCompleteAuthorizationCommand(service ConnectionService) *CompleteAuthorizationCommand {
	return &CompleteAuthorizationCommand{service: service}
}

func (c *CompleteAuthorizationCommand) Execute(ctx context.Context, msg CompleteAuthorizationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: authorization service is required")
	}
	out, err := c.service.CompleteAuthorization(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type DisconnectCommand struct {
	service ConnectionService
}

func NewDisconnectCommand(service ConnectionService) *DisconnectCommand {
	return &DisconnectCommand{service: service}
}

func (c *DisconnectCommand) Execute(ctx context.Context, msg DisconnectMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: connection service is required")
	}
	out, err := c.service.Disconnect(ctx, msg.UserID, msg.Provider)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type UpdateSettingsCommand struct {
	service ConnectionService
}

func NewUpdateSettingsCommand(service ConnectionService) *UpdateSettingsCommand {
	return &UpdateSettingsCommand{service: service}
}

func (c *UpdateSettingsCommand) Execute(ctx context.Context, msg UpdateSettingsMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: connection service is required")
	}
	out, err := c.service.UpdateSettings(ctx, msg.UserID, msg.Provider, msg.Patch)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RunSyncCommand struct {
	service SyncService
}

func NewRunSyncCommand(service SyncService) *RunSyncCommand {
	return &RunSyncCommand{service: service}
}

func (c *RunSyncCommand) Execute(ctx context.Context, msg RunSyncMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: sync service is required")
	}
	out, err := c.service.RunSync(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type CreateCalendarEventCommand struct {
	service OutboundService
}

func NewCreateCalendarEventCommand(service OutboundService) *CreateCalendarEventCommand {
	return &CreateCalendarEventCommand{service: service}
}

func (c *CreateCalendarEventCommand) Execute(ctx context.Context, msg CreateCalendarEventMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: outbound service is required")
	}
	out, err := c.service.CreateCalendarEvent(ctx, msg.UserID, msg.Provider, msg.Draft)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type UpdateCalendarEventCommand struct {
	service OutboundService
}

func NewUpdateCalendarEventCommand(service OutboundService) *UpdateCalendarEventCommand {
	return &UpdateCalendarEventCommand{service: service}
}

func (c *UpdateCalendarEventCommand) Execute(ctx context.Context, msg UpdateCalendarEventMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: outbound service is required")
	}
	out, err := c.service.UpdateCalendarEvent(ctx, msg.UserID, msg.EventID, msg.Draft)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type DeleteCalendarEventCommand struct {
	service OutboundService
}

func NewDeleteCalendarEventCommand(service OutboundService) *DeleteCalendarEventCommand {
	return &DeleteCalendarEventCommand{service: service}
}

func (c *DeleteCalendarEventCommand) Execute(ctx context.Context, msg DeleteCalendarEventMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: outbound service is required")
	}
	return c.service.DeleteCalendarEvent(ctx, msg.UserID, msg.EventID)
}

type SendEmailCommand struct {
	service OutboundService
}

func NewSendEmailCommand(service OutboundService) *SendEmailCommand {
	return &SendEmailCommand{service: service}
}

func (c *SendEmailCommand) Execute(ctx context.Context, msg SendEmailMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: outbound service is required")
	}
	out, err := c.service.SendEmail(ctx, msg.UserID, msg.Provider, msg.Draft)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type LinkCalendarEventCommand struct {
	service LinkingService
}

func NewLinkCalendarEventCommand(service LinkingService) *LinkCalendarEventCommand {
	return &LinkCalendarEventCommand{service: service}
}

func (c *LinkCalendarEventCommand) Execute(ctx context.Context, msg LinkCalendarEventMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: linking service is required")
	}
	out, err := c.service.LinkCalendarEvent(ctx, msg.UserID, msg.EventID, msg.Patch)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type LinkEmailCommand struct {
	service LinkingService
}

func NewLinkEmailCommand(service LinkingService) *LinkEmailCommand {
	return &LinkEmailCommand{service: service}
}

func (c *LinkEmailCommand) Execute(ctx context.Context, msg LinkEmailMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: linking service is required")
	}
	out, err := c.service.LinkEmail(ctx, msg.UserID, msg.EmailID, msg.Patch)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ArchiveEmailsCommand struct {
	service LinkingService
}

func NewArchiveEmailsCommand(service LinkingService) *ArchiveEmailsCommand {
	return &ArchiveEmailsCommand{service: service}
}

func (c *ArchiveEmailsCommand) Execute(ctx context.Context, msg ArchiveEmailsMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: linking service is required")
	}
	count, err := c.service.ArchiveEmails(ctx, msg.UserID, msg.EmailIDs)
	if err != nil {
		return err
	}
	storeResult(ctx, count)
	return nil
}

type AutoLinkEmailsCommand struct {
	service LinkingService
}

func NewAutoLinkEmailsCommand(service LinkingService) *AutoLinkEmailsCommand {
	return &AutoLinkEmailsCommand{service: service}
}

func (c *AutoLinkEmailsCommand) Execute(ctx context.Context, msg AutoLinkEmailsMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: linking service is required")
	}
	out, err := c.service.AutoLinkEmails(ctx, msg.UserID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
