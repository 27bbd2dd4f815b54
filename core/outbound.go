package core

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

// outboundSession resolves an ACTIVE connection that accepts outbound writes
// and returns it with a fresh token.
func (s *Service) outboundSession(ctx context.Context, userID string, provider Provider) (ProviderClient, Connection, error) {
	if err := requireUser(userID); err != nil {
		return nil, Connection{}, err
	}
	client, err := s.resolveClient(provider)
	if err != nil {
		return nil, Connection{}, err
	}
	conn, err := s.requireActive(ctx, userID, client.Provider())
	if err != nil {
		return nil, Connection{}, err
	}
	if !conn.Settings.SyncDirection.AllowsOutbound() {
		return nil, Connection{}, NewIntegrationNotActiveError(conn).
			WithMetadata(map[string]any{"reason": "outbound sync disabled"})
	}
	conn, err = s.ensureFreshToken(ctx, conn, client)
	if err != nil {
		return nil, Connection{}, err
	}
	return client, conn, nil
}

func (s *Service) CreateCalendarEvent(ctx context.Context, userID string, provider Provider, draft EventDraft) (event SyncedCalendarEvent, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"user_id": userID, "provider": string(provider)}
	defer func() {
		if event.ID != "" {
			fields["event_id"] = event.ID
			fields["external_id"] = event.ExternalID
		}
		s.observeOperation(ctx, startedAt, "create_calendar_event", err, fields)
	}()

	if err = draft.Validate(); err != nil {
		return SyncedCalendarEvent{}, err
	}
	client, conn, err := s.outboundSession(ctx, userID, provider)
	if err != nil {
		err = s.mapError(err)
		return SyncedCalendarEvent{}, err
	}
	if draft.CalendarID, err = syncedCalendarID(conn, draft.CalendarID); err != nil {
		return SyncedCalendarEvent{}, err
	}

	var externalID string
	_, err = s.retryProviderCall(ctx, "push_event", func(ctx context.Context) error {
		id, pushErr := client.PushEvent(ctx, sessionFor(conn), draft)
		externalID = id
		return pushErr
	})
	if err != nil {
		err = s.mapError(err)
		return SyncedCalendarEvent{}, err
	}

	now := s.clock()
	event, _, err = s.events.Upsert(ctx, eventFromDraft(conn, externalID, draft, now), replaceOutboundEvent)
	if err != nil {
		err = s.mapError(err)
		return SyncedCalendarEvent{}, err
	}
	return event, nil
}

func (s *Service) UpdateCalendarEvent(ctx context.Context, userID string, eventID string, draft EventDraft) (event SyncedCalendarEvent, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"user_id": userID, "event_id": eventID}
	defer func() {
		s.observeOperation(ctx, startedAt, "update_calendar_event", err, fields)
	}()

	if err = draft.Validate(); err != nil {
		return SyncedCalendarEvent{}, err
	}
	existing, err := s.loadEvent(ctx, userID, eventID)
	if err != nil {
		err = s.mapError(err)
		return SyncedCalendarEvent{}, err
	}
	fields["provider"] = string(existing.Provider)
	if existing.State == EventStateDeleted {
		err = NewNotFoundError("calendar event", eventID)
		return SyncedCalendarEvent{}, err
	}
	client, conn, err := s.outboundSession(ctx, userID, existing.Provider)
	if err != nil {
		err = s.mapError(err)
		return SyncedCalendarEvent{}, err
	}
	draft.ExternalID = existing.ExternalID
	if draft.CalendarID, err = syncedCalendarID(conn, draft.CalendarID); err != nil {
		return SyncedCalendarEvent{}, err
	}
	_, err = s.retryProviderCall(ctx, "push_event", func(ctx context.Context) error {
		_, pushErr := client.PushEvent(ctx, sessionFor(conn), draft)
		return pushErr
	})
	if err != nil {
		err = s.mapError(err)
		return SyncedCalendarEvent{}, err
	}

	now := s.clock()
	event, err = s.modifyEvent(ctx, userID, existing.ID, func(current *SyncedCalendarEvent) (bool, error) {
		current.Subject = draft.Subject
		current.Body = draft.Body
		current.Location = draft.Location
		current.StartAt = draft.StartAt.UTC()
		current.EndAt = draft.EndAt.UTC()
		current.AllDay = draft.AllDay
		current.Attendees = append([]Attendee(nil), draft.Attendees...)
		current.SyncDirection = SyncDirectionOutbound
		current.State = EventStateActive
		current.RemoteUpdatedAt = laterOf(current.RemoteUpdatedAt, now)
		current.LastSyncedAt = now
		current.UpdatedAt = now
		return true, nil
	})
	if err != nil {
		err = s.mapError(err)
		return SyncedCalendarEvent{}, err
	}
	return event, nil
}

// DeleteCalendarEvent soft-deletes the mirror, removing the remote event
// first when the connection accepts outbound writes.
func (s *Service) DeleteCalendarEvent(ctx context.Context, userID string, eventID string) (err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"user_id": userID, "event_id": eventID}
	defer func() {
		s.observeOperation(ctx, startedAt, "delete_calendar_event", err, fields)
	}()

	existing, err := s.loadEvent(ctx, userID, eventID)
	if err != nil {
		err = s.mapError(err)
		return err
	}
	fields["provider"] = string(existing.Provider)
	if existing.State == EventStateDeleted {
		return nil
	}
	client, conn, err := s.outboundSession(ctx, userID, existing.Provider)
	if err != nil {
		err = s.mapError(err)
		return err
	}
	_, err = s.retryProviderCall(ctx, "delete_event", func(ctx context.Context) error {
		return client.DeleteEvent(ctx, sessionFor(conn), existing.ExternalID)
	})
	if err != nil {
		err = s.mapError(err)
		return err
	}

	now := s.clock()
	_, err = s.modifyEvent(ctx, userID, existing.ID, func(current *SyncedCalendarEvent) (bool, error) {
		if current.State == EventStateDeleted {
			return false, nil
		}
		current.State = EventStateDeleted
		current.RemoteUpdatedAt = laterOf(current.RemoteUpdatedAt, now)
		current.LastSyncedAt = now
		current.UpdatedAt = now
		return true, nil
	})
	if err != nil {
		err = s.mapError(err)
		return err
	}
	return nil
}

func (s *Service) SendEmail(ctx context.Context, userID string, provider Provider, draft EmailDraft) (email SyncedEmail, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"user_id": userID, "provider": string(provider)}
	defer func() {
		if email.ID != "" {
			fields["email_id"] = email.ID
			fields["external_id"] = email.ExternalID
		}
		s.observeOperation(ctx, startedAt, "send_email", err, fields)
	}()

	if err = draft.Validate(); err != nil {
		return SyncedEmail{}, err
	}
	client, conn, err := s.outboundSession(ctx, userID, provider)
	if err != nil {
		err = s.mapError(err)
		return SyncedEmail{}, err
	}

	var externalID string
	_, err = s.retryProviderCall(ctx, "push_email", func(ctx context.Context) error {
		id, pushErr := client.PushEmail(ctx, sessionFor(conn), draft)
		externalID = id
		return pushErr
	})
	if err != nil {
		err = s.mapError(err)
		return SyncedEmail{}, err
	}

	now := s.clock()
	email, _, err = s.emails.Upsert(ctx, emailFromDraft(conn, externalID, draft, now), replaceOutboundEmail)
	if err != nil {
		err = s.mapError(err)
		return SyncedEmail{}, err
	}
	if email.ConversationID != "" {
		if _, threadErr := s.recomputeThread(ctx, conn.UserID, conn.Provider, email.ConversationID); threadErr != nil {
			s.logError(ctx, "thread recompute failed", map[string]any{
				"user_id":         conn.UserID,
				"conversation_id": email.ConversationID,
				"error":           threadErr.Error(),
			})
		}
	}
	return email, nil
}

// syncedCalendarID resolves the calendar an outbound event is written to.
// Only the connection's default calendar is fetched, updated and deleted
// against, so any other calendar is refused.
func syncedCalendarID(conn Connection, requested string) (string, error) {
	calendarID := strings.TrimSpace(conn.Settings.DefaultCalendarID)
	requested = strings.TrimSpace(requested)
	if requested != "" && requested != calendarID {
		return "", newValidationError("calendar_id", "events can only be written to the connection's default calendar")
	}
	return calendarID, nil
}

func eventFromDraft(conn Connection, externalID string, draft EventDraft, now time.Time) SyncedCalendarEvent {
	raw, _ := json.Marshal(map[string]any{"source": "outbound", "calendar_id": draft.CalendarID})
	return SyncedCalendarEvent{
		UserID:          conn.UserID,
		Provider:        conn.Provider,
		ExternalID:      externalID,
		Subject:         draft.Subject,
		Body:            draft.Body,
		Location:        draft.Location,
		StartAt:         draft.StartAt.UTC(),
		EndAt:           draft.EndAt.UTC(),
		AllDay:          draft.AllDay,
		Attendees:       append([]Attendee(nil), draft.Attendees...),
		SyncDirection:   SyncDirectionOutbound,
		State:           EventStateActive,
		RemoteUpdatedAt: now,
		LastSyncedAt:    now,
		RawData:         raw,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func emailFromDraft(conn Connection, externalID string, draft EmailDraft, now time.Time) SyncedEmail {
	raw, _ := json.Marshal(map[string]any{"source": "outbound"})
	conversationID := strings.TrimSpace(draft.ConversationID)
	if conversationID == "" {
		conversationID = externalID
	}
	sentAt := now
	preview := draft.Body
	if len(preview) > 255 {
		preview = preview[:255]
	}
	return SyncedEmail{
		UserID:          conn.UserID,
		Provider:        conn.Provider,
		ExternalID:      externalID,
		ConversationID:  conversationID,
		Subject:         draft.Subject,
		Body:            draft.Body,
		BodyPreview:     preview,
		To:              append([]EmailAddress(nil), draft.To...),
		Cc:              append([]EmailAddress(nil), draft.Cc...),
		FolderID:        firstNonEmpty(draft.FolderID, conn.Settings.DefaultFolderID),
		SentAt:          &sentAt,
		IsRead:          true,
		SyncDirection:   SyncDirectionOutbound,
		RemoteUpdatedAt: now,
		LastSyncedAt:    now,
		RawData:         raw,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func (s *Service) loadEvent(ctx context.Context, userID string, eventID string) (SyncedCalendarEvent, error) {
	if err := requireUser(userID); err != nil {
		return SyncedCalendarEvent{}, err
	}
	event, err := s.events.Get(ctx, userID, strings.TrimSpace(eventID))
	if err != nil {
		if isNotFound(err) {
			return SyncedCalendarEvent{}, NewNotFoundError("calendar event", eventID)
		}
		return SyncedCalendarEvent{}, err
	}
	return event, nil
}

func (s *Service) loadEmail(ctx context.Context, userID string, emailID string) (SyncedEmail, error) {
	if err := requireUser(userID); err != nil {
		return SyncedEmail{}, err
	}
	email, err := s.emails.Get(ctx, userID, strings.TrimSpace(emailID))
	if err != nil {
		if isNotFound(err) {
			return SyncedEmail{}, NewNotFoundError("email", emailID)
		}
		return SyncedEmail{}, err
	}
	return email, nil
}

// modifyEvent applies a field-scoped change to the current stored row, so a
// concurrent sync pass never has its reconciled content overwritten.
func (s *Service) modifyEvent(ctx context.Context, userID string, eventID string, mutate MirrorMutation[SyncedCalendarEvent]) (SyncedCalendarEvent, error) {
	if err := requireUser(userID); err != nil {
		return SyncedCalendarEvent{}, err
	}
	event, err := s.events.Modify(ctx, userID, strings.TrimSpace(eventID), mutate)
	if err != nil {
		if isNotFound(err) {
			return SyncedCalendarEvent{}, NewNotFoundError("calendar event", eventID)
		}
		return SyncedCalendarEvent{}, err
	}
	return event, nil
}

func (s *Service) modifyEmail(ctx context.Context, userID string, emailID string, mutate MirrorMutation[SyncedEmail]) (SyncedEmail, error) {
	if err := requireUser(userID); err != nil {
		return SyncedEmail{}, err
	}
	email, err := s.emails.Modify(ctx, userID, strings.TrimSpace(emailID), mutate)
	if err != nil {
		if isNotFound(err) {
			return SyncedEmail{}, NewNotFoundError("email", emailID)
		}
		return SyncedEmail{}, err
	}
	return email, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
