package core

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

func eventFromRemote(conn Connection, remote RemoteEvent, now time.Time) SyncedCalendarEvent {
	state := EventStateActive
	if remote.Deleted {
		state = EventStateDeleted
	}
	return SyncedCalendarEvent{
		UserID:          conn.UserID,
		Provider:        conn.Provider,
		ExternalID:      strings.TrimSpace(remote.ExternalID),
		Subject:         remote.Subject,
		Body:            remote.Body,
		Location:        remote.Location,
		StartAt:         remote.StartAt.UTC(),
		EndAt:           remote.EndAt.UTC(),
		AllDay:          remote.AllDay,
		Organizer:       remote.Organizer,
		Attendees:       append([]Attendee(nil), remote.Attendees...),
		SyncDirection:   SyncDirectionInbound,
		State:           state,
		RemoteUpdatedAt: remoteUTC(remote.UpdatedAt),
		LastSyncedAt:    now,
		RawData:         append([]byte(nil), remote.Raw...),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func emailFromRemote(conn Connection, remote RemoteEmail, now time.Time) SyncedEmail {
	return SyncedEmail{
		UserID:          conn.UserID,
		Provider:        conn.Provider,
		ExternalID:      strings.TrimSpace(remote.ExternalID),
		ConversationID:  strings.TrimSpace(remote.ConversationID),
		Subject:         remote.Subject,
		Body:            remote.Body,
		BodyPreview:     remote.BodyPreview,
		From:            remote.From,
		To:              append([]EmailAddress(nil), remote.To...),
		Cc:              append([]EmailAddress(nil), remote.Cc...),
		FolderID:        remote.FolderID,
		SentAt:          cloneTime(remote.SentAt),
		ReceivedAt:      cloneTime(remote.ReceivedAt),
		IsRead:          remote.IsRead,
		HasAttachments:  len(remote.Attachments) > 0,
		Attachments:     append([]Attachment(nil), remote.Attachments...),
		SyncDirection:   SyncDirectionInbound,
		RemoteUpdatedAt: remoteUTC(remote.UpdatedAt),
		LastSyncedAt:    now,
		RawData:         append([]byte(nil), remote.Raw...),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// remoteUTC keeps a missing provider timestamp as the zero time.
func remoteUTC(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	return t.UTC()
}

func validateRemoteEvent(remote RemoteEvent) error {
	if strings.TrimSpace(remote.ExternalID) == "" {
		return fmt.Errorf("remote event is missing an external id")
	}
	if remote.Deleted {
		return nil
	}
	if remote.StartAt.IsZero() {
		return fmt.Errorf("remote event %s has no start time", remote.ExternalID)
	}
	if !remote.EndAt.IsZero() && remote.EndAt.Before(remote.StartAt) {
		return fmt.Errorf("remote event %s ends before it starts", remote.ExternalID)
	}
	return nil
}

func validateRemoteEmail(remote RemoteEmail) error {
	if strings.TrimSpace(remote.ExternalID) == "" {
		return fmt.Errorf("remote email is missing an external id")
	}
	if strings.TrimSpace(remote.From.Address) == "" && len(remote.To) == 0 {
		return fmt.Errorf("remote email %s has no sender or recipients", remote.ExternalID)
	}
	return nil
}

// mergeCalendarEvent applies newer-wins reconciliation. Local-only state
// (links, direction tag, identity) survives remote updates.
func mergeCalendarEvent(existing *SyncedCalendarEvent, incoming SyncedCalendarEvent) (SyncedCalendarEvent, UpsertOutcome) {
	if existing == nil {
		if incoming.State == EventStateDeleted {
			return incoming, UpsertNoop
		}
		if incoming.ID == "" {
			incoming.ID = uuid.NewString()
		}
		return incoming, UpsertCreated
	}
	current := existing.Clone()
	if incoming.State == EventStateDeleted {
		if current.State == EventStateDeleted {
			return current, UpsertNoop
		}
		current.State = EventStateDeleted
		current.RemoteUpdatedAt = laterOf(current.RemoteUpdatedAt, incoming.RemoteUpdatedAt)
		current.LastSyncedAt = incoming.LastSyncedAt
		current.UpdatedAt = incoming.UpdatedAt
		return current, UpsertDeleted
	}
	if !remoteEventChanged(current, incoming) {
		return current, UpsertNoop
	}
	current.Subject = incoming.Subject
	current.Body = incoming.Body
	current.Location = incoming.Location
	current.StartAt = incoming.StartAt
	current.EndAt = incoming.EndAt
	current.AllDay = incoming.AllDay
	current.Organizer = incoming.Organizer
	current.Attendees = append([]Attendee(nil), incoming.Attendees...)
	current.State = EventStateActive
	current.RemoteUpdatedAt = laterOf(current.RemoteUpdatedAt, incoming.RemoteUpdatedAt)
	current.LastSyncedAt = incoming.LastSyncedAt
	current.RawData = append([]byte(nil), incoming.RawData...)
	current.UpdatedAt = incoming.UpdatedAt
	return current, UpsertUpdated
}

func mergeEmail(existing *SyncedEmail, incoming SyncedEmail) (SyncedEmail, UpsertOutcome) {
	if existing == nil {
		if incoming.ID == "" {
			incoming.ID = uuid.NewString()
		}
		return incoming, UpsertCreated
	}
	current := existing.Clone()
	if !remoteEmailChanged(current, incoming) {
		return current, UpsertNoop
	}
	current.ConversationID = incoming.ConversationID
	current.Subject = incoming.Subject
	current.Body = incoming.Body
	current.BodyPreview = incoming.BodyPreview
	current.From = incoming.From
	current.To = append([]EmailAddress(nil), incoming.To...)
	current.Cc = append([]EmailAddress(nil), incoming.Cc...)
	current.FolderID = incoming.FolderID
	current.SentAt = cloneTime(incoming.SentAt)
	current.ReceivedAt = cloneTime(incoming.ReceivedAt)
	current.IsRead = incoming.IsRead
	current.HasAttachments = incoming.HasAttachments
	current.Attachments = append([]Attachment(nil), incoming.Attachments...)
	current.RemoteUpdatedAt = laterOf(current.RemoteUpdatedAt, incoming.RemoteUpdatedAt)
	current.LastSyncedAt = incoming.LastSyncedAt
	current.RawData = append([]byte(nil), incoming.RawData...)
	current.UpdatedAt = incoming.UpdatedAt
	return current, UpsertUpdated
}

// remoteEventChanged is newer-wins on the provider timestamp. Items without
// one are compared on their mirrored content, so re-fetching them is a noop.
func remoteEventChanged(current SyncedCalendarEvent, incoming SyncedCalendarEvent) bool {
	if !incoming.RemoteUpdatedAt.IsZero() {
		return incoming.RemoteUpdatedAt.After(current.RemoteUpdatedAt)
	}
	return current.State != EventStateActive ||
		current.Subject != incoming.Subject ||
		current.Body != incoming.Body ||
		current.Location != incoming.Location ||
		!current.StartAt.Equal(incoming.StartAt) ||
		!current.EndAt.Equal(incoming.EndAt) ||
		current.AllDay != incoming.AllDay ||
		current.Organizer != incoming.Organizer ||
		!slices.Equal(current.Attendees, incoming.Attendees)
}

func remoteEmailChanged(current SyncedEmail, incoming SyncedEmail) bool {
	if !incoming.RemoteUpdatedAt.IsZero() {
		return incoming.RemoteUpdatedAt.After(current.RemoteUpdatedAt)
	}
	return current.ConversationID != incoming.ConversationID ||
		current.Subject != incoming.Subject ||
		current.Body != incoming.Body ||
		current.BodyPreview != incoming.BodyPreview ||
		current.From != incoming.From ||
		!slices.Equal(current.To, incoming.To) ||
		!slices.Equal(current.Cc, incoming.Cc) ||
		current.FolderID != incoming.FolderID ||
		!sameInstant(current.SentAt, incoming.SentAt) ||
		!sameInstant(current.ReceivedAt, incoming.ReceivedAt) ||
		current.IsRead != incoming.IsRead ||
		!slices.Equal(current.Attachments, incoming.Attachments)
}

func sameInstant(a *time.Time, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// replaceOutbound stores a locally originated mirror. A concurrent inbound
// pass may already have created the row for the new external id; the
// outbound content wins and the row is re-tagged.
func replaceOutboundEvent(existing *SyncedCalendarEvent, incoming SyncedCalendarEvent) (SyncedCalendarEvent, UpsertOutcome) {
	if existing == nil {
		if incoming.ID == "" {
			incoming.ID = uuid.NewString()
		}
		return incoming, UpsertCreated
	}
	incoming.ID = existing.ID
	incoming.CreatedAt = existing.CreatedAt
	if incoming.LinkedHouseholdID == nil {
		incoming.LinkedHouseholdID = cloneString(existing.LinkedHouseholdID)
	}
	if incoming.LinkedPersonID == nil {
		incoming.LinkedPersonID = cloneString(existing.LinkedPersonID)
	}
	return incoming, UpsertUpdated
}

func replaceOutboundEmail(existing *SyncedEmail, incoming SyncedEmail) (SyncedEmail, UpsertOutcome) {
	if existing == nil {
		if incoming.ID == "" {
			incoming.ID = uuid.NewString()
		}
		return incoming, UpsertCreated
	}
	incoming.ID = existing.ID
	incoming.CreatedAt = existing.CreatedAt
	incoming.IsArchived = existing.IsArchived
	incoming.InternalNotes = existing.InternalNotes
	if incoming.LinkedHouseholdID == nil {
		incoming.LinkedHouseholdID = cloneString(existing.LinkedHouseholdID)
	}
	if incoming.LinkedPersonID == nil {
		incoming.LinkedPersonID = cloneString(existing.LinkedPersonID)
	}
	return incoming, UpsertUpdated
}

func (s *Service) reconcileEvent(ctx context.Context, conn Connection, remote RemoteEvent, now time.Time) (UpsertOutcome, error) {
	if err := validateRemoteEvent(remote); err != nil {
		return UpsertNoop, err
	}
	_, outcome, err := s.events.Upsert(ctx, eventFromRemote(conn, remote, now), mergeCalendarEvent)
	if err != nil {
		return UpsertNoop, fmt.Errorf("store event %s: %w", remote.ExternalID, err)
	}
	return outcome, nil
}

func (s *Service) reconcileEmail(ctx context.Context, conn Connection, remote RemoteEmail, now time.Time) (SyncedEmail, UpsertOutcome, error) {
	if err := validateRemoteEmail(remote); err != nil {
		return SyncedEmail{}, UpsertNoop, err
	}
	stored, outcome, err := s.emails.Upsert(ctx, emailFromRemote(conn, remote, now), mergeEmail)
	if err != nil {
		return SyncedEmail{}, UpsertNoop, fmt.Errorf("store email %s: %w", remote.ExternalID, err)
	}
	return stored, outcome, nil
}

func laterOf(a time.Time, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
