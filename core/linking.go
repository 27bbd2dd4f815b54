package core

import (
	"context"
	"strings"
	"time"
)

// LinkPatch updates CRM links. A nil field is left untouched and an empty
// string clears the link.
type LinkPatch struct {
	HouseholdID *string
	PersonID    *string
}

type EmailLinkPatch struct {
	HouseholdID           *string
	PersonID              *string
	Notes                 *string
	IsClientCommunication *bool
}

func (s *Service) LinkCalendarEvent(ctx context.Context, userID string, eventID string, patch LinkPatch) (event SyncedCalendarEvent, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"user_id": userID, "event_id": eventID}
	defer func() {
		s.observeOperation(ctx, startedAt, "link_calendar_event", err, fields)
	}()

	now := s.clock()
	event, err = s.modifyEvent(ctx, userID, eventID, func(current *SyncedCalendarEvent) (bool, error) {
		current.LinkedHouseholdID = applyLink(current.LinkedHouseholdID, patch.HouseholdID)
		current.LinkedPersonID = applyLink(current.LinkedPersonID, patch.PersonID)
		current.UpdatedAt = now
		return true, nil
	})
	if err != nil {
		err = s.mapError(err)
		return SyncedCalendarEvent{}, err
	}
	return event, nil
}

func (s *Service) LinkEmail(ctx context.Context, userID string, emailID string, patch EmailLinkPatch) (email SyncedEmail, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"user_id": userID, "email_id": emailID}
	defer func() {
		s.observeOperation(ctx, startedAt, "link_email", err, fields)
	}()

	now := s.clock()
	email, err = s.modifyEmail(ctx, userID, emailID, func(current *SyncedEmail) (bool, error) {
		current.LinkedHouseholdID = applyLink(current.LinkedHouseholdID, patch.HouseholdID)
		current.LinkedPersonID = applyLink(current.LinkedPersonID, patch.PersonID)
		if patch.Notes != nil {
			current.InternalNotes = *patch.Notes
		}
		if patch.IsClientCommunication != nil {
			current.IsClientCommunication = *patch.IsClientCommunication
		}
		current.UpdatedAt = now
		return true, nil
	})
	if err != nil {
		err = s.mapError(err)
		return SyncedEmail{}, err
	}
	return email, nil
}

// ArchiveEmails flags the user's emails as archived and returns how many
// changed. Unknown, foreign and already archived ids are not counted.
func (s *Service) ArchiveEmails(ctx context.Context, userID string, ids []string) (count int, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"user_id": userID, "requested": len(ids)}
	defer func() {
		fields["archived"] = count
		s.observeOperation(ctx, startedAt, "archive_emails", err, fields)
	}()

	if err = requireUser(userID); err != nil {
		return 0, err
	}
	unique := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	if len(unique) == 0 {
		return 0, nil
	}
	count, err = s.emails.Archive(ctx, userID, unique)
	if err != nil {
		err = s.mapError(err)
		return 0, err
	}
	return count, nil
}

func applyLink(current *string, patch *string) *string {
	if patch == nil {
		return current
	}
	value := strings.TrimSpace(*patch)
	if value == "" {
		return nil
	}
	return &value
}
