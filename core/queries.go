package core

import (
	"context"
	"strings"
)

func (s *Service) ListCalendarEvents(ctx context.Context, filter CalendarEventFilter) ([]SyncedCalendarEvent, int, error) {
	if err := requireUser(filter.UserID); err != nil {
		return nil, 0, err
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, 0, newValidationError("to", "range end must not precede range start")
	}
	events, total, err := s.events.List(ctx, filter)
	if err != nil {
		return nil, 0, s.mapError(err)
	}
	return events, total, nil
}

func (s *Service) GetCalendarEvent(ctx context.Context, userID string, eventID string) (SyncedCalendarEvent, error) {
	event, err := s.loadEvent(ctx, userID, eventID)
	if err != nil {
		return SyncedCalendarEvent{}, s.mapError(err)
	}
	return event, nil
}

func (s *Service) ListEmails(ctx context.Context, filter EmailFilter) ([]SyncedEmail, int, error) {
	if err := requireUser(filter.UserID); err != nil {
		return nil, 0, err
	}
	emails, total, err := s.emails.List(ctx, filter)
	if err != nil {
		return nil, 0, s.mapError(err)
	}
	return emails, total, nil
}

func (s *Service) GetEmail(ctx context.Context, userID string, emailID string) (SyncedEmail, error) {
	email, err := s.loadEmail(ctx, userID, emailID)
	if err != nil {
		return SyncedEmail{}, s.mapError(err)
	}
	return email, nil
}

func (s *Service) ListThreads(ctx context.Context, userID string, filter ThreadFilter) ([]EmailThread, int, error) {
	if err := requireUser(userID); err != nil {
		return nil, 0, err
	}
	threads, total, err := s.threads.List(ctx, userID, filter)
	if err != nil {
		return nil, 0, s.mapError(err)
	}
	return threads, total, nil
}

// GetThread returns the thread with its member emails in message order.
func (s *Service) GetThread(ctx context.Context, userID string, threadID string) (EmailThread, []SyncedEmail, error) {
	if err := requireUser(userID); err != nil {
		return EmailThread{}, nil, err
	}
	thread, err := s.threads.Get(ctx, userID, strings.TrimSpace(threadID))
	if err != nil {
		if isNotFound(err) {
			return EmailThread{}, nil, NewNotFoundError("email thread", threadID)
		}
		return EmailThread{}, nil, s.mapError(err)
	}
	emails, _, err := s.emails.List(ctx, EmailFilter{
		UserID:         userID,
		Provider:       thread.Provider,
		ConversationID: thread.ConversationID,
	})
	if err != nil {
		return EmailThread{}, nil, s.mapError(err)
	}
	sortByMessageTime(emails)
	return thread, emails, nil
}

// ListSyncLogs returns the user's sync logs, newest first.
func (s *Service) ListSyncLogs(ctx context.Context, userID string, provider *Provider) ([]SyncLog, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	logs, err := s.syncLogs.List(ctx, userID, provider)
	if err != nil {
		return nil, s.mapError(err)
	}
	return logs, nil
}

func (s *Service) GetSyncLog(ctx context.Context, userID string, id string) (SyncLog, error) {
	if err := requireUser(userID); err != nil {
		return SyncLog{}, err
	}
	log, err := s.syncLogs.Get(ctx, userID, strings.TrimSpace(id))
	if err != nil {
		if isNotFound(err) {
			return SyncLog{}, NewNotFoundError("sync log", id)
		}
		return SyncLog{}, s.mapError(err)
	}
	return log, nil
}
