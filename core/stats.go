package core

import (
	"context"
	"time"
)

// Stats is computed from the stored collections on every call.
type Stats struct {
	TotalEvents    int
	UpcomingEvents int
	TotalEmails    int
	UnreadEmails   int
	ClientEmails   int
	LastSyncAt     *time.Time
}

func (s *Service) GetStats(ctx context.Context, userID string) (stats Stats, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"user_id": userID}
	defer func() {
		s.observeOperation(ctx, startedAt, "get_stats", err, fields)
	}()

	if err = requireUser(userID); err != nil {
		return Stats{}, err
	}
	now := s.clock()
	if stats.TotalEvents, err = s.events.Count(ctx, userID, nil); err != nil {
		err = s.mapError(err)
		return Stats{}, err
	}
	if stats.UpcomingEvents, err = s.events.Count(ctx, userID, &now); err != nil {
		err = s.mapError(err)
		return Stats{}, err
	}
	counts, err := s.emails.Counts(ctx, userID)
	if err != nil {
		err = s.mapError(err)
		return Stats{}, err
	}
	stats.TotalEmails = counts.Total
	stats.UnreadEmails = counts.Unread
	stats.ClientEmails = counts.Client

	connections, err := s.connections.ListByUser(ctx, userID)
	if err != nil {
		err = s.mapError(err)
		return Stats{}, err
	}
	for _, conn := range connections {
		if conn.LastSyncAt == nil {
			continue
		}
		if stats.LastSyncAt == nil || conn.LastSyncAt.After(*stats.LastSyncAt) {
			stats.LastSyncAt = cloneTime(conn.LastSyncAt)
		}
	}
	return stats, nil
}
