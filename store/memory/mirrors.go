package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-crm-sync/core"
)

// mirrorTable holds rows unique on (user, external id). Upserts run the merge
// under the table lock so concurrent writers observe each other.
type mirrorTable[T any] struct {
	mu         sync.RWMutex
	rows       map[string]T
	byExternal map[string]string
	keyOf      func(T) (id string, userID string, externalID string)
	clone      func(T) T
}

func newMirrorTable[T any](keyOf func(T) (string, string, string), clone func(T) T) *mirrorTable[T] {
	return &mirrorTable[T]{
		rows:       map[string]T{},
		byExternal: map[string]string{},
		keyOf:      keyOf,
		clone:      clone,
	}
}

func externalKey(userID string, externalID string) string {
	return userID + "::" + externalID
}

func (t *mirrorTable[T]) get(kind string, userID string, id string) (T, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	row, ok := t.rows[id]
	if ok {
		if _, rowUser, _ := t.keyOf(row); rowUser == userID {
			return t.clone(row), nil
		}
	}
	var zero T
	return zero, fmt.Errorf("memory: %s %s: %w", kind, id, core.ErrNotFound)
}

func (t *mirrorTable[T]) getByExternal(kind string, userID string, externalID string) (T, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if id, ok := t.byExternal[externalKey(userID, externalID)]; ok {
		return t.clone(t.rows[id]), nil
	}
	var zero T
	return zero, fmt.Errorf("memory: %s external %s: %w", kind, externalID, core.ErrNotFound)
}

func (t *mirrorTable[T]) upsert(incoming T, merge core.MirrorMerge[T]) (T, core.UpsertOutcome, error) {
	_, userID, externalID := t.keyOf(incoming)
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(externalID) == "" {
		var zero T
		return zero, core.UpsertNoop, fmt.Errorf("memory: user and external id are required")
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	var existing *T
	if id, ok := t.byExternal[externalKey(userID, externalID)]; ok {
		current := t.clone(t.rows[id])
		existing = &current
	}
	next, outcome := merge(existing, incoming)
	if outcome == core.UpsertNoop {
		if existing != nil {
			return *existing, outcome, nil
		}
		return next, outcome, nil
	}
	id, _, _ := t.keyOf(next)
	if strings.TrimSpace(id) == "" {
		var zero T
		return zero, core.UpsertNoop, fmt.Errorf("memory: merged row has no id")
	}
	t.rows[id] = t.clone(next)
	t.byExternal[externalKey(userID, externalID)] = id
	return t.clone(next), outcome, nil
}

func (t *mirrorTable[T]) modify(kind string, userID string, id string, mutate core.MirrorMutation[T]) (T, error) {
	var zero T
	if mutate == nil {
		return zero, fmt.Errorf("memory: %s mutation is required", kind)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	existing, ok := t.rows[id]
	if !ok {
		return zero, fmt.Errorf("memory: %s %s: %w", kind, id, core.ErrNotFound)
	}
	if _, existingUser, _ := t.keyOf(existing); existingUser != userID {
		return zero, fmt.Errorf("memory: %s %s: %w", kind, id, core.ErrNotFound)
	}
	current := t.clone(existing)
	changed, err := mutate(&current)
	if err != nil {
		return zero, err
	}
	if !changed {
		return t.clone(existing), nil
	}
	if rowID, rowUser, rowExternal := t.keyOf(current); rowID != id || rowUser != userID || rowExternal != t.externalOf(existing) {
		return zero, fmt.Errorf("memory: %s %s: mutation changed the row identity", kind, id)
	}
	t.rows[id] = t.clone(current)
	return t.clone(current), nil
}

func (t *mirrorTable[T]) externalOf(row T) string {
	_, _, externalID := t.keyOf(row)
	return externalID
}

func (t *mirrorTable[T]) snapshot(userID string) []T {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]T, 0)
	for _, row := range t.rows {
		if _, rowUser, _ := t.keyOf(row); rowUser == userID {
			out = append(out, t.clone(row))
		}
	}
	return out
}

func paginate[T any](items []T, limit int, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func matchesLink(value *string, want string) bool {
	if want == "" {
		return true
	}
	return value != nil && *value == want
}

type CalendarEventStore struct {
	table *mirrorTable[core.SyncedCalendarEvent]
}

func NewCalendarEventStore() *CalendarEventStore {
	return &CalendarEventStore{
		table: newMirrorTable(
			func(e core.SyncedCalendarEvent) (string, string, string) { return e.ID, e.UserID, e.ExternalID },
			core.SyncedCalendarEvent.Clone,
		),
	}
}

func (s *CalendarEventStore) Get(_ context.Context, userID string, id string) (core.SyncedCalendarEvent, error) {
	return s.table.get("calendar event", userID, id)
}

func (s *CalendarEventStore) GetByExternalID(_ context.Context, userID string, externalID string) (core.SyncedCalendarEvent, error) {
	return s.table.getByExternal("calendar event", userID, externalID)
}

func (s *CalendarEventStore) Upsert(
	_ context.Context,
	event core.SyncedCalendarEvent,
	merge core.MirrorMerge[core.SyncedCalendarEvent],
) (core.SyncedCalendarEvent, core.UpsertOutcome, error) {
	return s.table.upsert(event, merge)
}

func (s *CalendarEventStore) Modify(
	_ context.Context,
	userID string,
	id string,
	mutate core.MirrorMutation[core.SyncedCalendarEvent],
) (core.SyncedCalendarEvent, error) {
	return s.table.modify("calendar event", userID, id, mutate)
}

func (s *CalendarEventStore) List(_ context.Context, filter core.CalendarEventFilter) ([]core.SyncedCalendarEvent, int, error) {
	rows := s.table.snapshot(filter.UserID)
	out := make([]core.SyncedCalendarEvent, 0, len(rows))
	for _, event := range rows {
		if filter.Provider != "" && event.Provider != filter.Provider {
			continue
		}
		if !filter.IncludeDeleted && event.State == core.EventStateDeleted {
			continue
		}
		if filter.From != nil && event.EndAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && event.StartAt.After(*filter.To) {
			continue
		}
		if !matchesLink(event.LinkedHouseholdID, filter.HouseholdID) || !matchesLink(event.LinkedPersonID, filter.PersonID) {
			continue
		}
		out = append(out, event)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartAt.Equal(out[j].StartAt) {
			return out[i].StartAt.Before(out[j].StartAt)
		}
		return out[i].ID < out[j].ID
	})
	return paginate(out, filter.Limit, filter.Offset), len(out), nil
}

func (s *CalendarEventStore) Count(_ context.Context, userID string, upcomingAfter *time.Time) (int, error) {
	count := 0
	for _, event := range s.table.snapshot(userID) {
		if event.State == core.EventStateDeleted {
			continue
		}
		if upcomingAfter != nil && !event.StartAt.After(*upcomingAfter) {
			continue
		}
		count++
	}
	return count, nil
}

type EmailStore struct {
	table *mirrorTable[core.SyncedEmail]
}

func NewEmailStore() *EmailStore {
	return &EmailStore{
		table: newMirrorTable(
			func(e core.SyncedEmail) (string, string, string) { return e.ID, e.UserID, e.ExternalID },
			core.SyncedEmail.Clone,
		),
	}
}

func (s *EmailStore) Get(_ context.Context, userID string, id string) (core.SyncedEmail, error) {
	return s.table.get("email", userID, id)
}

func (s *EmailStore) GetByExternalID(_ context.Context, userID string, externalID string) (core.SyncedEmail, error) {
	return s.table.getByExternal("email", userID, externalID)
}

func (s *EmailStore) Upsert(
	_ context.Context,
	email core.SyncedEmail,
	merge core.MirrorMerge[core.SyncedEmail],
) (core.SyncedEmail, core.UpsertOutcome, error) {
	return s.table.upsert(email, merge)
}

func (s *EmailStore) Modify(
	_ context.Context,
	userID string,
	id string,
	mutate core.MirrorMutation[core.SyncedEmail],
) (core.SyncedEmail, error) {
	return s.table.modify("email", userID, id, mutate)
}

func (s *EmailStore) List(_ context.Context, filter core.EmailFilter) ([]core.SyncedEmail, int, error) {
	rows := s.table.snapshot(filter.UserID)
	out := make([]core.SyncedEmail, 0, len(rows))
	for _, email := range rows {
		if filter.Provider != "" && email.Provider != filter.Provider {
			continue
		}
		if filter.FolderID != "" && email.FolderID != filter.FolderID {
			continue
		}
		if filter.ConversationID != "" && email.ConversationID != filter.ConversationID {
			continue
		}
		if filter.Archived != nil && email.IsArchived != *filter.Archived {
			continue
		}
		if filter.ClientOnly && !email.IsClientCommunication {
			continue
		}
		if filter.UnreadOnly && email.IsRead {
			continue
		}
		if filter.UnlinkedOnly && (email.LinkedPersonID != nil || email.LinkedHouseholdID != nil) {
			continue
		}
		if !matchesLink(email.LinkedHouseholdID, filter.HouseholdID) || !matchesLink(email.LinkedPersonID, filter.PersonID) {
			continue
		}
		out = append(out, email)
	}
	sort.Slice(out, func(i, j int) bool {
		left, right := out[i].MessageTime(), out[j].MessageTime()
		if !left.Equal(right) {
			return left.After(right)
		}
		return out[i].ID < out[j].ID
	})
	return paginate(out, filter.Limit, filter.Offset), len(out), nil
}

func (s *EmailStore) Archive(_ context.Context, userID string, ids []string) (int, error) {
	s.table.mu.Lock()
	defer s.table.mu.Unlock()
	count := 0
	for _, id := range ids {
		email, ok := s.table.rows[id]
		if !ok || email.UserID != userID || email.IsArchived {
			continue
		}
		email.IsArchived = true
		email.UpdatedAt = time.Now().UTC()
		s.table.rows[id] = email
		count++
	}
	return count, nil
}

func (s *EmailStore) Counts(_ context.Context, userID string) (core.EmailCounts, error) {
	var counts core.EmailCounts
	for _, email := range s.table.snapshot(userID) {
		counts.Total++
		if !email.IsRead {
			counts.Unread++
		}
		if email.IsClientCommunication {
			counts.Client++
		}
	}
	return counts, nil
}
