package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"

	"github.com/goliatone/go-crm-sync/core"
)

// upsertMirror runs the merge inside a transaction keyed on
// (user_id, external_id). The existing row is locked for the duration of the
// merge; a concurrent insert of the same key surfaces as a unique violation
// and the whole transaction is retried.
func upsertMirror[R any, T any](
	ctx context.Context,
	db *bun.DB,
	userID string,
	externalID string,
	incoming T,
	merge core.MirrorMerge[T],
	toDomain func(*R) T,
	toRecord func(T) *R,
) (T, core.UpsertOutcome, error) {
	var (
		stored  T
		outcome = core.UpsertNoop
	)
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(externalID) == "" {
		return stored, outcome, fmt.Errorf("sqlstore: user and external id are required")
	}
	err := withUniqueRetry(func() error {
		return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			existing := new(R)
			err := forUpdate(db, tx.NewSelect().Model(existing).
				Where("?TableAlias.user_id = ?", userID).
				Where("?TableAlias.external_id = ?", externalID).
				Limit(1)).
				Scan(ctx)
			var current *T
			switch {
			case err == nil:
				value := toDomain(existing)
				current = &value
			case isNoRows(err):
			default:
				return err
			}

			next, result := merge(current, incoming)
			stored, outcome = next, result
			if result == core.UpsertNoop {
				return nil
			}
			record := toRecord(next)
			if current == nil {
				_, err = tx.NewInsert().Model(record).Exec(ctx)
			} else {
				_, err = tx.NewUpdate().Model(record).WherePK().Exec(ctx)
			}
			return err
		})
	})
	if err != nil {
		var zero T
		return zero, core.UpsertNoop, err
	}
	return stored, outcome, nil
}

// modifyMirror applies a mutation to the locked current row of (id, user_id)
// and writes it back in the same transaction.
func modifyMirror[R any, T any](
	ctx context.Context,
	db *bun.DB,
	kind string,
	userID string,
	id string,
	mutate core.MirrorMutation[T],
	toDomain func(*R) T,
	toRecord func(T) *R,
) (T, error) {
	var stored T
	if mutate == nil {
		return stored, fmt.Errorf("sqlstore: %s mutation is required", kind)
	}
	id = strings.TrimSpace(id)
	err := db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing := new(R)
		err := forUpdate(db, tx.NewSelect().Model(existing).
			Where("?TableAlias.id = ?", id).
			Where("?TableAlias.user_id = ?", userID).
			Limit(1)).
			Scan(ctx)
		if isNoRows(err) {
			return notFound(kind, id)
		}
		if err != nil {
			return err
		}
		current := toDomain(existing)
		changed, err := mutate(&current)
		if err != nil {
			return err
		}
		stored = current
		if !changed {
			return nil
		}
		_, err = tx.NewUpdate().Model(toRecord(current)).WherePK().Where("user_id = ?", userID).Exec(ctx)
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return stored, nil
}

// forUpdate takes a row lock on postgres. SQLite runs writers one at a time
// on a single connection and has no row locks.
func forUpdate(db *bun.DB, q *bun.SelectQuery) *bun.SelectQuery {
	if db.Dialect().Name() == dialect.PG {
		return q.For("UPDATE")
	}
	return q
}

type CalendarEventStore struct {
	db *bun.DB
}

func NewCalendarEventStore(db *bun.DB) (*CalendarEventStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &CalendarEventStore{db: db}, nil
}

func (s *CalendarEventStore) Get(ctx context.Context, userID string, id string) (core.SyncedCalendarEvent, error) {
	record := &calendarEventRecord{}
	err := s.db.NewSelect().Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Where("?TableAlias.user_id = ?", userID).
		Limit(1).
		Scan(ctx)
	if isNoRows(err) {
		return core.SyncedCalendarEvent{}, notFound("calendar event", id)
	}
	if err != nil {
		return core.SyncedCalendarEvent{}, err
	}
	return record.toDomain(), nil
}

func (s *CalendarEventStore) GetByExternalID(ctx context.Context, userID string, externalID string) (core.SyncedCalendarEvent, error) {
	record := &calendarEventRecord{}
	err := s.db.NewSelect().Model(record).
		Where("?TableAlias.user_id = ?", userID).
		Where("?TableAlias.external_id = ?", strings.TrimSpace(externalID)).
		Limit(1).
		Scan(ctx)
	if isNoRows(err) {
		return core.SyncedCalendarEvent{}, notFound("calendar event external", externalID)
	}
	if err != nil {
		return core.SyncedCalendarEvent{}, err
	}
	return record.toDomain(), nil
}

func (s *CalendarEventStore) Upsert(
	ctx context.Context,
	event core.SyncedCalendarEvent,
	merge core.MirrorMerge[core.SyncedCalendarEvent],
) (core.SyncedCalendarEvent, core.UpsertOutcome, error) {
	return upsertMirror(ctx, s.db, event.UserID, event.ExternalID, event, merge,
		(*calendarEventRecord).toDomain, newCalendarEventRecord)
}

func (s *CalendarEventStore) Modify(
	ctx context.Context,
	userID string,
	id string,
	mutate core.MirrorMutation[core.SyncedCalendarEvent],
) (core.SyncedCalendarEvent, error) {
	return modifyMirror(ctx, s.db, "calendar event", userID, id, mutate,
		(*calendarEventRecord).toDomain, newCalendarEventRecord)
}

func (s *CalendarEventStore) List(ctx context.Context, filter core.CalendarEventFilter) ([]core.SyncedCalendarEvent, int, error) {
	records := make([]*calendarEventRecord, 0)
	q := s.db.NewSelect().Model(&records).
		Where("?TableAlias.user_id = ?", filter.UserID).
		OrderExpr("?TableAlias.start_at ASC, ?TableAlias.id ASC")
	if filter.Provider != "" {
		q = q.Where("?TableAlias.provider = ?", string(filter.Provider))
	}
	if !filter.IncludeDeleted {
		q = q.Where("?TableAlias.state <> ?", string(core.EventStateDeleted))
	}
	if filter.From != nil {
		q = q.Where("?TableAlias.end_at >= ?", filter.From.UTC())
	}
	if filter.To != nil {
		q = q.Where("?TableAlias.start_at <= ?", filter.To.UTC())
	}
	if filter.HouseholdID != "" {
		q = q.Where("?TableAlias.linked_household_id = ?", filter.HouseholdID)
	}
	if filter.PersonID != "" {
		q = q.Where("?TableAlias.linked_person_id = ?", filter.PersonID)
	}
	q = paginate(q, filter.Limit, filter.Offset)
	total, err := q.ScanAndCount(ctx)
	if err != nil {
		return nil, 0, err
	}
	out := make([]core.SyncedCalendarEvent, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, total, nil
}

func (s *CalendarEventStore) Count(ctx context.Context, userID string, upcomingAfter *time.Time) (int, error) {
	q := s.db.NewSelect().Model((*calendarEventRecord)(nil)).
		Where("?TableAlias.user_id = ?", userID).
		Where("?TableAlias.state <> ?", string(core.EventStateDeleted))
	if upcomingAfter != nil {
		q = q.Where("?TableAlias.start_at > ?", upcomingAfter.UTC())
	}
	return q.Count(ctx)
}

type EmailStore struct {
	db *bun.DB
}

func NewEmailStore(db *bun.DB) (*EmailStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &EmailStore{db: db}, nil
}

func (s *EmailStore) Get(ctx context.Context, userID string, id string) (core.SyncedEmail, error) {
	record := &emailRecord{}
	err := s.db.NewSelect().Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Where("?TableAlias.user_id = ?", userID).
		Limit(1).
		Scan(ctx)
	if isNoRows(err) {
		return core.SyncedEmail{}, notFound("email", id)
	}
	if err != nil {
		return core.SyncedEmail{}, err
	}
	return record.toDomain(), nil
}

func (s *EmailStore) GetByExternalID(ctx context.Context, userID string, externalID string) (core.SyncedEmail, error) {
	record := &emailRecord{}
	err := s.db.NewSelect().Model(record).
		Where("?TableAlias.user_id = ?", userID).
		Where("?TableAlias.external_id = ?", strings.TrimSpace(externalID)).
		Limit(1).
		Scan(ctx)
	if isNoRows(err) {
		return core.SyncedEmail{}, notFound("email external", externalID)
	}
	if err != nil {
		return core.SyncedEmail{}, err
	}
	return record.toDomain(), nil
}

func (s *EmailStore) Upsert(
	ctx context.Context,
	email core.SyncedEmail,
	merge core.MirrorMerge[core.SyncedEmail],
) (core.SyncedEmail, core.UpsertOutcome, error) {
	return upsertMirror(ctx, s.db, email.UserID, email.ExternalID, email, merge,
		(*emailRecord).toDomain, newEmailRecord)
}

func (s *EmailStore) Modify(
	ctx context.Context,
	userID string,
	id string,
	mutate core.MirrorMutation[core.SyncedEmail],
) (core.SyncedEmail, error) {
	return modifyMirror(ctx, s.db, "email", userID, id, mutate,
		(*emailRecord).toDomain, newEmailRecord)
}

func (s *EmailStore) List(ctx context.Context, filter core.EmailFilter) ([]core.SyncedEmail, int, error) {
	records := make([]*emailRecord, 0)
	q := s.db.NewSelect().Model(&records).
		Where("?TableAlias.user_id = ?", filter.UserID).
		OrderExpr("COALESCE(?TableAlias.received_at, ?TableAlias.sent_at, ?TableAlias.created_at) DESC, ?TableAlias.id ASC")
	if filter.Provider != "" {
		q = q.Where("?TableAlias.provider = ?", string(filter.Provider))
	}
	if filter.FolderID != "" {
		q = q.Where("?TableAlias.folder_id = ?", filter.FolderID)
	}
	if filter.ConversationID != "" {
		q = q.Where("?TableAlias.conversation_id = ?", filter.ConversationID)
	}
	if filter.Archived != nil {
		q = q.Where("?TableAlias.is_archived = ?", *filter.Archived)
	}
	if filter.ClientOnly {
		q = q.Where("?TableAlias.is_client_communication = ?", true)
	}
	if filter.UnreadOnly {
		q = q.Where("?TableAlias.is_read = ?", false)
	}
	if filter.UnlinkedOnly {
		q = q.Where("?TableAlias.linked_person_id IS NULL").Where("?TableAlias.linked_household_id IS NULL")
	}
	if filter.HouseholdID != "" {
		q = q.Where("?TableAlias.linked_household_id = ?", filter.HouseholdID)
	}
	if filter.PersonID != "" {
		q = q.Where("?TableAlias.linked_person_id = ?", filter.PersonID)
	}
	q = paginate(q, filter.Limit, filter.Offset)
	total, err := q.ScanAndCount(ctx)
	if err != nil {
		return nil, 0, err
	}
	out := make([]core.SyncedEmail, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, total, nil
}

func (s *EmailStore) Archive(ctx context.Context, userID string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result, err := s.db.NewUpdate().
		Model((*emailRecord)(nil)).
		Set("is_archived = ?", true).
		Set("updated_at = ?", time.Now().UTC()).
		Where("user_id = ?", userID).
		Where("id IN (?)", bun.In(ids)).
		Where("is_archived = ?", false).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (s *EmailStore) Counts(ctx context.Context, userID string) (core.EmailCounts, error) {
	var counts core.EmailCounts
	err := s.db.NewSelect().
		Model((*emailRecord)(nil)).
		ColumnExpr("COUNT(*)").
		ColumnExpr("COALESCE(SUM(CASE WHEN ?TableAlias.is_read THEN 0 ELSE 1 END), 0)").
		ColumnExpr("COALESCE(SUM(CASE WHEN ?TableAlias.is_client_communication THEN 1 ELSE 0 END), 0)").
		Where("?TableAlias.user_id = ?", userID).
		Scan(ctx, &counts.Total, &counts.Unread, &counts.Client)
	if err != nil {
		return core.EmailCounts{}, err
	}
	return counts, nil
}

func paginate(q *bun.SelectQuery, limit int, offset int) *bun.SelectQuery {
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	return q
}
