package sqlstore

import (
	"context"
	"fmt"
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-crm-sync/core"
)

type SyncLogStore struct {
	db   *bun.DB
	repo repository.Repository[*syncLogRecord]
}

func NewSyncLogStore(db *bun.DB) (*SyncLogStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo, err := newRepository(db, "sync log", syncLogHandlers())
	if err != nil {
		return nil, err
	}
	return &SyncLogStore{db: db, repo: repo}, nil
}

// Create inserts the log with its caller-assigned id. The repository's
// create path assigns uuid identifiers, so the insert is issued directly.
func (s *SyncLogStore) Create(ctx context.Context, log core.SyncLog) (core.SyncLog, error) {
	if strings.TrimSpace(log.ID) == "" {
		return core.SyncLog{}, fmt.Errorf("sqlstore: sync log id is required")
	}
	if _, err := s.db.NewInsert().Model(newSyncLogRecord(log)).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return core.SyncLog{}, fmt.Errorf("sqlstore: sync log %s already exists: %w", log.ID, err)
		}
		return core.SyncLog{}, err
	}
	return log.Clone(), nil
}

func (s *SyncLogStore) Close(ctx context.Context, log core.SyncLog) (core.SyncLog, error) {
	if !log.Closed() {
		return core.SyncLog{}, fmt.Errorf("sqlstore: sync log %s must be completed or failed to close", log.ID)
	}
	var out core.SyncLog
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing := &syncLogRecord{}
		err := tx.NewSelect().Model(existing).
			Where("?TableAlias.id = ?", log.ID).
			Limit(1).
			Scan(ctx)
		if isNoRows(err) {
			return notFound("sync log", log.ID)
		}
		if err != nil {
			return err
		}
		if existing.toDomain().Closed() {
			return fmt.Errorf("sqlstore: sync log %s: %w", log.ID, core.ErrSyncLogClosed)
		}
		log.UserID = existing.UserID
		log.Provider = core.Provider(existing.Provider)
		log.StartedAt = existing.StartedAt.UTC()
		result, err := tx.NewUpdate().Model(newSyncLogRecord(log)).
			WherePK().
			Where("status = ?", string(core.SyncLogStatusStarted)).
			Exec(ctx)
		if err != nil {
			return err
		}
		if affected, err := result.RowsAffected(); err == nil && affected == 0 {
			return fmt.Errorf("sqlstore: sync log %s: %w", log.ID, core.ErrSyncLogClosed)
		}
		out = log.Clone()
		return nil
	})
	if err != nil {
		return core.SyncLog{}, err
	}
	return out, nil
}

func (s *SyncLogStore) Get(ctx context.Context, userID string, id string) (core.SyncLog, error) {
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("id", "=", strings.TrimSpace(id)),
		repository.SelectBy("user_id", "=", userID),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.SyncLog{}, err
	}
	if len(records) == 0 {
		return core.SyncLog{}, notFound("sync log", id)
	}
	return records[0].toDomain(), nil
}

func (s *SyncLogStore) List(ctx context.Context, userID string, provider *core.Provider) ([]core.SyncLog, error) {
	criteria := []repository.SelectCriteria{
		repository.SelectBy("user_id", "=", userID),
		repository.OrderBy("started_at DESC"),
		repository.OrderBy("id DESC"),
	}
	if provider != nil {
		criteria = append(criteria, repository.SelectBy("provider", "=", string(*provider)))
	}
	records, _, err := s.repo.List(ctx, criteria...)
	if err != nil {
		return nil, err
	}
	out := make([]core.SyncLog, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}
