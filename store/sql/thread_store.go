package sqlstore

import (
	"context"
	"fmt"
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-crm-sync/core"
)

type ThreadStore struct {
	db   *bun.DB
	repo repository.Repository[*threadRecord]
}

func NewThreadStore(db *bun.DB) (*ThreadStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo, err := newRepository(db, "email thread", threadHandlers())
	if err != nil {
		return nil, err
	}
	return &ThreadStore{db: db, repo: repo}, nil
}

func (s *ThreadStore) Get(ctx context.Context, userID string, id string) (core.EmailThread, error) {
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("id", "=", strings.TrimSpace(id)),
		repository.SelectBy("user_id", "=", userID),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.EmailThread{}, err
	}
	if len(records) == 0 {
		return core.EmailThread{}, notFound("email thread", id)
	}
	return records[0].toDomain(), nil
}

func (s *ThreadStore) Upsert(ctx context.Context, thread core.EmailThread) (core.EmailThread, error) {
	if strings.TrimSpace(thread.UserID) == "" || strings.TrimSpace(thread.ConversationID) == "" {
		return core.EmailThread{}, fmt.Errorf("sqlstore: thread user and conversation are required")
	}
	var out core.EmailThread
	err := withUniqueRetry(func() error {
		return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			existing := &threadRecord{}
			err := tx.NewSelect().Model(existing).
				Where("?TableAlias.user_id = ?", thread.UserID).
				Where("?TableAlias.conversation_id = ?", thread.ConversationID).
				Limit(1).
				Scan(ctx)
			next := thread.Clone()
			switch {
			case err == nil:
				next.ID = existing.ID
				next.CreatedAt = existing.CreatedAt
				_, err = tx.NewUpdate().Model(newThreadRecord(next)).WherePK().Exec(ctx)
			case isNoRows(err):
				if strings.TrimSpace(next.ID) == "" {
					return fmt.Errorf("sqlstore: thread id is required")
				}
				_, err = tx.NewInsert().Model(newThreadRecord(next)).Exec(ctx)
			}
			if err != nil {
				return err
			}
			out = next
			return nil
		})
	})
	if err != nil {
		return core.EmailThread{}, err
	}
	return out, nil
}

func (s *ThreadStore) List(ctx context.Context, userID string, filter core.ThreadFilter) ([]core.EmailThread, int, error) {
	criteria := []repository.SelectCriteria{
		repository.SelectBy("user_id", "=", userID),
		repository.OrderBy("last_message_at DESC"),
		repository.OrderBy("id ASC"),
	}
	if filter.Provider != "" {
		criteria = append(criteria, repository.SelectBy("provider", "=", string(filter.Provider)))
	}
	if filter.UnreadOnly {
		criteria = append(criteria, repository.SelectBy("has_unread", "=", true))
	}
	if filter.Limit > 0 {
		criteria = append(criteria, repository.SelectPaginate(filter.Limit, filter.Offset))
	}
	records, total, err := s.repo.List(ctx, criteria...)
	if err != nil {
		return nil, 0, err
	}
	out := make([]core.EmailThread, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, total, nil
}
