package sqlstore

import (
	"context"
	"fmt"
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-crm-sync/core"
	"github.com/goliatone/go-crm-sync/security"
)

// ConnectionStore persists connections with tokens sealed by the configured
// secret provider. Without one, tokens are stored as given.
type ConnectionStore struct {
	db      *bun.DB
	repo    repository.Repository[*connectionRecord]
	secrets security.SecretProvider
}

func NewConnectionStore(db *bun.DB, secrets security.SecretProvider) (*ConnectionStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo, err := newRepository(db, "connection", connectionHandlers())
	if err != nil {
		return nil, err
	}
	return &ConnectionStore{db: db, repo: repo, secrets: secrets}, nil
}

func (s *ConnectionStore) Get(ctx context.Context, userID string, provider core.Provider) (core.Connection, error) {
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("user_id", "=", strings.TrimSpace(userID)),
		repository.SelectBy("provider", "=", string(provider)),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.Connection{}, err
	}
	if len(records) == 0 {
		return core.Connection{}, notFound("connection", userID+"/"+string(provider))
	}
	return s.toDomain(ctx, records[0])
}

func (s *ConnectionStore) GetByID(ctx context.Context, id string) (core.Connection, error) {
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("id", "=", strings.TrimSpace(id)),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.Connection{}, err
	}
	if len(records) == 0 {
		return core.Connection{}, notFound("connection", id)
	}
	return s.toDomain(ctx, records[0])
}

func (s *ConnectionStore) ListByUser(ctx context.Context, userID string) ([]core.Connection, error) {
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("user_id", "=", strings.TrimSpace(userID)),
		repository.OrderBy("provider ASC"),
	)
	if err != nil {
		return nil, err
	}
	return s.toDomainList(ctx, records)
}

func (s *ConnectionStore) ListByStatus(ctx context.Context, status core.ConnectionStatus) ([]core.Connection, error) {
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("status", "=", string(status)),
		repository.OrderBy("user_id ASC"),
		repository.OrderBy("provider ASC"),
	)
	if err != nil {
		return nil, err
	}
	return s.toDomainList(ctx, records)
}

func (s *ConnectionStore) Upsert(ctx context.Context, conn core.Connection) (core.Connection, error) {
	if strings.TrimSpace(conn.UserID) == "" || conn.Provider == "" {
		return core.Connection{}, fmt.Errorf("sqlstore: connection user and provider are required")
	}
	var out core.Connection
	err := withUniqueRetry(func() error {
		return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			existing := &connectionRecord{}
			err := tx.NewSelect().Model(existing).
				Where("?TableAlias.user_id = ?", conn.UserID).
				Where("?TableAlias.provider = ?", string(conn.Provider)).
				Limit(1).
				Scan(ctx)
			switch {
			case err == nil:
				conn.ID = existing.ID
				conn.CreatedAt = existing.CreatedAt
			case isNoRows(err):
				if strings.TrimSpace(conn.ID) == "" {
					conn.ID = uuid.NewString()
				}
				existing = nil
			default:
				return err
			}
			record, sealErr := s.toRecord(ctx, conn)
			if sealErr != nil {
				return sealErr
			}
			if existing == nil {
				_, err = tx.NewInsert().Model(record).Exec(ctx)
			} else {
				_, err = tx.NewUpdate().Model(record).WherePK().Exec(ctx)
			}
			if err != nil {
				return err
			}
			out = conn.Clone()
			return nil
		})
	})
	if err != nil {
		return core.Connection{}, err
	}
	return out, nil
}

func (s *ConnectionStore) Update(ctx context.Context, conn core.Connection) (core.Connection, error) {
	existing, err := s.GetByID(ctx, conn.ID)
	if err != nil {
		return core.Connection{}, err
	}
	conn.UserID = existing.UserID
	conn.Provider = existing.Provider
	conn.CreatedAt = existing.CreatedAt
	record, err := s.toRecord(ctx, conn)
	if err != nil {
		return core.Connection{}, err
	}
	if _, err := s.repo.Update(ctx, record, repository.UpdateByID(conn.ID)); err != nil {
		return core.Connection{}, err
	}
	return conn.Clone(), nil
}

func (s *ConnectionStore) toRecord(ctx context.Context, conn core.Connection) (*connectionRecord, error) {
	access, err := s.seal(ctx, conn.AccessToken)
	if err != nil {
		return nil, err
	}
	refresh, err := s.seal(ctx, conn.RefreshToken)
	if err != nil {
		return nil, err
	}
	return &connectionRecord{
		ID:                    conn.ID,
		UserID:                conn.UserID,
		Provider:              string(conn.Provider),
		Status:                string(conn.Status),
		StatusReason:          conn.StatusReason,
		AccessTokenEncrypted:  access,
		RefreshTokenEncrypted: refresh,
		TokenExpiresAt:        cloneTime(conn.TokenExpiresAt),
		Scopes:                nonNil(conn.Scopes),
		Settings:              conn.Settings,
		LastSyncAt:            cloneTime(conn.LastSyncAt),
		LastSyncError:         conn.LastSyncError,
		CreatedAt:             conn.CreatedAt.UTC(),
		UpdatedAt:             conn.UpdatedAt.UTC(),
	}, nil
}

func (s *ConnectionStore) toDomain(ctx context.Context, r *connectionRecord) (core.Connection, error) {
	access, err := s.open(ctx, r.AccessTokenEncrypted)
	if err != nil {
		return core.Connection{}, fmt.Errorf("sqlstore: open access token for connection %s: %w", r.ID, err)
	}
	refresh, err := s.open(ctx, r.RefreshTokenEncrypted)
	if err != nil {
		return core.Connection{}, fmt.Errorf("sqlstore: open refresh token for connection %s: %w", r.ID, err)
	}
	return core.Connection{
		ID:             r.ID,
		UserID:         r.UserID,
		Provider:       core.Provider(r.Provider),
		Status:         core.ConnectionStatus(r.Status),
		StatusReason:   r.StatusReason,
		AccessToken:    access,
		RefreshToken:   refresh,
		TokenExpiresAt: cloneTime(r.TokenExpiresAt),
		Scopes:         append([]string(nil), r.Scopes...),
		Settings:       r.Settings,
		LastSyncAt:     cloneTime(r.LastSyncAt),
		LastSyncError:  r.LastSyncError,
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}, nil
}

func (s *ConnectionStore) toDomainList(ctx context.Context, records []*connectionRecord) ([]core.Connection, error) {
	out := make([]core.Connection, 0, len(records))
	for _, record := range records {
		conn, err := s.toDomain(ctx, record)
		if err != nil {
			return nil, err
		}
		out = append(out, conn)
	}
	return out, nil
}

func (s *ConnectionStore) seal(ctx context.Context, token string) (string, error) {
	if s.secrets == nil || token == "" {
		return token, nil
	}
	sealed, err := s.secrets.Encrypt(ctx, []byte(token))
	if err != nil {
		return "", fmt.Errorf("sqlstore: seal token: %w", err)
	}
	return string(sealed), nil
}

func (s *ConnectionStore) open(ctx context.Context, stored string) (string, error) {
	if s.secrets == nil || stored == "" || !security.IsSealed([]byte(stored)) {
		return stored, nil
	}
	plaintext, err := s.secrets.Decrypt(ctx, []byte(stored))
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
