package sqlstore

import (
	"context"
	"fmt"
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-crm-sync/core"
)

// PersonDirectory reads CRM person addresses from crm_person_emails, one row
// per (person, address).
type PersonDirectory struct {
	db   *bun.DB
	repo repository.Repository[*personEmailRecord]
}

func NewPersonDirectory(db *bun.DB) (*PersonDirectory, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo, err := newRepository(db, "person email", personEmailHandlers())
	if err != nil {
		return nil, err
	}
	return &PersonDirectory{db: db, repo: repo}, nil
}

func (d *PersonDirectory) ListPersons(ctx context.Context, userID string) ([]core.PersonRecord, error) {
	records, _, err := d.repo.List(ctx,
		repository.SelectBy("user_id", "=", strings.TrimSpace(userID)),
		repository.OrderBy("person_id ASC"),
		repository.OrderBy("email ASC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.PersonRecord, 0)
	index := map[string]int{}
	for _, record := range records {
		position, ok := index[record.PersonID]
		if !ok {
			position = len(out)
			index[record.PersonID] = position
			out = append(out, core.PersonRecord{
				ID:          record.PersonID,
				HouseholdID: cloneString(record.HouseholdID),
			})
		}
		out[position].Emails = append(out[position].Emails, record.Email)
	}
	return out, nil
}

// PutPerson replaces the stored addresses of one person.
func (d *PersonDirectory) PutPerson(ctx context.Context, userID string, person core.PersonRecord) error {
	userID = strings.TrimSpace(userID)
	personID := strings.TrimSpace(person.ID)
	if userID == "" || personID == "" {
		return fmt.Errorf("sqlstore: person user and id are required")
	}
	return d.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*personEmailRecord)(nil)).
			Where("user_id = ?", userID).
			Where("person_id = ?", personID).
			Exec(ctx); err != nil {
			return err
		}
		seen := map[string]struct{}{}
		for _, address := range person.Emails {
			normalized := strings.ToLower(strings.TrimSpace(address))
			if normalized == "" {
				continue
			}
			if _, dup := seen[normalized]; dup {
				continue
			}
			seen[normalized] = struct{}{}
			record := &personEmailRecord{
				ID:          uuid.NewString(),
				UserID:      userID,
				PersonID:    personID,
				HouseholdID: cloneString(person.HouseholdID),
				Email:       normalized,
			}
			if _, err := d.repo.CreateTx(ctx, tx, record); err != nil {
				return err
			}
		}
		return nil
	})
}
