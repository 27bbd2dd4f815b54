package sqlstore

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/goliatone/go-crm-sync/core"
)

const uniqueRetryAttempts = 3

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}

// withUniqueRetry reruns an insert-or-update transaction that lost a race
// on a natural key; the next attempt observes the winner's row.
func withUniqueRetry(fn func() error) error {
	var err error
	for attempt := 0; attempt < uniqueRetryAttempts; attempt++ {
		err = fn()
		if !isUniqueViolation(err) {
			return err
		}
	}
	return err
}

func notFound(kind string, id string) error {
	return fmt.Errorf("sqlstore: %s %s: %w", kind, id, core.ErrNotFound)
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
