package sqlstore

import (
	"fmt"
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// recordHandlers wires go-repository-bun for records keyed by a string id
// column named "id".
func recordHandlers[T any](newRecord func() T, id func(T) *string) repository.ModelHandlers[T] {
	return repository.ModelHandlers[T]{
		NewRecord: newRecord,
		GetID: func(record T) uuid.UUID {
			if ptr := id(record); ptr != nil {
				return parseUUID(*ptr)
			}
			return uuid.Nil
		},
		SetID: func(record T, value uuid.UUID) {
			if ptr := id(record); ptr != nil {
				*ptr = value.String()
			}
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record T) string {
			if ptr := id(record); ptr != nil {
				return strings.TrimSpace(*ptr)
			}
			return ""
		},
	}
}

func connectionHandlers() repository.ModelHandlers[*connectionRecord] {
	return recordHandlers(
		func() *connectionRecord { return &connectionRecord{} },
		func(r *connectionRecord) *string {
			if r == nil {
				return nil
			}
			return &r.ID
		},
	)
}

func threadHandlers() repository.ModelHandlers[*threadRecord] {
	return recordHandlers(
		func() *threadRecord { return &threadRecord{} },
		func(r *threadRecord) *string {
			if r == nil {
				return nil
			}
			return &r.ID
		},
	)
}

func syncLogHandlers() repository.ModelHandlers[*syncLogRecord] {
	return recordHandlers(
		func() *syncLogRecord { return &syncLogRecord{} },
		func(r *syncLogRecord) *string {
			if r == nil {
				return nil
			}
			return &r.ID
		},
	)
}

func personEmailHandlers() repository.ModelHandlers[*personEmailRecord] {
	return recordHandlers(
		func() *personEmailRecord { return &personEmailRecord{} },
		func(r *personEmailRecord) *string {
			if r == nil {
				return nil
			}
			return &r.ID
		},
	)
}

func newRepository[T any](db *bun.DB, name string, handlers repository.ModelHandlers[T]) (repository.Repository[T], error) {
	repo := repository.NewRepository[T](db, handlers)
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid %s repository wiring: %w", name, err)
		}
	}
	return repo, nil
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}
