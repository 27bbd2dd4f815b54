package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	repositorycache "github.com/goliatone/go-repository-cache/cache"

	"github.com/goliatone/go-crm-sync/core"
)

const personDirectoryCacheKeyPrefix = "crm-sync::persons::v1"

// CachedPersonDirectory fronts a person directory with a read-through cache.
// Auto-linking reads the whole directory per pass, so repeated passes for the
// same user hit the cache until Invalidate is called or the entry expires.
type CachedPersonDirectory struct {
	base  core.PersonDirectory
	cache repositorycache.CacheService
}

func NewCachedPersonDirectory(
	base core.PersonDirectory,
	cacheService repositorycache.CacheService,
) (*CachedPersonDirectory, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base person directory is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: person directory cache service is required")
	}
	return &CachedPersonDirectory{base: base, cache: cacheService}, nil
}

// PersonDirectoryCacheKey returns crm-sync::persons::v1::<user_id> with the
// user id URL-path escaped.
func PersonDirectoryCacheKey(userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", fmt.Errorf("sqlstore: person directory cache key requires a user id")
	}
	return personDirectoryCacheKeyPrefix + "::" + url.PathEscape(userID), nil
}

func (d *CachedPersonDirectory) ListPersons(ctx context.Context, userID string) ([]core.PersonRecord, error) {
	if d == nil || d.base == nil || d.cache == nil {
		return nil, fmt.Errorf("sqlstore: cached person directory is not configured")
	}
	cacheKey, err := PersonDirectoryCacheKey(userID)
	if err != nil {
		return nil, err
	}
	persons, err := repositorycache.GetOrFetch(ctx, d.cache, cacheKey, func(ctx context.Context) ([]core.PersonRecord, error) {
		fetched, fetchErr := d.base.ListPersons(ctx, userID)
		if fetchErr != nil {
			return nil, fetchErr
		}
		return clonePersons(fetched), nil
	})
	if err != nil {
		return nil, err
	}
	return clonePersons(persons), nil
}

// Invalidate drops the cached directory for one user.
func (d *CachedPersonDirectory) Invalidate(ctx context.Context, userID string) error {
	if d == nil || d.cache == nil {
		return fmt.Errorf("sqlstore: cached person directory is not configured")
	}
	cacheKey, err := PersonDirectoryCacheKey(userID)
	if err != nil {
		return err
	}
	return d.cache.Delete(ctx, cacheKey)
}

func clonePersons(in []core.PersonRecord) []core.PersonRecord {
	out := make([]core.PersonRecord, 0, len(in))
	for _, person := range in {
		out = append(out, core.PersonRecord{
			ID:          person.ID,
			HouseholdID: cloneString(person.HouseholdID),
			Emails:      append([]string(nil), person.Emails...),
		})
	}
	return out
}

var _ core.PersonDirectory = (*CachedPersonDirectory)(nil)
