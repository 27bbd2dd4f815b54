package sqlstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	repositorycache "github.com/goliatone/go-repository-cache/cache"

	"github.com/goliatone/go-crm-sync/core"
)

type stubPersonDirectory struct {
	mu      sync.Mutex
	persons []core.PersonRecord
	calls   int
	err     error
}

func (s *stubPersonDirectory) ListPersons(_ context.Context, _ string) ([]core.PersonRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return clonePersons(s.persons), nil
}

func TestCachedPersonDirectory_MissFetchThenHit(t *testing.T) {
	household := "hh_1"
	base := &stubPersonDirectory{persons: []core.PersonRecord{
		{ID: "per_1", HouseholdID: &household, Emails: []string{"client@example.test"}},
	}}
	directory, err := NewCachedPersonDirectory(base, newTestPersonCacheService(t))
	if err != nil {
		t.Fatalf("new cached directory: %v", err)
	}

	ctx := context.Background()
	first, err := directory.ListPersons(ctx, "usr_1")
	if err != nil {
		t.Fatalf("first list: %v", err)
	}
	if len(first) != 1 || first[0].ID != "per_1" {
		t.Fatalf("unexpected persons: %+v", first)
	}
	first[0].Emails[0] = "mutated@example.test"

	second, err := directory.ListPersons(ctx, "usr_1")
	if err != nil {
		t.Fatalf("second list: %v", err)
	}
	if base.calls != 1 {
		t.Fatalf("expected second list to be a cache hit, base calls=%d", base.calls)
	}
	if second[0].Emails[0] != "client@example.test" {
		t.Fatalf("expected cached value to be isolated from caller mutation, got %q", second[0].Emails[0])
	}

	if _, err := directory.ListPersons(ctx, "usr_2"); err != nil {
		t.Fatalf("list other user: %v", err)
	}
	if base.calls != 2 {
		t.Fatalf("expected a separate cache entry per user, base calls=%d", base.calls)
	}
}

func TestCachedPersonDirectory_InvalidateRefetches(t *testing.T) {
	base := &stubPersonDirectory{}
	directory, err := NewCachedPersonDirectory(base, newTestPersonCacheService(t))
	if err != nil {
		t.Fatalf("new cached directory: %v", err)
	}
	ctx := context.Background()
	if _, err := directory.ListPersons(ctx, "usr_1"); err != nil {
		t.Fatalf("list: %v", err)
	}
	base.mu.Lock()
	base.persons = []core.PersonRecord{{ID: "per_2", Emails: []string{"new@example.test"}}}
	base.mu.Unlock()

	if err := directory.Invalidate(ctx, "usr_1"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	persons, err := directory.ListPersons(ctx, "usr_1")
	if err != nil {
		t.Fatalf("list after invalidate: %v", err)
	}
	if base.calls != 2 || len(persons) != 1 || persons[0].ID != "per_2" {
		t.Fatalf("expected refetch after invalidate, calls=%d persons=%+v", base.calls, persons)
	}
}

func TestCachedPersonDirectory_PropagatesErrors(t *testing.T) {
	base := &stubPersonDirectory{err: errors.New("directory offline")}
	directory, err := NewCachedPersonDirectory(base, newTestPersonCacheService(t))
	if err != nil {
		t.Fatalf("new cached directory: %v", err)
	}
	if _, err := directory.ListPersons(context.Background(), "usr_1"); err == nil {
		t.Fatalf("expected base error to propagate")
	}
	if _, err := directory.ListPersons(context.Background(), " "); err == nil {
		t.Fatalf("expected blank user to be rejected")
	}
}

func TestPersonDirectoryCacheKey_EscapesUserID(t *testing.T) {
	key, err := PersonDirectoryCacheKey("org/usr 1")
	if err != nil {
		t.Fatalf("cache key: %v", err)
	}
	if key != "crm-sync::persons::v1::org%2Fusr%201" {
		t.Fatalf("unexpected cache key %q", key)
	}
}

func newTestPersonCacheService(t *testing.T) repositorycache.CacheService {
	t.Helper()
	config := repositorycache.DefaultConfig()
	config.TTL = time.Minute
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	return service
}
