package core_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-crm-sync/core"
	"github.com/goliatone/go-crm-sync/providers/devkit"
	"github.com/goliatone/go-crm-sync/store/memory"
)

var baseTime = time.Date(2026, 4, 6, 9, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type noBackoff struct{}

func (noBackoff) NextDelay(int) time.Duration { return 0 }

type harness struct {
	svc     *core.Service
	stores  *memory.Stores
	google  *devkit.FakeProviderClient
	persons *memory.PersonDirectory
	metrics *core.MemoryMetricsRecorder
	clock   *testClock
}

func newHarness(t *testing.T, opts ...core.Option) *harness {
	t.Helper()
	return newHarnessWith(t, core.Config{}, func(*harness) []core.Option { return opts })
}

// newHarnessWith lets a test override runtime config and wrap the harness
// collaborators before the service is built.
func newHarnessWith(t *testing.T, cfg core.Config, extra func(h *harness) []core.Option) *harness {
	t.Helper()
	h := &harness{
		stores:  memory.NewStores(),
		google:  devkit.NewFakeProviderClient(core.ProviderGoogle),
		persons: memory.NewPersonDirectory(),
		metrics: core.NewMemoryMetricsRecorder(),
		clock:   &testClock{now: baseTime},
	}
	base := []core.Option{
		core.WithStoreProvider(h.stores),
		core.WithProviderClients(h.google),
		core.WithPersonDirectory(h.persons),
		core.WithMetricsRecorder(h.metrics),
		core.WithRetryBackoffScheduler(noBackoff{}),
		core.WithClock(h.clock.Now),
	}
	if extra != nil {
		base = append(base, extra(h)...)
	}
	cfg.OAuth.StateSigningKey = "test-key"
	svc, err := core.NewService(cfg, base...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	h.svc = svc
	return h
}

func (h *harness) connect(t *testing.T, userID string) core.Connection {
	t.Helper()
	ctx := context.Background()
	begin, err := h.svc.BeginAuthorization(ctx, core.BeginAuthorizationRequest{
		UserID:      userID,
		Provider:    core.ProviderGoogle,
		RedirectURI: "https://crm.example.test/callback",
	})
	if err != nil {
		t.Fatalf("begin authorization: %v", err)
	}
	conn, err := h.svc.CompleteAuthorization(ctx, core.CompleteAuthorizationRequest{
		Code:  "code-1",
		State: begin.State,
	})
	if err != nil {
		t.Fatalf("complete authorization: %v", err)
	}
	return conn
}

func (h *harness) runSync(t *testing.T, userID string, scope core.SyncScope) core.SyncLog {
	t.Helper()
	log, err := h.svc.RunSync(context.Background(), core.RunSyncRequest{
		UserID:   userID,
		Provider: core.ProviderGoogle,
		Scope:    scope,
	})
	if err != nil {
		t.Fatalf("run sync: %v", err)
	}
	return log
}

func (h *harness) patchSettings(t *testing.T, userID string, patch core.SettingsPatch) core.Connection {
	t.Helper()
	conn, err := h.svc.UpdateSettings(context.Background(), userID, core.ProviderGoogle, patch)
	if err != nil {
		t.Fatalf("update settings: %v", err)
	}
	return conn
}

func assertErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", code)
	}
	if !core.IsErrorCode(err, code) {
		t.Fatalf("expected %s error, got %v", code, err)
	}
}

func ptr[T any](v T) *T { return &v }
