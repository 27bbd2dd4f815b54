package webhooks

import (
	"context"
	"strings"
	"sync"
	"time"
)

type BurstMode string

const (
	BurstModeNone     BurstMode = "none"
	BurstModeCoalesce BurstMode = "coalesce"
)

type BurstDecision struct {
	Allow    bool
	Metadata map[string]any
}

// BurstController collapses notification storms: a mailbox import can emit
// hundreds of changes that one sync pass covers.
type BurstController interface {
	Allow(ctx context.Context, key string) (BurstDecision, error)
}

type BurstOptions struct {
	Mode       BurstMode
	Window     time.Duration
	MaxEntries int
	Now        func() time.Time
}

type DefaultBurstController struct {
	mode       BurstMode
	window     time.Duration
	maxEntries int
	now        func() time.Time

	mu      sync.Mutex
	entries map[string]time.Time
}

func NewBurstController(opts BurstOptions) *DefaultBurstController {
	window := opts.Window
	if window <= 0 {
		window = 30 * time.Second
	}
	maxEntries := opts.MaxEntries
	if maxEntries <= 0 {
		maxEntries = 4096
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &DefaultBurstController{
		mode:       normalizeBurstMode(opts.Mode),
		window:     window,
		maxEntries: maxEntries,
		now:        now,
		entries:    map[string]time.Time{},
	}
}

// Allow lets the first notification for a key through and coalesces the
// rest until the window has passed since the last allowed one.
func (c *DefaultBurstController) Allow(_ context.Context, key string) (BurstDecision, error) {
	key = strings.TrimSpace(key)
	if c == nil || c.mode == BurstModeNone || key == "" {
		return BurstDecision{Allow: true}, nil
	}

	now := c.now().UTC()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanup(now)

	allowedAt, exists := c.entries[key]
	if !exists || now.Sub(allowedAt) >= c.window {
		c.entries[key] = now
		return BurstDecision{Allow: true}, nil
	}
	return BurstDecision{Allow: false, Metadata: map[string]any{
		"burst_mode":      string(c.mode),
		"burst_key":       key,
		"burst_window_ms": c.window.Milliseconds(),
		"coalesced":       true,
	}}, nil
}

func (c *DefaultBurstController) cleanup(now time.Time) {
	for key, seenAt := range c.entries {
		if now.Sub(seenAt) >= c.window || len(c.entries) > c.maxEntries {
			delete(c.entries, key)
		}
	}
}

func normalizeBurstMode(mode BurstMode) BurstMode {
	if strings.EqualFold(strings.TrimSpace(string(mode)), string(BurstModeCoalesce)) {
		return BurstModeCoalesce
	}
	return BurstModeNone
}

var _ BurstController = (*DefaultBurstController)(nil)
