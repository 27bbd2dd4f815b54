package webhooks

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-crm-sync/core"
)

var errProcessorMisconfigured = errors.New("webhooks: processor requires ledger, connections and trigger")

type ConnectionGetter interface {
	GetByID(ctx context.Context, id string) (core.Connection, error)
}

// SyncTrigger starts the sync a notification asks for. The gojob enqueuer
// adapter satisfies it, as does a small wrapper around Service.RunSync.
type SyncTrigger interface {
	EnqueueSync(ctx context.Context, req core.RunSyncRequest) error
}

type SyncRunner interface {
	RunSync(ctx context.Context, req core.RunSyncRequest) (core.SyncLog, error)
}

// RunnerTrigger runs the sync inline, for hosts without a job queue.
type RunnerTrigger struct {
	Runner SyncRunner
}

func (t RunnerTrigger) EnqueueSync(ctx context.Context, req core.RunSyncRequest) error {
	if t.Runner == nil {
		return fmt.Errorf("webhooks: sync runner is required")
	}
	_, err := t.Runner.RunSync(ctx, req)
	return err
}

type RetryPolicy interface {
	NextDelay(attempt int) time.Duration
}

type ExponentialRetryPolicy struct {
	Initial time.Duration
	Max     time.Duration
}

func (p ExponentialRetryPolicy) NextDelay(attempt int) time.Duration {
	initial := p.Initial
	if initial <= 0 {
		initial = time.Second
	}
	maximum := p.Max
	if maximum <= 0 {
		maximum = 30 * time.Second
	}
	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maximum {
			return maximum
		}
	}
	return delay
}

type Result struct {
	Accepted   bool
	StatusCode int
	Metadata   map[string]any
}

type Processor struct {
	Tokens      ChannelTokens
	Ledger      DeliveryLedger
	Connections ConnectionGetter
	Trigger     SyncTrigger
	Burst       BurstController
	RetryPolicy RetryPolicy
	Logger      core.Logger
	ClaimLease  time.Duration
	MaxAttempts int
	Now         func() time.Time
}

func NewProcessor(tokens ChannelTokens, ledger DeliveryLedger, connections ConnectionGetter, trigger SyncTrigger) *Processor {
	return &Processor{
		Tokens:      tokens,
		Ledger:      ledger,
		Connections: connections,
		Trigger:     trigger,
		RetryPolicy: ExponentialRetryPolicy{},
		ClaimLease:  30 * time.Second,
		MaxAttempts: 8,
		Now:         func() time.Time { return time.Now().UTC() },
	}
}

// Process verifies a notification, dedupes it and triggers a sync for the
// connection its token names. Notifications for connections that are not
// active or do not sync inbound are acknowledged and dropped so the provider
// stops retrying them.
func (p *Processor) Process(ctx context.Context, n Notification) (Result, error) {
	if p == nil || p.Ledger == nil || p.Connections == nil || p.Trigger == nil {
		return Result{}, errProcessorMisconfigured
	}
	provider := core.ParseProvider(string(n.Provider))
	if provider == "" {
		return Result{}, fmt.Errorf("webhooks: provider is required")
	}

	connectionID, err := p.Tokens.Verify(n.Token)
	if err != nil {
		return Result{
			StatusCode: http.StatusUnauthorized,
			Metadata:   map[string]any{"provider": string(provider), "rejected": true},
		}, err
	}
	if n.Handshake {
		return p.result(http.StatusOK, provider, n.DeliveryID, map[string]any{"handshake": true}), nil
	}

	delivery, claimed, err := p.Ledger.Claim(ctx, string(provider), n.DeliveryID, p.claimLease())
	if err != nil {
		return Result{}, err
	}
	if !claimed {
		return p.result(http.StatusOK, provider, n.DeliveryID, map[string]any{
			"status":  delivery.Status,
			"deduped": true,
		}), nil
	}

	conn, err := p.Connections.GetByID(ctx, connectionID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) || core.IsErrorCode(err, core.ErrorNotFound) {
			return p.complete(ctx, delivery, p.result(http.StatusOK, provider, n.DeliveryID, map[string]any{"ignored": "unknown_connection"}))
		}
		return Result{}, p.fail(ctx, delivery, err)
	}
	if conn.Provider != provider {
		return p.complete(ctx, delivery, p.result(http.StatusOK, provider, n.DeliveryID, map[string]any{"ignored": "provider_mismatch"}))
	}
	if conn.Status != core.ConnectionStatusActive || !conn.Settings.SyncDirection.AllowsInbound() {
		return p.complete(ctx, delivery, p.result(http.StatusOK, provider, n.DeliveryID, map[string]any{"ignored": "inactive"}))
	}

	scope := n.Scope
	if scope == "" {
		scope = core.SyncScopeFull
	}
	if p.Burst != nil {
		decision, burstErr := p.Burst.Allow(ctx, conn.ID+":"+string(scope))
		if burstErr != nil {
			return Result{}, p.fail(ctx, delivery, burstErr)
		}
		if !decision.Allow {
			return p.complete(ctx, delivery, p.result(http.StatusOK, provider, n.DeliveryID, decision.Metadata))
		}
	}

	err = p.Trigger.EnqueueSync(ctx, core.RunSyncRequest{
		UserID:   conn.UserID,
		Provider: conn.Provider,
		Scope:    scope,
		Trigger:  core.SyncTriggerWebhook,
	})
	if err != nil && !core.IsErrorCode(err, core.ErrorSyncAlreadyInProgress) {
		p.logger().Warn("webhook sync trigger failed",
			"provider", string(provider),
			"connection_id", conn.ID,
			"delivery_id", n.DeliveryID,
			"error", err,
		)
		return Result{}, p.fail(ctx, delivery, err)
	}
	return p.complete(ctx, delivery, p.result(http.StatusAccepted, provider, n.DeliveryID, map[string]any{
		"connection_id": conn.ID,
		"scope":         string(scope),
	}))
}

func (p *Processor) complete(ctx context.Context, delivery DeliveryRecord, result Result) (Result, error) {
	if err := p.Ledger.Complete(ctx, delivery.ClaimID); err != nil {
		return Result{}, err
	}
	return result, nil
}

func (p *Processor) fail(ctx context.Context, delivery DeliveryRecord, cause error) error {
	next := p.now().Add(p.retryPolicy().NextDelay(delivery.Attempts))
	if err := p.Ledger.Fail(ctx, delivery.ClaimID, cause, next, p.maxAttempts()); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

func (p *Processor) result(status int, provider core.Provider, deliveryID string, metadata map[string]any) Result {
	out := map[string]any{"provider": string(provider), "delivery_id": deliveryID}
	for key, value := range metadata {
		out[key] = value
	}
	return Result{Accepted: true, StatusCode: status, Metadata: out}
}

func (p *Processor) now() time.Time {
	if p != nil && p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

func (p *Processor) retryPolicy() RetryPolicy {
	if p != nil && p.RetryPolicy != nil {
		return p.RetryPolicy
	}
	return ExponentialRetryPolicy{}
}

func (p *Processor) claimLease() time.Duration {
	if p != nil && p.ClaimLease > 0 {
		return p.ClaimLease
	}
	return 30 * time.Second
}

func (p *Processor) maxAttempts() int {
	if p != nil && p.MaxAttempts > 0 {
		return p.MaxAttempts
	}
	return 8
}

func (p *Processor) logger() core.Logger {
	if p != nil && p.Logger != nil {
		return p.Logger
	}
	return glog.Nop()
}
