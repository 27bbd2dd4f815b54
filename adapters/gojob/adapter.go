package gojob

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-crm-sync/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

const (
	JobIDScheduledSync = "crm_sync.sync.scheduled"

	dedupPolicyDrop = job.DeduplicationPolicy("drop")

	paramUserID   = "user_id"
	paramProvider = "provider"
	paramScope    = "scope"
	paramTrigger  = "trigger"
)

// RetryPolicy defines queue retry bounds to avoid unbounded retry loops.
type RetryPolicy struct {
	MaxAttempts     int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     5,
		BaseDelay:       30 * time.Second,
		MaxDelay:        15 * time.Minute,
		DeadLetterOnMax: true,
	}
}

// NormalizeAttempt enforces bounded retry behavior for a nack operation.
func (p RetryPolicy) NormalizeAttempt(opts queue.NackOptions, attempt int) queue.NackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.DeadLetter {
		out.Requeue = false
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		if p.DeadLetterOnMax || out.DeadLetter {
			out.DeadLetter = true
		}
	}
	if !out.Requeue && !out.DeadLetter {
		out.Requeue = true
	}
	return out
}

// NackFor picks nack options from the failure class of a sync run. Input
// errors never succeed on retry and go straight to the dead letter queue; a
// held sync lock or a provider outage is retried with exponential delay.
func (p RetryPolicy) NackFor(err error, attempt int) queue.NackOptions {
	opts := queue.NackOptions{Reason: errorReason(err)}
	switch {
	case core.IsErrorCode(err, core.ErrorBadInput),
		core.IsErrorCode(err, core.ErrorUnsupportedProvider),
		core.IsErrorCode(err, core.ErrorNotFound):
		opts.DeadLetter = true
	case core.IsErrorCode(err, core.ErrorIntegrationNotActive):
		opts.DeadLetter = true
	default:
		opts.Requeue = true
		opts.Delay = p.backoff(attempt)
	}
	return p.NormalizeAttempt(opts, attempt)
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return delay
}

// SyncExecutionMessage builds the queue message for a scheduled sync. The
// idempotency key folds in the schedule window so one connection is enqueued
// at most once per window.
func SyncExecutionMessage(req core.RunSyncRequest, window time.Time) *job.ExecutionMessage {
	provider := core.ParseProvider(string(req.Provider))
	scope := req.Scope
	if scope == "" {
		scope = core.SyncScopeFull
	}
	trigger := strings.TrimSpace(req.Trigger)
	if trigger == "" {
		trigger = core.SyncTriggerScheduled
	}
	key := fmt.Sprintf("%s:%s:%s", strings.TrimSpace(req.UserID), provider, scope)
	if !window.IsZero() {
		key = fmt.Sprintf("%s:%d", key, window.UTC().Unix())
	}
	return &job.ExecutionMessage{
		JobID:      JobIDScheduledSync,
		ScriptPath: JobIDScheduledSync,
		Parameters: map[string]any{
			paramUserID:   strings.TrimSpace(req.UserID),
			paramProvider: string(provider),
			paramScope:    string(scope),
			paramTrigger:  trigger,
		},
		IdempotencyKey: key,
		DedupPolicy:    dedupPolicyDrop,
	}
}

// SyncRequestFromMessage decodes a scheduled sync message back into a run
// request.
func SyncRequestFromMessage(msg *job.ExecutionMessage) (core.RunSyncRequest, error) {
	if msg == nil {
		return core.RunSyncRequest{}, fmt.Errorf("gojob: execution message is required")
	}
	if strings.TrimSpace(msg.JobID) != JobIDScheduledSync {
		return core.RunSyncRequest{}, fmt.Errorf("gojob: unexpected job id %q", msg.JobID)
	}
	req := core.RunSyncRequest{
		UserID:   stringParam(msg.Parameters, paramUserID),
		Provider: core.ParseProvider(stringParam(msg.Parameters, paramProvider)),
		Scope:    core.SyncScope(stringParam(msg.Parameters, paramScope)),
		Trigger:  stringParam(msg.Parameters, paramTrigger),
	}
	if req.Trigger == "" {
		req.Trigger = core.SyncTriggerScheduled
	}
	if req.Provider == "" {
		return core.RunSyncRequest{}, fmt.Errorf("gojob: provider parameter is required")
	}
	if err := req.Validate(); err != nil {
		return core.RunSyncRequest{}, err
	}
	return req, nil
}

// EnqueuerAdapter publishes scheduled syncs onto a go-job queue.
type EnqueuerAdapter struct {
	enqueuer queue.Enqueuer
	window   time.Duration
	now      func() time.Time
}

func NewEnqueuerAdapter(enqueuer queue.Enqueuer, window time.Duration) *EnqueuerAdapter {
	return &EnqueuerAdapter{enqueuer: enqueuer, window: window, now: time.Now}
}

func (a *EnqueuerAdapter) EnqueueSync(ctx context.Context, req core.RunSyncRequest) error {
	if a == nil || a.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	var window time.Time
	if a.window > 0 {
		window = a.now().UTC().Truncate(a.window)
	}
	return a.enqueuer.Enqueue(ctx, SyncExecutionMessage(req, window))
}

type SyncRunner interface {
	RunSync(ctx context.Context, req core.RunSyncRequest) (core.SyncLog, error)
}

// SyncJobHandler runs dequeued scheduled syncs and settles each delivery.
type SyncJobHandler struct {
	runner SyncRunner
	policy RetryPolicy
	logger core.Logger
}

func NewSyncJobHandler(runner SyncRunner, policy RetryPolicy, logger core.Logger) *SyncJobHandler {
	return &SyncJobHandler{runner: runner, policy: policy, logger: logger}
}

// Handle runs one delivery. A run that produced a sync log is acked even when
// the log records a failure; the log is the audit record and the next
// schedule picks the connection up again.
func (h *SyncJobHandler) Handle(ctx context.Context, delivery queue.Delivery, attempt int) error {
	if h == nil || h.runner == nil {
		return fmt.Errorf("gojob: sync runner is not configured")
	}
	if delivery == nil {
		return fmt.Errorf("gojob: delivery is required")
	}
	req, err := SyncRequestFromMessage(delivery.Message())
	if err != nil {
		h.log("error", "scheduled sync message rejected", "error", err.Error())
		return delivery.Nack(ctx, h.policy.NormalizeAttempt(queue.NackOptions{
			DeadLetter: true,
			Reason:     errorReason(err),
		}, attempt))
	}

	log, err := h.runner.RunSync(ctx, req)
	if err != nil {
		opts := h.policy.NackFor(err, attempt)
		h.log("warn", "scheduled sync failed",
			"user_id", req.UserID,
			"provider", string(req.Provider),
			"attempt", attempt,
			"requeue", opts.Requeue,
			"dead_letter", opts.DeadLetter,
			"error", err.Error(),
		)
		return delivery.Nack(ctx, opts)
	}
	h.log("info", "scheduled sync completed",
		"user_id", req.UserID,
		"provider", string(req.Provider),
		"sync_log_id", log.ID,
		"status", string(log.Status),
	)
	return delivery.Ack(ctx)
}

// ProcessNext dequeues and handles a single delivery. It reports false when
// the queue had nothing to hand out.
func (h *SyncJobHandler) ProcessNext(ctx context.Context, dequeuer queue.Dequeuer, attempt int) (bool, error) {
	if dequeuer == nil {
		return false, fmt.Errorf("gojob: dequeuer is not configured")
	}
	delivery, err := dequeuer.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if delivery == nil {
		return false, nil
	}
	return true, h.Handle(ctx, delivery, attempt)
}

func (h *SyncJobHandler) log(level string, msg string, args ...any) {
	if h.logger == nil {
		return
	}
	switch level {
	case "error":
		h.logger.Error(msg, args...)
	case "warn":
		h.logger.Warn(msg, args...)
	default:
		h.logger.Info(msg, args...)
	}
}

// WorkerHookAdapter reports go-job worker lifecycle events through a logger.
type WorkerHookAdapter struct {
	logger core.Logger
}

func NewWorkerHookAdapter(logger core.Logger) *WorkerHookAdapter {
	return &WorkerHookAdapter{logger: logger}
}

func (a *WorkerHookAdapter) OnStart(ctx context.Context, event worker.Event) {
	if a == nil || a.logger == nil {
		return
	}
	a.logger.WithContext(ctx).Debug("sync job started", workerEventArgs(event)...)
}

func (a *WorkerHookAdapter) OnSuccess(ctx context.Context, event worker.Event) {
	if a == nil || a.logger == nil {
		return
	}
	a.logger.WithContext(ctx).Info("sync job succeeded", workerEventArgs(event)...)
}

func (a *WorkerHookAdapter) OnFailure(ctx context.Context, event worker.Event) {
	if a == nil || a.logger == nil {
		return
	}
	a.logger.WithContext(ctx).Error("sync job failed", workerEventArgs(event)...)
}

func (a *WorkerHookAdapter) OnRetry(ctx context.Context, event worker.Event) {
	if a == nil || a.logger == nil {
		return
	}
	a.logger.WithContext(ctx).Warn("sync job retry scheduled", workerEventArgs(event)...)
}

func workerEventArgs(event worker.Event) []any {
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	args := []any{"attempt", event.Attempt}
	if message != nil {
		args = append(args,
			"job_id", message.JobID,
			"user_id", stringParam(message.Parameters, paramUserID),
			"provider", stringParam(message.Parameters, paramProvider),
		)
	}
	if event.Delay > 0 {
		args = append(args, "delay_ms", event.Delay.Milliseconds())
	}
	if event.Duration > 0 {
		args = append(args, "duration_ms", event.Duration.Milliseconds())
	}
	if event.Err != nil {
		args = append(args, "error", event.Err.Error())
	}
	return args
}

func stringParam(params map[string]any, key string) string {
	if len(params) == 0 {
		return ""
	}
	value, ok := params[key]
	if !ok || value == nil {
		return ""
	}
	if s, ok := value.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprint(value))
}

func errorReason(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

var _ worker.Hook = (*WorkerHookAdapter)(nil)
