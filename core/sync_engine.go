package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"
)

const (
	SyncTriggerManual    = "manual"
	SyncTriggerScheduled = "scheduled"
	// SyncTriggerWebhook marks passes started by a provider change notification.
	SyncTriggerWebhook = "webhook"
)

type RunSyncRequest struct {
	UserID   string
	Provider Provider
	Scope    SyncScope
	Since    *time.Time
	Trigger  string
}

func (r RunSyncRequest) Validate() error {
	if err := requireUser(r.UserID); err != nil {
		return err
	}
	if r.Scope == "" {
		return nil
	}
	if err := r.Scope.Validate(); err != nil {
		return newValidationError("scope", err.Error())
	}
	return nil
}

// RunSync reconciles remote changes for one connection. Item and scope level
// failures are recorded in the returned log; the error return is reserved for
// gate, lock and input failures, in which case no log row exists.
func (s *Service) RunSync(ctx context.Context, req RunSyncRequest) (log SyncLog, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"user_id":  req.UserID,
		"provider": string(req.Provider),
		"scope":    string(req.Scope),
		"trigger":  req.Trigger,
	}
	defer func() {
		if log.ID != "" {
			fields["sync_log_id"] = log.ID
			fields["sync_status"] = string(log.Status)
			fields["items_processed"] = log.ItemsProcessed
			fields["items_created"] = log.ItemsCreated
			fields["items_updated"] = log.ItemsUpdated
			fields["item_errors"] = log.ErrorCount
		}
		s.observeOperation(ctx, startedAt, "run_sync", err, fields)
	}()

	if err = req.Validate(); err != nil {
		return SyncLog{}, err
	}
	if req.Scope == "" {
		req.Scope = SyncScopeFull
	}
	if strings.TrimSpace(req.Trigger) == "" {
		req.Trigger = SyncTriggerManual
	}
	client, err := s.resolveClient(req.Provider)
	if err != nil {
		return SyncLog{}, err
	}
	conn, err := s.requireActive(ctx, req.UserID, client.Provider())
	if err != nil {
		err = s.mapError(err)
		return SyncLog{}, err
	}
	fields["connection_id"] = conn.ID

	handle, err := s.syncLocker.TryAcquire(ctx, syncLockKey(conn.UserID, conn.Provider), s.config.Sync.LockTTL)
	if err != nil {
		if errors.Is(err, ErrSyncLockHeld) {
			err = NewSyncAlreadyInProgressError(conn.UserID, conn.Provider)
			return SyncLog{}, err
		}
		err = s.mapError(err)
		return SyncLog{}, err
	}
	defer func() {
		_ = handle.Unlock(context.WithoutCancel(ctx))
	}()

	log, err = s.syncLogs.Create(ctx, SyncLog{
		ID:        ulid.Make().String(),
		UserID:    conn.UserID,
		Provider:  conn.Provider,
		SyncType:  req.Scope,
		Trigger:   req.Trigger,
		Status:    SyncLogStatusStarted,
		StartedAt: s.clock(),
	})
	if err != nil {
		err = s.mapError(err)
		return SyncLog{}, err
	}

	failure := s.runScopes(ctx, client, conn, req, &log)
	log, err = s.closeSync(context.WithoutCancel(ctx), conn, log, failure)
	return log, err
}

func (s *Service) runScopes(ctx context.Context, client ProviderClient, conn Connection, req RunSyncRequest, log *SyncLog) error {
	conn, err := s.ensureFreshToken(ctx, conn, client)
	if err != nil {
		return err
	}
	if !conn.Settings.SyncDirection.AllowsInbound() {
		s.logInfo(ctx, "inbound sync disabled for connection", map[string]any{
			"connection_id": conn.ID,
			"direction":     string(conn.Settings.SyncDirection),
		})
		return nil
	}
	since := resolveSince(req.Since, conn.LastSyncAt)

	for _, scope := range req.Scope.Expand(conn.Settings) {
		if err := ctx.Err(); err != nil {
			return err
		}
		tally := &syncTally{}
		var scopeErr error
		switch scope {
		case SyncScopeCalendar:
			scopeErr = s.syncCalendar(ctx, client, conn, since, tally)
		case SyncScopeEmail:
			scopeErr = s.syncEmail(ctx, client, conn, since, tally)
		case SyncScopeContacts:
			// Contacts are accepted as a scope but nothing is mirrored for them.
		}
		log.apply(tally)
		if scopeErr == nil {
			continue
		}
		if IsProviderCatastrophic(scopeErr) || errors.Is(scopeErr, context.Canceled) || errors.Is(scopeErr, context.DeadlineExceeded) {
			return scopeErr
		}
		fallback := &syncTally{}
		fallback.recordScopeError(scope, scopeErr)
		log.apply(fallback)
	}
	return nil
}

func (s *Service) syncCalendar(ctx context.Context, client ProviderClient, conn Connection, since time.Time, tally *syncTally) error {
	remote, err := client.FetchChangedCalendarEvents(ctx, sessionFor(conn), since)
	if err != nil {
		return err
	}
	now := s.clock()
	keys := newKeyedMutex()
	group := s.itemGroup()
	for index, item := range remote {
		group.Go(func() error {
			unlock := keys.Lock(item.ExternalID)
			defer unlock()
			outcome, itemErr := s.reconcileEvent(ctx, conn, item, now)
			tally.record(index, item.ExternalID, outcome, itemErr)
			return nil
		})
	}
	_ = group.Wait()
	return ctx.Err()
}

func (s *Service) syncEmail(ctx context.Context, client ProviderClient, conn Connection, since time.Time, tally *syncTally) error {
	remote, err := client.FetchChangedEmails(ctx, sessionFor(conn), since)
	if err != nil {
		return err
	}
	now := s.clock()
	keys := newKeyedMutex()
	group := s.itemGroup()

	var mu sync.Mutex
	touched := map[string]struct{}{}
	created := make([]SyncedEmail, 0)
	for index, item := range remote {
		group.Go(func() error {
			unlock := keys.Lock(item.ExternalID)
			defer unlock()
			stored, outcome, itemErr := s.reconcileEmail(ctx, conn, item, now)
			tally.record(index, item.ExternalID, outcome, itemErr)
			if itemErr != nil || outcome == UpsertNoop {
				return nil
			}
			mu.Lock()
			if stored.ConversationID != "" {
				touched[stored.ConversationID] = struct{}{}
			}
			if outcome == UpsertCreated {
				created = append(created, stored)
			}
			mu.Unlock()
			return nil
		})
	}
	_ = group.Wait()
	if err := ctx.Err(); err != nil {
		return err
	}

	s.applyInboundEmailPolicies(ctx, conn, created)
	for conversationID := range touched {
		if _, threadErr := s.recomputeThread(ctx, conn.UserID, conn.Provider, conversationID); threadErr != nil {
			s.logError(ctx, "thread recompute failed", map[string]any{
				"user_id":         conn.UserID,
				"conversation_id": conversationID,
				"error":           threadErr.Error(),
			})
		}
	}
	return nil
}

func (s *Service) itemGroup() *errgroup.Group {
	workers := s.config.Sync.Workers
	if workers <= 0 {
		workers = defaultSyncWorkers
	}
	group := &errgroup.Group{}
	group.SetLimit(workers)
	return group
}

// closeSync finalises the log and records the outcome on the connection.
func (s *Service) closeSync(ctx context.Context, conn Connection, log SyncLog, failure error) (SyncLog, error) {
	now := s.clock()
	if failure == nil {
		log.complete(now)
	} else {
		log.fail(now, failure.Error())
	}
	closed, err := s.syncLogs.Close(ctx, log)
	if err != nil {
		return log, s.mapError(err)
	}

	current, err := s.connections.GetByID(ctx, conn.ID)
	if err != nil {
		s.logError(ctx, "reload connection after sync failed", map[string]any{"connection_id": conn.ID, "error": err.Error()})
		return closed, nil
	}
	if failure == nil {
		// The cursor is the start of the pass: changes made while it fetched
		// and reconciled are picked up by the next one.
		cursor := log.StartedAt
		if cursor.IsZero() {
			cursor = now
		}
		current.LastSyncAt = &cursor
		current.LastSyncError = ""
	} else {
		current.LastSyncError = closed.FailureMessage
		if IsErrorCode(failure, ErrorAuthenticationFailed) && current.Status == ConnectionStatusActive {
			_ = current.TransitionTo(ConnectionStatusError, closed.FailureMessage, now)
		}
	}
	current.UpdatedAt = now
	if _, err := s.connections.Update(ctx, current); err != nil {
		s.logError(ctx, "record sync outcome on connection failed", map[string]any{"connection_id": conn.ID, "error": err.Error()})
	}
	return closed, nil
}

func resolveSince(requested *time.Time, lastSyncAt *time.Time) time.Time {
	var since time.Time
	if requested != nil {
		since = requested.UTC()
	}
	if lastSyncAt != nil && lastSyncAt.After(since) {
		since = lastSyncAt.UTC()
	}
	return since
}
