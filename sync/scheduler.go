package sync

import (
	"context"
	"fmt"
	stdsync "sync"
	"time"

	"github.com/goliatone/go-crm-sync/core"
	"golang.org/x/sync/errgroup"
)

type ConnectionLister interface {
	ListByStatus(ctx context.Context, status core.ConnectionStatus) ([]core.Connection, error)
}

// Enqueuer hands a due sync to a queue instead of running it inline.
type Enqueuer interface {
	EnqueueSync(ctx context.Context, req core.RunSyncRequest) error
}

type Runner interface {
	RunSync(ctx context.Context, req core.RunSyncRequest) (core.SyncLog, error)
}

type TickResult struct {
	Due        int
	Dispatched int
	Skipped    int
	Failed     int
}

// Scheduler finds active connections whose last sync is older than the
// interval and dispatches a full scheduled sync for each.
type Scheduler struct {
	Connections ConnectionLister
	Enqueuer    Enqueuer
	Runner      Runner
	Interval    time.Duration
	Workers     int
	Logger      core.Logger
	Now         func() time.Time
}

func NewScheduler(connections ConnectionLister, runner Runner, cfg core.SyncConfig) *Scheduler {
	return &Scheduler{
		Connections: connections,
		Runner:      runner,
		Interval:    cfg.ScheduleInterval,
		Workers:     cfg.Workers,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Due lists the connections a tick at now would dispatch. Connections whose
// direction excludes inbound are never due.
func (s *Scheduler) Due(ctx context.Context) ([]core.Connection, error) {
	if s == nil || s.Connections == nil {
		return nil, fmt.Errorf("sync: connection lister is required")
	}
	conns, err := s.Connections.ListByStatus(ctx, core.ConnectionStatusActive)
	if err != nil {
		return nil, err
	}
	now := s.now()
	due := make([]core.Connection, 0, len(conns))
	for _, conn := range conns {
		if !conn.Settings.SyncDirection.AllowsInbound() {
			continue
		}
		if conn.LastSyncAt != nil && s.Interval > 0 && now.Sub(*conn.LastSyncAt) < s.Interval {
			continue
		}
		due = append(due, conn)
	}
	return due, nil
}

// Tick dispatches every due connection once. A sync already held by another
// run counts as skipped; other dispatch failures are counted and logged
// without stopping the tick.
func (s *Scheduler) Tick(ctx context.Context) (TickResult, error) {
	if s == nil || (s.Enqueuer == nil && s.Runner == nil) {
		return TickResult{}, fmt.Errorf("sync: enqueuer or runner is required")
	}
	due, err := s.Due(ctx)
	if err != nil {
		return TickResult{}, err
	}

	result := TickResult{Due: len(due)}
	var mu stdsync.Mutex
	group, groupCtx := errgroup.WithContext(ctx)
	if s.Workers > 0 {
		group.SetLimit(s.Workers)
	}
	for _, conn := range due {
		group.Go(func() error {
			err := s.dispatch(groupCtx, conn)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				result.Dispatched++
			case core.IsErrorCode(err, core.ErrorSyncAlreadyInProgress):
				result.Skipped++
			default:
				result.Failed++
				s.logError("scheduled sync dispatch failed", conn, err)
			}
			return nil
		})
	}
	_ = group.Wait()
	return result, ctx.Err()
}

// Run ticks immediately and then on every interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("sync: scheduler is required")
	}
	interval := s.Interval
	if interval <= 0 {
		return fmt.Errorf("sync: schedule interval must be positive")
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		result, err := s.Tick(ctx)
		if err != nil && ctx.Err() == nil {
			s.logError("scheduled sync tick failed", core.Connection{}, err)
		} else if s.Logger != nil {
			s.Logger.Info("scheduled sync tick",
				"due", result.Due,
				"dispatched", result.Dispatched,
				"skipped", result.Skipped,
				"failed", result.Failed,
			)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) dispatch(ctx context.Context, conn core.Connection) error {
	req := core.RunSyncRequest{
		UserID:   conn.UserID,
		Provider: conn.Provider,
		Scope:    core.SyncScopeFull,
		Trigger:  core.SyncTriggerScheduled,
	}
	if s.Enqueuer != nil {
		return s.Enqueuer.EnqueueSync(ctx, req)
	}
	_, err := s.Runner.RunSync(ctx, req)
	return err
}

func (s *Scheduler) logError(msg string, conn core.Connection, err error) {
	if s.Logger == nil {
		return
	}
	s.Logger.Error(msg,
		"user_id", conn.UserID,
		"provider", string(conn.Provider),
		"error", err.Error(),
	)
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
