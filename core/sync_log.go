package core

import (
	"sort"
	"strings"
	"sync"
	"time"
)

type SyncLogStatus string

const (
	SyncLogStatusStarted   SyncLogStatus = "started"
	SyncLogStatusCompleted SyncLogStatus = "completed"
	SyncLogStatusFailed    SyncLogStatus = "failed"
)

type SyncLogError struct {
	ItemID  string `json:"item_id,omitempty"`
	Message string `json:"message"`
}

type SyncLog struct {
	ID             string
	UserID         string
	Provider       Provider
	SyncType       SyncScope
	Trigger        string
	Status         SyncLogStatus
	StartedAt      time.Time
	CompletedAt    *time.Time
	ItemsProcessed int
	ItemsCreated   int
	ItemsUpdated   int
	ItemsDeleted   int
	ErrorCount     int
	Errors         []SyncLogError
	FailureMessage string
}

func (l SyncLog) Closed() bool {
	return l.Status == SyncLogStatusCompleted || l.Status == SyncLogStatusFailed
}

func (l SyncLog) Clone() SyncLog {
	cloned := l
	cloned.CompletedAt = cloneTime(l.CompletedAt)
	cloned.Errors = append([]SyncLogError(nil), l.Errors...)
	return cloned
}

func (l *SyncLog) complete(now time.Time) {
	l.Status = SyncLogStatusCompleted
	completedAt := now.UTC()
	l.CompletedAt = &completedAt
}

func (l *SyncLog) fail(now time.Time, message string) {
	l.Status = SyncLogStatusFailed
	completedAt := now.UTC()
	l.CompletedAt = &completedAt
	l.FailureMessage = strings.TrimSpace(message)
	if l.FailureMessage == "" {
		l.FailureMessage = "sync failed"
	}
}

// apply folds a finished sub-scope tally into the log counters.
func (l *SyncLog) apply(t *syncTally) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	l.ItemsProcessed += t.processed
	l.ItemsCreated += t.created
	l.ItemsUpdated += t.updated
	l.ItemsDeleted += t.deleted
	sort.SliceStable(t.errors, func(i, j int) bool { return t.errors[i].index < t.errors[j].index })
	for _, itemErr := range t.errors {
		l.Errors = append(l.Errors, itemErr.SyncLogError)
	}
	l.ErrorCount += len(t.errors)
}

// syncTally accumulates outcomes from concurrent item workers.
type syncTally struct {
	mu        sync.Mutex
	processed int
	created   int
	updated   int
	deleted   int
	errors    []indexedSyncLogError
}

type indexedSyncLogError struct {
	SyncLogError
	index int
}

func (t *syncTally) record(index int, itemID string, outcome UpsertOutcome, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.processed++
	if err != nil {
		t.errors = append(t.errors, indexedSyncLogError{
			SyncLogError: SyncLogError{ItemID: itemID, Message: err.Error()},
			index:        index,
		})
		return
	}
	switch outcome {
	case UpsertCreated:
		t.created++
	case UpsertUpdated:
		t.updated++
	case UpsertDeleted:
		t.deleted++
	}
}

// recordScopeError notes a failure that is not tied to a single item.
func (t *syncTally) recordScopeError(scope SyncScope, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errors = append(t.errors, indexedSyncLogError{
		SyncLogError: SyncLogError{Message: string(scope) + ": " + err.Error()},
		index:        -1,
	})
}
