package webhooks

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	DeliveryStatusProcessing = "processing"
	DeliveryStatusProcessed  = "processed"
	DeliveryStatusRetryReady = "retry_ready"
	DeliveryStatusDead       = "dead"
)

type DeliveryRecord struct {
	ClaimID       string
	Provider      string
	DeliveryID    string
	Status        string
	Attempts      int
	NextAttemptAt *time.Time
	LastError     string
	UpdatedAt     time.Time
}

// DeliveryLedger claims deliveries so each one is handled at most once at a
// time and retried only after a recorded failure.
type DeliveryLedger interface {
	Claim(ctx context.Context, provider string, deliveryID string, lease time.Duration) (DeliveryRecord, bool, error)
	Complete(ctx context.Context, claimID string) error
	Fail(ctx context.Context, claimID string, cause error, nextAttemptAt time.Time, maxAttempts int) error
}

type MemoryLedger struct {
	mu      sync.Mutex
	entries map[string]DeliveryRecord
	claims  map[string]string
	leases  map[string]time.Time
	nextID  int
	// Retention bounds how long processed deliveries are remembered.
	Retention time.Duration
	Now       func() time.Time
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		entries:   map[string]DeliveryRecord{},
		claims:    map[string]string{},
		leases:    map[string]time.Time{},
		Retention: time.Hour,
		Now:       func() time.Time { return time.Now().UTC() },
	}
}

func (l *MemoryLedger) Claim(_ context.Context, provider string, deliveryID string, lease time.Duration) (DeliveryRecord, bool, error) {
	if l == nil {
		return DeliveryRecord{}, false, fmt.Errorf("webhooks: ledger is nil")
	}
	provider = strings.TrimSpace(provider)
	deliveryID = strings.TrimSpace(deliveryID)
	if provider == "" || deliveryID == "" {
		return DeliveryRecord{}, false, fmt.Errorf("webhooks: provider and delivery id are required")
	}
	if lease <= 0 {
		lease = 30 * time.Second
	}
	now := l.now()
	key := provider + ":" + deliveryID

	l.mu.Lock()
	defer l.mu.Unlock()
	l.evictLocked(now)

	record, exists := l.entries[key]
	if exists {
		switch record.Status {
		case DeliveryStatusProcessed, DeliveryStatusDead:
			return record, false, nil
		case DeliveryStatusProcessing:
			if now.Before(l.leases[key]) {
				return record, false, nil
			}
		case DeliveryStatusRetryReady:
			if record.NextAttemptAt != nil && now.Before(*record.NextAttemptAt) {
				return record, false, nil
			}
		}
		delete(l.claims, record.ClaimID)
	} else {
		record = DeliveryRecord{Provider: provider, DeliveryID: deliveryID}
	}

	l.nextID++
	record.ClaimID = fmt.Sprintf("claim_%d", l.nextID)
	record.Status = DeliveryStatusProcessing
	record.Attempts++
	record.NextAttemptAt = nil
	record.UpdatedAt = now
	l.entries[key] = record
	l.claims[record.ClaimID] = key
	l.leases[key] = now.Add(lease)
	return record, true, nil
}

func (l *MemoryLedger) Complete(_ context.Context, claimID string) error {
	return l.settle(claimID, func(record *DeliveryRecord) {
		record.Status = DeliveryStatusProcessed
	})
}

func (l *MemoryLedger) Fail(_ context.Context, claimID string, cause error, nextAttemptAt time.Time, maxAttempts int) error {
	return l.settle(claimID, func(record *DeliveryRecord) {
		if cause != nil {
			record.LastError = cause.Error()
		}
		if maxAttempts > 0 && record.Attempts >= maxAttempts {
			record.Status = DeliveryStatusDead
			return
		}
		record.Status = DeliveryStatusRetryReady
		next := nextAttemptAt.UTC()
		record.NextAttemptAt = &next
	})
}

// Get is used by tests and diagnostics.
func (l *MemoryLedger) Get(provider string, deliveryID string) (DeliveryRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	record, ok := l.entries[strings.TrimSpace(provider)+":"+strings.TrimSpace(deliveryID)]
	return record, ok
}

func (l *MemoryLedger) settle(claimID string, apply func(*DeliveryRecord)) error {
	if l == nil {
		return fmt.Errorf("webhooks: ledger is nil")
	}
	claimID = strings.TrimSpace(claimID)
	if claimID == "" {
		return fmt.Errorf("webhooks: claim id is required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	key, ok := l.claims[claimID]
	if !ok {
		return nil
	}
	delete(l.claims, claimID)
	record, exists := l.entries[key]
	if !exists || record.ClaimID != claimID || record.Status != DeliveryStatusProcessing {
		return nil
	}
	apply(&record)
	record.UpdatedAt = l.now()
	delete(l.leases, key)
	l.entries[key] = record
	return nil
}

func (l *MemoryLedger) evictLocked(now time.Time) {
	retention := l.Retention
	if retention <= 0 {
		retention = time.Hour
	}
	for key, record := range l.entries {
		if record.Status != DeliveryStatusProcessed && record.Status != DeliveryStatusDead {
			continue
		}
		if now.Sub(record.UpdatedAt) >= retention {
			delete(l.entries, key)
		}
	}
}

func (l *MemoryLedger) now() time.Time {
	if l != nil && l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

var _ DeliveryLedger = (*MemoryLedger)(nil)
