package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	defaultSyncLockTTL = 10 * time.Minute
	defaultSyncWorkers = 4
)

var ErrSyncLockHeld = errors.New("core: sync lock already held")

// MemorySyncLocker guards sync runs inside one process. Expired holds are
// reclaimed so a crashed run cannot wedge a pair forever.
type MemorySyncLocker struct {
	mu    sync.Mutex
	locks map[string]memoryLockEntry
	seq   uint64
}

type memoryLockEntry struct {
	token     uint64
	expiresAt time.Time
}

type memoryLockHandle struct {
	locker *MemorySyncLocker
	key    string
	token  uint64
}

func NewMemorySyncLocker() *MemorySyncLocker {
	return &MemorySyncLocker{locks: map[string]memoryLockEntry{}}
}

func (l *MemorySyncLocker) TryAcquire(_ context.Context, key string, ttl time.Duration) (LockHandle, error) {
	if l == nil {
		return nil, fmt.Errorf("core: sync locker is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("core: sync lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultSyncLockTTL
	}
	now := time.Now().UTC()

	l.mu.Lock()
	defer l.mu.Unlock()
	if entry, ok := l.locks[key]; ok && now.Before(entry.expiresAt) {
		return nil, ErrSyncLockHeld
	}
	l.seq++
	l.locks[key] = memoryLockEntry{token: l.seq, expiresAt: now.Add(ttl)}
	return &memoryLockHandle{locker: l, key: key, token: l.seq}, nil
}

func (h *memoryLockHandle) Unlock(context.Context) error {
	if h == nil || h.locker == nil {
		return nil
	}
	h.locker.mu.Lock()
	defer h.locker.mu.Unlock()
	if entry, ok := h.locker.locks[h.key]; ok && entry.token == h.token {
		delete(h.locker.locks, h.key)
	}
	return nil
}

func syncLockKey(userID string, provider Provider) string {
	return "sync:" + strings.TrimSpace(userID) + ":" + string(provider)
}

// keyedMutex serialises work per key; entries are dropped once unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedMutexEntry
}

type keyedMutexEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: map[string]*keyedMutexEntry{}}
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	entry, ok := k.locks[key]
	if !ok {
		entry = &keyedMutexEntry{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

var _ SyncLocker = (*MemorySyncLocker)(nil)
