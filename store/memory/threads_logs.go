package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-crm-sync/core"
)

type ThreadStore struct {
	mu             sync.RWMutex
	byID           map[string]core.EmailThread
	byConversation map[string]string
}

func NewThreadStore() *ThreadStore {
	return &ThreadStore{
		byID:           map[string]core.EmailThread{},
		byConversation: map[string]string{},
	}
}

func (s *ThreadStore) Get(_ context.Context, userID string, id string) (core.EmailThread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	thread, ok := s.byID[id]
	if !ok || thread.UserID != userID {
		return core.EmailThread{}, fmt.Errorf("memory: email thread %s: %w", id, core.ErrNotFound)
	}
	return thread.Clone(), nil
}

func (s *ThreadStore) Upsert(_ context.Context, thread core.EmailThread) (core.EmailThread, error) {
	if strings.TrimSpace(thread.UserID) == "" || strings.TrimSpace(thread.ConversationID) == "" {
		return core.EmailThread{}, fmt.Errorf("memory: thread user and conversation are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := externalKey(thread.UserID, thread.ConversationID)
	if id, ok := s.byConversation[key]; ok {
		existing := s.byID[id]
		thread.ID = existing.ID
		thread.CreatedAt = existing.CreatedAt
	}
	if strings.TrimSpace(thread.ID) == "" {
		return core.EmailThread{}, fmt.Errorf("memory: thread id is required")
	}
	s.byID[thread.ID] = thread.Clone()
	s.byConversation[key] = thread.ID
	return thread.Clone(), nil
}

func (s *ThreadStore) List(_ context.Context, userID string, filter core.ThreadFilter) ([]core.EmailThread, int, error) {
	s.mu.RLock()
	out := make([]core.EmailThread, 0)
	for _, thread := range s.byID {
		if thread.UserID != userID {
			continue
		}
		if filter.Provider != "" && thread.Provider != filter.Provider {
			continue
		}
		if filter.UnreadOnly && !thread.HasUnread {
			continue
		}
		out = append(out, thread.Clone())
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastMessageAt.Equal(out[j].LastMessageAt) {
			return out[i].LastMessageAt.After(out[j].LastMessageAt)
		}
		return out[i].ID < out[j].ID
	})
	return paginate(out, filter.Limit, filter.Offset), len(out), nil
}

type SyncLogStore struct {
	mu   sync.RWMutex
	byID map[string]core.SyncLog
}

func NewSyncLogStore() *SyncLogStore {
	return &SyncLogStore{byID: map[string]core.SyncLog{}}
}

func (s *SyncLogStore) Create(_ context.Context, log core.SyncLog) (core.SyncLog, error) {
	if strings.TrimSpace(log.ID) == "" {
		return core.SyncLog{}, fmt.Errorf("memory: sync log id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[log.ID]; exists {
		return core.SyncLog{}, fmt.Errorf("memory: sync log %s already exists", log.ID)
	}
	s.byID[log.ID] = log.Clone()
	return log.Clone(), nil
}

func (s *SyncLogStore) Close(_ context.Context, log core.SyncLog) (core.SyncLog, error) {
	if !log.Closed() {
		return core.SyncLog{}, fmt.Errorf("memory: sync log %s must be completed or failed to close", log.ID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.byID[log.ID]
	if !ok {
		return core.SyncLog{}, fmt.Errorf("memory: sync log %s: %w", log.ID, core.ErrNotFound)
	}
	if existing.Closed() {
		return core.SyncLog{}, fmt.Errorf("memory: sync log %s: %w", log.ID, core.ErrSyncLogClosed)
	}
	log.UserID = existing.UserID
	log.Provider = existing.Provider
	log.StartedAt = existing.StartedAt
	s.byID[log.ID] = log.Clone()
	return log.Clone(), nil
}

func (s *SyncLogStore) Get(_ context.Context, userID string, id string) (core.SyncLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	log, ok := s.byID[id]
	if !ok || log.UserID != userID {
		return core.SyncLog{}, fmt.Errorf("memory: sync log %s: %w", id, core.ErrNotFound)
	}
	return log.Clone(), nil
}

func (s *SyncLogStore) List(_ context.Context, userID string, provider *core.Provider) ([]core.SyncLog, error) {
	s.mu.RLock()
	out := make([]core.SyncLog, 0)
	for _, log := range s.byID {
		if log.UserID != userID {
			continue
		}
		if provider != nil && log.Provider != *provider {
			continue
		}
		out = append(out, log.Clone())
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}
