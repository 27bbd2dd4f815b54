package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/goliatone/go-crm-sync/core"
)

type ConnectionStore struct {
	mu     sync.RWMutex
	byID   map[string]core.Connection
	byUser map[string]string
}

func NewConnectionStore() *ConnectionStore {
	return &ConnectionStore{
		byID:   map[string]core.Connection{},
		byUser: map[string]string{},
	}
}

func connectionKey(userID string, provider core.Provider) string {
	return strings.TrimSpace(userID) + "::" + string(provider)
}

func (s *ConnectionStore) Get(_ context.Context, userID string, provider core.Provider) (core.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byUser[connectionKey(userID, provider)]
	if !ok {
		return core.Connection{}, fmt.Errorf("memory: connection %s/%s: %w", userID, provider, core.ErrNotFound)
	}
	return s.byID[id].Clone(), nil
}

func (s *ConnectionStore) GetByID(_ context.Context, id string) (core.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conn, ok := s.byID[strings.TrimSpace(id)]
	if !ok {
		return core.Connection{}, fmt.Errorf("memory: connection %s: %w", id, core.ErrNotFound)
	}
	return conn.Clone(), nil
}

func (s *ConnectionStore) ListByUser(_ context.Context, userID string) ([]core.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Connection, 0)
	for _, conn := range s.byID {
		if conn.UserID == userID {
			out = append(out, conn.Clone())
		}
	}
	sortConnections(out)
	return out, nil
}

func (s *ConnectionStore) ListByStatus(_ context.Context, status core.ConnectionStatus) ([]core.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Connection, 0)
	for _, conn := range s.byID {
		if conn.Status == status {
			out = append(out, conn.Clone())
		}
	}
	sortConnections(out)
	return out, nil
}

func (s *ConnectionStore) Upsert(_ context.Context, conn core.Connection) (core.Connection, error) {
	if strings.TrimSpace(conn.UserID) == "" || conn.Provider == "" {
		return core.Connection{}, fmt.Errorf("memory: connection user and provider are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := connectionKey(conn.UserID, conn.Provider)
	if id, ok := s.byUser[key]; ok {
		existing := s.byID[id]
		conn.ID = existing.ID
		conn.CreatedAt = existing.CreatedAt
	} else if strings.TrimSpace(conn.ID) == "" {
		conn.ID = uuid.NewString()
	}
	stored := conn.Clone()
	s.byID[stored.ID] = stored
	s.byUser[key] = stored.ID
	return stored.Clone(), nil
}

func (s *ConnectionStore) Update(_ context.Context, conn core.Connection) (core.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.byID[conn.ID]
	if !ok {
		return core.Connection{}, fmt.Errorf("memory: connection %s: %w", conn.ID, core.ErrNotFound)
	}
	conn.UserID = existing.UserID
	conn.Provider = existing.Provider
	conn.CreatedAt = existing.CreatedAt
	s.byID[conn.ID] = conn.Clone()
	return conn.Clone(), nil
}

func sortConnections(items []core.Connection) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].UserID != items[j].UserID {
			return items[i].UserID < items[j].UserID
		}
		return items[i].Provider < items[j].Provider
	})
}
