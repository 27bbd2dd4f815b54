package core

import (
	"fmt"
	"slices"
	"sync"
)

type ProviderRegistry struct {
	mu      sync.RWMutex
	clients map[Provider]ProviderClient
}

func NewProviderRegistry(clients ...ProviderClient) *ProviderRegistry {
	registry := &ProviderRegistry{clients: make(map[Provider]ProviderClient)}
	for _, client := range clients {
		_ = registry.Register(client)
	}
	return registry
}

func (r *ProviderRegistry) Register(client ProviderClient) error {
	if client == nil {
		return fmt.Errorf("core: provider client is nil")
	}
	provider := ParseProvider(string(client.Provider()))
	if provider == "" {
		return fmt.Errorf("core: provider name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.clients[provider]; exists {
		return fmt.Errorf("core: provider already registered: %s", provider)
	}
	r.clients[provider] = client
	return nil
}

func (r *ProviderRegistry) Get(provider Provider) (ProviderClient, bool) {
	provider = ParseProvider(string(provider))
	if provider == "" {
		return nil, false
	}
	r.mu.RLock()
	client, ok := r.clients[provider]
	r.mu.RUnlock()
	return client, ok
}

func (r *ProviderRegistry) List() []Provider {
	r.mu.RLock()
	out := make([]Provider, 0, len(r.clients))
	for provider := range r.clients {
		out = append(out, provider)
	}
	r.mu.RUnlock()
	slices.Sort(out)
	return out
}

var _ Registry = (*ProviderRegistry)(nil)
