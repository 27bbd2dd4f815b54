package crmsync

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-crm-sync/core"
)

// ProviderPack groups provider clients a host ships on top of the built-in
// Google and Microsoft clients.
type ProviderPack struct {
	Name    string
	Clients []core.ProviderClient
}

type CommandQueryBundleFactory func(service CommandQueryService) (any, error)

type ExtensionHooks struct {
	mu sync.RWMutex

	providerPacks map[string]ProviderPack
	bundles       map[string]CommandQueryBundleFactory
}

func NewExtensionHooks() *ExtensionHooks {
	return &ExtensionHooks{
		providerPacks: map[string]ProviderPack{},
		bundles:       map[string]CommandQueryBundleFactory{},
	}
}

func (h *ExtensionHooks) RegisterProviderPack(pack ProviderPack) error {
	if h == nil {
		return fmt.Errorf("crmsync: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("crmsync: provider pack name is required")
	}
	if len(pack.Clients) == 0 {
		return fmt.Errorf("crmsync: provider pack %q has no clients", name)
	}

	normalized := ProviderPack{
		Name:    name,
		Clients: append([]core.ProviderClient(nil), pack.Clients...),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.providerPacks[name]; exists {
		return fmt.Errorf("crmsync: provider pack %q already registered", name)
	}
	h.providerPacks[name] = normalized
	return nil
}

func (h *ExtensionHooks) RegisterCommandQueryBundle(
	name string,
	factory CommandQueryBundleFactory,
) error {
	if h == nil {
		return fmt.Errorf("crmsync: extension hooks are nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("crmsync: command/query bundle name is required")
	}
	if factory == nil {
		return fmt.Errorf("crmsync: command/query bundle %q factory is required", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.bundles[name]; exists {
		return fmt.Errorf("crmsync: command/query bundle %q already registered", name)
	}
	h.bundles[name] = factory
	return nil
}

// ApplyProviderPacks registers every pack client in name order. The registry
// rejects a second client for a provider already present.
func (h *ExtensionHooks) ApplyProviderPacks(registry core.Registry) error {
	if h == nil {
		return nil
	}
	if registry == nil {
		return fmt.Errorf("crmsync: registry is required")
	}

	for _, pack := range h.ProviderPacks() {
		for _, client := range pack.Clients {
			if client == nil {
				return fmt.Errorf("crmsync: provider pack %q contains nil client", pack.Name)
			}
			if err := registry.Register(client); err != nil {
				return err
			}
		}
	}
	return nil
}

// ProviderOptions returns the service option that installs every pack.
func (h *ExtensionHooks) ProviderOptions() []core.Option {
	clients := []core.ProviderClient{}
	for _, pack := range h.ProviderPacks() {
		clients = append(clients, pack.Clients...)
	}
	if len(clients) == 0 {
		return nil
	}
	return []core.Option{core.WithProviderClients(clients...)}
}

func (h *ExtensionHooks) BuildCommandQueryBundles(
	service CommandQueryService,
) (map[string]any, error) {
	if h == nil {
		return map[string]any{}, nil
	}
	if service == nil {
		return nil, fmt.Errorf("crmsync: command/query service is required")
	}

	h.mu.RLock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	factories := make(map[string]CommandQueryBundleFactory, len(h.bundles))
	for name, factory := range h.bundles {
		factories[name] = factory
	}
	h.mu.RUnlock()

	result := make(map[string]any, len(names))
	for _, name := range names {
		bundle, err := factories[name](service)
		if err != nil {
			return nil, err
		}
		result[name] = bundle
	}
	return result, nil
}

func (h *ExtensionHooks) ProviderPacks() []ProviderPack {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.providerPacks))
	for name := range h.providerPacks {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]ProviderPack, 0, len(names))
	for _, name := range names {
		pack := h.providerPacks[name]
		out = append(out, ProviderPack{
			Name:    pack.Name,
			Clients: append([]core.ProviderClient(nil), pack.Clients...),
		})
	}
	return out
}

func (h *ExtensionHooks) BundleNames() []string {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
