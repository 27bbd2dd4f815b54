package crmsync

import (
	"fmt"
	"testing"

	"github.com/goliatone/go-crm-sync/core"
	"github.com/goliatone/go-crm-sync/providers/devkit"
)

func TestExtensionHooks_RegisterAndApplyProviderPacks(t *testing.T) {
	hooks := NewExtensionHooks()
	pack := ProviderPack{
		Name:    "downstream-pack",
		Clients: []core.ProviderClient{devkit.NewFakeProviderClient("zoho")},
	}
	if err := hooks.RegisterProviderPack(pack); err != nil {
		t.Fatalf("register provider pack: %v", err)
	}
	if err := hooks.RegisterProviderPack(pack); err == nil {
		t.Fatalf("expected duplicate provider pack registration error")
	}
	if err := hooks.RegisterProviderPack(ProviderPack{Name: "empty"}); err == nil {
		t.Fatalf("expected empty pack error")
	}

	registry := core.NewProviderRegistry()
	if err := hooks.ApplyProviderPacks(registry); err != nil {
		t.Fatalf("apply provider packs: %v", err)
	}
	if _, ok := registry.Get("zoho"); !ok {
		t.Fatalf("expected provider pack registration in registry")
	}
	if err := hooks.ApplyProviderPacks(registry); err == nil {
		t.Fatalf("expected duplicate provider registration error")
	}
	if len(hooks.ProviderOptions()) != 1 {
		t.Fatalf("expected a provider option for registered packs")
	}
}

func TestExtensionHooks_CommandQueryBundles(t *testing.T) {
	hooks := NewExtensionHooks()
	if err := hooks.RegisterCommandQueryBundle("b_bundle", func(service CommandQueryService) (any, error) {
		return "b", nil
	}); err != nil {
		t.Fatalf("register bundle b: %v", err)
	}
	if err := hooks.RegisterCommandQueryBundle("a_bundle", func(service CommandQueryService) (any, error) {
		facade, err := NewFacade(service)
		if err != nil {
			return nil, err
		}
		return facade.Queries().GetStats, nil
	}); err != nil {
		t.Fatalf("register bundle a: %v", err)
	}
	if err := hooks.RegisterCommandQueryBundle("a_bundle", func(CommandQueryService) (any, error) { return nil, nil }); err == nil {
		t.Fatalf("expected duplicate bundle error")
	}

	names := hooks.BundleNames()
	if len(names) != 2 || names[0] != "a_bundle" || names[1] != "b_bundle" {
		t.Fatalf("expected sorted bundle names, got %v", names)
	}

	svc, _ := newFacadeService(t)
	bundles, err := hooks.BuildCommandQueryBundles(svc)
	if err != nil {
		t.Fatalf("build bundles: %v", err)
	}
	if bundles["b_bundle"] != "b" || bundles["a_bundle"] == nil {
		t.Fatalf("unexpected bundles %#v", bundles)
	}

	if _, err := hooks.BuildCommandQueryBundles(nil); err == nil {
		t.Fatalf("expected nil service error")
	}

	failing := NewExtensionHooks()
	_ = failing.RegisterCommandQueryBundle("broken", func(CommandQueryService) (any, error) {
		return nil, fmt.Errorf("bundle failed")
	})
	if _, err := failing.BuildCommandQueryBundles(svc); err == nil {
		t.Fatalf("expected bundle factory error to propagate")
	}
}
