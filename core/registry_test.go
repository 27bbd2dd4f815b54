package core

import (
	"context"
	"testing"
	"time"
)

type stubClient struct {
	provider Provider
}

func (c stubClient) Provider() Provider { return c.provider }

func (stubClient) AuthorizationURL(state string, _ string) string {
	return "https://auth.test?state=" + state
}

func (stubClient) ExchangeCode(context.Context, string, string) (TokenGrant, error) {
	return TokenGrant{AccessToken: "at"}, nil
}

func (stubClient) RefreshToken(context.Context, string) (TokenGrant, error) {
	return TokenGrant{AccessToken: "at"}, nil
}

func (stubClient) FetchChangedCalendarEvents(context.Context, ProviderSession, time.Time) ([]RemoteEvent, error) {
	return nil, nil
}

func (stubClient) FetchChangedEmails(context.Context, ProviderSession, time.Time) ([]RemoteEmail, error) {
	return nil, nil
}

func (stubClient) PushEvent(context.Context, ProviderSession, EventDraft) (string, error) {
	return "evt", nil
}

func (stubClient) PushEmail(context.Context, ProviderSession, EmailDraft) (string, error) {
	return "msg", nil
}

func (stubClient) DeleteEvent(context.Context, ProviderSession, string) error { return nil }

func TestProviderRegistry_ListDeterministicOrder(t *testing.T) {
	registry := NewProviderRegistry()
	for _, client := range []ProviderClient{
		stubClient{provider: "zeta"},
		stubClient{provider: ProviderMicrosoft},
		stubClient{provider: ProviderGoogle},
	} {
		if err := registry.Register(client); err != nil {
			t.Fatalf("register provider: %v", err)
		}
	}

	listed := registry.List()
	want := []Provider{ProviderGoogle, ProviderMicrosoft, "ZETA"}
	if len(listed) != len(want) {
		t.Fatalf("expected %d providers, got %d", len(want), len(listed))
	}
	for idx := range want {
		if listed[idx] != want[idx] {
			t.Fatalf("unexpected ordering at index %d: got %v want %v", idx, listed, want)
		}
	}
}

func TestProviderRegistry_DuplicateRejectedAndLookupNormalized(t *testing.T) {
	registry := NewProviderRegistry()
	if err := registry.Register(stubClient{provider: ProviderGoogle}); err != nil {
		t.Fatalf("register provider: %v", err)
	}
	if err := registry.Register(stubClient{provider: "google"}); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
	if _, ok := registry.Get(" google "); !ok {
		t.Fatalf("expected lookup to normalize provider names")
	}
}
