package devkit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-crm-sync/core"
)

// CallScript is one scripted outcome for a push or delete call.
type CallScript struct {
	ExternalID string
	Err        error
}

// FakeProviderClient is a scripted core.ProviderClient. Fetches return the
// configured items filtered by UpdatedAt; push calls consume scripts in order
// and repeat the last one when exhausted.
type FakeProviderClient struct {
	mu       sync.Mutex
	provider core.Provider

	events    []core.RemoteEvent
	emails    []core.RemoteEmail
	eventsErr error
	emailsErr error

	exchangeGrant core.TokenGrant
	exchangeErr   error
	refreshGrant  core.TokenGrant
	refreshErr    error
	refreshGate   chan struct{}

	pushScripts   []CallScript
	deleteScripts []CallScript

	calls      map[string]int
	pushed     []any
	sessions   []core.ProviderSession
	refreshed  []string
	nextRemote int
}

func NewFakeProviderClient(provider core.Provider) *FakeProviderClient {
	return &FakeProviderClient{
		provider: provider,
		exchangeGrant: core.TokenGrant{
			AccessToken:  "access-1",
			RefreshToken: "refresh-1",
			ExpiresIn:    3600,
			Scopes:       []string{"calendar", "mail"},
		},
		refreshGrant: core.TokenGrant{
			AccessToken: "access-refreshed",
			ExpiresIn:   3600,
		},
		calls: map[string]int{},
	}
}

func (c *FakeProviderClient) Provider() core.Provider { return c.provider }

func (c *FakeProviderClient) AuthorizationURL(state string, redirectURI string) string {
	return fmt.Sprintf("https://login.example.test/%s/authorize?state=%s&redirect_uri=%s",
		strings.ToLower(string(c.provider)), state, redirectURI)
}

func (c *FakeProviderClient) ExchangeCode(_ context.Context, code string, _ string) (core.TokenGrant, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls["exchange"]++
	if strings.TrimSpace(code) == "" {
		return core.TokenGrant{}, fmt.Errorf("devkit: authorization code is required")
	}
	if c.exchangeErr != nil {
		return core.TokenGrant{}, c.exchangeErr
	}
	return c.exchangeGrant, nil
}

func (c *FakeProviderClient) RefreshToken(_ context.Context, refreshToken string) (core.TokenGrant, error) {
	c.mu.Lock()
	c.calls["refresh"]++
	c.refreshed = append(c.refreshed, refreshToken)
	gate := c.refreshGate
	grant, err := c.refreshGrant, c.refreshErr
	c.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return grant, err
}

func (c *FakeProviderClient) FetchChangedCalendarEvents(_ context.Context, session core.ProviderSession, since time.Time) ([]core.RemoteEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls["fetch_events"]++
	c.sessions = append(c.sessions, session)
	if c.eventsErr != nil {
		return nil, c.eventsErr
	}
	out := make([]core.RemoteEvent, 0, len(c.events))
	for _, event := range c.events {
		if !since.IsZero() && !event.UpdatedAt.IsZero() && event.UpdatedAt.Before(since) {
			continue
		}
		out = append(out, event)
	}
	return out, nil
}

func (c *FakeProviderClient) FetchChangedEmails(_ context.Context, session core.ProviderSession, since time.Time) ([]core.RemoteEmail, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls["fetch_emails"]++
	c.sessions = append(c.sessions, session)
	if c.emailsErr != nil {
		return nil, c.emailsErr
	}
	out := make([]core.RemoteEmail, 0, len(c.emails))
	for _, email := range c.emails {
		if !since.IsZero() && !email.UpdatedAt.IsZero() && email.UpdatedAt.Before(since) {
			continue
		}
		out = append(out, email)
	}
	return out, nil
}

func (c *FakeProviderClient) PushEvent(_ context.Context, session core.ProviderSession, draft core.EventDraft) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions = append(c.sessions, session)
	script := c.nextScript("push_event", c.pushScripts)
	if script.Err != nil {
		return "", script.Err
	}
	c.pushed = append(c.pushed, draft)
	if draft.ExternalID != "" {
		return draft.ExternalID, nil
	}
	return c.remoteID(script, "evt"), nil
}

func (c *FakeProviderClient) PushEmail(_ context.Context, session core.ProviderSession, draft core.EmailDraft) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions = append(c.sessions, session)
	script := c.nextScript("push_email", c.pushScripts)
	if script.Err != nil {
		return "", script.Err
	}
	c.pushed = append(c.pushed, draft)
	return c.remoteID(script, "msg"), nil
}

func (c *FakeProviderClient) DeleteEvent(_ context.Context, session core.ProviderSession, externalID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions = append(c.sessions, session)
	script := c.nextScript("delete_event", c.deleteScripts)
	if script.Err != nil {
		return script.Err
	}
	c.pushed = append(c.pushed, "delete:"+externalID)
	return nil
}

func (c *FakeProviderClient) nextScript(call string, scripts []CallScript) CallScript {
	c.calls[call]++
	index := c.calls[call] - 1
	switch {
	case index < len(scripts):
		return scripts[index]
	case len(scripts) > 0:
		return scripts[len(scripts)-1]
	default:
		return CallScript{}
	}
}

func (c *FakeProviderClient) remoteID(script CallScript, prefix string) string {
	if script.ExternalID != "" {
		return script.ExternalID
	}
	c.nextRemote++
	return fmt.Sprintf("%s-remote-%d", prefix, c.nextRemote)
}

func (c *FakeProviderClient) SetEvents(events ...core.RemoteEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append([]core.RemoteEvent(nil), events...)
}

func (c *FakeProviderClient) SetEmails(emails ...core.RemoteEmail) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emails = append([]core.RemoteEmail(nil), emails...)
}

func (c *FakeProviderClient) FailEventFetch(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.eventsErr = err
}

func (c *FakeProviderClient) FailEmailFetch(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emailsErr = err
}

func (c *FakeProviderClient) SetExchange(grant core.TokenGrant, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exchangeGrant, c.exchangeErr = grant, err
}

func (c *FakeProviderClient) SetRefresh(grant core.TokenGrant, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshGrant, c.refreshErr = grant, err
}

// HoldRefresh blocks RefreshToken calls until the returned release func runs.
func (c *FakeProviderClient) HoldRefresh() (release func()) {
	gate := make(chan struct{})
	c.mu.Lock()
	c.refreshGate = gate
	c.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

func (c *FakeProviderClient) ScriptPushes(scripts ...CallScript) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pushScripts = append([]CallScript(nil), scripts...)
}

func (c *FakeProviderClient) ScriptDeletes(scripts ...CallScript) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleteScripts = append([]CallScript(nil), scripts...)
}

// Calls reports how many times the named call ran: exchange, refresh,
// fetch_events, fetch_emails, push_event, push_email, delete_event.
func (c *FakeProviderClient) Calls(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[name]
}

// Pushed returns drafts accepted by push calls and "delete:<id>" markers.
func (c *FakeProviderClient) Pushed() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]any(nil), c.pushed...)
}

func (c *FakeProviderClient) Sessions() []core.ProviderSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]core.ProviderSession(nil), c.sessions...)
}

func (c *FakeProviderClient) RefreshedTokens() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.refreshed...)
}

var _ core.ProviderClient = (*FakeProviderClient)(nil)
