package microsoft

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	msoauth "golang.org/x/oauth2/microsoft"

	"github.com/goliatone/go-crm-sync/core"
	"github.com/goliatone/go-crm-sync/providers"
	"github.com/goliatone/go-crm-sync/ratelimit"
)

const (
	DefaultGraphEndpoint = "https://graph.microsoft.com/v1.0"
	DefaultTenant        = "common"

	pageSize     = 100
	maxErrorBody = 64 << 10
)

type Config struct {
	ClientID     string
	ClientSecret string
	// Tenant selects the Azure AD authority; "common" accepts any account.
	Tenant string
	Scopes []string
	// OAuthEndpoint overrides the tenant authority URLs.
	OAuthEndpoint oauth2.Endpoint
	GraphEndpoint string
	HTTPClient    *http.Client
	// Throttle defaults to an in-memory adaptive policy per connection.
	Throttle ThrottlePolicy
}

// ThrottlePolicy gates Graph calls on the quota seen in earlier responses.
type ThrottlePolicy interface {
	BeforeCall(ctx context.Context, key ratelimit.Key) error
	AfterCall(ctx context.Context, key ratelimit.Key, res ratelimit.ResponseMeta) error
}

func DefaultScopes() []string {
	return []string{"offline_access", "Calendars.ReadWrite", "Mail.ReadWrite", "Mail.Send"}
}

// Client reads and writes Outlook calendar events and mail through Microsoft
// Graph on behalf of a connection.
type Client struct {
	*providers.OAuth2Exchanger
	graph    string
	throttle ThrottlePolicy
}

func New(cfg Config) (*Client, error) {
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultScopes()
	}
	if strings.TrimSpace(cfg.Tenant) == "" {
		cfg.Tenant = DefaultTenant
	}
	if cfg.OAuthEndpoint.TokenURL == "" {
		cfg.OAuthEndpoint = msoauth.AzureADEndpoint(cfg.Tenant)
	}
	graph := strings.TrimRight(strings.TrimSpace(cfg.GraphEndpoint), "/")
	if graph == "" {
		graph = DefaultGraphEndpoint
	}
	exchanger, err := providers.NewOAuth2Exchanger(providers.OAuth2Config{
		Provider:     core.ProviderMicrosoft,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     cfg.OAuthEndpoint,
		Scopes:       cfg.Scopes,
		HTTPClient:   cfg.HTTPClient,
	})
	if err != nil {
		return nil, err
	}
	throttle := cfg.Throttle
	if throttle == nil {
		throttle = ratelimit.NewAdaptivePolicy(ratelimit.NewMemoryStateStore())
	}
	return &Client{OAuth2Exchanger: exchanger, graph: graph, throttle: throttle}, nil
}

func (c *Client) FetchChangedCalendarEvents(ctx context.Context, session core.ProviderSession, since time.Time) ([]core.RemoteEvent, error) {
	next := c.collectionURL(eventsPath(session.Settings.DefaultCalendarID), since, nil)
	out := make([]core.RemoteEvent, 0)
	for next != "" {
		var page struct {
			Value    []graphEvent `json:"value"`
			NextLink string       `json:"@odata.nextLink"`
		}
		if err := c.do(ctx, session, http.MethodGet, next, nil, &page); err != nil {
			return nil, classify("list calendar events", err)
		}
		for _, item := range page.Value {
			out = append(out, remoteEventFromGraph(item))
		}
		next = page.NextLink
	}
	return out, nil
}

func (c *Client) FetchChangedEmails(ctx context.Context, session core.ProviderSession, since time.Time) ([]core.RemoteEmail, error) {
	extra := url.Values{"$expand": {"attachments($select=name,contentType,size)"}}
	next := c.collectionURL("/me/messages", since, extra)
	out := make([]core.RemoteEmail, 0)
	for next != "" {
		var page struct {
			Value    []graphMessage `json:"value"`
			NextLink string         `json:"@odata.nextLink"`
		}
		if err := c.do(ctx, session, http.MethodGet, next, nil, &page); err != nil {
			return nil, classify("list messages", err)
		}
		for _, item := range page.Value {
			out = append(out, remoteEmailFromGraph(item))
		}
		next = page.NextLink
	}
	return out, nil
}

// PushEvent creates the event in the draft's calendar, or patches it when the
// draft carries an external id.
func (c *Client) PushEvent(ctx context.Context, session core.ProviderSession, draft core.EventDraft) (string, error) {
	payload := graphEventFromDraft(draft)
	var stored graphEvent
	var err error
	if externalID := strings.TrimSpace(draft.ExternalID); externalID != "" {
		err = c.do(ctx, session, http.MethodPatch, c.graph+"/me/events/"+url.PathEscape(externalID), payload, &stored)
	} else {
		calendarID := firstNonEmpty(draft.CalendarID, session.Settings.DefaultCalendarID)
		err = c.do(ctx, session, http.MethodPost, c.graph+eventsPath(calendarID), payload, &stored)
	}
	if err != nil {
		return "", classify("push calendar event", err)
	}
	if strings.TrimSpace(stored.ID) == "" {
		return "", core.NewProviderTransientError(core.ProviderMicrosoft, "push calendar event: response has no id", nil)
	}
	return stored.ID, nil
}

// PushEmail creates a draft and sends it. Graph's send call returns no body,
// so the draft id is the message's external id.
func (c *Client) PushEmail(ctx context.Context, session core.ProviderSession, draft core.EmailDraft) (string, error) {
	var created graphMessage
	if err := c.do(ctx, session, http.MethodPost, c.graph+"/me/messages", graphMessageFromDraft(draft), &created); err != nil {
		return "", classify("create message draft", err)
	}
	if strings.TrimSpace(created.ID) == "" {
		return "", core.NewProviderTransientError(core.ProviderMicrosoft, "create message draft: response has no id", nil)
	}
	if err := c.do(ctx, session, http.MethodPost, c.graph+"/me/messages/"+url.PathEscape(created.ID)+"/send", nil, nil); err != nil {
		return "", classify("send message", err)
	}
	return created.ID, nil
}

// DeleteEvent treats an already removed event as deleted.
func (c *Client) DeleteEvent(ctx context.Context, session core.ProviderSession, externalID string) error {
	endpoint := c.graph + "/me/events/" + url.PathEscape(strings.TrimSpace(externalID))
	err := c.do(ctx, session, http.MethodDelete, endpoint, nil, nil)
	var graphErr *graphError
	if errors.As(err, &graphErr) && (graphErr.Status == http.StatusNotFound || graphErr.Status == http.StatusGone) {
		return nil
	}
	if err != nil {
		return classify("delete calendar event", err)
	}
	return nil
}

func (c *Client) collectionURL(path string, since time.Time, extra url.Values) string {
	query := url.Values{"$top": {fmt.Sprint(pageSize)}}
	if !since.IsZero() {
		query.Set("$filter", "lastModifiedDateTime ge "+since.UTC().Format(time.RFC3339))
	}
	for key, values := range extra {
		query[key] = values
	}
	return c.graph + path + "?" + query.Encode()
}

func eventsPath(calendarID string) string {
	if id := strings.TrimSpace(calendarID); id != "" {
		return "/me/calendars/" + url.PathEscape(id) + "/events"
	}
	return "/me/events"
}

// do sends one Graph request with the session's bearer token. Times are
// requested in UTC so the payload needs no zone lookup.
func (c *Client) do(ctx context.Context, session core.ProviderSession, method string, endpoint string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("microsoft: encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("microsoft: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Prefer", `outlook.timezone="UTC", outlook.body-content-type="text"`)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	key := ratelimit.Key{Provider: core.ProviderMicrosoft, ConnectionID: session.ConnectionID}
	if err := c.throttle.BeforeCall(ctx, key); err != nil {
		return err
	}

	source := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: session.AccessToken, TokenType: "Bearer"})
	httpClient := oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, c.HTTPClient()), source)
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := c.throttle.AfterCall(ctx, key, ratelimit.ResponseMeta{StatusCode: resp.StatusCode, Headers: resp.Header}); err != nil {
		return fmt.Errorf("microsoft: record quota: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeGraphError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusAccepted {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("microsoft: decode response: %w", err)
	}
	return nil
}

type graphError struct {
	Status  int
	Code    string
	Message string
}

func (e *graphError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("graph %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("graph %d: %s", e.Status, e.Message)
}

func decodeGraphError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	out := &graphError{Status: resp.StatusCode}
	if err := json.Unmarshal(raw, &envelope); err == nil {
		out.Code = envelope.Error.Code
		out.Message = envelope.Error.Message
	}
	if out.Message == "" {
		out.Message = strings.TrimSpace(string(raw))
	}
	if out.Message == "" {
		out.Message = http.StatusText(resp.StatusCode)
	}
	return out
}

func classify(action string, err error) error {
	var throttled ratelimit.ThrottledError
	if errors.As(err, &throttled) {
		return throttled.ToServiceError()
	}
	var graphErr *graphError
	if errors.As(err, &graphErr) {
		return providers.ClassifyHTTPStatus(core.ProviderMicrosoft, graphErr.Status, action+": "+graphErr.Message, err)
	}
	return providers.ClassifyTransportError(core.ProviderMicrosoft, action, err)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

var _ core.ProviderClient = (*Client)(nil)
