package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/goliatone/go-crm-sync/core"
	"github.com/goliatone/go-crm-sync/providers"
)

const (
	ScopeCalendarEvents = calendar.CalendarEventsScope
	ScopeGmailModify    = gmail.GmailModifyScope
	ScopeGmailSend      = gmail.GmailSendScope

	defaultCalendarID = "primary"
	gmailUser         = "me"
	pageSize          = 250
)

type Config struct {
	ClientID     string
	ClientSecret string
	Scopes       []string
	// OAuthEndpoint overrides the Google consent and token URLs.
	OAuthEndpoint oauth2.Endpoint
	// CalendarEndpoint and GmailEndpoint override the API base URLs.
	CalendarEndpoint string
	GmailEndpoint    string
	HTTPClient       *http.Client
}

func DefaultScopes() []string {
	return []string{ScopeCalendarEvents, ScopeGmailModify, ScopeGmailSend}
}

// Client reads and writes Google Calendar events and Gmail messages on
// behalf of a connection.
type Client struct {
	*providers.OAuth2Exchanger
	cfg Config
}

func New(cfg Config) (*Client, error) {
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultScopes()
	}
	if cfg.OAuthEndpoint.TokenURL == "" {
		cfg.OAuthEndpoint = googleoauth.Endpoint
	}
	exchanger, err := providers.NewOAuth2Exchanger(providers.OAuth2Config{
		Provider:     core.ProviderGoogle,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     cfg.OAuthEndpoint,
		Scopes:       cfg.Scopes,
		AuthParams:   map[string]string{"prompt": "consent"},
		HTTPClient:   cfg.HTTPClient,
	})
	if err != nil {
		return nil, err
	}
	return &Client{OAuth2Exchanger: exchanger, cfg: cfg}, nil
}

func (c *Client) FetchChangedCalendarEvents(ctx context.Context, session core.ProviderSession, since time.Time) ([]core.RemoteEvent, error) {
	svc, err := c.calendarService(ctx, session)
	if err != nil {
		return nil, err
	}
	call := svc.Events.List(calendarID(session, "")).
		ShowDeleted(true).
		SingleEvents(true).
		MaxResults(pageSize)
	if !since.IsZero() {
		call = call.UpdatedMin(since.UTC().Format(time.RFC3339))
	}
	out := make([]core.RemoteEvent, 0)
	err = call.Pages(ctx, func(page *calendar.Events) error {
		for _, item := range page.Items {
			out = append(out, remoteEventFromCalendar(item))
		}
		return nil
	})
	if err != nil {
		return nil, classify("list calendar events", err)
	}
	return out, nil
}

func (c *Client) FetchChangedEmails(ctx context.Context, session core.ProviderSession, since time.Time) ([]core.RemoteEmail, error) {
	svc, err := c.gmailService(ctx, session)
	if err != nil {
		return nil, err
	}
	call := svc.Users.Messages.List(gmailUser).MaxResults(pageSize).IncludeSpamTrash(false)
	if !since.IsZero() {
		call = call.Q(fmt.Sprintf("after:%d", since.UTC().Unix()))
	}
	ids := make([]string, 0)
	err = call.Pages(ctx, func(page *gmail.ListMessagesResponse) error {
		for _, message := range page.Messages {
			ids = append(ids, message.Id)
		}
		return nil
	})
	if err != nil {
		return nil, classify("list gmail messages", err)
	}

	out := make([]core.RemoteEmail, 0, len(ids))
	for _, id := range ids {
		message, getErr := svc.Users.Messages.Get(gmailUser, id).Format("full").Context(ctx).Do()
		if getErr != nil {
			if isGone(getErr) {
				continue
			}
			return nil, classify("get gmail message "+id, getErr)
		}
		out = append(out, remoteEmailFromGmail(message))
	}
	return out, nil
}

// PushEvent creates the event, or patches it when the draft carries an
// external id.
func (c *Client) PushEvent(ctx context.Context, session core.ProviderSession, draft core.EventDraft) (string, error) {
	svc, err := c.calendarService(ctx, session)
	if err != nil {
		return "", err
	}
	event := calendarEventFromDraft(draft)
	calID := calendarID(session, draft.CalendarID)
	var stored *calendar.Event
	if externalID := strings.TrimSpace(draft.ExternalID); externalID != "" {
		stored, err = svc.Events.Patch(calID, externalID, event).Context(ctx).Do()
	} else {
		stored, err = svc.Events.Insert(calID, event).Context(ctx).Do()
	}
	if err != nil {
		return "", classify("push calendar event", err)
	}
	return stored.Id, nil
}

func (c *Client) PushEmail(ctx context.Context, session core.ProviderSession, draft core.EmailDraft) (string, error) {
	svc, err := c.gmailService(ctx, session)
	if err != nil {
		return "", err
	}
	raw, err := buildMIMEMessage(draft)
	if err != nil {
		return "", core.NewProviderTransientError(core.ProviderGoogle, "encode email", err)
	}
	message := &gmail.Message{Raw: raw, ThreadId: strings.TrimSpace(draft.ConversationID)}
	sent, err := svc.Users.Messages.Send(gmailUser, message).Context(ctx).Do()
	if err != nil {
		return "", classify("send gmail message", err)
	}
	return sent.Id, nil
}

// DeleteEvent treats an already removed event as deleted.
func (c *Client) DeleteEvent(ctx context.Context, session core.ProviderSession, externalID string) error {
	svc, err := c.calendarService(ctx, session)
	if err != nil {
		return err
	}
	err = svc.Events.Delete(calendarID(session, ""), strings.TrimSpace(externalID)).Context(ctx).Do()
	if err != nil && !isGone(err) {
		return classify("delete calendar event", err)
	}
	return nil
}

func (c *Client) calendarService(ctx context.Context, session core.ProviderSession) (*calendar.Service, error) {
	opts := c.clientOptions(ctx, session, c.cfg.CalendarEndpoint)
	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("google: create calendar service: %w", err)
	}
	return svc, nil
}

func (c *Client) gmailService(ctx context.Context, session core.ProviderSession) (*gmail.Service, error) {
	opts := c.clientOptions(ctx, session, c.cfg.GmailEndpoint)
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("google: create gmail service: %w", err)
	}
	return svc, nil
}

// clientOptions authorizes API calls with the session's access token. The
// engine refreshes tokens itself, so the token source never refreshes.
func (c *Client) clientOptions(ctx context.Context, session core.ProviderSession, endpoint string) []option.ClientOption {
	source := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: session.AccessToken, TokenType: "Bearer"})
	base := context.WithValue(ctx, oauth2.HTTPClient, c.HTTPClient())
	opts := []option.ClientOption{option.WithHTTPClient(oauth2.NewClient(base, source))}
	if strings.TrimSpace(endpoint) != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	return opts
}

func calendarID(session core.ProviderSession, requested string) string {
	if id := strings.TrimSpace(requested); id != "" {
		return id
	}
	if id := strings.TrimSpace(session.Settings.DefaultCalendarID); id != "" {
		return id
	}
	return defaultCalendarID
}

func classify(action string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		message := action
		if strings.TrimSpace(apiErr.Message) != "" {
			message = action + ": " + apiErr.Message
		}
		return providers.ClassifyHTTPStatus(core.ProviderGoogle, apiErr.Code, message, err)
	}
	return providers.ClassifyTransportError(core.ProviderGoogle, action, err)
}

func isGone(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusNotFound || apiErr.Code == http.StatusGone
	}
	return false
}

var _ core.ProviderClient = (*Client)(nil)
