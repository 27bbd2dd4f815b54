package google

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/goliatone/go-crm-sync/core"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  url.Values
	Auth   string
	Body   []byte
}

type fakeGoogle struct {
	t        *testing.T
	mu       sync.Mutex
	requests []recordedRequest
	handlers map[string]http.HandlerFunc
}

func newFakeGoogle(t *testing.T) (*fakeGoogle, *httptest.Server) {
	t.Helper()
	fake := &fakeGoogle{t: t, handlers: map[string]http.HandlerFunc{}}
	server := httptest.NewServer(http.HandlerFunc(fake.serve))
	t.Cleanup(server.Close)
	return fake, server
}

func (f *fakeGoogle) handle(method, path string, handler http.HandlerFunc) {
	f.handlers[method+" "+path] = handler
}

func (f *fakeGoogle) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	r.Body = io.NopCloser(bytes.NewReader(body))
	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.Query(),
		Auth:   r.Header.Get("Authorization"),
		Body:   body,
	})
	f.mu.Unlock()
	handler, ok := f.handlers[r.Method+" "+r.URL.Path]
	if !ok {
		writeAPIError(w, http.StatusNotFound, "no handler for "+r.Method+" "+r.URL.Path)
		return
	}
	handler(w, r)
}

func (f *fakeGoogle) recorded() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest(nil), f.requests...)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeAPIError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{"code": status, "message": message},
	})
}

func newTestClient(t *testing.T, server *httptest.Server) *Client {
	t.Helper()
	client, err := New(Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		OAuthEndpoint: oauth2.Endpoint{
			AuthURL:  server.URL + "/o/oauth2/auth",
			TokenURL: server.URL + "/token",
		},
		CalendarEndpoint: server.URL + "/",
		GmailEndpoint:    server.URL + "/",
		HTTPClient:       server.Client(),
	})
	require.NoError(t, err)
	return client
}

func testSession() core.ProviderSession {
	return core.ProviderSession{
		ConnectionID: "conn-1",
		UserID:       "usr_1",
		Provider:     core.ProviderGoogle,
		AccessToken:  "access-1",
	}
}

func TestFetchChangedCalendarEventsFollowsPagesAndMapsState(t *testing.T) {
	fake, server := newFakeGoogle(t)
	fake.handle(http.MethodGet, "/calendars/primary/events", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("pageToken") == "" {
			writeJSON(w, http.StatusOK, map[string]any{
				"nextPageToken": "page-2",
				"items": []map[string]any{
					{
						"id":          "evt-1",
						"summary":     "Quarterly review",
						"description": "Portfolio walkthrough",
						"location":    "Office",
						"status":      "confirmed",
						"updated":     "2026-03-01T10:00:00Z",
						"start":       map[string]any{"dateTime": "2026-03-05T15:00:00+01:00"},
						"end":         map[string]any{"dateTime": "2026-03-05T16:00:00+01:00"},
						"organizer":   map[string]any{"email": "advisor@example.test"},
						"attendees": []map[string]any{
							{"email": "client@example.test", "displayName": "Client", "responseStatus": "accepted"},
						},
					},
				},
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"items": []map[string]any{
				{
					"id":      "evt-2",
					"summary": "Offsite",
					"status":  "confirmed",
					"updated": "2026-03-02T10:00:00Z",
					"start":   map[string]any{"date": "2026-04-01"},
					"end":     map[string]any{"date": "2026-04-02"},
				},
				{
					"id":      "evt-3",
					"status":  "cancelled",
					"updated": "2026-03-03T10:00:00Z",
				},
			},
		})
	})

	client := newTestClient(t, server)
	since := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	events, err := client.FetchChangedCalendarEvents(context.Background(), testSession(), since)
	require.NoError(t, err)
	require.Len(t, events, 3)

	first := events[0]
	assert.Equal(t, "evt-1", first.ExternalID)
	assert.Equal(t, "Quarterly review", first.Subject)
	assert.Equal(t, time.Date(2026, 3, 5, 14, 0, 0, 0, time.UTC), first.StartAt)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), first.UpdatedAt)
	assert.False(t, first.AllDay)
	assert.False(t, first.Deleted)
	assert.Equal(t, "advisor@example.test", first.Organizer)
	require.Len(t, first.Attendees, 1)
	assert.Equal(t, core.Attendee{Email: "client@example.test", Name: "Client", Response: "accepted"}, first.Attendees[0])
	assert.NotEmpty(t, first.Raw)

	assert.True(t, events[1].AllDay)
	assert.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), events[1].StartAt)
	assert.True(t, events[2].Deleted)

	requests := fake.recorded()
	require.Len(t, requests, 2)
	assert.Equal(t, "Bearer access-1", requests[0].Auth)
	assert.Equal(t, "true", requests[0].Query.Get("showDeleted"))
	assert.Equal(t, "2026-02-01T00:00:00Z", requests[0].Query.Get("updatedMin"))
	assert.Equal(t, "page-2", requests[1].Query.Get("pageToken"))
}

func TestFetchChangedCalendarEventsUsesDefaultCalendarSetting(t *testing.T) {
	fake, server := newFakeGoogle(t)
	fake.handle(http.MethodGet, "/calendars/work@example.test/events", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"items": []any{}})
	})
	session := testSession()
	session.Settings.DefaultCalendarID = "work@example.test"

	events, err := newTestClient(t, server).FetchChangedCalendarEvents(context.Background(), session, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Empty(t, fake.recorded()[0].Query.Get("updatedMin"))
}

func TestFetchChangedEmailsListsThenLoadsFullMessages(t *testing.T) {
	fake, server := newFakeGoogle(t)
	fake.handle(http.MethodGet, "/gmail/v1/users/me/messages", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"messages": []map[string]any{{"id": "msg-1", "threadId": "thr-1"}, {"id": "msg-gone"}},
		})
	})
	fake.handle(http.MethodGet, "/gmail/v1/users/me/messages/msg-1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"id":           "msg-1",
			"threadId":     "thr-1",
			"labelIds":     []string{"INBOX", "UNREAD"},
			"snippet":      "Can we move the meeting?",
			"internalDate": "1772445600000",
			"payload": map[string]any{
				"mimeType": "multipart/mixed",
				"headers": []map[string]any{
					{"name": "Subject", "value": "Meeting"},
					{"name": "From", "value": "Jane Client <jane@example.test>"},
					{"name": "To", "value": "advisor@example.test"},
					{"name": "Cc", "value": "assistant@example.test, other@example.test"},
				},
				"parts": []map[string]any{
					{
						"mimeType": "text/plain",
						"body":     map[string]any{"data": base64.URLEncoding.EncodeToString([]byte("Can we move the meeting?"))},
					},
					{
						"mimeType": "application/pdf",
						"filename": "statement.pdf",
						"body":     map[string]any{"attachmentId": "att-1", "size": 2048},
					},
				},
			},
		})
	})
	fake.handle(http.MethodGet, "/gmail/v1/users/me/messages/msg-gone", func(w http.ResponseWriter, r *http.Request) {
		writeAPIError(w, http.StatusNotFound, "Requested entity was not found.")
	})

	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	emails, err := newTestClient(t, server).FetchChangedEmails(context.Background(), testSession(), since)
	require.NoError(t, err)
	require.Len(t, emails, 1)

	email := emails[0]
	assert.Equal(t, "msg-1", email.ExternalID)
	assert.Equal(t, "thr-1", email.ConversationID)
	assert.Equal(t, "Meeting", email.Subject)
	assert.Equal(t, core.EmailAddress{Address: "jane@example.test", Name: "Jane Client"}, email.From)
	assert.Equal(t, []core.EmailAddress{{Address: "advisor@example.test"}}, email.To)
	assert.Len(t, email.Cc, 2)
	assert.Equal(t, "Can we move the meeting?", email.Body)
	assert.Equal(t, "inbox", email.FolderID)
	assert.False(t, email.IsRead)
	require.NotNil(t, email.ReceivedAt)
	assert.Nil(t, email.SentAt)
	assert.Equal(t, time.UnixMilli(1772445600000).UTC(), *email.ReceivedAt)
	assert.Equal(t, *email.ReceivedAt, email.UpdatedAt)
	require.Len(t, email.Attachments, 1)
	assert.Equal(t, core.Attachment{Name: "statement.pdf", ContentType: "application/pdf", Size: 2048}, email.Attachments[0])

	requests := fake.recorded()
	assert.Equal(t, "after:1772323200", requests[0].Query.Get("q"))
	assert.Equal(t, "full", requests[1].Query.Get("format"))
}

func TestFetchChangedEmailsFailsWholeFetchOnMessageError(t *testing.T) {
	fake, server := newFakeGoogle(t)
	fake.handle(http.MethodGet, "/gmail/v1/users/me/messages", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"messages": []map[string]any{{"id": "msg-1"}}})
	})
	fake.handle(http.MethodGet, "/gmail/v1/users/me/messages/msg-1", func(w http.ResponseWriter, r *http.Request) {
		writeAPIError(w, http.StatusServiceUnavailable, "backend unavailable")
	})

	_, err := newTestClient(t, server).FetchChangedEmails(context.Background(), testSession(), time.Time{})
	require.Error(t, err)
	assert.True(t, core.IsProviderCatastrophic(err))
}

func TestCalendarErrorsAreClassified(t *testing.T) {
	cases := []struct {
		name   string
		status int
		code   string
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, code: core.ErrorAuthenticationFailed},
		{name: "rate limited", status: http.StatusTooManyRequests, code: core.ErrorProviderCatastrophic},
		{name: "server error", status: http.StatusInternalServerError, code: core.ErrorProviderCatastrophic},
		{name: "bad request", status: http.StatusBadRequest, code: core.ErrorProviderTransient},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fake, server := newFakeGoogle(t)
			fake.handle(http.MethodGet, "/calendars/primary/events", func(w http.ResponseWriter, r *http.Request) {
				writeAPIError(w, tc.status, "boom")
			})
			_, err := newTestClient(t, server).FetchChangedCalendarEvents(context.Background(), testSession(), time.Time{})
			require.Error(t, err)
			assert.True(t, core.IsErrorCode(err, tc.code), "expected %s, got %v", tc.code, err)
		})
	}
}

func TestPushEventInsertsOrPatches(t *testing.T) {
	fake, server := newFakeGoogle(t)
	fake.handle(http.MethodPost, "/calendars/primary/events", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"id": "evt-new"})
	})
	fake.handle(http.MethodPatch, "/calendars/primary/events/evt-9", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"id": "evt-9"})
	})
	client := newTestClient(t, server)
	start := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	draft := core.EventDraft{
		Subject:   "Kickoff",
		StartAt:   start,
		EndAt:     start.Add(time.Hour),
		Attendees: []core.Attendee{{Email: "client@example.test", Name: "Client"}},
	}

	id, err := client.PushEvent(context.Background(), testSession(), draft)
	require.NoError(t, err)
	assert.Equal(t, "evt-new", id)

	draft.ExternalID = "evt-9"
	id, err = client.PushEvent(context.Background(), testSession(), draft)
	require.NoError(t, err)
	assert.Equal(t, "evt-9", id)

	requests := fake.recorded()
	require.Len(t, requests, 2)
	var body map[string]any
	require.NoError(t, json.Unmarshal(requests[0].Body, &body))
	assert.Equal(t, "Kickoff", body["summary"])
	assert.Equal(t, "2026-05-01T09:00:00Z", body["start"].(map[string]any)["dateTime"])
	assert.Equal(t, http.MethodPatch, requests[1].Method)
}

func TestDeleteEventTreatsGoneAsDeleted(t *testing.T) {
	fake, server := newFakeGoogle(t)
	fake.handle(http.MethodDelete, "/calendars/primary/events/evt-gone", func(w http.ResponseWriter, r *http.Request) {
		writeAPIError(w, http.StatusGone, "Resource has been deleted")
	})
	fake.handle(http.MethodDelete, "/calendars/primary/events/evt-locked", func(w http.ResponseWriter, r *http.Request) {
		writeAPIError(w, http.StatusForbidden, "forbidden")
	})
	client := newTestClient(t, server)

	require.NoError(t, client.DeleteEvent(context.Background(), testSession(), "evt-gone"))
	err := client.DeleteEvent(context.Background(), testSession(), "evt-locked")
	require.Error(t, err)
	assert.True(t, core.IsProviderCatastrophic(err))
}

func TestDeleteEventTargetsTheSyncedCalendar(t *testing.T) {
	fake, server := newFakeGoogle(t)
	fake.handle(http.MethodDelete, "/calendars/work@example.test/events/evt-1", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	session := testSession()
	session.Settings.DefaultCalendarID = "work@example.test"

	require.NoError(t, newTestClient(t, server).DeleteEvent(context.Background(), session, "evt-1"))
	requests := fake.recorded()
	require.Len(t, requests, 1)
	assert.Equal(t, "/calendars/work@example.test/events/evt-1", requests[0].Path)
}

func TestPushEmailSendsRawMessageOnThread(t *testing.T) {
	fake, server := newFakeGoogle(t)
	fake.handle(http.MethodPost, "/gmail/v1/users/me/messages/send", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"id": "sent-1", "threadId": "thr-1"})
	})

	id, err := newTestClient(t, server).PushEmail(context.Background(), testSession(), core.EmailDraft{
		Subject:        "Re: Meeting",
		Body:           "Tuesday works.",
		To:             []core.EmailAddress{{Address: "jane@example.test", Name: "Jane Client"}},
		ConversationID: "thr-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "sent-1", id)

	var payload struct {
		Raw      string `json:"raw"`
		ThreadID string `json:"threadId"`
	}
	require.NoError(t, json.Unmarshal(fake.recorded()[0].Body, &payload))
	assert.Equal(t, "thr-1", payload.ThreadID)
	decoded, err := base64.URLEncoding.DecodeString(payload.Raw)
	require.NoError(t, err)
	message := string(decoded)
	assert.Contains(t, message, "To: \"Jane Client\" <jane@example.test>")
	assert.Contains(t, message, "Subject: Re: Meeting")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(message), "Tuesday works."))
}

func TestAuthorizationURLRequestsOfflineConsent(t *testing.T) {
	_, server := newFakeGoogle(t)
	raw := newTestClient(t, server).AuthorizationURL("state-abc", "https://app.example.test/callback")

	parsed, err := url.Parse(raw)
	require.NoError(t, err)
	query := parsed.Query()
	assert.Equal(t, "state-abc", query.Get("state"))
	assert.Equal(t, "offline", query.Get("access_type"))
	assert.Equal(t, "consent", query.Get("prompt"))
	assert.Equal(t, "https://app.example.test/callback", query.Get("redirect_uri"))
	assert.Contains(t, query.Get("scope"), ScopeGmailModify)
}

func TestExchangeCodeReadsGrant(t *testing.T) {
	fake, server := newFakeGoogle(t)
	fake.handle(http.MethodPost, "/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "code-1", r.Form.Get("code"))
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token":  "access-9",
			"refresh_token": "refresh-9",
			"token_type":    "Bearer",
			"expires_in":    3599,
			"scope":         ScopeCalendarEvents + " " + ScopeGmailSend,
		})
	})

	grant, err := newTestClient(t, server).ExchangeCode(context.Background(), "code-1", "https://app.example.test/callback")
	require.NoError(t, err)
	assert.Equal(t, "access-9", grant.AccessToken)
	assert.Equal(t, "refresh-9", grant.RefreshToken)
	assert.Equal(t, int64(3599), grant.ExpiresIn)
	assert.Equal(t, []string{ScopeCalendarEvents, ScopeGmailSend}, grant.Scopes)
}
