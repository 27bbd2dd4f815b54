package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"golang.org/x/oauth2"

	"github.com/goliatone/go-crm-sync/core"
)

func newTokenServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func newTestExchanger(t *testing.T, server *httptest.Server) *OAuth2Exchanger {
	t.Helper()
	exchanger, err := NewOAuth2Exchanger(OAuth2Config{
		Provider:     core.ProviderMicrosoft,
		ClientID:     " client-123 ",
		ClientSecret: "secret-456",
		Endpoint: oauth2.Endpoint{
			AuthURL:  server.URL + "/authorize",
			TokenURL: server.URL + "/token",
		},
		Scopes:     []string{"offline_access", " Mail.Read ", "offline_access", ""},
		AuthParams: map[string]string{"prompt": "select_account"},
		HTTPClient: server.Client(),
	})
	if err != nil {
		t.Fatalf("new exchanger: %v", err)
	}
	return exchanger
}

func writeToken(w http.ResponseWriter, status int, payload map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func TestNewOAuth2ExchangerValidatesConfig(t *testing.T) {
	endpoint := oauth2.Endpoint{AuthURL: "https://auth.example.test", TokenURL: "https://token.example.test"}
	cases := map[string]OAuth2Config{
		"missing provider":  {ClientID: "id", Endpoint: endpoint},
		"missing client id": {Provider: core.ProviderGoogle, Endpoint: endpoint},
		"missing token url": {Provider: core.ProviderGoogle, ClientID: "id", Endpoint: oauth2.Endpoint{AuthURL: endpoint.AuthURL}},
	}
	for name, cfg := range cases {
		if _, err := NewOAuth2Exchanger(cfg); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestAuthorizationURLCarriesStateRedirectAndParams(t *testing.T) {
	server := newTokenServer(t, func(w http.ResponseWriter, r *http.Request) {})
	exchanger := newTestExchanger(t, server)

	parsed, err := url.Parse(exchanger.AuthorizationURL("state_1", "https://app.example/callback"))
	if err != nil {
		t.Fatalf("parse auth url: %v", err)
	}
	query := parsed.Query()
	if query.Get("client_id") != "client-123" {
		t.Fatalf("expected trimmed client_id, got %q", query.Get("client_id"))
	}
	if query.Get("state") != "state_1" {
		t.Fatalf("expected state query value")
	}
	if query.Get("redirect_uri") != "https://app.example/callback" {
		t.Fatalf("expected redirect_uri query value")
	}
	if query.Get("access_type") != "offline" {
		t.Fatalf("expected offline access")
	}
	if query.Get("prompt") != "select_account" {
		t.Fatalf("expected extra auth param")
	}
	if query.Get("scope") != "offline_access Mail.Read" {
		t.Fatalf("expected normalized scopes, got %q", query.Get("scope"))
	}
	if exchanger.Provider() != core.ProviderMicrosoft {
		t.Fatalf("unexpected provider %q", exchanger.Provider())
	}
}

func TestExchangeCodeUsesGrantScopes(t *testing.T) {
	server := newTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.Form.Get("grant_type") != "authorization_code" || r.Form.Get("code") != "code_123" {
			t.Errorf("unexpected token form: %v", r.Form)
		}
		writeToken(w, http.StatusOK, map[string]any{
			"access_token":  "access-1",
			"refresh_token": "refresh-1",
			"token_type":    "Bearer",
			"expires_in":    3600,
			"scope":         "Mail.Read Calendars.ReadWrite",
		})
	})

	grant, err := newTestExchanger(t, server).ExchangeCode(context.Background(), "code_123", "https://app.example/callback")
	if err != nil {
		t.Fatalf("exchange code: %v", err)
	}
	if grant.AccessToken != "access-1" || grant.RefreshToken != "refresh-1" {
		t.Fatalf("unexpected grant tokens: %+v", grant)
	}
	if grant.ExpiresIn != 3600 {
		t.Fatalf("expected expires_in 3600, got %d", grant.ExpiresIn)
	}
	if len(grant.Scopes) != 2 || grant.Scopes[1] != "Calendars.ReadWrite" {
		t.Fatalf("expected granted scopes, got %v", grant.Scopes)
	}
}

func TestExchangeCodeFallsBackToConfiguredScopes(t *testing.T) {
	server := newTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeToken(w, http.StatusOK, map[string]any{"access_token": "access-1", "token_type": "Bearer"})
	})

	grant, err := newTestExchanger(t, server).ExchangeCode(context.Background(), "code_123", "")
	if err != nil {
		t.Fatalf("exchange code: %v", err)
	}
	if len(grant.Scopes) != 2 || grant.Scopes[0] != "offline_access" {
		t.Fatalf("expected configured scopes, got %v", grant.Scopes)
	}
	if _, err := newTestExchanger(t, server).ExchangeCode(context.Background(), " ", ""); err == nil {
		t.Fatalf("expected blank code to fail")
	}
}

func TestRefreshTokenKeepsRefreshTokenWhenNotRotated(t *testing.T) {
	server := newTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.Form.Get("grant_type") != "refresh_token" || r.Form.Get("refresh_token") != "refresh-1" {
			t.Errorf("unexpected refresh form: %v", r.Form)
		}
		writeToken(w, http.StatusOK, map[string]any{
			"access_token": "access-2",
			"token_type":   "Bearer",
			"expires_in":   1800,
		})
	})

	grant, err := newTestExchanger(t, server).RefreshToken(context.Background(), "refresh-1")
	if err != nil {
		t.Fatalf("refresh token: %v", err)
	}
	if grant.AccessToken != "access-2" {
		t.Fatalf("expected rotated access token, got %q", grant.AccessToken)
	}
	if grant.RefreshToken != "refresh-1" {
		t.Fatalf("expected original refresh token to be kept, got %q", grant.RefreshToken)
	}
	if grant.ExpiresIn != 1800 {
		t.Fatalf("expected expires_in 1800, got %d", grant.ExpiresIn)
	}
}

func TestRefreshTokenClassifiesFailures(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		payload map[string]any
		code    string
	}{
		{name: "invalid grant", status: http.StatusBadRequest, payload: map[string]any{"error": "invalid_grant", "error_description": "token revoked"}, code: core.ErrorAuthenticationFailed},
		{name: "server error", status: http.StatusBadGateway, payload: map[string]any{"error": "temporarily_unavailable"}, code: core.ErrorProviderCatastrophic},
		{name: "bad request", status: http.StatusBadRequest, payload: map[string]any{"error": "invalid_request"}, code: core.ErrorProviderTransient},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := newTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
				writeToken(w, tc.status, tc.payload)
			})
			_, err := newTestExchanger(t, server).RefreshToken(context.Background(), "refresh-1")
			if err == nil {
				t.Fatalf("expected refresh failure")
			}
			if !core.IsErrorCode(err, tc.code) {
				t.Fatalf("expected %s, got %v", tc.code, err)
			}
		})
	}
}

func TestClassifyHTTPStatus(t *testing.T) {
	cases := map[int]string{
		http.StatusUnauthorized:        core.ErrorAuthenticationFailed,
		http.StatusForbidden:           core.ErrorProviderCatastrophic,
		http.StatusTooManyRequests:     core.ErrorProviderCatastrophic,
		http.StatusServiceUnavailable:  core.ErrorProviderCatastrophic,
		http.StatusConflict:            core.ErrorProviderTransient,
		http.StatusUnprocessableEntity: core.ErrorProviderTransient,
	}
	for status, code := range cases {
		err := ClassifyHTTPStatus(core.ProviderGoogle, status, "", nil)
		if !core.IsErrorCode(err, code) {
			t.Fatalf("status %d: expected %s, got %v", status, code, err)
		}
	}
}

func TestClassifyTransportErrorPassesCancellationThrough(t *testing.T) {
	if err := ClassifyTransportError(core.ProviderGoogle, "list", context.Canceled); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if ClassifyTransportError(core.ProviderGoogle, "list", nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
	err := ClassifyTransportError(core.ProviderGoogle, "list", &url.Error{Op: "Get", URL: "https://x", Err: http.ErrHandlerTimeout})
	if !core.IsErrorCode(err, core.ErrorProviderTransient) {
		t.Fatalf("expected transient classification, got %v", err)
	}
}
