package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/goliatone/go-crm-sync/core"
)

const defaultTokenRequestTimeout = 30 * time.Second

type OAuth2Config struct {
	Provider            core.Provider
	ClientID            string
	ClientSecret        string
	Endpoint            oauth2.Endpoint
	Scopes              []string
	AuthParams          map[string]string
	TokenRequestTimeout time.Duration
	HTTPClient          *http.Client
}

// OAuth2Exchanger implements the consent URL, code exchange and refresh parts
// of core.ProviderClient on top of golang.org/x/oauth2.
type OAuth2Exchanger struct {
	cfg    OAuth2Config
	oauth2 *oauth2.Config
}

func NewOAuth2Exchanger(cfg OAuth2Config) (*OAuth2Exchanger, error) {
	if cfg.Provider == "" {
		return nil, fmt.Errorf("providers: provider is required")
	}
	cfg.ClientID = strings.TrimSpace(cfg.ClientID)
	cfg.ClientSecret = strings.TrimSpace(cfg.ClientSecret)
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("providers: client id is required for provider %q", cfg.Provider)
	}
	if strings.TrimSpace(cfg.Endpoint.AuthURL) == "" || strings.TrimSpace(cfg.Endpoint.TokenURL) == "" {
		return nil, fmt.Errorf("providers: auth and token urls are required for provider %q", cfg.Provider)
	}
	cfg.Scopes = NormalizeScopes(cfg.Scopes)
	if cfg.TokenRequestTimeout <= 0 {
		cfg.TokenRequestTimeout = defaultTokenRequestTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.TokenRequestTimeout}
	}
	return &OAuth2Exchanger{
		cfg: cfg,
		oauth2: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     cfg.Endpoint,
			Scopes:       append([]string(nil), cfg.Scopes...),
		},
	}, nil
}

func (e *OAuth2Exchanger) Provider() core.Provider {
	if e == nil {
		return ""
	}
	return e.cfg.Provider
}

// HTTPClient is the client used for token and API calls.
func (e *OAuth2Exchanger) HTTPClient() *http.Client {
	return e.cfg.HTTPClient
}

// AuthorizationURL requests offline access so the grant carries a refresh
// token.
func (e *OAuth2Exchanger) AuthorizationURL(state string, redirectURI string) string {
	opts := []oauth2.AuthCodeOption{
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("redirect_uri", strings.TrimSpace(redirectURI)),
	}
	for key, value := range e.cfg.AuthParams {
		opts = append(opts, oauth2.SetAuthURLParam(key, value))
	}
	return e.oauth2.AuthCodeURL(state, opts...)
}

func (e *OAuth2Exchanger) ExchangeCode(ctx context.Context, code string, redirectURI string) (core.TokenGrant, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return core.TokenGrant{}, fmt.Errorf("providers: authorization code is required")
	}
	token, err := e.oauth2.Exchange(e.tokenContext(ctx), code,
		oauth2.SetAuthURLParam("redirect_uri", strings.TrimSpace(redirectURI)),
	)
	if err != nil {
		return core.TokenGrant{}, ClassifyTokenError(e.cfg.Provider, "exchange authorization code", err)
	}
	return e.grantFromToken(token, e.cfg.Scopes), nil
}

func (e *OAuth2Exchanger) RefreshToken(ctx context.Context, refreshToken string) (core.TokenGrant, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return core.TokenGrant{}, fmt.Errorf("providers: refresh token is required")
	}
	source := e.oauth2.TokenSource(e.tokenContext(ctx), &oauth2.Token{
		RefreshToken: refreshToken,
		Expiry:       time.Unix(1, 0),
	})
	token, err := source.Token()
	if err != nil {
		return core.TokenGrant{}, ClassifyTokenError(e.cfg.Provider, "refresh access token", err)
	}
	grant := e.grantFromToken(token, nil)
	if grant.RefreshToken == "" {
		grant.RefreshToken = refreshToken
	}
	return grant, nil
}

func (e *OAuth2Exchanger) tokenContext(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, oauth2.HTTPClient, e.cfg.HTTPClient)
}

func (e *OAuth2Exchanger) grantFromToken(token *oauth2.Token, fallbackScopes []string) core.TokenGrant {
	grant := core.TokenGrant{
		AccessToken:  strings.TrimSpace(token.AccessToken),
		RefreshToken: strings.TrimSpace(token.RefreshToken),
	}
	if token.ExpiresIn > 0 {
		grant.ExpiresIn = token.ExpiresIn
	} else if !token.Expiry.IsZero() {
		grant.ExpiresIn = int64(time.Until(token.Expiry).Seconds())
	}
	if scope, ok := token.Extra("scope").(string); ok && strings.TrimSpace(scope) != "" {
		grant.Scopes = NormalizeScopes(strings.Fields(scope))
	} else {
		grant.Scopes = append([]string(nil), fallbackScopes...)
	}
	return grant
}

// ClassifyTokenError maps token endpoint failures onto the error taxonomy. A
// rejected grant means the user must reconnect.
func ClassifyTokenError(provider core.Provider, action string, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		message := fmt.Sprintf("%s: %s", action, describeRetrieveError(retrieveErr))
		switch {
		case retrieveErr.ErrorCode == "invalid_grant" || retrieveErr.ErrorCode == "unauthorized_client":
			return core.NewAuthenticationFailedError(message, err)
		case retrieveErr.Response != nil:
			return ClassifyHTTPStatus(provider, retrieveErr.Response.StatusCode, message, err)
		}
	}
	return core.NewProviderTransientError(provider, action+" failed", err)
}

func describeRetrieveError(err *oauth2.RetrieveError) string {
	if strings.TrimSpace(err.ErrorDescription) != "" {
		return strings.TrimSpace(err.ErrorDescription)
	}
	if strings.TrimSpace(err.ErrorCode) != "" {
		return strings.TrimSpace(err.ErrorCode)
	}
	if err.Response != nil {
		return err.Response.Status
	}
	return "token endpoint error"
}

// NormalizeScopes trims, drops blanks and dedupes while keeping order.
func NormalizeScopes(scopes []string) []string {
	if len(scopes) == 0 {
		return []string{}
	}
	seen := map[string]struct{}{}
	result := make([]string, 0, len(scopes))
	for _, scope := range scopes {
		trimmed := strings.TrimSpace(scope)
		if trimmed == "" {
			continue
		}
		if _, exists := seen[trimmed]; exists {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}
	return result
}
