package core

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

type BeginAuthorizationRequest struct {
	UserID      string
	Provider    Provider
	RedirectURI string
}

type BeginAuthorizationResponse struct {
	URL       string
	State     string
	ExpiresAt time.Time
}

type CompleteAuthorizationRequest struct {
	Code        string
	State       string
	RedirectURI string
}

func (s *Service) BeginAuthorization(ctx context.Context, req BeginAuthorizationRequest) (resp BeginAuthorizationResponse, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"user_id": req.UserID, "provider": string(req.Provider)}
	defer func() {
		s.observeOperation(ctx, startedAt, "begin_authorization", err, fields)
	}()

	if err = requireUser(req.UserID); err != nil {
		return BeginAuthorizationResponse{}, err
	}
	client, err := s.resolveClient(req.Provider)
	if err != nil {
		return BeginAuthorizationResponse{}, err
	}
	state, payload, err := s.stateCodec.Encode(req.UserID, client.Provider())
	if err != nil {
		err = s.mapError(err)
		return BeginAuthorizationResponse{}, err
	}
	redirectURI := s.redirectURI(req.RedirectURI)
	return BeginAuthorizationResponse{
		URL:       client.AuthorizationURL(state, redirectURI),
		State:     state,
		ExpiresAt: time.Unix(payload.IssuedAt, 0).UTC().Add(s.stateCodec.TTL()),
	}, nil
}

func (s *Service) CompleteAuthorization(ctx context.Context, req CompleteAuthorizationRequest) (conn Connection, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{}
	defer func() {
		if conn.ID != "" {
			fields["connection_id"] = conn.ID
		}
		s.observeOperation(ctx, startedAt, "complete_authorization", err, fields)
	}()

	if strings.TrimSpace(req.Code) == "" {
		return Connection{}, NewAuthenticationFailedError("authorization code is required", nil)
	}
	state, err := s.stateCodec.Decode(req.State)
	if err != nil {
		err = NewAuthenticationFailedError("oauth state rejected", err)
		return Connection{}, err
	}
	fields["user_id"] = state.UserID
	fields["provider"] = string(state.Provider)

	client, err := s.resolveClient(state.Provider)
	if err != nil {
		return Connection{}, err
	}
	grant, err := client.ExchangeCode(ctx, strings.TrimSpace(req.Code), s.redirectURI(req.RedirectURI))
	if err != nil {
		err = NewAuthenticationFailedError("authorization code exchange failed", err)
		return Connection{}, err
	}
	if strings.TrimSpace(grant.AccessToken) == "" {
		err = NewAuthenticationFailedError("provider returned no access token", nil)
		return Connection{}, err
	}

	now := s.clock()
	existing, err := s.connections.Get(ctx, state.UserID, state.Provider)
	switch {
	case err == nil:
		conn = existing
	case isNotFound(err):
		conn = Connection{
			ID:        uuid.NewString(),
			UserID:    state.UserID,
			Provider:  state.Provider,
			Status:    ConnectionStatusActive,
			Settings:  DefaultSettings(),
			CreatedAt: now,
		}
	default:
		err = s.mapError(err)
		return Connection{}, err
	}
	conn.Authorize(grant, now)

	conn, err = s.connections.Upsert(ctx, conn)
	if err != nil {
		err = s.mapError(err)
		return Connection{}, err
	}
	return conn, nil
}

func (s *Service) Disconnect(ctx context.Context, userID string, provider Provider) (conn Connection, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"user_id": userID, "provider": string(provider)}
	defer func() {
		s.observeOperation(ctx, startedAt, "disconnect", err, fields)
	}()

	if err = requireUser(userID); err != nil {
		return Connection{}, err
	}
	conn, err = s.loadConnection(ctx, userID, provider)
	if err != nil {
		err = s.mapError(err)
		return Connection{}, err
	}
	fields["connection_id"] = conn.ID
	if err = conn.Revoke(s.clock()); err != nil {
		err = s.mapError(err)
		return Connection{}, err
	}
	conn, err = s.connections.Update(ctx, conn)
	if err != nil {
		err = s.mapError(err)
		return Connection{}, err
	}
	return conn, nil
}

func (s *Service) UpdateSettings(ctx context.Context, userID string, provider Provider, patch SettingsPatch) (conn Connection, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"user_id": userID, "provider": string(provider)}
	defer func() {
		s.observeOperation(ctx, startedAt, "update_settings", err, fields)
	}()

	if err = requireUser(userID); err != nil {
		return Connection{}, err
	}
	if err = patch.Validate(); err != nil {
		err = s.mapError(err)
		return Connection{}, err
	}
	conn, err = s.loadConnection(ctx, userID, provider)
	if err != nil {
		err = s.mapError(err)
		return Connection{}, err
	}
	conn.Settings = conn.Settings.Merge(patch)
	conn.UpdatedAt = s.clock()
	conn, err = s.connections.Update(ctx, conn)
	if err != nil {
		err = s.mapError(err)
		return Connection{}, err
	}
	return conn, nil
}

func (s *Service) GetConnection(ctx context.Context, userID string, provider Provider) (Connection, error) {
	if err := requireUser(userID); err != nil {
		return Connection{}, err
	}
	conn, err := s.loadConnection(ctx, userID, provider)
	if err != nil {
		return Connection{}, s.mapError(err)
	}
	return conn, nil
}

func (s *Service) ListConnections(ctx context.Context, userID string) ([]Connection, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	conns, err := s.connections.ListByUser(ctx, userID)
	if err != nil {
		return nil, s.mapError(err)
	}
	return conns, nil
}

func (s *Service) redirectURI(override string) string {
	if trimmed := strings.TrimSpace(override); trimmed != "" {
		return trimmed
	}
	return strings.TrimSpace(s.config.OAuth.RedirectURL)
}

// requireActive loads the connection and enforces the ACTIVE gate.
func (s *Service) requireActive(ctx context.Context, userID string, provider Provider) (Connection, error) {
	conn, err := s.loadConnection(ctx, userID, provider)
	if err != nil {
		return Connection{}, err
	}
	if !conn.IsActive() {
		return Connection{}, NewIntegrationNotActiveError(conn)
	}
	return conn, nil
}
