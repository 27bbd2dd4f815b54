package core

import (
	"context"
	"strings"
	"time"
)

const defaultRefreshLeadWindow = 5 * time.Minute

// TokenNeedsRefresh reports whether the access token expires within the lead
// window. Connections without a known expiry are treated as fresh.
func TokenNeedsRefresh(conn Connection, now time.Time, leadWindow time.Duration) bool {
	if conn.TokenExpiresAt == nil {
		return false
	}
	if leadWindow <= 0 {
		leadWindow = defaultRefreshLeadWindow
	}
	return !now.Add(leadWindow).Before(conn.TokenExpiresAt.UTC())
}

// ensureFreshToken returns a connection whose access token is usable,
// refreshing it when it is about to expire. Concurrent callers for the same
// connection share one provider refresh.
func (s *Service) ensureFreshToken(ctx context.Context, conn Connection, client ProviderClient) (Connection, error) {
	now := s.clock()
	if !TokenNeedsRefresh(conn, now, s.config.Refresh.LeadWindow) {
		return conn, nil
	}
	if strings.TrimSpace(conn.RefreshToken) == "" {
		if now.Before(conn.TokenExpiresAt.UTC()) {
			return conn, nil
		}
		if err := conn.TransitionTo(ConnectionStatusExpired, "access token expired", now); err == nil {
			if updated, updateErr := s.connections.Update(ctx, conn); updateErr == nil {
				conn = updated
			}
		}
		return conn, NewIntegrationNotActiveError(conn)
	}

	result, err, shared := s.refreshGroup.Do(conn.ID, func() (any, error) {
		return s.refreshConnection(ctx, conn, client)
	})
	if shared {
		s.recordCounter(ctx, "crm_sync.refresh.shared", 1, map[string]string{"provider": string(conn.Provider)})
	}
	if err != nil {
		return conn, err
	}
	return result.(Connection), nil
}

func (s *Service) refreshConnection(ctx context.Context, conn Connection, client ProviderClient) (refreshed Connection, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"user_id":       conn.UserID,
		"provider":      string(conn.Provider),
		"connection_id": conn.ID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "refresh_token", err, fields)
	}()

	// Another caller may have refreshed between our read and the flight.
	if current, getErr := s.connections.GetByID(ctx, conn.ID); getErr == nil {
		conn = current
		if !TokenNeedsRefresh(conn, s.clock(), s.config.Refresh.LeadWindow) && conn.IsActive() {
			return conn, nil
		}
	}

	grant, refreshErr := client.RefreshToken(ctx, conn.RefreshToken)
	now := s.clock()
	if refreshErr != nil || strings.TrimSpace(grant.AccessToken) == "" {
		reason := "token refresh failed"
		if refreshErr != nil {
			reason = refreshErr.Error()
		}
		if transitionErr := conn.TransitionTo(ConnectionStatusError, reason, now); transitionErr == nil {
			if _, updateErr := s.connections.Update(ctx, conn); updateErr != nil {
				s.logError(ctx, "persist refresh failure", map[string]any{"connection_id": conn.ID, "error": updateErr.Error()})
			}
		}
		return conn, NewAuthenticationFailedError("token refresh failed", refreshErr)
	}

	conn.Authorize(grant, now)
	return s.connections.Update(ctx, conn)
}

func sessionFor(conn Connection) ProviderSession {
	return ProviderSession{
		ConnectionID: conn.ID,
		UserID:       conn.UserID,
		Provider:     conn.Provider,
		AccessToken:  conn.AccessToken,
		Settings:     conn.Settings,
	}
}
