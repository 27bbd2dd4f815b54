package core

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

var (
	ErrInvalidConnectionStatusTransition = errors.New("core: invalid connection status transition")
	ErrInvalidSyncScope                  = errors.New("core: invalid sync scope")
	ErrInvalidSyncDirection              = errors.New("core: invalid sync direction")
	ErrSyncLogClosed                     = errors.New("core: sync log is closed")
)

type Provider string

const (
	ProviderMicrosoft Provider = "MICROSOFT"
	ProviderGoogle    Provider = "GOOGLE"
)

// ParseProvider normalizes a provider name. It does not check the registry.
func ParseProvider(value string) Provider {
	return Provider(strings.ToUpper(strings.TrimSpace(value)))
}

func (p Provider) String() string {
	return string(p)
}

type ConnectionStatus string

const (
	ConnectionStatusActive  ConnectionStatus = "ACTIVE"
	ConnectionStatusExpired ConnectionStatus = "EXPIRED"
	ConnectionStatusRevoked ConnectionStatus = "REVOKED"
	ConnectionStatusError   ConnectionStatus = "ERROR"
)

type SyncDirection string

const (
	SyncDirectionInbound       SyncDirection = "INBOUND"
	SyncDirectionOutbound      SyncDirection = "OUTBOUND"
	SyncDirectionBidirectional SyncDirection = "BIDIRECTIONAL"
)

func (d SyncDirection) Validate() error {
	switch d {
	case SyncDirectionInbound, SyncDirectionOutbound, SyncDirectionBidirectional:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidSyncDirection, d)
	}
}

func (d SyncDirection) AllowsInbound() bool {
	return d == SyncDirectionInbound || d == SyncDirectionBidirectional
}

func (d SyncDirection) AllowsOutbound() bool {
	return d == SyncDirectionOutbound || d == SyncDirectionBidirectional
}

type SyncScope string

const (
	SyncScopeCalendar SyncScope = "calendar"
	SyncScopeEmail    SyncScope = "email"
	SyncScopeContacts SyncScope = "contacts"
	SyncScopeFull     SyncScope = "full"
)

func (s SyncScope) Validate() error {
	switch s {
	case SyncScopeCalendar, SyncScopeEmail, SyncScopeContacts, SyncScopeFull:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidSyncScope, s)
	}
}

// Expand resolves the sub-scopes a run covers. Full honours the connection
// toggles; an explicit scope runs regardless of them.
func (s SyncScope) Expand(settings Settings) []SyncScope {
	if s != SyncScopeFull {
		return []SyncScope{s}
	}
	out := make([]SyncScope, 0, 3)
	if settings.SyncCalendar {
		out = append(out, SyncScopeCalendar)
	}
	if settings.SyncEmail {
		out = append(out, SyncScopeEmail)
	}
	if settings.SyncContacts {
		out = append(out, SyncScopeContacts)
	}
	return out
}

type Settings struct {
	SyncCalendar      bool          `json:"sync_calendar"`
	SyncEmail         bool          `json:"sync_email"`
	SyncContacts      bool          `json:"sync_contacts"`
	SyncDirection     SyncDirection `json:"sync_direction"`
	DefaultCalendarID string        `json:"default_calendar_id,omitempty"`
	DefaultFolderID   string        `json:"default_folder_id,omitempty"`
	AutoArchive       bool          `json:"auto_archive"`
	ClientOnlyArchive bool          `json:"client_only_archive"`
}

func DefaultSettings() Settings {
	return Settings{
		SyncCalendar:  true,
		SyncEmail:     true,
		SyncContacts:  false,
		SyncDirection: SyncDirectionBidirectional,
	}
}

// SettingsPatch carries only the keys a caller wants to change.
type SettingsPatch struct {
	SyncCalendar      *bool          `json:"sync_calendar,omitempty"`
	SyncEmail         *bool          `json:"sync_email,omitempty"`
	SyncContacts      *bool          `json:"sync_contacts,omitempty"`
	SyncDirection     *SyncDirection `json:"sync_direction,omitempty"`
	DefaultCalendarID *string        `json:"default_calendar_id,omitempty"`
	DefaultFolderID   *string        `json:"default_folder_id,omitempty"`
	AutoArchive       *bool          `json:"auto_archive,omitempty"`
	ClientOnlyArchive *bool          `json:"client_only_archive,omitempty"`
}

func (p SettingsPatch) Validate() error {
	if p.SyncDirection != nil {
		return p.SyncDirection.Validate()
	}
	return nil
}

func (s Settings) Merge(patch SettingsPatch) Settings {
	merged := s
	if patch.SyncCalendar != nil {
		merged.SyncCalendar = *patch.SyncCalendar
	}
	if patch.SyncEmail != nil {
		merged.SyncEmail = *patch.SyncEmail
	}
	if patch.SyncContacts != nil {
		merged.SyncContacts = *patch.SyncContacts
	}
	if patch.SyncDirection != nil {
		merged.SyncDirection = *patch.SyncDirection
	}
	if patch.DefaultCalendarID != nil {
		merged.DefaultCalendarID = strings.TrimSpace(*patch.DefaultCalendarID)
	}
	if patch.DefaultFolderID != nil {
		merged.DefaultFolderID = strings.TrimSpace(*patch.DefaultFolderID)
	}
	if patch.AutoArchive != nil {
		merged.AutoArchive = *patch.AutoArchive
	}
	if patch.ClientOnlyArchive != nil {
		merged.ClientOnlyArchive = *patch.ClientOnlyArchive
	}
	return merged
}

type Connection struct {
	ID             string
	UserID         string
	Provider       Provider
	Status         ConnectionStatus
	StatusReason   string
	AccessToken    string
	RefreshToken   string
	TokenExpiresAt *time.Time
	Scopes         []string
	Settings       Settings
	LastSyncAt     *time.Time
	LastSyncError  string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (c *Connection) TransitionTo(status ConnectionStatus, reason string, now time.Time) error {
	if c == nil {
		return nil
	}
	if c.Status == status {
		c.UpdatedAt = now
		if strings.TrimSpace(reason) != "" {
			c.StatusReason = strings.TrimSpace(reason)
		}
		return nil
	}
	if !connectionTransitionAllowed(c.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidConnectionStatusTransition, c.Status, status)
	}
	c.Status = status
	c.UpdatedAt = now
	c.StatusReason = strings.TrimSpace(reason)
	return nil
}

func connectionTransitionAllowed(current, next ConnectionStatus) bool {
	if next == ConnectionStatusActive {
		return true
	}
	allowed := map[ConnectionStatus]map[ConnectionStatus]struct{}{
		ConnectionStatusActive: {
			ConnectionStatusExpired: {},
			ConnectionStatusError:   {},
			ConnectionStatusRevoked: {},
		},
		ConnectionStatusExpired: {
			ConnectionStatusError:   {},
			ConnectionStatusRevoked: {},
		},
		ConnectionStatusError: {
			ConnectionStatusRevoked: {},
		},
		ConnectionStatusRevoked: {},
	}
	nextSet, ok := allowed[current]
	if !ok {
		return false
	}
	_, ok = nextSet[next]
	return ok
}

// Revoke moves the connection to REVOKED and drops its secrets.
func (c *Connection) Revoke(now time.Time) error {
	if err := c.TransitionTo(ConnectionStatusRevoked, "disconnected", now); err != nil {
		return err
	}
	c.AccessToken = ""
	c.RefreshToken = ""
	c.TokenExpiresAt = nil
	return nil
}

// Authorize installs a fresh grant and forces the connection ACTIVE.
func (c *Connection) Authorize(grant TokenGrant, now time.Time) {
	c.AccessToken = grant.AccessToken
	if grant.RefreshToken != "" {
		c.RefreshToken = grant.RefreshToken
	}
	c.TokenExpiresAt = grant.ExpiresAt(now)
	if len(grant.Scopes) > 0 {
		c.Scopes = normalizeScopes(grant.Scopes)
	}
	_ = c.TransitionTo(ConnectionStatusActive, "", now)
}

func (c Connection) IsActive() bool {
	return c.Status == ConnectionStatusActive && c.AccessToken != ""
}

func (c Connection) Clone() Connection {
	cloned := c
	cloned.Scopes = append([]string(nil), c.Scopes...)
	cloned.TokenExpiresAt = cloneTime(c.TokenExpiresAt)
	cloned.LastSyncAt = cloneTime(c.LastSyncAt)
	return cloned
}

type TokenGrant struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
	Scopes       []string
}

func (g TokenGrant) ExpiresAt(now time.Time) *time.Time {
	if g.ExpiresIn <= 0 {
		return nil
	}
	at := now.Add(time.Duration(g.ExpiresIn) * time.Second).UTC()
	return &at
}

func normalizeScopes(scopes []string) []string {
	out := make([]string, 0, len(scopes))
	for _, scope := range scopes {
		scope = strings.TrimSpace(scope)
		if scope == "" || slices.Contains(out, scope) {
			continue
		}
		out = append(out, scope)
	}
	slices.Sort(out)
	return out
}

func cloneTime(in *time.Time) *time.Time {
	if in == nil {
		return nil
	}
	value := in.UTC()
	return &value
}

func cloneString(in *string) *string {
	if in == nil {
		return nil
	}
	value := *in
	return &value
}
