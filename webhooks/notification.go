package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/goliatone/go-crm-sync/core"
)

// Notification is one provider change notification, normalized.
type Notification struct {
	Provider core.Provider
	// DeliveryID is unique per provider delivery and drives dedupe.
	DeliveryID string
	// Token is the channel token set when the subscription was created.
	Token string
	Scope core.SyncScope
	// Handshake notifications confirm a subscription and carry no change.
	Handshake bool
}

// ChannelTokens signs and verifies the per-connection channel token.
type ChannelTokens struct {
	Secret string
}

// Sign returns "<connection id>.<mac>" with the mac base64url encoded.
func (t ChannelTokens) Sign(connectionID string) (string, error) {
	connectionID = strings.TrimSpace(connectionID)
	if connectionID == "" {
		return "", fmt.Errorf("webhooks: connection id is required")
	}
	if strings.Contains(connectionID, ".") {
		return "", fmt.Errorf("webhooks: connection id must not contain '.'")
	}
	mac, err := t.mac(connectionID)
	if err != nil {
		return "", err
	}
	return connectionID + "." + base64.RawURLEncoding.EncodeToString(mac), nil
}

// Verify returns the connection id a valid token names.
func (t ChannelTokens) Verify(token string) (string, error) {
	connectionID, signature, ok := strings.Cut(strings.TrimSpace(token), ".")
	if !ok || connectionID == "" || signature == "" {
		return "", fmt.Errorf("webhooks: malformed channel token")
	}
	decoded, err := base64.RawURLEncoding.DecodeString(signature)
	if err != nil {
		return "", fmt.Errorf("webhooks: decode channel token: %w", err)
	}
	expected, err := t.mac(connectionID)
	if err != nil {
		return "", err
	}
	if subtle.ConstantTimeCompare(decoded, expected) != 1 {
		return "", fmt.Errorf("webhooks: channel token verification failed")
	}
	return connectionID, nil
}

func (t ChannelTokens) mac(connectionID string) ([]byte, error) {
	secret := strings.TrimSpace(t.Secret)
	if secret == "" {
		return nil, fmt.Errorf("webhooks: channel token secret is required")
	}
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte("crm-sync:channel:" + connectionID))
	return mac.Sum(nil), nil
}

type graphEnvelope struct {
	Value []graphChange `json:"value"`
}

type graphChange struct {
	SubscriptionID string `json:"subscriptionId"`
	ClientState    string `json:"clientState"`
	ChangeType     string `json:"changeType"`
	Resource       string `json:"resource"`
	ResourceData   struct {
		ODataType string `json:"@odata.type"`
		ID        string `json:"id"`
	} `json:"resourceData"`
}

// ParseGraphNotifications decodes a Microsoft Graph change notification
// batch. The clientState carries the channel token.
func ParseGraphNotifications(body []byte) ([]Notification, error) {
	var envelope graphEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("webhooks: decode graph notification: %w", err)
	}
	if len(envelope.Value) == 0 {
		return nil, fmt.Errorf("webhooks: graph notification has no changes")
	}
	out := make([]Notification, 0, len(envelope.Value))
	for _, change := range envelope.Value {
		resourceID := firstNonEmpty(change.ResourceData.ID, change.Resource)
		out = append(out, Notification{
			Provider:   core.ProviderMicrosoft,
			DeliveryID: strings.Join([]string{change.SubscriptionID, change.ChangeType, resourceID}, ":"),
			Token:      change.ClientState,
			Scope:      graphScope(change),
		})
	}
	return out, nil
}

func graphScope(change graphChange) core.SyncScope {
	kind := strings.ToLower(change.ResourceData.ODataType + " " + change.Resource)
	switch {
	case strings.Contains(kind, "event"):
		return core.SyncScopeCalendar
	case strings.Contains(kind, "message"):
		return core.SyncScopeEmail
	default:
		return core.SyncScopeFull
	}
}

// ParseGoogleChannelNotification reads a Google Calendar watch channel push.
// Google sends a "sync" state once when the channel opens.
func ParseGoogleChannelNotification(headers http.Header) (Notification, error) {
	channelID := strings.TrimSpace(headers.Get("X-Goog-Channel-Id"))
	number := strings.TrimSpace(headers.Get("X-Goog-Message-Number"))
	if channelID == "" || number == "" {
		return Notification{}, fmt.Errorf("webhooks: google channel id and message number are required")
	}
	state := strings.ToLower(strings.TrimSpace(headers.Get("X-Goog-Resource-State")))
	return Notification{
		Provider:   core.ProviderGoogle,
		DeliveryID: channelID + ":" + number,
		Token:      headers.Get("X-Goog-Channel-Token"),
		Scope:      core.SyncScopeCalendar,
		Handshake:  state == "sync",
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
