package core

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const defaultOAuthStateTTL = 15 * time.Minute

var (
	ErrStateInvalid = errors.New("core: oauth state is invalid")
	ErrStateExpired = errors.New("core: oauth state expired")
)

// OAuthState is the payload carried through the provider redirect.
type OAuthState struct {
	UserID   string   `json:"u"`
	Provider Provider `json:"p"`
	Nonce    string   `json:"n"`
	IssuedAt int64    `json:"iat"`
}

// StateCodec signs and verifies OAuth state blobs with HMAC-SHA256. The
// encoded form is base64url(payload) "." base64url(mac).
type StateCodec struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewStateCodec builds a codec. An empty key yields a random per-process key,
// which invalidates in-flight states on restart.
func NewStateCodec(key []byte, ttl time.Duration) (*StateCodec, error) {
	if len(key) == 0 {
		generated := make([]byte, 32)
		if _, err := rand.Read(generated); err != nil {
			return nil, fmt.Errorf("core: generate oauth state key: %w", err)
		}
		key = generated
	}
	if ttl <= 0 {
		ttl = defaultOAuthStateTTL
	}
	return &StateCodec{
		key: append([]byte(nil), key...),
		ttl: ttl,
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

func (c *StateCodec) TTL() time.Duration {
	return c.ttl
}

func (c *StateCodec) Encode(userID string, provider Provider) (string, OAuthState, error) {
	state := OAuthState{
		UserID:   strings.TrimSpace(userID),
		Provider: provider,
		Nonce:    uuid.NewString(),
		IssuedAt: c.now().Unix(),
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return "", OAuthState{}, fmt.Errorf("core: encode oauth state: %w", err)
	}
	body := base64.RawURLEncoding.EncodeToString(payload)
	return body + "." + base64.RawURLEncoding.EncodeToString(c.sign(body)), state, nil
}

func (c *StateCodec) Decode(encoded string) (OAuthState, error) {
	body, mac, ok := strings.Cut(strings.TrimSpace(encoded), ".")
	if !ok || body == "" || mac == "" {
		return OAuthState{}, fmt.Errorf("%w: malformed", ErrStateInvalid)
	}
	signature, err := base64.RawURLEncoding.DecodeString(mac)
	if err != nil {
		return OAuthState{}, fmt.Errorf("%w: signature encoding", ErrStateInvalid)
	}
	if !hmac.Equal(signature, c.sign(body)) {
		return OAuthState{}, fmt.Errorf("%w: signature mismatch", ErrStateInvalid)
	}
	payload, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return OAuthState{}, fmt.Errorf("%w: payload encoding", ErrStateInvalid)
	}
	var state OAuthState
	if err := json.Unmarshal(payload, &state); err != nil {
		return OAuthState{}, fmt.Errorf("%w: payload", ErrStateInvalid)
	}
	if state.UserID == "" || state.Provider == "" {
		return OAuthState{}, fmt.Errorf("%w: missing user or provider", ErrStateInvalid)
	}
	issuedAt := time.Unix(state.IssuedAt, 0).UTC()
	if c.now().Sub(issuedAt) > c.ttl {
		return OAuthState{}, ErrStateExpired
	}
	return state, nil
}

func (c *StateCodec) sign(body string) []byte {
	mac := hmac.New(sha256.New, c.key)
	mac.Write([]byte(body))
	return mac.Sum(nil)
}
