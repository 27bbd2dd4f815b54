package security

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// KeyRotationWindow bounds when a retired key may still open tokens.
type KeyRotationWindow struct {
	NotBefore time.Time
	NotAfter  time.Time
}

func (w KeyRotationWindow) Allows(at time.Time) bool {
	ts := at.UTC()
	if !w.NotBefore.IsZero() && ts.Before(w.NotBefore.UTC()) {
		return false
	}
	if !w.NotAfter.IsZero() && ts.After(w.NotAfter.UTC()) {
		return false
	}
	return true
}

type retiredKey struct {
	provider *AppKeySecretProvider
	window   KeyRotationWindow
}

// KeyRing seals with the current key and opens tokens sealed by any retired
// key whose rotation window is still open. Tokens are re-sealed under the
// current key the next time the connection is written.
type KeyRing struct {
	current *AppKeySecretProvider
	retired map[string]retiredKey
	now     func() time.Time
}

func NewKeyRing(current *AppKeySecretProvider) (*KeyRing, error) {
	if current == nil {
		return nil, fmt.Errorf("security: current key is required")
	}
	return &KeyRing{
		current: current,
		retired: map[string]retiredKey{},
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

func (r *KeyRing) Retire(provider *AppKeySecretProvider, window KeyRotationWindow) error {
	if provider == nil {
		return fmt.Errorf("security: retired key is required")
	}
	keyID, version := provider.Metadata()
	currentID, currentVersion := r.current.Metadata()
	if keyID == currentID && version == currentVersion {
		return fmt.Errorf("security: cannot retire the current key %s:%d", keyID, version)
	}
	r.retired[ringKey(keyID, version)] = retiredKey{provider: provider, window: window}
	return nil
}

func (r *KeyRing) WithClock(now func() time.Time) *KeyRing {
	if now != nil {
		r.now = now
	}
	return r
}

func (r *KeyRing) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	return r.current.Encrypt(ctx, plaintext)
}

func (r *KeyRing) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	meta, err := ParseEnvelopeMetadata(ciphertext)
	if err != nil {
		return nil, err
	}
	currentID, currentVersion := r.current.Metadata()
	if meta.KeyID == currentID && meta.Version == currentVersion {
		return r.current.Decrypt(ctx, ciphertext)
	}
	retired, ok := r.retired[ringKey(meta.KeyID, meta.Version)]
	if !ok {
		return nil, fmt.Errorf("security: unknown key %s:%d", meta.KeyID, meta.Version)
	}
	if !retired.window.Allows(r.now()) {
		return nil, fmt.Errorf("security: key %s:%d is outside its rotation window", meta.KeyID, meta.Version)
	}
	return retired.provider.Decrypt(ctx, ciphertext)
}

func ringKey(keyID string, version int) string {
	return fmt.Sprintf("%s:%d", strings.TrimSpace(keyID), version)
}

var _ SecretProvider = (*KeyRing)(nil)
