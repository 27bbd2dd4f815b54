package core

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestStateCodec_RoundTrip(t *testing.T) {
	codec, err := NewStateCodec([]byte("secret"), time.Minute)
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	encoded, issued, err := codec.Encode("usr_1", ProviderGoogle)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := codec.Decode(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded != issued {
		t.Fatalf("expected decoded state %+v, got %+v", issued, decoded)
	}
	if decoded.Nonce == "" {
		t.Fatalf("expected a nonce")
	}
}

func TestStateCodec_RejectsTamperingAndForeignKeys(t *testing.T) {
	codec, _ := NewStateCodec([]byte("secret"), time.Minute)
	other, _ := NewStateCodec([]byte("other"), time.Minute)
	encoded, _, err := codec.Encode("usr_1", ProviderMicrosoft)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	body, mac, _ := strings.Cut(encoded, ".")
	tampered := body[:len(body)-2] + "xx." + mac
	if _, err := codec.Decode(tampered); !errors.Is(err, ErrStateInvalid) {
		t.Fatalf("expected tampered state to be invalid, got %v", err)
	}
	if _, err := other.Decode(encoded); !errors.Is(err, ErrStateInvalid) {
		t.Fatalf("expected foreign key to be rejected, got %v", err)
	}
	if _, err := codec.Decode("garbage"); !errors.Is(err, ErrStateInvalid) {
		t.Fatalf("expected malformed state to be invalid, got %v", err)
	}
}

func TestStateCodec_Expires(t *testing.T) {
	codec, _ := NewStateCodec([]byte("secret"), time.Minute)
	issuedAt := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	codec.now = func() time.Time { return issuedAt }
	encoded, _, err := codec.Encode("usr_1", ProviderGoogle)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	codec.now = func() time.Time { return issuedAt.Add(2 * time.Minute) }
	if _, err := codec.Decode(encoded); !errors.Is(err, ErrStateExpired) {
		t.Fatalf("expected expired state, got %v", err)
	}
}

func TestNewStateCodec_DefaultTTL(t *testing.T) {
	codec, err := NewStateCodec(nil, 0)
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	if codec.TTL() != 15*time.Minute {
		t.Fatalf("expected default ttl, got %s", codec.TTL())
	}
}
