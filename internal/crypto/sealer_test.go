package crypto

import (
	"bytes"
	"encoding/base64"
	"errors"
	"testing"
)

func testKey(seed byte) string {
	key := make([]byte, 32)
	for i := range key {
		key[i] = seed + byte(i)
	}
	return base64.StdEncoding.EncodeToString(key)
}

func TestNewTokenSealer(t *testing.T) {
	t.Run("valid 32-byte key", func(t *testing.T) {
		sealer, err := NewTokenSealer(testKey(0))
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if sealer == nil {
			t.Fatal("Expected sealer, got nil")
		}
	})

	t.Run("invalid base64", func(t *testing.T) {
		if _, err := NewTokenSealer("not-valid-base64!!!"); err == nil {
			t.Fatal("Expected error for invalid base64, got nil")
		}
	})

	t.Run("wrong key length", func(t *testing.T) {
		short := base64.StdEncoding.EncodeToString(make([]byte, 16))
		if _, err := NewTokenSealer(short); err == nil {
			t.Fatal("Expected error for wrong key length, got nil")
		}
	})
}

func TestSealOpen(t *testing.T) {
	sealer, err := NewTokenSealer(testKey(0))
	if err != nil {
		t.Fatalf("Failed to create sealer: %v", err)
	}

	tokens := []struct {
		name  string
		token string
	}{
		{"bearer token", "eyJhbGciOiJIUzI1NiJ9.payload.signature"},
		{"empty string", ""},
		{"unicode", "токен令牌🔐"},
	}

	for _, tc := range tokens {
		t.Run(tc.name, func(t *testing.T) {
			sealed, err := sealer.Seal(tc.token)
			if err != nil {
				t.Fatalf("Seal failed: %v", err)
			}
			if tc.token != "" && bytes.Contains(sealed, []byte(tc.token)) {
				t.Error("Sealed output contains the plaintext token")
			}

			opened, err := sealer.Open(sealed)
			if err != nil {
				t.Fatalf("Open failed: %v", err)
			}
			if opened != tc.token {
				t.Errorf("Expected %q, got %q", tc.token, opened)
			}
		})
	}
}

func TestSealUsesFreshNonce(t *testing.T) {
	sealer, err := NewTokenSealer(testKey(0))
	if err != nil {
		t.Fatalf("Failed to create sealer: %v", err)
	}

	first, _ := sealer.Seal("same-token")
	second, _ := sealer.Seal("same-token")
	if bytes.Equal(first, second) {
		t.Error("Expected sealing the same token twice to produce different output")
	}
}

func TestOpenFailures(t *testing.T) {
	sealer, _ := NewTokenSealer(testKey(0))
	other, _ := NewTokenSealer(testKey(100))

	sealed, err := sealer.Seal("secret")
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}

	t.Run("wrong key", func(t *testing.T) {
		if _, err := other.Open(sealed); err == nil {
			t.Error("Expected error opening with a different key")
		}
	})

	t.Run("tampered", func(t *testing.T) {
		tampered := append([]byte(nil), sealed...)
		tampered[len(tampered)-1] ^= 0xFF
		if _, err := sealer.Open(tampered); err == nil {
			t.Error("Expected error opening tampered data")
		}
	})

	t.Run("too short", func(t *testing.T) {
		_, err := sealer.Open([]byte{1, 2, 3})
		if !errors.Is(err, ErrSealedTooShort) {
			t.Errorf("Expected ErrSealedTooShort, got %v", err)
		}
	})
}
