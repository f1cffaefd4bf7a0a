package testutil

import (
	"encoding/base64"
	"testing"

	"github.com/vdavid/outreach/backend/internal/crypto"
)

// TestEncryptionKey is a deterministic base64 key shared by test packages.
var TestEncryptionKey = func() string {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	return base64.StdEncoding.EncodeToString(key)
}()

// GetTestSealer returns a token sealer keyed with TestEncryptionKey.
func GetTestSealer(t *testing.T) *crypto.TokenSealer {
	t.Helper()

	sealer, err := crypto.NewTokenSealer(TestEncryptionKey)
	if err != nil {
		t.Fatalf("Failed to create sealer: %v", err)
	}
	return sealer
}
