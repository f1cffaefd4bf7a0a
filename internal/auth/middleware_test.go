package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequireAuth(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		email, ok := GetUserEmailFromContext(r.Context())
		if !ok {
			t.Error("Expected user email in context")
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(email))
	})

	authHandler := RequireAuth(handler)

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"valid Bearer token", "Bearer valid_token_12345", http.StatusOK},
		{"lowercase scheme", "bearer valid_token_12345", http.StatusOK},
		{"no Authorization header", "", http.StatusUnauthorized},
		{"invalid format", "InvalidFormat", http.StatusUnauthorized},
		{"wrong auth scheme", "Basic abcd_abcd_abcd", http.StatusUnauthorized},
		{"empty token", "Bearer ", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			rr := httptest.NewRecorder()
			authHandler.ServeHTTP(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
		})
	}
}

func TestRequireAuthTestMode(t *testing.T) {
	t.Setenv("OUTREACH_TEST_MODE", "true")

	var got string
	handler := RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = GetUserEmailFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer email:alice@example.com")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "alice@example.com", got)
}

func TestBearerToken(t *testing.T) {
	token, err := BearerToken("Bearer   abc  ")
	require.NoError(t, err)
	assert.Equal(t, "abc", token)

	_, err = BearerToken("Bearer")
	assert.ErrorIs(t, err, ErrMissingToken)

	_, err = BearerToken("Token abc")
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestGetUserEmailFromContext(t *testing.T) {
	email, ok := GetUserEmailFromContext(WithUserEmail(context.Background(), "bob@example.com"))
	assert.True(t, ok)
	assert.Equal(t, "bob@example.com", email)

	email, ok = GetUserEmailFromContext(context.Background())
	assert.False(t, ok)
	assert.Empty(t, email)
}

func TestValidateToken(t *testing.T) {
	t.Run("maps tokens to the default user", func(t *testing.T) {
		email, err := ValidateToken("any_token")
		require.NoError(t, err)
		assert.Equal(t, DefaultUserEmail, email)
	})

	t.Run("rejects empty tokens", func(t *testing.T) {
		_, err := ValidateToken("  ")
		assert.ErrorIs(t, err, ErrEmptyToken)

		_, err = ValidateToken("email:")
		assert.ErrorIs(t, err, ErrEmptyToken)
	})

	t.Run("email prefix is ignored outside test mode", func(t *testing.T) {
		t.Setenv("OUTREACH_TEST_MODE", "false")
		email, err := ValidateToken("email:alice@example.com")
		require.NoError(t, err)
		assert.Equal(t, DefaultUserEmail, email)
	})
}
