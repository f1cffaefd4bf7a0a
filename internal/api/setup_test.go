package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vdavid/outreach/backend/internal/auth"
	"github.com/vdavid/outreach/backend/internal/crypto"
	"github.com/vdavid/outreach/backend/internal/db"
	"github.com/vdavid/outreach/backend/internal/ingest"
	"github.com/vdavid/outreach/backend/internal/models"
	"github.com/vdavid/outreach/backend/internal/provider"
)

// setupTestAccount creates a user and links one account with a sealed token.
// Returns the userID for use in tests.
func setupTestAccount(t *testing.T, pool *pgxpool.Pool, sealer *crypto.TokenSealer, email, accountID, accessToken string) string {
	t.Helper()
	ctx := context.Background()

	userID, err := db.GetOrCreateUser(ctx, pool, email)
	require.NoError(t, err)

	sealed, err := sealer.Seal(accessToken)
	require.NoError(t, err)

	require.NoError(t, db.SaveAccount(ctx, pool, &models.Account{
		ID:                accountID,
		UserID:            userID,
		EmailAddress:      email,
		Name:              "Owner",
		SealedAccessToken: sealed,
	}))
	return userID
}

// ingestTestMessage writes a message through the real upserter.
func ingestTestMessage(t *testing.T, pool *pgxpool.Pool, accountID, id, threadID string, sentAt time.Time, labels ...string) {
	t.Helper()
	body := "<p>" + id + "</p>"
	msg := provider.Message{
		ID:          id,
		ThreadID:    threadID,
		Subject:     "Subject " + threadID,
		SentAt:      sentAt,
		ReceivedAt:  sentAt,
		CreatedTime: sentAt,
		SysLabels:   labels,
		From:        provider.Address{Address: "lead@example.com", Name: "Lead"},
		To:          []provider.Address{{Address: "owner@example.com", Name: "Owner"}},
		Body:        &body,
		Attachments: []provider.Attachment{{ID: "att-" + id, Name: "deck.pdf", MimeType: "application/pdf", Size: 42}},
	}
	require.NoError(t, ingest.NewUpserter(db.NewStore(pool)).UpsertMessage(context.Background(), accountID, msg))
}

// createRequestWithUser creates an HTTP request with user email in context.
func createRequestWithUser(method, url, email string) *http.Request {
	return createRequestWithBody(method, url, email, nil)
}

func createRequestWithBody(method, url, email string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, url, body)
	return req.WithContext(auth.WithUserEmail(req.Context(), email))
}

// VerifyAuthCheck verifies that the handler returns 401 Unauthorized when no user is in context.
func VerifyAuthCheck(t *testing.T, handlerFunc http.HandlerFunc, method, url string) {
	t.Helper()
	req := httptest.NewRequest(method, url, nil)
	rr := httptest.NewRecorder()
	handlerFunc(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code, "Expected status 401 when no user email in context")
}
