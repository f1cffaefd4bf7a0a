package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vdavid/outreach/backend/internal/models"
	"github.com/vdavid/outreach/backend/internal/testutil"
)

func threadRequest(id, email string) *http.Request {
	req := createRequestWithUser(http.MethodGet, "/api/v1/thread/"+id, email)
	req.SetPathValue("id", id)
	return req
}

func TestThreadHandler_GetThread(t *testing.T) {
	pool := testutil.NewTestDB(t)
	sealer := testutil.GetTestSealer(t)
	handler := NewThreadHandler(pool)

	email := "user@example.com"
	setupTestAccount(t, pool, sealer, email, "acc-1", "token")
	setupTestAccount(t, pool, sealer, "other@example.com", "acc-other", "token")

	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	ingestTestMessage(t, pool, "acc-1", "m2", "thread-1", base.Add(time.Hour), "inbox")
	ingestTestMessage(t, pool, "acc-1", "m1", "thread-1", base, "sent")
	ingestTestMessage(t, pool, "acc-other", "m9", "thread-other", base, "inbox")

	t.Run("returns 401 when no user email in context", func(t *testing.T) {
		VerifyAuthCheck(t, handler.GetThread, http.MethodGet, "/api/v1/thread/thread-1")
	})

	t.Run("returns 400 without an id", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.GetThread(rr, createRequestWithUser(http.MethodGet, "/api/v1/thread/", email))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("returns 404 for unknown and foreign threads", func(t *testing.T) {
		for _, id := range []string{"missing", "thread-other"} {
			rr := httptest.NewRecorder()
			handler.GetThread(rr, threadRequest(id, email))
			assert.Equal(t, http.StatusNotFound, rr.Code, id)
		}
	})

	t.Run("returns the thread with enriched emails", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.GetThread(rr, threadRequest("thread-1", email))
		require.Equal(t, http.StatusOK, rr.Code)

		var thread models.Thread
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&thread))

		assert.Equal(t, "thread-1", thread.ID)
		assert.True(t, thread.InboxStatus)
		require.Len(t, thread.Emails, 2)

		ids := []string{thread.Emails[0].ID, thread.Emails[1].ID}
		assert.ElementsMatch(t, []string{"m1", "m2"}, ids)

		for _, email := range thread.Emails {
			require.NotNil(t, email.From)
			assert.Equal(t, "lead@example.com", email.From.Address)
			require.Len(t, email.To, 1)
			assert.Equal(t, "owner@example.com", email.To[0].Address)
			require.Len(t, email.Attachments, 1)
			assert.Equal(t, "deck.pdf", email.Attachments[0].Name)
		}
	})
}
