package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vdavid/outreach/backend/internal/mailsync"
	"github.com/vdavid/outreach/backend/internal/models"
	"github.com/vdavid/outreach/backend/internal/testutil"
)

type fakeSyncer struct {
	mu      sync.Mutex
	err     error
	calls   []string
	initial chan string
}

func (f *fakeSyncer) Sync(_ context.Context, accountID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "sync:"+accountID)
	return f.err
}

func (f *fakeSyncer) PerformInitialSync(_ context.Context, accountID string) error {
	f.mu.Lock()
	f.calls = append(f.calls, "initial:"+accountID)
	err := f.err
	f.mu.Unlock()

	if f.initial != nil {
		f.initial <- accountID
	}
	return err
}

func syncRequest(path, accountID, email string) *http.Request {
	req := createRequestWithUser(http.MethodPost, "/api/v1/accounts/"+accountID+"/"+path, email)
	req.SetPathValue("id", accountID)
	return req
}

func TestSyncHandler(t *testing.T) {
	pool := testutil.NewTestDB(t)
	sealer := testutil.GetTestSealer(t)

	email := "user@example.com"
	setupTestAccount(t, pool, sealer, email, "acc-1", "token")
	setupTestAccount(t, pool, sealer, "other@example.com", "acc-other", "token")

	t.Run("returns 401 when no user email in context", func(t *testing.T) {
		handler := NewSyncHandler(pool, &fakeSyncer{})
		VerifyAuthCheck(t, handler.Sync, http.MethodPost, "/api/v1/accounts/acc-1/sync")
	})

	t.Run("returns 400 without an account id", func(t *testing.T) {
		syncer := &fakeSyncer{}
		handler := NewSyncHandler(pool, syncer)

		rr := httptest.NewRecorder()
		handler.Sync(rr, createRequestWithUser(http.MethodPost, "/api/v1/accounts//sync", email))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Empty(t, syncer.calls)
	})

	t.Run("returns 404 for unknown or foreign accounts", func(t *testing.T) {
		syncer := &fakeSyncer{}
		handler := NewSyncHandler(pool, syncer)

		for _, id := range []string{"missing", "acc-other"} {
			rr := httptest.NewRecorder()
			handler.Sync(rr, syncRequest("sync", id, email))
			assert.Equal(t, http.StatusNotFound, rr.Code, id)
		}
		assert.Empty(t, syncer.calls)
	})

	t.Run("runs the sync", func(t *testing.T) {
		syncer := &fakeSyncer{}
		handler := NewSyncHandler(pool, syncer)

		rr := httptest.NewRecorder()
		handler.Sync(rr, syncRequest("sync", "acc-1", email))
		require.Equal(t, http.StatusOK, rr.Code)

		var response models.SyncResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&response))
		assert.True(t, response.Success)

		rr = httptest.NewRecorder()
		handler.InitialSync(rr, syncRequest("initial-sync", "acc-1", email))
		require.Equal(t, http.StatusOK, rr.Code)

		assert.Equal(t, []string{"sync:acc-1", "initial:acc-1"}, syncer.calls)
	})

	t.Run("maps failures", func(t *testing.T) {
		tests := []struct {
			err        error
			wantStatus int
		}{
			{mailsync.ErrSyncInProgress, http.StatusConflict},
			{mailsync.ErrSyncNotReady, http.StatusBadGateway},
			{errors.New("provider down"), http.StatusBadGateway},
		}

		for _, tt := range tests {
			handler := NewSyncHandler(pool, &fakeSyncer{err: tt.err})

			rr := httptest.NewRecorder()
			handler.Sync(rr, syncRequest("sync", "acc-1", email))
			assert.Equal(t, tt.wantStatus, rr.Code, tt.err.Error())
		}
	})
}
