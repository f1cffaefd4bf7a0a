package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
	"github.com/vdavid/outreach/backend/internal/mailsync"
	"github.com/vdavid/outreach/backend/internal/models"
)

// Syncer runs sync passes for an account.
type Syncer interface {
	Sync(ctx context.Context, accountID string) error
	PerformInitialSync(ctx context.Context, accountID string) error
}

// SyncHandler exposes the sync orchestrator to the owner of an account.
type SyncHandler struct {
	pool   *pgxpool.Pool
	syncer Syncer
}

func NewSyncHandler(pool *pgxpool.Pool, syncer Syncer) *SyncHandler {
	return &SyncHandler{pool: pool, syncer: syncer}
}

// Sync runs an incremental sync, or a full one for an account that never synced.
// Path: POST /api/v1/accounts/{id}/sync
func (h *SyncHandler) Sync(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, "sync", h.syncer.Sync)
}

// InitialSync forces a full sync.
// Path: POST /api/v1/accounts/{id}/initial-sync
func (h *SyncHandler) InitialSync(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, "initial-sync", h.syncer.PerformInitialSync)
}

func (h *SyncHandler) run(w http.ResponseWriter, r *http.Request, name string, pass func(context.Context, string) error) {
	ctx := r.Context()

	userID, ok := GetUserIDFromContext(ctx, w, h.pool)
	if !ok {
		return
	}

	account, ok := getAccountForUser(ctx, w, h.pool, userID, r.PathValue("id"))
	if !ok {
		return
	}

	if err := pass(ctx, account.ID); err != nil {
		logger := log.WithFields(log.Fields{"account_id": account.ID, "pass": name}).WithError(err)
		switch {
		case errors.Is(err, mailsync.ErrSyncInProgress):
			logger.Info("SyncHandler: Sync already running")
			http.Error(w, "Sync already in progress", http.StatusConflict)
		case errors.Is(err, context.Canceled):
			logger.Info("SyncHandler: Client went away during sync")
		default:
			logger.Error("SyncHandler: Sync failed")
			WriteJSONResponse(w, http.StatusBadGateway, models.SyncResponse{Success: false})
		}
		return
	}

	WriteJSONResponse(w, http.StatusOK, models.SyncResponse{Success: true})
}
