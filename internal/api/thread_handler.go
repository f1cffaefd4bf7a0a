package api

import (
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
	"github.com/vdavid/outreach/backend/internal/db"
	"github.com/vdavid/outreach/backend/internal/models"
)

type ThreadHandler struct {
	pool *pgxpool.Pool
}

func NewThreadHandler(pool *pgxpool.Pool) *ThreadHandler {
	return &ThreadHandler{pool: pool}
}

// GetThread returns one thread with its emails, resolved addresses and attachments.
// Path: /api/v1/thread/{id}
func (h *ThreadHandler) GetThread(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserIDFromContext(ctx, w, h.pool)
	if !ok {
		return
	}

	threadID := r.PathValue("id")
	if threadID == "" {
		http.Error(w, "thread id is required", http.StatusBadRequest)
		return
	}

	thread, err := db.GetThreadForUser(ctx, h.pool, userID, threadID)
	if err != nil {
		if errors.Is(err, db.ErrThreadNotFound) {
			http.Error(w, "Thread not found", http.StatusNotFound)
			return
		}
		log.WithField("thread_id", threadID).WithError(err).Error("ThreadHandler: Failed to get thread")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	emails, err := db.GetEmailsForThread(ctx, h.pool, thread.ID)
	if err != nil {
		log.WithField("thread_id", threadID).WithError(err).Error("ThreadHandler: Failed to get emails")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if err := db.EnrichEmails(ctx, h.pool, emails); err != nil {
		// Still useful without addresses and attachments.
		log.WithField("thread_id", threadID).WithError(err).Warn("ThreadHandler: Failed to enrich emails")
	}

	thread.Emails = make([]models.Email, 0, len(emails))
	for _, email := range emails {
		if email != nil {
			thread.Emails = append(thread.Emails, *email)
		}
	}

	WriteJSONResponse(w, http.StatusOK, thread)
}
