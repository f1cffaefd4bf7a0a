package api

import (
	"net/http"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
	"github.com/vdavid/outreach/backend/internal/db"
	"github.com/vdavid/outreach/backend/internal/models"
)

const defaultThreadsPerPage = 50

// ThreadsHandler handles thread-list-related API requests.
type ThreadsHandler struct {
	pool *pgxpool.Pool
}

// NewThreadsHandler creates a new ThreadsHandler instance.
func NewThreadsHandler(pool *pgxpool.Pool) *ThreadsHandler {
	return &ThreadsHandler{pool: pool}
}

// BuildPaginationResponse builds the pagination response structure.
func BuildPaginationResponse(threads []*models.Thread, totalCount, page, limit int) *models.ThreadsResponse {
	if threads == nil {
		threads = []*models.Thread{}
	}
	return &models.ThreadsResponse{
		Threads: threads,
		Pagination: models.PaginationInfo{
			TotalCount: totalCount,
			Page:       page,
			PerPage:    limit,
		},
	}
}

// parseThreadFilter reads the tab and done query parameters. tab defaults to inbox.
func parseThreadFilter(r *http.Request) (db.ThreadFilter, bool) {
	filter := db.ThreadFilter{Label: models.EmailLabelInbox}

	switch tab := models.EmailLabel(r.URL.Query().Get("tab")); tab {
	case "":
	case models.EmailLabelInbox, models.EmailLabelDraft, models.EmailLabelSent:
		filter.Label = tab
	default:
		return filter, false
	}

	if doneStr := r.URL.Query().Get("done"); doneStr != "" {
		done, err := strconv.ParseBool(doneStr)
		if err != nil {
			return filter, false
		}
		filter.Done = &done
	}

	return filter, true
}

// GetThreads returns a paginated list of threads of one account, newest first.
func (h *ThreadsHandler) GetThreads(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserIDFromContext(ctx, w, h.pool)
	if !ok {
		return
	}

	accountID := r.URL.Query().Get("account_id")
	if accountID == "" {
		http.Error(w, "account_id query parameter is required", http.StatusBadRequest)
		return
	}

	filter, ok := parseThreadFilter(r)
	if !ok {
		http.Error(w, "tab must be inbox, draft or sent and done must be a boolean", http.StatusBadRequest)
		return
	}

	if _, ok := getAccountForUser(ctx, w, h.pool, userID, accountID); !ok {
		return
	}

	page, limit := ParsePaginationParams(r, defaultThreadsPerPage)
	offset := (page - 1) * limit

	threads, err := db.GetThreadsForAccount(ctx, h.pool, accountID, filter, limit, offset)
	if err != nil {
		log.WithField("account_id", accountID).WithError(err).Error("ThreadsHandler: Failed to get threads")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	totalCount, err := db.CountThreadsForAccount(ctx, h.pool, accountID, filter)
	if err != nil {
		log.WithField("account_id", accountID).WithError(err).Error("ThreadsHandler: Failed to get thread count")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	WriteJSONResponse(w, http.StatusOK, BuildPaginationResponse(threads, totalCount, page, limit))
}
