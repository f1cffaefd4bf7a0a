package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
	"github.com/vdavid/outreach/backend/internal/auth"
	"github.com/vdavid/outreach/backend/internal/db"
	"github.com/vdavid/outreach/backend/internal/models"
)

const maxPageLimit = 200

// GetUserIDFromContext extracts the user's email from context, resolves/creates the DB user,
// and writes appropriate HTTP errors when it fails. Returns (userID, true) on success.
func GetUserIDFromContext(ctx context.Context, w http.ResponseWriter, pool *pgxpool.Pool) (string, bool) {
	email, ok := auth.GetUserEmailFromContext(ctx)
	if !ok {
		log.Debug("API: No user email in context")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return "", false
	}

	userID, err := db.GetOrCreateUser(ctx, pool, email)
	if err != nil {
		log.WithError(err).Error("API: Failed to get/create user")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return "", false
	}

	return userID, true
}

// getAccountForUser loads an account owned by the user and writes 400/404/500 when it can't.
func getAccountForUser(ctx context.Context, w http.ResponseWriter, pool *pgxpool.Pool, userID, accountID string) (*models.Account, bool) {
	if accountID == "" {
		http.Error(w, "account id is required", http.StatusBadRequest)
		return nil, false
	}

	account, err := db.GetAccountForUser(ctx, pool, userID, accountID)
	if err != nil {
		if errors.Is(err, db.ErrAccountNotFound) {
			http.Error(w, "Account not found", http.StatusNotFound)
			return nil, false
		}
		log.WithField("account_id", accountID).WithError(err).Error("API: Failed to get account")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return nil, false
	}

	return account, true
}

// ParsePaginationParams parses page and limit from query parameters.
// Returns default values (page=1, limit=defaultLimit) if parameters are missing or invalid.
func ParsePaginationParams(r *http.Request, defaultLimit int) (page, limit int) {
	page = 1
	limit = defaultLimit

	if pageStr := r.URL.Query().Get("page"); pageStr != "" {
		if parsed, err := strconv.Atoi(pageStr); err == nil && parsed > 0 {
			page = parsed
		}
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = min(parsed, maxPageLimit)
		}
	}

	return page, limit
}

// WriteJSONResponse encodes v into a buffer first so a failed encode never leaves a partial body.
func WriteJSONResponse(w http.ResponseWriter, status int, v any) bool {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		log.WithError(err).Error("API: Failed to encode response")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return false
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		log.WithError(err).Warn("API: Failed to write response")
		return false
	}
	return true
}
