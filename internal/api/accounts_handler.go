package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
	"github.com/vdavid/outreach/backend/internal/db"
	"github.com/vdavid/outreach/backend/internal/models"
	"github.com/vdavid/outreach/backend/internal/provider"
)

const (
	linkStateTTL       = 10 * time.Minute
	initialSyncTimeout = 10 * time.Minute
)

// Linker runs the provider's authorization-code flow.
type Linker interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (string, error)
}

// IdentityFunc returns the mailbox behind a freshly issued access token.
type IdentityFunc func(ctx context.Context, accessToken string) (*provider.AccountInfo, error)

// NewProviderIdentity looks the mailbox up through the provider API.
func NewProviderIdentity(baseURL string) IdentityFunc {
	return func(ctx context.Context, accessToken string) (*provider.AccountInfo, error) {
		return provider.NewClient(ctx, baseURL, accessToken, 0).GetAccount(ctx)
	}
}

// TokenSealer encrypts access tokens before they are stored.
type TokenSealer interface {
	Seal(token string) ([]byte, error)
}

// InitialSyncer bootstraps a newly linked account.
type InitialSyncer interface {
	PerformInitialSync(ctx context.Context, accountID string) error
}

// linkStates remembers which user started each OAuth flow.
type linkStates struct {
	mu     sync.Mutex
	states map[string]linkState
}

type linkState struct {
	userID    string
	expiresAt time.Time
}

func (s *linkStates) put(state, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for key, entry := range s.states {
		if now.After(entry.expiresAt) {
			delete(s.states, key)
		}
	}
	s.states[state] = linkState{userID: userID, expiresAt: now.Add(linkStateTTL)}
}

// take returns the user for a state once. Expired states are rejected.
func (s *linkStates) take(state string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.states[state]
	delete(s.states, state)
	if !ok || time.Now().After(entry.expiresAt) {
		return "", false
	}
	return entry.userID, true
}

// AccountsHandler lists linked mailboxes and links new ones.
type AccountsHandler struct {
	pool     *pgxpool.Pool
	sealer   TokenSealer
	linker   Linker
	identify IdentityFunc
	syncer   InitialSyncer
	states   *linkStates
}

func NewAccountsHandler(pool *pgxpool.Pool, sealer TokenSealer, linker Linker, identify IdentityFunc, syncer InitialSyncer) *AccountsHandler {
	return &AccountsHandler{
		pool:     pool,
		sealer:   sealer,
		linker:   linker,
		identify: identify,
		syncer:   syncer,
		states:   &linkStates{states: make(map[string]linkState)},
	}
}

func toAccountResponse(account *models.Account) models.AccountResponse {
	return models.AccountResponse{
		ID:           account.ID,
		EmailAddress: account.EmailAddress,
		Name:         account.Name,
		Synced:       account.HasSynced(),
	}
}

// GetAccounts lists the user's linked accounts.
func (h *AccountsHandler) GetAccounts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserIDFromContext(ctx, w, h.pool)
	if !ok {
		return
	}

	accounts, err := db.GetAccountsForUser(ctx, h.pool, userID)
	if err != nil {
		log.WithError(err).Error("AccountsHandler: Failed to get accounts")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	response := make([]models.AccountResponse, 0, len(accounts))
	for _, account := range accounts {
		response = append(response, toAccountResponse(account))
	}

	WriteJSONResponse(w, http.StatusOK, response)
}

// Link redirects the user to the provider's consent page.
func (h *AccountsHandler) Link(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context(), w, h.pool)
	if !ok {
		return
	}

	state := uuid.NewString()
	h.states.put(state, userID)

	http.Redirect(w, r, h.linker.AuthURL(state), http.StatusFound)
}

// Callback completes linking: it exchanges the code, stores the account with its
// sealed token and starts the initial sync in the background.
// The user is identified by the state issued in Link, not by a bearer token.
func (h *AccountsHandler) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	if providerErr := query.Get("error"); providerErr != "" {
		log.WithField("error", providerErr).Warn("AccountsHandler: Provider denied linking")
		http.Error(w, "Linking was denied", http.StatusBadRequest)
		return
	}

	code := query.Get("code")
	if code == "" {
		http.Error(w, "code is required", http.StatusBadRequest)
		return
	}

	userID, ok := h.states.take(query.Get("state"))
	if !ok {
		http.Error(w, "Invalid or expired state", http.StatusBadRequest)
		return
	}

	accessToken, err := h.linker.Exchange(ctx, code)
	if err != nil {
		log.WithError(err).Error("AccountsHandler: Failed to exchange code")
		http.Error(w, "Failed to link account", http.StatusBadGateway)
		return
	}

	info, err := h.identify(ctx, accessToken)
	if err != nil {
		log.WithError(err).Error("AccountsHandler: Failed to look up linked account")
		http.Error(w, "Failed to link account", http.StatusBadGateway)
		return
	}

	existing, err := db.GetAccountByID(ctx, h.pool, info.ID)
	switch {
	case err == nil && existing.UserID != userID:
		http.Error(w, "Account is linked to another user", http.StatusConflict)
		return
	case err != nil && !errors.Is(err, db.ErrAccountNotFound):
		log.WithError(err).Error("AccountsHandler: Failed to check existing account")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	sealed, err := h.sealer.Seal(accessToken)
	if err != nil {
		log.WithError(err).Error("AccountsHandler: Failed to seal access token")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	account := &models.Account{
		ID:                info.ID,
		UserID:            userID,
		EmailAddress:      info.Email,
		Name:              info.Name,
		SealedAccessToken: sealed,
	}
	if err := db.SaveAccount(ctx, h.pool, account); err != nil {
		log.WithError(err).Error("AccountsHandler: Failed to save account")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	log.WithFields(log.Fields{"account_id": account.ID, "user_id": userID}).Info("AccountsHandler: Account linked")

	go h.initialSync(account.ID)

	WriteJSONResponse(w, http.StatusOK, toAccountResponse(account))
}

func (h *AccountsHandler) initialSync(accountID string) {
	ctx, cancel := context.WithTimeout(context.Background(), initialSyncTimeout)
	defer cancel()

	if err := h.syncer.PerformInitialSync(ctx, accountID); err != nil {
		log.WithField("account_id", accountID).WithError(err).Error("AccountsHandler: Initial sync after linking failed")
	}
}
