package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
	"github.com/vdavid/outreach/backend/internal/mailsync"
	"github.com/vdavid/outreach/backend/internal/models"
	"github.com/vdavid/outreach/backend/internal/provider"
)

const sendTimeout = 30 * time.Second

// EmailSender hands an outgoing email to the provider.
type EmailSender interface {
	SendEmail(ctx context.Context, email provider.OutgoingEmail) (*provider.SendResult, error)
}

// SenderFactory builds a sender authenticated as the given account.
type SenderFactory func(ctx context.Context, account *models.Account) (EmailSender, error)

// NewProviderSenderFactory unseals the account's token and returns a provider client.
func NewProviderSenderFactory(baseURL string, opener mailsync.TokenOpener) SenderFactory {
	return func(ctx context.Context, account *models.Account) (EmailSender, error) {
		token, err := opener.Open(account.SealedAccessToken)
		if err != nil {
			return nil, fmt.Errorf("failed to open access token: %w", err)
		}
		return provider.NewClient(ctx, baseURL, token, 0), nil
	}
}

// SendHandler accepts outgoing emails. Sending is fire-and-forget: the request
// returns once the email is queued and delivery failures are only logged.
type SendHandler struct {
	pool    *pgxpool.Pool
	senders SenderFactory
}

func NewSendHandler(pool *pgxpool.Pool, senders SenderFactory) *SendHandler {
	return &SendHandler{pool: pool, senders: senders}
}

// Send validates the email and sends it in the background.
// Path: POST /api/v1/accounts/{id}/send
func (h *SendHandler) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserIDFromContext(ctx, w, h.pool)
	if !ok {
		return
	}

	account, ok := getAccountForUser(ctx, w, h.pool, userID, r.PathValue("id"))
	if !ok {
		return
	}

	var email provider.OutgoingEmail
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&email); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if email.From.Address == "" {
		email.From = provider.Address{Address: account.EmailAddress, Name: account.Name}
	}
	if err := provider.ValidateStruct(&email); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sender, err := h.senders(ctx, account)
	if err != nil {
		log.WithField("account_id", account.ID).WithError(err).Error("SendHandler: Failed to create sender")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	go h.deliver(account.ID, sender, email)

	WriteJSONResponse(w, http.StatusAccepted, map[string]bool{"accepted": true})
}

func (h *SendHandler) deliver(accountID string, sender EmailSender, email provider.OutgoingEmail) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	logger := log.WithFields(log.Fields{"account_id": accountID, "thread_id": email.ThreadID})
	result, err := sender.SendEmail(ctx, email)
	if err != nil {
		var apiErr *provider.APIError
		if errors.As(err, &apiErr) {
			logger = logger.WithField("status", apiErr.StatusCode)
		}
		logger.WithError(err).Error("SendHandler: Failed to send email")
	} else {
		logger.WithField("message_id", result.ID).Info("SendHandler: Email sent")
	}
}
