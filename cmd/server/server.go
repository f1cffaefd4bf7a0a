package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
	"github.com/vdavid/outreach/backend/internal/api"
	"github.com/vdavid/outreach/backend/internal/auth"
	"github.com/vdavid/outreach/backend/internal/config"
	"github.com/vdavid/outreach/backend/internal/crypto"
	"github.com/vdavid/outreach/backend/internal/db"
	"github.com/vdavid/outreach/backend/internal/events"
	"github.com/vdavid/outreach/backend/internal/ingest"
	"github.com/vdavid/outreach/backend/internal/mailsync"
	"github.com/vdavid/outreach/backend/internal/provider"
	ws "github.com/vdavid/outreach/backend/internal/websocket"
)

// app holds the long-lived dependencies shared by the commands.
type app struct {
	pool      *pgxpool.Pool
	sealer    *crypto.TokenSealer
	hub       *ws.Hub
	publisher *events.Publisher
	store     *db.PoolStore
	service   *mailsync.Service
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	sealer, err := crypto.NewTokenSealer(cfg.EncryptionKeyBase64)
	if err != nil {
		return nil, fmt.Errorf("failed to create token sealer: %w", err)
	}

	pool, err := db.NewConnection(ctx, cfg)
	if err != nil {
		return nil, err
	}
	log.Info("Successfully connected to database")

	a := &app{pool: pool, sealer: sealer, hub: ws.NewHub(10)}
	notifiers := events.Fanout{a.hub}

	if cfg.NATSURL != "" {
		publisher, err := events.NewPublisher(cfg.NATSURL)
		if err != nil {
			db.CloseConnection(pool)
			return nil, err
		}
		a.publisher = publisher
		notifiers = append(notifiers, publisher)
		log.WithField("stream", events.StreamName).Info("Publishing sync events to NATS")
	}

	a.store = db.NewStore(pool)
	pipeline := ingest.NewPipeline(ingest.NewUpserter(a.store), cfg.IngestBatchLimit, cfg.IngestConcurrency)
	a.service = mailsync.NewService(
		a.store,
		mailsync.NewProviderClientFactory(cfg.ProviderAPIURL, cfg.SyncDaysWithin, sealer),
		pipeline,
		notifiers,
		mailsync.Options{
			PollInterval:    cfg.SyncPollInterval,
			PollMaxAttempts: cfg.SyncPollMaxAttempt,
		},
	)

	return a, nil
}

func (a *app) close() {
	if a.publisher != nil {
		a.publisher.Close()
	}
	db.CloseConnection(a.pool)
}

// NewServer creates the HTTP handler for the API.
func NewServer(cfg *config.Config, a *app) http.Handler {
	oauth := provider.NewOAuth(provider.OAuthConfig{
		ClientID:     cfg.OAuthClientID,
		ClientSecret: cfg.OAuthClientSecret,
		AuthURL:      cfg.OAuthAuthURL,
		TokenURL:     cfg.OAuthTokenURL,
		RedirectURL:  cfg.OAuthRedirectURL,
	})

	accountsHandler := api.NewAccountsHandler(a.pool, a.sealer, oauth, api.NewProviderIdentity(cfg.ProviderAPIURL), a.service)
	syncHandler := api.NewSyncHandler(a.pool, a.service)
	sendHandler := api.NewSendHandler(a.pool, api.NewProviderSenderFactory(cfg.ProviderAPIURL, a.sealer))
	threadsHandler := api.NewThreadsHandler(a.pool)
	threadHandler := api.NewThreadHandler(a.pool)
	wsHandler := api.NewWebSocketHandler(a.pool, a.hub)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", handleRoot)

	mux.Handle("GET /api/v1/accounts", auth.RequireAuth(http.HandlerFunc(accountsHandler.GetAccounts)))
	mux.Handle("GET /api/v1/accounts/link", auth.RequireAuth(http.HandlerFunc(accountsHandler.Link)))
	// The provider redirects the browser here, so the user comes from the OAuth state.
	mux.HandleFunc("GET /api/v1/accounts/callback", accountsHandler.Callback)
	mux.Handle("POST /api/v1/accounts/{id}/sync", auth.RequireAuth(http.HandlerFunc(syncHandler.Sync)))
	mux.Handle("POST /api/v1/accounts/{id}/initial-sync", auth.RequireAuth(http.HandlerFunc(syncHandler.InitialSync)))
	mux.Handle("POST /api/v1/accounts/{id}/send", auth.RequireAuth(http.HandlerFunc(sendHandler.Send)))
	mux.Handle("GET /api/v1/threads", auth.RequireAuth(http.HandlerFunc(threadsHandler.GetThreads)))
	mux.Handle("GET /api/v1/thread/{id}", auth.RequireAuth(http.HandlerFunc(threadHandler.GetThread)))
	// WebSocket handler handles its own authentication via query parameter
	// (since browsers can't set headers on WebSocket connections).
	mux.HandleFunc("GET /api/v1/ws", wsHandler.Handle)

	return mux
}

func handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Outreach API is running")
}
