package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vdavid/outreach/backend/internal/config"
	"github.com/vdavid/outreach/backend/internal/db"
	"github.com/vdavid/outreach/backend/internal/events"
	"github.com/vdavid/outreach/backend/internal/ingest"
	"github.com/vdavid/outreach/backend/internal/mailsync"
	"github.com/vdavid/outreach/backend/internal/testutil"
	ws "github.com/vdavid/outreach/backend/internal/websocket"
)

func getTestConfig() *config.Config {
	return &config.Config{
		Environment:         "test",
		EncryptionKeyBase64: testutil.TestEncryptionKey,
		Port:                "11764",
		ProviderAPIURL:      "http://127.0.0.1:1",
		OAuthClientID:       "client",
		OAuthClientSecret:   "secret",
		OAuthAuthURL:        "http://127.0.0.1:1/v1/auth/authorize",
		OAuthTokenURL:       "http://127.0.0.1:1/v1/auth/token",
		OAuthRedirectURL:    "http://localhost:11764/api/v1/accounts/callback",
		SyncDaysWithin:      2,
		SyncPollMaxAttempt:  3,
		IngestBatchLimit:    10,
		IngestConcurrency:   5,
	}
}

// newTestApp wires the app the same way newApp does, on a test database.
func newTestApp(t *testing.T, cfg *config.Config) *app {
	t.Helper()

	pool := testutil.NewTestDB(t)
	sealer := testutil.GetTestSealer(t)
	hub := ws.NewHub(10)
	store := db.NewStore(pool)
	pipeline := ingest.NewPipeline(ingest.NewUpserter(store), cfg.IngestBatchLimit, cfg.IngestConcurrency)

	return &app{
		pool:   pool,
		sealer: sealer,
		hub:    hub,
		store:  store,
		service: mailsync.NewService(
			store,
			mailsync.NewProviderClientFactory(cfg.ProviderAPIURL, cfg.SyncDaysWithin, sealer),
			pipeline,
			events.Fanout{hub},
			mailsync.Options{PollMaxAttempts: cfg.SyncPollMaxAttempt},
		),
	}
}

func TestHandleRoot(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	handleRoot(w, req)

	res := w.Result()
	defer func() { _ = res.Body.Close() }()

	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "text/plain", res.Header.Get("Content-Type"))

	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Equal(t, "Outreach API is running", string(body))
}

func TestNewServer(t *testing.T) {
	cfg := getTestConfig()
	server := NewServer(cfg, newTestApp(t, cfg))
	require.NotNil(t, server)

	tests := []struct {
		name       string
		method     string
		path       string
		token      string
		wantStatus int
	}{
		{"root", http.MethodGet, "/", "", http.StatusOK},
		{"unknown path", http.MethodGet, "/nope", "", http.StatusNotFound},
		{"accounts require auth", http.MethodGet, "/api/v1/accounts", "", http.StatusUnauthorized},
		{"accounts with auth", http.MethodGet, "/api/v1/accounts", "token", http.StatusOK},
		{"link redirects", http.MethodGet, "/api/v1/accounts/link", "token", http.StatusFound},
		{"callback is public but needs a code", http.MethodGet, "/api/v1/accounts/callback", "", http.StatusBadRequest},
		{"sync requires auth", http.MethodPost, "/api/v1/accounts/acc-1/sync", "", http.StatusUnauthorized},
		{"sync of unknown account", http.MethodPost, "/api/v1/accounts/acc-1/sync", "token", http.StatusNotFound},
		{"initial sync of unknown account", http.MethodPost, "/api/v1/accounts/acc-1/initial-sync", "token", http.StatusNotFound},
		{"sync is POST only", http.MethodGet, "/api/v1/accounts/acc-1/sync", "token", http.StatusMethodNotAllowed},
		{"send of unknown account", http.MethodPost, "/api/v1/accounts/acc-1/send", "token", http.StatusNotFound},
		{"threads need an account", http.MethodGet, "/api/v1/threads", "token", http.StatusBadRequest},
		{"unknown thread", http.MethodGet, "/api/v1/thread/missing", "token", http.StatusNotFound},
		{"ws needs a token", http.MethodGet, "/api/v1/ws", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}

			w := httptest.NewRecorder()
			server.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestRootCommand(t *testing.T) {
	root := newRootCmd()

	names := make([]string, 0)
	for _, cmd := range root.Commands() {
		names = append(names, cmd.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "sync", "migrate"}, names)

	serve, _, err := root.Find([]string{"serve"})
	require.NoError(t, err)
	assert.NotNil(t, serve.Flags().Lookup("migrate"))
	assert.NotNil(t, serve.Flags().Lookup("schedule"))

	syncCmd, _, err := root.Find([]string{"sync"})
	require.NoError(t, err)
	assert.NotNil(t, syncCmd.Flags().Lookup("account"))
	assert.NotNil(t, syncCmd.Flags().Lookup("initial"))
}

func TestSyncCommandRequiresAccountForInitial(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"sync", "--initial"})
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--initial requires --account")
}
