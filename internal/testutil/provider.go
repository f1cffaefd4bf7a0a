package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// FakePage is one page served by the fake provider's sync/updated endpoint.
type FakePage struct {
	Records        []map[string]any `json:"records"`
	NextPageToken  string           `json:"nextPageToken,omitempty"`
	NextDeltaToken string           `json:"nextDeltaToken,omitempty"`
}

type fakeStart struct {
	Ready            bool   `json:"ready"`
	SyncUpdatedToken string `json:"syncUpdatedToken,omitempty"`
}

// TestProviderServer is an in-memory stand-in for the mailbox provider API.
// Pages are keyed by the delta or page token that requests them.
type TestProviderServer struct {
	Server      *httptest.Server
	URL         string
	AccessToken string

	mu           sync.Mutex
	starts       []fakeStart
	deltaPages   map[string]FakePage
	pageTokens   map[string]FakePage
	failures     map[string]int
	account      map[string]any
	authCodes    map[string]string
	sent         []map[string]any
	startCalls   int
	fetchCalls   int
	fetchedPages []string
}

// NewTestProviderServer starts a fake provider that accepts the given bearer token.
// The server is closed when the test finishes.
func NewTestProviderServer(t *testing.T, accessToken string) *TestProviderServer {
	t.Helper()

	s := &TestProviderServer{
		AccessToken: accessToken,
		deltaPages:  make(map[string]FakePage),
		pageTokens:  make(map[string]FakePage),
		failures:    make(map[string]int),
		authCodes:   make(map[string]string),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/email/sync", s.authorized(s.handleStart))
	mux.HandleFunc("GET /v1/email/sync/updated", s.authorized(s.handleUpdated))
	mux.HandleFunc("GET /v1/account", s.authorized(s.handleAccount))
	mux.HandleFunc("POST /v1/email/messages", s.authorized(s.handleSend))
	mux.HandleFunc("POST /v1/auth/token", s.handleToken)

	s.Server = httptest.NewServer(mux)
	s.URL = s.Server.URL
	t.Cleanup(s.Server.Close)

	return s
}

// QueueStart appends a sync-start reply. The last queued reply repeats once the queue is drained.
func (s *TestProviderServer) QueueStart(ready bool, syncUpdatedToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starts = append(s.starts, fakeStart{Ready: ready, SyncUpdatedToken: syncUpdatedToken})
}

// SetDeltaPage serves page when the given delta token is presented.
func (s *TestProviderServer) SetDeltaPage(deltaToken string, page FakePage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deltaPages[deltaToken] = page
}

// SetPage serves page when the given page token is presented.
func (s *TestProviderServer) SetPage(pageToken string, page FakePage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pageTokens[pageToken] = page
}

// FailToken makes requests carrying the given delta or page token fail with status.
func (s *TestProviderServer) FailToken(token string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[token] = status
}

// SetAccount sets the identity returned by GET /v1/account.
func (s *TestProviderServer) SetAccount(id, email, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.account = map[string]any{"id": id, "email": email, "name": name}
}

// AddAuthCode makes the token endpoint exchange code for the server's access token.
func (s *TestProviderServer) AddAuthCode(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authCodes[code] = s.AccessToken
}

func (s *TestProviderServer) StartCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startCalls
}

func (s *TestProviderServer) FetchCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetchCalls
}

// FetchedTokens lists the tokens presented to sync/updated, in order.
func (s *TestProviderServer) FetchedTokens() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.fetchedPages...)
}

// SentEmails returns the request bodies posted to the send endpoint.
func (s *TestProviderServer) SentEmails() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]any(nil), s.sent...)
}

func (s *TestProviderServer) authorized(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+s.AccessToken {
			writeFakeJSON(w, http.StatusUnauthorized, map[string]string{"code": "unauthorized", "message": "invalid token"})
			return
		}
		next(w, r)
	}
}

func (s *TestProviderServer) handleStart(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.startCalls++
	reply := fakeStart{}
	if len(s.starts) > 0 {
		reply = s.starts[0]
		if len(s.starts) > 1 {
			s.starts = s.starts[1:]
		}
	}
	s.mu.Unlock()

	if r.URL.Query().Get("daysWithin") == "" || r.URL.Query().Get("bodyType") != "html" {
		writeFakeJSON(w, http.StatusBadRequest, map[string]string{"message": "daysWithin and bodyType are required"})
		return
	}

	writeFakeJSON(w, http.StatusOK, reply)
}

func (s *TestProviderServer) handleUpdated(w http.ResponseWriter, r *http.Request) {
	deltaToken := r.URL.Query().Get("deltaToken")
	pageToken := r.URL.Query().Get("pageToken")

	s.mu.Lock()
	s.fetchCalls++
	var page FakePage
	var found bool
	var token string
	switch {
	case deltaToken != "" && pageToken != "":
		s.mu.Unlock()
		writeFakeJSON(w, http.StatusBadRequest, map[string]string{"message": "only one token allowed"})
		return
	case deltaToken != "":
		token = deltaToken
		page, found = s.deltaPages[deltaToken]
	default:
		token = pageToken
		page, found = s.pageTokens[pageToken]
	}
	s.fetchedPages = append(s.fetchedPages, token)
	status, failing := s.failures[token]
	s.mu.Unlock()

	if failing {
		writeFakeJSON(w, status, map[string]string{"code": "failure", "message": "injected failure"})
		return
	}
	if !found {
		writeFakeJSON(w, http.StatusNotFound, map[string]string{"code": "not_found", "message": "unknown token"})
		return
	}
	if page.Records == nil {
		page.Records = []map[string]any{}
	}

	writeFakeJSON(w, http.StatusOK, page)
}

func (s *TestProviderServer) handleAccount(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	account := s.account
	s.mu.Unlock()

	if account == nil {
		writeFakeJSON(w, http.StatusNotFound, map[string]string{"message": "no account"})
		return
	}
	writeFakeJSON(w, http.StatusOK, account)
}

func (s *TestProviderServer) handleSend(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeFakeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid body"})
		return
	}

	s.mu.Lock()
	s.sent = append(s.sent, body)
	id := len(s.sent)
	s.mu.Unlock()

	writeFakeJSON(w, http.StatusOK, map[string]any{"id": fmt.Sprintf("sent-%d", id), "threadId": body["threadId"]})
}

func (s *TestProviderServer) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeFakeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}

	s.mu.Lock()
	token, ok := s.authCodes[r.PostForm.Get("code")]
	s.mu.Unlock()

	if !ok {
		writeFakeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
		return
	}

	writeFakeJSON(w, http.StatusOK, map[string]any{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_in":   3600,
	})
}

func writeFakeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// FakeMessage builds a well-formed provider message record.
func FakeMessage(id, threadID string, sentAt time.Time, sysLabels ...string) map[string]any {
	return map[string]any{
		"id":                id,
		"threadId":          threadID,
		"subject":           "Subject " + id,
		"sentAt":            sentAt.UTC().Format(time.RFC3339),
		"receivedAt":        sentAt.UTC().Format(time.RFC3339),
		"createdTime":       sentAt.UTC().Format(time.RFC3339),
		"internetMessageId": "<" + id + "@example.com>",
		"sysLabels":         sysLabels,
		"sensitivity":       "normal",
		"from":              map[string]any{"address": "sender@example.com", "name": "Sender", "raw": "Sender <sender@example.com>"},
		"to":                []map[string]any{{"address": "owner@example.com", "name": "Owner"}},
		"body":              "<p>Body of " + id + "</p>",
		"bodySnippet":       "Body of " + id,
		"hasAttachments":    false,
	}
}
