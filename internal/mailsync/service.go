// Package mailsync drives the provider through full and incremental syncs
// and hands the fetched messages to the ingestion pipeline.
package mailsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
	"github.com/vdavid/outreach/backend/internal/db"
	"github.com/vdavid/outreach/backend/internal/events"
	"github.com/vdavid/outreach/backend/internal/ingest"
	"github.com/vdavid/outreach/backend/internal/models"
	"github.com/vdavid/outreach/backend/internal/provider"
)

var (
	// ErrNoDeltaToken is returned by SyncEmails for an account that never completed a full sync.
	ErrNoDeltaToken = errors.New("account has no delta token, run an initial sync first")

	// ErrSyncNotReady is returned when the provider did not become ready within the poll budget.
	ErrSyncNotReady = errors.New("provider sync did not become ready")

	// ErrSyncInProgress is returned when another pass for the same account is still running.
	ErrSyncInProgress = errors.New("sync already in progress for account")

	// ErrTooManyPages is returned when the provider keeps paging past maxPages.
	ErrTooManyPages = errors.New("provider kept returning page tokens")
)

// maxPages stops a provider that keeps handing out page tokens.
const maxPages = 1000

var errNotReady = errors.New("not ready")

// SyncClient is the provider surface used by the orchestrator.
type SyncClient interface {
	StartSync(ctx context.Context) (*provider.SyncStartResponse, error)
	FetchUpdated(ctx context.Context, params provider.FetchParams) (*provider.SyncUpdatedResponse, error)
}

// ClientFactory builds a provider client authenticated as the given account.
type ClientFactory func(ctx context.Context, account *models.Account) (SyncClient, error)

// TokenOpener decrypts a sealed access token.
type TokenOpener interface {
	Open(sealed []byte) (string, error)
}

// NewProviderClientFactory returns a factory that unseals the account's token
// and builds a provider.Client for it.
func NewProviderClientFactory(baseURL string, daysWithin int, opener TokenOpener) ClientFactory {
	return func(ctx context.Context, account *models.Account) (SyncClient, error) {
		token, err := opener.Open(account.SealedAccessToken)
		if err != nil {
			return nil, fmt.Errorf("failed to open access token: %w", err)
		}
		return provider.NewClient(ctx, baseURL, token, daysWithin), nil
	}
}

// Ingester writes a fetched batch.
type Ingester interface {
	Ingest(ctx context.Context, accountID string, messages []provider.Message) (ingest.Result, error)
}

// Options tunes readiness polling.
type Options struct {
	PollInterval    time.Duration
	PollMaxInterval time.Duration
	PollMaxAttempts int
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
	if o.PollMaxInterval <= 0 {
		o.PollMaxInterval = 10 * o.PollInterval
	}
	if o.PollMaxAttempts <= 0 {
		o.PollMaxAttempts = 10
	}
	return o
}

// Service is the sync orchestrator. The stored delta token only moves forward
// after a pass fetched every page and ingested the batch.
type Service struct {
	store    db.AccountStore
	clients  ClientFactory
	ingester Ingester
	notifier events.Notifier
	opts     Options

	running sync.Map // accountID -> struct{}
}

func NewService(store db.AccountStore, clients ClientFactory, ingester Ingester, notifier events.Notifier, opts Options) *Service {
	if notifier == nil {
		notifier = events.Noop{}
	}
	return &Service{
		store:    store,
		clients:  clients,
		ingester: ingester,
		notifier: notifier,
		opts:     opts.withDefaults(),
	}
}

// PerformInitialSync bootstraps the account with a full sync, even when it already holds a token.
func (s *Service) PerformInitialSync(ctx context.Context, accountID string) error {
	return s.withAccount(ctx, accountID, s.initialSync)
}

// SyncEmails fetches changes since the stored delta token.
func (s *Service) SyncEmails(ctx context.Context, accountID string) error {
	return s.withAccount(ctx, accountID, s.incrementalSync)
}

// Sync runs an incremental sync when the account has a token and a full sync otherwise.
func (s *Service) Sync(ctx context.Context, accountID string) error {
	return s.withAccount(ctx, accountID, func(ctx context.Context, account *models.Account) error {
		if account.HasSynced() {
			return s.incrementalSync(ctx, account)
		}
		return s.initialSync(ctx, account)
	})
}

func (s *Service) withAccount(ctx context.Context, accountID string, run func(context.Context, *models.Account) error) error {
	if _, busy := s.running.LoadOrStore(accountID, struct{}{}); busy {
		return ErrSyncInProgress
	}
	defer s.running.Delete(accountID)

	account, err := s.store.GetAccountByID(ctx, accountID)
	if err != nil {
		return fmt.Errorf("failed to load account: %w", err)
	}

	return run(ctx, account)
}

func (s *Service) initialSync(ctx context.Context, account *models.Account) error {
	logger := log.WithFields(log.Fields{"account_id": account.ID, "kind": events.SyncKindInitial})

	client, err := s.clients(ctx, account)
	if err != nil {
		return err
	}

	startToken, err := s.waitUntilReady(ctx, logger, client)
	if err != nil {
		logger.WithError(err).Error("Initial sync failed while waiting for the provider")
		return err
	}

	return s.runPass(ctx, logger, account, client, startToken, events.SyncKindInitial)
}

func (s *Service) incrementalSync(ctx context.Context, account *models.Account) error {
	if !account.HasSynced() {
		return ErrNoDeltaToken
	}
	logger := log.WithFields(log.Fields{"account_id": account.ID, "kind": events.SyncKindIncremental})

	client, err := s.clients(ctx, account)
	if err != nil {
		return err
	}

	return s.runPass(ctx, logger, account, client, *account.NextDeltaToken, events.SyncKindIncremental)
}

// waitUntilReady polls StartSync with exponential backoff and returns the token to fetch from.
func (s *Service) waitUntilReady(ctx context.Context, logger *log.Entry, client SyncClient) (string, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.opts.PollInterval
	b.MaxInterval = s.opts.PollMaxInterval
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.opts.PollMaxAttempts-1)), ctx)

	var token string
	attempts := 0
	operation := func() error {
		attempts++
		resp, err := client.StartSync(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !resp.Ready {
			return errNotReady
		}
		if resp.SyncUpdatedToken == "" {
			return backoff.Permanent(errors.New("provider reported ready without a sync token"))
		}
		token = resp.SyncUpdatedToken
		return nil
	}
	notify := func(_ error, wait time.Duration) {
		logger.WithFields(log.Fields{"attempt": attempts, "wait": wait}).Debug("Provider sync not ready yet")
	}

	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		if errors.Is(err, errNotReady) {
			return "", fmt.Errorf("%w after %d attempts", ErrSyncNotReady, attempts)
		}
		return "", err
	}

	return token, nil
}

type fetchResult struct {
	messages       []provider.Message
	nextDeltaToken string
	pages          int
	dropped        int
}

// fetchAll follows page tokens until the provider stops returning one and keeps
// the last non-empty delta token it saw.
func (s *Service) fetchAll(ctx context.Context, client SyncClient, deltaToken string) (*fetchResult, error) {
	result := &fetchResult{}
	params := provider.FetchParams{DeltaToken: deltaToken}

	for {
		if result.pages >= maxPages {
			return nil, fmt.Errorf("%w: gave up after %d pages", ErrTooManyPages, maxPages)
		}

		page, err := client.FetchUpdated(ctx, params)
		if err != nil {
			return nil, err
		}
		result.pages++
		result.messages = append(result.messages, page.Records...)
		result.dropped += page.Dropped
		if page.NextDeltaToken != "" {
			result.nextDeltaToken = page.NextDeltaToken
		}

		if page.NextPageToken == "" {
			return result, nil
		}
		params = provider.FetchParams{PageToken: page.NextPageToken}
	}
}

func (s *Service) runPass(ctx context.Context, logger *log.Entry, account *models.Account, client SyncClient, fromToken string, kind events.SyncKind) error {
	fetched, err := s.fetchAll(ctx, client, fromToken)
	if err != nil {
		logger.WithError(err).Error("Sync aborted while fetching, delta token left unchanged")
		return fmt.Errorf("failed to fetch updates: %w", err)
	}

	result, err := s.ingester.Ingest(ctx, account.ID, fetched.messages)
	if err != nil {
		logger.WithError(err).Error("Sync aborted while ingesting, delta token left unchanged")
		return fmt.Errorf("failed to ingest messages: %w", err)
	}

	if fetched.nextDeltaToken != "" {
		if err := s.store.SetNextDeltaToken(ctx, account.ID, fetched.nextDeltaToken); err != nil {
			return fmt.Errorf("failed to store delta token: %w", err)
		}
	} else {
		logger.Warn("Provider returned no delta token, keeping the stored one")
	}

	logger.WithFields(log.Fields{
		"pages":     fetched.pages,
		"fetched":   len(fetched.messages),
		"dropped":   fetched.dropped,
		"processed": result.Processed,
		"failed":    result.Failed,
		"skipped":   result.Skipped,
	}).Info("Sync completed")

	event := events.NewSyncEvent(account.ID, account.UserID, kind)
	event.Fetched = len(fetched.messages)
	event.Processed = result.Processed
	event.Failed = result.Failed
	event.Skipped = result.Skipped
	if err := s.notifier.NotifySync(ctx, event); err != nil {
		logger.WithError(err).Warn("Failed to deliver sync notification")
	}

	return nil
}
