package mailsync

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"
)

type accountSyncer interface {
	Sync(ctx context.Context, accountID string) error
}

type accountLister interface {
	ListAccountIDs(ctx context.Context) ([]string, error)
}

// Scheduler periodically syncs every linked account, one at a time.
// A failing account is logged and retried on the next tick from its stored token.
type Scheduler struct {
	syncer   accountSyncer
	accounts accountLister
	interval time.Duration
}

func NewScheduler(syncer accountSyncer, accounts accountLister, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Scheduler{syncer: syncer, accounts: accounts, interval: interval}
}

// Run syncs immediately and then on every tick until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	log.WithField("interval", s.interval).Info("Sync scheduler started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.RunOnce(ctx)

		select {
		case <-ctx.Done():
			log.Info("Sync scheduler stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce syncs all accounts and returns how many failed.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	accountIDs, err := s.accounts.ListAccountIDs(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to list accounts for sync")
		return 0
	}

	failed := 0
	for _, accountID := range accountIDs {
		if ctx.Err() != nil {
			return failed
		}

		if err := s.syncer.Sync(ctx, accountID); err != nil {
			if errors.Is(err, ErrSyncInProgress) {
				log.WithField("account_id", accountID).Debug("Skipping account, sync already running")
				continue
			}
			failed++
			log.WithField("account_id", accountID).WithError(err).Error("Scheduled sync failed")
		}
	}

	return failed
}
