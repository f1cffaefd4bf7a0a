// Package events carries sync notifications from the orchestrator to listeners
// such as the WebSocket hub and NATS.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const TypeSyncCompleted = "sync.completed"

// SyncKind tells a full sync from a delta sync.
type SyncKind string

const (
	SyncKindInitial     SyncKind = "initial"
	SyncKindIncremental SyncKind = "incremental"
)

// SyncEvent is emitted after a sync pass finished and its token was stored.
type SyncEvent struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	AccountID   string    `json:"account_id"`
	UserID      string    `json:"-"`
	Kind        SyncKind  `json:"kind"`
	Fetched     int       `json:"fetched"`
	Processed   int       `json:"processed"`
	Failed      int       `json:"failed"`
	Skipped     int       `json:"skipped"`
	CompletedAt time.Time `json:"completed_at"`
}

// NewSyncEvent stamps a completed-sync event with a fresh id.
func NewSyncEvent(accountID, userID string, kind SyncKind) SyncEvent {
	return SyncEvent{
		ID:          uuid.NewString(),
		Type:        TypeSyncCompleted,
		AccountID:   accountID,
		UserID:      userID,
		Kind:        kind,
		CompletedAt: time.Now().UTC(),
	}
}

// Notifier receives sync events. Implementations must be safe for concurrent use.
type Notifier interface {
	NotifySync(ctx context.Context, event SyncEvent) error
}

// Noop drops every event.
type Noop struct{}

func (Noop) NotifySync(context.Context, SyncEvent) error { return nil }

// Fanout delivers each event to every notifier and joins their errors.
type Fanout []Notifier

func (f Fanout) NotifySync(ctx context.Context, event SyncEvent) error {
	var errs []error
	for _, notifier := range f {
		if notifier == nil {
			continue
		}
		if err := notifier.NotifySync(ctx, event); err != nil {
			log.WithField("event_id", event.ID).WithError(err).Warn("Failed to deliver sync event")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
