package ingest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
	"github.com/vdavid/outreach/backend/internal/provider"
	"golang.org/x/sync/semaphore"
)

// MessageUpserter writes a single message. This allows the Pipeline to be tested
// with mock implementations.
type MessageUpserter interface {
	UpsertMessage(ctx context.Context, accountID string, msg provider.Message) error
}

// Result summarizes one Ingest call.
type Result struct {
	Processed int
	Failed    int
	Skipped   int
}

// Pipeline writes a fetched batch with a cap on batch size and on in-flight upserts.
type Pipeline struct {
	upserter    MessageUpserter
	limit       int
	concurrency int
}

// NewPipeline creates a pipeline that keeps the limit most recent messages of a
// batch and runs at most concurrency upserts at a time.
func NewPipeline(upserter MessageUpserter, limit, concurrency int) *Pipeline {
	if limit < 1 {
		limit = 1
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pipeline{
		upserter:    upserter,
		limit:       limit,
		concurrency: concurrency,
	}
}

// Ingest keeps the most recent messages by sentAt and upserts them concurrently.
// A failing message is logged and counted without affecting the others. Ingest
// returns after every started upsert has finished, and only errors when the
// context ends before all messages could be started.
func (p *Pipeline) Ingest(ctx context.Context, accountID string, messages []provider.Message) (Result, error) {
	batch := make([]provider.Message, len(messages))
	copy(batch, messages)
	sort.SliceStable(batch, func(i, j int) bool {
		return batch[i].SentAt.After(batch[j].SentAt)
	})

	var result Result
	if len(batch) > p.limit {
		result.Skipped = len(batch) - p.limit
		batch = batch[:p.limit]
	}

	sem := semaphore.NewWeighted(int64(p.concurrency))
	var wg sync.WaitGroup
	var processed, failed atomic.Int64
	var acquireErr error

	for _, msg := range batch {
		if err := sem.Acquire(ctx, 1); err != nil {
			acquireErr = err
			break
		}

		wg.Add(1)
		go func(msg provider.Message) {
			defer wg.Done()
			defer sem.Release(1)

			if err := p.upsert(ctx, accountID, msg); err != nil {
				log.WithFields(log.Fields{
					"account_id": accountID,
					"message_id": msg.ID,
				}).WithError(err).Error("Failed to ingest message")
				failed.Add(1)
				return
			}
			processed.Add(1)
		}(msg)
	}

	wg.Wait()

	result.Processed = int(processed.Load())
	result.Failed = int(failed.Load())

	log.WithFields(log.Fields{
		"account_id": accountID,
		"processed":  result.Processed,
		"failed":     result.Failed,
		"skipped":    result.Skipped,
	}).Info("Ingested batch")

	if acquireErr != nil {
		return result, fmt.Errorf("ingestion interrupted: %w", acquireErr)
	}

	return result, nil
}

// upsert turns a panic inside one upsert into that message's error.
func (p *Pipeline) upsert(ctx context.Context, accountID string, msg provider.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while ingesting message: %v", r)
		}
	}()
	return p.upserter.UpsertMessage(ctx, accountID, msg)
}
