package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vdavid/outreach/backend/internal/models"
)

// IngestStore is the storage surface used when writing fetched messages.
// This allows the ingestion code to be tested with mock implementations.
type IngestStore interface {
	ResolveAddress(ctx context.Context, accountID string, addr models.EmailAddress) (string, error)
	UpsertThread(ctx context.Context, thread *models.Thread) error
	UpsertEmail(ctx context.Context, email *models.Email) (previousThreadID string, err error)
	RecomputeThreadStatus(ctx context.Context, threadID string) error
	UpsertAttachment(ctx context.Context, attachment *models.EmailAttachment) error
}

// AccountStore is the storage surface used by the sync orchestrator.
type AccountStore interface {
	GetAccountByID(ctx context.Context, accountID string) (*models.Account, error)
	SetNextDeltaToken(ctx context.Context, accountID, token string) error
	ListAccountIDs(ctx context.Context) ([]string, error)
}

// PoolStore implements IngestStore and AccountStore on a connection pool.
type PoolStore struct {
	pool *pgxpool.Pool
}

// NewStore creates a store backed by the given pool. The caller owns the pool's lifecycle.
func NewStore(pool *pgxpool.Pool) *PoolStore {
	return &PoolStore{pool: pool}
}

func (s *PoolStore) ResolveAddress(ctx context.Context, accountID string, addr models.EmailAddress) (string, error) {
	return ResolveAddress(ctx, s.pool, accountID, addr)
}

func (s *PoolStore) UpsertThread(ctx context.Context, thread *models.Thread) error {
	return UpsertThread(ctx, s.pool, thread)
}

func (s *PoolStore) UpsertEmail(ctx context.Context, email *models.Email) (string, error) {
	return UpsertEmail(ctx, s.pool, email)
}

func (s *PoolStore) RecomputeThreadStatus(ctx context.Context, threadID string) error {
	return RecomputeThreadStatus(ctx, s.pool, threadID)
}

func (s *PoolStore) UpsertAttachment(ctx context.Context, attachment *models.EmailAttachment) error {
	return UpsertAttachment(ctx, s.pool, attachment)
}

func (s *PoolStore) GetAccountByID(ctx context.Context, accountID string) (*models.Account, error) {
	return GetAccountByID(ctx, s.pool, accountID)
}

func (s *PoolStore) SetNextDeltaToken(ctx context.Context, accountID, token string) error {
	return SetNextDeltaToken(ctx, s.pool, accountID, token)
}

func (s *PoolStore) ListAccountIDs(ctx context.Context) ([]string, error) {
	return ListAccountIDs(ctx, s.pool)
}
