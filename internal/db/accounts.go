package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/vdavid/outreach/backend/internal/models"
)

// ErrAccountNotFound is returned when an account does not exist or belongs to another user.
var ErrAccountNotFound = errors.New("account not found")

const accountColumns = `id, user_id, email_address, name, sealed_access_token, next_delta_token, created_at, updated_at`

func scanAccount(row pgx.Row) (*models.Account, error) {
	var account models.Account
	err := row.Scan(
		&account.ID,
		&account.UserID,
		&account.EmailAddress,
		&account.Name,
		&account.SealedAccessToken,
		&account.NextDeltaToken,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// SaveAccount inserts a linked mailbox or refreshes its profile and token.
// The stored delta token is never touched here.
func SaveAccount(ctx context.Context, q Querier, account *models.Account) error {
	err := q.QueryRow(ctx, `
		INSERT INTO accounts (id, user_id, email_address, name, sealed_access_token)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			email_address = EXCLUDED.email_address,
			name = EXCLUDED.name,
			sealed_access_token = EXCLUDED.sealed_access_token,
			updated_at = now()
		RETURNING created_at, updated_at
	`, account.ID, account.UserID, account.EmailAddress, account.Name, account.SealedAccessToken).
		Scan(&account.CreatedAt, &account.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}

	return nil
}

// GetAccountByID returns the account with the given provider id.
func GetAccountByID(ctx context.Context, q Querier, accountID string) (*models.Account, error) {
	account, err := scanAccount(q.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE id = $1
	`, accountID))

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAccountNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return account, nil
}

// GetAccountForUser returns the account only if the user owns it.
func GetAccountForUser(ctx context.Context, q Querier, userID, accountID string) (*models.Account, error) {
	account, err := scanAccount(q.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE id = $1 AND user_id = $2
	`, accountID, userID))

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAccountNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return account, nil
}

// GetAccountsForUser returns the user's linked accounts, oldest first.
func GetAccountsForUser(ctx context.Context, q Querier, userID string) ([]*models.Account, error) {
	rows, err := q.Query(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE user_id = $1
		ORDER BY created_at, id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, account)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}

	return accounts, nil
}

// ListAccountIDs returns the ids of every linked account.
func ListAccountIDs(ctx context.Context, q Querier) ([]string, error) {
	rows, err := q.Query(ctx, `SELECT id FROM accounts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan account ids: %w", err)
	}

	return ids, nil
}

// SetNextDeltaToken stores the continuation token after a successful sync pass.
func SetNextDeltaToken(ctx context.Context, q Querier, accountID, token string) error {
	tag, err := q.Exec(ctx, `
		UPDATE accounts
		SET next_delta_token = $2, updated_at = now()
		WHERE id = $1
	`, accountID, token)

	if err != nil {
		return fmt.Errorf("failed to set next delta token: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}

	return nil
}
