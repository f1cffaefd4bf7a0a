package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/vdavid/outreach/backend/internal/models"
)

// ResolveAddress returns the id of the (account, address) row, creating it on first sight.
// An existing row keeps its first-seen name and raw value. The no-op update
// makes RETURNING yield the existing id, so concurrent callers agree on one row.
func ResolveAddress(ctx context.Context, q Querier, accountID string, addr models.EmailAddress) (string, error) {
	var id string

	err := q.QueryRow(ctx, `
		INSERT INTO email_addresses (id, account_id, address, name, raw)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (account_id, address) DO UPDATE SET address = EXCLUDED.address
		RETURNING id::text
	`, uuid.NewString(), accountID, addr.Address, addr.Name, addr.Raw).Scan(&id)

	if err != nil {
		return "", fmt.Errorf("failed to resolve address %s: %w", addr.Address, err)
	}

	return id, nil
}

// GetAddressesByIDs loads address rows keyed by id. Unknown ids are left out.
func GetAddressesByIDs(ctx context.Context, q Querier, ids []string) (map[string]models.EmailAddress, error) {
	addresses := make(map[string]models.EmailAddress, len(ids))
	if len(ids) == 0 {
		return addresses, nil
	}

	rows, err := q.Query(ctx, `
		SELECT id::text, account_id, address, name, raw
		FROM email_addresses
		WHERE id = ANY($1::text[]::uuid[])
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get addresses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var addr models.EmailAddress
		if err := rows.Scan(&addr.ID, &addr.AccountID, &addr.Address, &addr.Name, &addr.Raw); err != nil {
			return nil, fmt.Errorf("failed to scan address: %w", err)
		}
		addresses[addr.ID] = addr
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating addresses: %w", err)
	}

	return addresses, nil
}
