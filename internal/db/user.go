package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyUserEmail is returned when a user is looked up without an email.
var ErrEmptyUserEmail = errors.New("user email is empty")

// GetOrCreateUser maps an authenticated operator to their user row, creating it
// on first sight. Linked mailboxes hang off this id. Emails are compared
// case-insensitively, so "Owner@Example.com" and "owner@example.com" are one user.
func GetOrCreateUser(ctx context.Context, q Querier, email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", ErrEmptyUserEmail
	}

	var userID string
	err := q.QueryRow(ctx, `
		INSERT INTO users (email)
		VALUES ($1)
		ON CONFLICT (email) DO UPDATE SET email = EXCLUDED.email
		RETURNING id
	`, email).Scan(&userID)
	if err != nil {
		return "", fmt.Errorf("failed to get or create user %s: %w", email, err)
	}

	return userID, nil
}
