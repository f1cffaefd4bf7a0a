package models

import (
	"time"
)

// User represents an application user who owns linked mailboxes.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Account is one linked mailbox. The ID is assigned by the mail provider.
// The access token is only ever stored sealed, and NextDeltaToken stays nil
// until the first full sync completes.
type Account struct {
	ID                string    `json:"id"`
	UserID            string    `json:"user_id"`
	EmailAddress      string    `json:"email_address"`
	Name              string    `json:"name"`
	SealedAccessToken []byte    `json:"-"`
	NextDeltaToken    *string   `json:"-"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// HasSynced reports whether the account completed at least one full sync.
func (a *Account) HasSynced() bool {
	return a.NextDeltaToken != nil && *a.NextDeltaToken != ""
}

// AccountResponse is the API view of an account.
type AccountResponse struct {
	ID           string `json:"id"`
	EmailAddress string `json:"email_address"`
	Name         string `json:"name"`
	Synced       bool   `json:"synced"`
}

// SyncResponse is returned by the sync endpoints.
type SyncResponse struct {
	Success bool `json:"success"`
}
