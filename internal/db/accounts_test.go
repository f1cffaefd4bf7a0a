package db

import (
	"context"
	"errors"
	"testing"

	"github.com/vdavid/outreach/backend/internal/testutil"
)

func TestSaveAndGetAccount(t *testing.T) {
	pool := testutil.NewTestDB(t)
	ctx := context.Background()

	account := createTestAccount(t, ctx, pool, "acc-1", "owner@example.com")

	t.Run("new account has no delta token", func(t *testing.T) {
		retrieved, err := GetAccountByID(ctx, pool, "acc-1")
		if err != nil {
			t.Fatalf("GetAccountByID failed: %v", err)
		}
		if retrieved.EmailAddress != "owner@example.com" {
			t.Errorf("Expected email owner@example.com, got %s", retrieved.EmailAddress)
		}
		if string(retrieved.SealedAccessToken) != "sealed" {
			t.Errorf("Expected sealed token to round-trip, got %q", retrieved.SealedAccessToken)
		}
		if retrieved.HasSynced() {
			t.Error("Expected a new account to not be synced")
		}
	})

	t.Run("relinking keeps the delta token", func(t *testing.T) {
		if err := SetNextDeltaToken(ctx, pool, "acc-1", "T1"); err != nil {
			t.Fatalf("SetNextDeltaToken failed: %v", err)
		}

		account.Name = "Renamed"
		account.SealedAccessToken = []byte("resealed")
		if err := SaveAccount(ctx, pool, account); err != nil {
			t.Fatalf("SaveAccount failed: %v", err)
		}

		retrieved, err := GetAccountByID(ctx, pool, "acc-1")
		if err != nil {
			t.Fatalf("GetAccountByID failed: %v", err)
		}
		if retrieved.Name != "Renamed" {
			t.Errorf("Expected name to be updated, got %s", retrieved.Name)
		}
		if retrieved.NextDeltaToken == nil || *retrieved.NextDeltaToken != "T1" {
			t.Errorf("Expected delta token T1 to survive relinking, got %v", retrieved.NextDeltaToken)
		}
	})

	t.Run("ownership is enforced", func(t *testing.T) {
		otherUser, err := GetOrCreateUser(ctx, pool, "intruder@example.com")
		if err != nil {
			t.Fatalf("GetOrCreateUser failed: %v", err)
		}

		_, err = GetAccountForUser(ctx, pool, otherUser, "acc-1")
		if !errors.Is(err, ErrAccountNotFound) {
			t.Errorf("Expected ErrAccountNotFound, got %v", err)
		}

		owned, err := GetAccountForUser(ctx, pool, account.UserID, "acc-1")
		if err != nil {
			t.Fatalf("GetAccountForUser failed: %v", err)
		}
		if owned.ID != "acc-1" {
			t.Errorf("Expected acc-1, got %s", owned.ID)
		}
	})

	t.Run("unknown account", func(t *testing.T) {
		_, err := GetAccountByID(ctx, pool, "missing")
		if !errors.Is(err, ErrAccountNotFound) {
			t.Errorf("Expected ErrAccountNotFound, got %v", err)
		}

		err = SetNextDeltaToken(ctx, pool, "missing", "T9")
		if !errors.Is(err, ErrAccountNotFound) {
			t.Errorf("Expected ErrAccountNotFound from SetNextDeltaToken, got %v", err)
		}
	})
}

func TestListAccounts(t *testing.T) {
	pool := testutil.NewTestDB(t)
	ctx := context.Background()

	first := createTestAccount(t, ctx, pool, "acc-b", "b@example.com")
	createTestAccount(t, ctx, pool, "acc-a", "a@example.com")

	ids, err := ListAccountIDs(ctx, pool)
	if err != nil {
		t.Fatalf("ListAccountIDs failed: %v", err)
	}
	if len(ids) != 2 || ids[0] != "acc-a" || ids[1] != "acc-b" {
		t.Errorf("Expected [acc-a acc-b], got %v", ids)
	}

	accounts, err := GetAccountsForUser(ctx, pool, first.UserID)
	if err != nil {
		t.Fatalf("GetAccountsForUser failed: %v", err)
	}
	if len(accounts) != 1 || accounts[0].ID != "acc-b" {
		t.Errorf("Expected only acc-b for its owner, got %d accounts", len(accounts))
	}
}
