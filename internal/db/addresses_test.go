package db

import (
	"context"
	"sync"
	"testing"

	"github.com/vdavid/outreach/backend/internal/models"
	"github.com/vdavid/outreach/backend/internal/testutil"
)

func TestResolveAddress(t *testing.T) {
	pool := testutil.NewTestDB(t)
	ctx := context.Background()

	createTestAccount(t, ctx, pool, "acc-1", "owner@example.com")
	createTestAccount(t, ctx, pool, "acc-2", "other@example.com")

	t.Run("first write wins", func(t *testing.T) {
		first := models.EmailAddress{Address: "alice@example.com", Name: "Alice", Raw: "Alice <alice@example.com>"}
		id1, err := ResolveAddress(ctx, pool, "acc-1", first)
		if err != nil {
			t.Fatalf("ResolveAddress failed: %v", err)
		}

		second := models.EmailAddress{Address: "alice@example.com", Name: "Alice Renamed"}
		id2, err := ResolveAddress(ctx, pool, "acc-1", second)
		if err != nil {
			t.Fatalf("ResolveAddress failed: %v", err)
		}

		if id1 != id2 {
			t.Fatalf("Expected the same id for the same address, got %s and %s", id1, id2)
		}

		addresses, err := GetAddressesByIDs(ctx, pool, []string{id1})
		if err != nil {
			t.Fatalf("GetAddressesByIDs failed: %v", err)
		}
		if addresses[id1].Name != "Alice" {
			t.Errorf("Expected first-seen name Alice, got %s", addresses[id1].Name)
		}
		if addresses[id1].Raw != "Alice <alice@example.com>" {
			t.Errorf("Expected first-seen raw value, got %s", addresses[id1].Raw)
		}
	})

	t.Run("scoped per account", func(t *testing.T) {
		addr := models.EmailAddress{Address: "shared@example.com"}
		id1, err := ResolveAddress(ctx, pool, "acc-1", addr)
		if err != nil {
			t.Fatalf("ResolveAddress failed: %v", err)
		}
		id2, err := ResolveAddress(ctx, pool, "acc-2", addr)
		if err != nil {
			t.Fatalf("ResolveAddress failed: %v", err)
		}
		if id1 == id2 {
			t.Error("Expected distinct rows for distinct accounts")
		}
	})

	t.Run("concurrent callers share one row", func(t *testing.T) {
		const callers = 10
		ids := make([]string, callers)
		errs := make([]error, callers)

		var wg sync.WaitGroup
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				ids[i], errs[i] = ResolveAddress(ctx, pool, "acc-1", models.EmailAddress{Address: "race@example.com"})
			}(i)
		}
		wg.Wait()

		for i := 0; i < callers; i++ {
			if errs[i] != nil {
				t.Fatalf("caller %d failed: %v", i, errs[i])
			}
			if ids[i] != ids[0] {
				t.Errorf("caller %d got id %s, expected %s", i, ids[i], ids[0])
			}
		}

		var count int
		err := pool.QueryRow(ctx, `
			SELECT COUNT(*) FROM email_addresses WHERE account_id = $1 AND address = $2
		`, "acc-1", "race@example.com").Scan(&count)
		if err != nil {
			t.Fatalf("count query failed: %v", err)
		}
		if count != 1 {
			t.Errorf("Expected exactly one address row, got %d", count)
		}
	})
}
