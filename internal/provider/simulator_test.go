package provider

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulatorSessionsAreUnique(t *testing.T) {
	t.Parallel()

	clock := time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)
	sim := NewSimulator(30*time.Minute, func() time.Time {
		clock = clock.Add(time.Nanosecond)
		return clock
	})

	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		handle, err := sim.CreateSession(context.Background(), "user-1", Contact{}, SessionTypeTransactionLink)
		require.NoError(t, err)
		if _, dup := seen[handle.ID]; dup {
			t.Fatalf("duplicate session id %s", handle.ID)
		}
		seen[handle.ID] = struct{}{}
		assert.Equal(t, handle.ID, handle.Token)
		assert.True(t, handle.ExpiresAt.After(clock))
	}
}

func TestSimulatorSessionTTL(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)
	sim := NewSimulator(10*time.Minute, func() time.Time { return now })

	handle, err := sim.CreateSession(context.Background(), "user-1", Contact{}, SessionTypeTransactionLink)
	require.NoError(t, err)
	assert.Equal(t, now.Add(10*time.Minute), handle.ExpiresAt)
}

func TestSimulatorMerchantFilter(t *testing.T) {
	t.Parallel()

	sim := NewSimulator(0, nil)

	all, err := sim.ListMerchants(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	switchers, err := sim.ListMerchants(context.Background(), SessionTypeCardSwitcher)
	require.NoError(t, err)
	require.Len(t, switchers, 1)
	assert.Equal(t, "UberEats", switchers[0].Name)
}

func TestSimulatorGetAccountsMerchantFilter(t *testing.T) {
	t.Parallel()

	sim := NewSimulator(0, nil)

	accounts, err := sim.GetAccounts(context.Background(), "user-1", "")
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "44", accounts[0].MerchantID)

	none, err := sim.GetAccounts(context.Background(), "user-1", "19")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSimulatorTransactionPaging(t *testing.T) {
	t.Parallel()

	sim := NewSimulator(0, nil)
	ctx := context.Background()

	var all []Transaction
	cursor := ""
	pages := 0
	for {
		page, err := sim.SyncTransactions(ctx, SyncParams{UserID: "user-1", MerchantID: "44", Cursor: cursor, Limit: 3})
		require.NoError(t, err)
		all = append(all, page.Transactions...)
		pages++
		if !page.HasMore {
			assert.Empty(t, page.NextCursor)
			break
		}
		require.NotEmpty(t, page.NextCursor)
		cursor = page.NextCursor
	}

	assert.Equal(t, 3, pages)
	require.Len(t, all, transactionsPerMerchant)

	// Pages never overlap and the feed is deterministic.
	seen := make(map[string]struct{})
	for _, txn := range all {
		if _, dup := seen[txn.ID]; dup {
			t.Fatalf("duplicate transaction %s across pages", txn.ID)
		}
		seen[txn.ID] = struct{}{}
		assert.Equal(t, "44", txn.MerchantID)
	}

	again, err := sim.SyncTransactions(ctx, SyncParams{UserID: "user-1", MerchantID: "44", Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, all[:3], again.Transactions)
}

func TestSimulatorRejectsMalformedCursor(t *testing.T) {
	t.Parallel()

	sim := NewSimulator(0, nil)
	_, err := sim.SyncTransactions(context.Background(), SyncParams{UserID: "user-1", MerchantID: "44", Cursor: "garbage"})
	require.Error(t, err)

	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, 400, apiErr.StatusCode)
	assert.False(t, apiErr.Unavailable())
}
