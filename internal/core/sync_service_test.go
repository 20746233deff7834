package core

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattice/backend/internal/provider"
	"github.com/lattice/backend/internal/repo"
)

func linkMerchant(t *testing.T, f *fixture, userID, providerAccountID, merchantID, merchantName string) {
	t.Helper()
	_, _, err := f.accountStore.Upsert(context.Background(), repo.UpsertLinkedAccountParams{
		UserID:            userID,
		ProviderAccountID: providerAccountID,
		MerchantID:        merchantID,
		MerchantName:      merchantName,
		Label:             merchantName + " Account",
	})
	require.NoError(t, err)
}

func syncPage(merchantID string, count int, nextCursor string) provider.TransactionSyncResult {
	result := provider.TransactionSyncResult{NextCursor: nextCursor, HasMore: nextCursor != ""}
	for i := 0; i < count; i++ {
		result.Transactions = append(result.Transactions, provider.Transaction{
			ID:          fmt.Sprintf("txn-%s-%d", merchantID, i),
			MerchantID:  merchantID,
			Amount:      10.0 + float64(i),
			Currency:    "USD",
			Description: fmt.Sprintf("Order %d", i),
		})
	}
	return result
}

func TestSyncAcrossMerchants(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	linkMerchant(t, f, "user-1", "acct-1", "44", "Amazon")
	linkMerchant(t, f, "user-1", "acct-2", "19", "DoorDash")

	f.fake.syncFn = func(params provider.SyncParams) (provider.TransactionSyncResult, error) {
		return syncPage(params.MerchantID, 2, ""), nil
	}

	result, err := f.sync.Sync(ctx, "user-1", "", 100)
	require.NoError(t, err)
	assert.Len(t, result.Transactions, 4)
	require.Len(t, result.Merchants, 2)
	for _, m := range result.Merchants {
		assert.Empty(t, m.Error)
		assert.Equal(t, 2, m.Count)
	}

	cached, err := f.sync.Cached(ctx, "user-1", "", 0)
	require.NoError(t, err)
	assert.Len(t, cached, 4)
}

func TestSyncPartialFailure(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	linkMerchant(t, f, "user-1", "acct-1", "44", "Amazon")
	linkMerchant(t, f, "user-1", "acct-2", "19", "DoorDash")

	f.fake.syncFn = func(params provider.SyncParams) (provider.TransactionSyncResult, error) {
		if params.MerchantID == "19" {
			return provider.TransactionSyncResult{}, &provider.APIError{StatusCode: 503, Message: "down"}
		}
		return syncPage(params.MerchantID, 3, ""), nil
	}

	result, err := f.sync.Sync(ctx, "user-1", "", 100)
	require.NoError(t, err, "one merchant failing must not abort the sync")
	assert.Len(t, result.Transactions, 3)

	byMerchant := make(map[string]MerchantSyncResult)
	for _, m := range result.Merchants {
		byMerchant[m.MerchantID] = m
	}
	assert.Empty(t, byMerchant["44"].Error)
	assert.Equal(t, 3, byMerchant["44"].Count)
	assert.Equal(t, "provider temporarily unavailable", byMerchant["19"].Error)
	assert.Zero(t, byMerchant["19"].Count)
}

func TestSyncCursorAdvancesAndSticks(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	linkMerchant(t, f, "user-1", "acct-1", "44", "Amazon")

	var gotCursors []string
	f.fake.syncFn = func(params provider.SyncParams) (provider.TransactionSyncResult, error) {
		gotCursors = append(gotCursors, params.Cursor)
		switch params.Cursor {
		case "":
			return syncPage("44", 2, "c1"), nil
		case "c1":
			return syncPage("44", 1, ""), nil
		default:
			// Caught up: nothing new, no next cursor.
			return provider.TransactionSyncResult{}, nil
		}
	}

	_, err := f.sync.Sync(ctx, "user-1", "44", 100)
	require.NoError(t, err)
	_, err = f.sync.Sync(ctx, "user-1", "44", 100)
	require.NoError(t, err)
	_, err = f.sync.Sync(ctx, "user-1", "44", 100)
	require.NoError(t, err)

	// The second page returned no next cursor, so the third call resumes
	// from the stored one instead of restarting the history.
	assert.Equal(t, []string{"", "c1", "c1"}, gotCursors)

	cursor, ok, err := f.txnStore.GetCursor(ctx, "user-1", "44")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "c1", cursor)
}

func TestSyncUnknownMerchant(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	linkMerchant(t, f, "user-1", "acct-1", "44", "Amazon")

	_, err := f.sync.Sync(ctx, "user-1", "99", 100)
	assert.ErrorIs(t, err, ErrMerchantNotLinked)
	assert.Equal(t, int32(0), f.fake.syncCalls.Load())
}

func TestSyncUpdatesLastSyncedAt(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	linkMerchant(t, f, "user-1", "acct-1", "44", "Amazon")

	before, err := f.accountStore.ListActive(ctx, "user-1")
	require.NoError(t, err)

	f.fake.syncFn = func(params provider.SyncParams) (provider.TransactionSyncResult, error) {
		return syncPage(params.MerchantID, 1, ""), nil
	}

	_, err = f.sync.Sync(ctx, "user-1", "44", 100)
	require.NoError(t, err)

	after, err := f.accountStore.ListActive(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.False(t, after[0].LastSyncedAt.Before(before[0].LastSyncedAt))
}

func TestCachedIsReadOnly(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	linkMerchant(t, f, "user-1", "acct-1", "44", "Amazon")

	transactions, err := f.sync.Cached(ctx, "user-1", "", 0)
	require.NoError(t, err)
	assert.Empty(t, transactions)
	assert.Equal(t, int32(0), f.fake.syncCalls.Load(), "snapshot reads never call the provider")
}
