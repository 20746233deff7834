package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattice/backend/internal/provider"
)

func TestAccountListServesStoredView(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	linkMerchant(t, f, "user-1", "acct-1", "44", "Amazon")

	accounts, err := f.accounts.List(ctx, "user-1", false)
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
	assert.Equal(t, int32(0), f.fake.getAccountsCalls.Load(), "a fresh store needs no provider call")
}

func TestAccountListForceRefresh(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	linkMerchant(t, f, "user-1", "acct-1", "44", "Amazon")
	f.fake.accounts = []provider.Account{
		providerAccount("acct-1", "44", "Amazon"),
		providerAccount("acct-2", "19", "DoorDash"),
	}

	accounts, err := f.accounts.List(ctx, "user-1", true)
	require.NoError(t, err)
	assert.Len(t, accounts, 2)
	assert.Equal(t, int32(1), f.fake.getAccountsCalls.Load())
}

func TestAccountListForceRefreshSurfacesErrors(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	linkMerchant(t, f, "user-1", "acct-1", "44", "Amazon")
	f.fake.accountsErr = &provider.APIError{StatusCode: 503, Message: "down"}

	_, err := f.accounts.List(ctx, "user-1", true)
	require.Error(t, err)

	apiErr, ok := provider.AsAPIError(err)
	require.True(t, ok)
	assert.True(t, apiErr.Unavailable())
}

func TestAccountListStaleFallsBackOnFailure(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	linkMerchant(t, f, "user-1", "acct-1", "44", "Amazon")

	// Everything in the store is past the staleness window, and the provider
	// is down. The caller never asked for a refresh, so the stored view wins.
	f.accounts.now = func() time.Time { return time.Now().Add(24 * time.Hour) }
	f.fake.accountsErr = &provider.APIError{StatusCode: 503, Message: "down"}

	accounts, err := f.accounts.List(ctx, "user-1", false)
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
	assert.Equal(t, int32(1), f.fake.getAccountsCalls.Load(), "staleness must trigger the refresh attempt")
}

func TestAccountListEmptyStoreNeverRefreshes(t *testing.T) {
	t.Parallel()

	f := newFixture()

	accounts, err := f.accounts.List(context.Background(), "user-1", true)
	require.NoError(t, err)
	assert.Empty(t, accounts)
	assert.Equal(t, int32(0), f.fake.getAccountsCalls.Load())
}

func TestAccountRevoke(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	linkMerchant(t, f, "user-1", "acct-1", "44", "Amazon")

	stored, err := f.accountStore.ListActive(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, stored, 1)

	revoked, err := f.accounts.Revoke(ctx, "user-1", stored[0].ID)
	require.NoError(t, err)
	assert.Equal(t, stored[0].ID, revoked.ID)

	remaining, err := f.accounts.List(ctx, "user-1", false)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestAccountRevokeLastAccountTriggersProviderCleanup(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	linkMerchant(t, f, "user-1", "acct-1", "44", "Amazon")
	linkMerchant(t, f, "user-1", "acct-2", "19", "DoorDash")

	stored, err := f.accountStore.ListActive(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, stored, 2)

	_, err = f.accounts.Revoke(ctx, "user-1", stored[0].ID)
	require.NoError(t, err)
	assert.Equal(t, int32(0), f.fake.deleteUserCalls.Load(), "accounts remain, no provider cleanup yet")

	_, err = f.accounts.Revoke(ctx, "user-1", stored[1].ID)
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.fake.deleteUserCalls.Load())
}

func TestAccountRevokeMissing(t *testing.T) {
	t.Parallel()

	f := newFixture()
	_, err := f.accounts.Revoke(context.Background(), "user-1", "nope")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestAccountRevokeOtherUsersAccount(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	linkMerchant(t, f, "user-1", "acct-1", "44", "Amazon")

	stored, err := f.accountStore.ListActive(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, stored, 1)

	_, err = f.accounts.Revoke(ctx, "user-2", stored[0].ID)
	assert.ErrorIs(t, err, ErrAccountNotFound)
}
