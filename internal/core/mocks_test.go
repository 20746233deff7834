package core

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/lattice/backend/internal/config"
	"github.com/lattice/backend/internal/events"
	"github.com/lattice/backend/internal/provider"
	"github.com/lattice/backend/internal/repo"
)

// fakeProvider is a configurable provider.API for service tests.
type fakeProvider struct {
	name       string
	sessionTTL time.Duration
	now        func() time.Time

	accounts    []provider.Account
	accountsErr error
	merchants   []provider.Merchant

	// getAccountsFn, when set, replaces the canned accounts response.
	getAccountsFn func() ([]provider.Account, error)

	syncFn func(params provider.SyncParams) (provider.TransactionSyncResult, error)

	createCalls      atomic.Int32
	getAccountsCalls atomic.Int32
	syncCalls        atomic.Int32
	deleteUserCalls  atomic.Int32
}

func newFakeProvider(name string) *fakeProvider {
	return &fakeProvider{
		name:       name,
		sessionTTL: 30 * time.Minute,
		now:        time.Now,
	}
}

func (f *fakeProvider) CreateSession(_ context.Context, userID string, _ provider.Contact, _ string) (provider.SessionHandle, error) {
	n := f.createCalls.Add(1)
	id := fmt.Sprintf("%s-%s-%d", f.name, userID, n)
	return provider.SessionHandle{
		ID:        id,
		Token:     id,
		ExpiresAt: f.now().UTC().Add(f.sessionTTL),
	}, nil
}

func (f *fakeProvider) ExtendSession(_ context.Context, sessionID string) (provider.SessionHandle, error) {
	return provider.SessionHandle{
		ID:        sessionID,
		Token:     sessionID,
		ExpiresAt: f.now().UTC().Add(f.sessionTTL),
	}, nil
}

func (f *fakeProvider) ListMerchants(_ context.Context, _ string) ([]provider.Merchant, error) {
	return f.merchants, nil
}

func (f *fakeProvider) GetAccounts(_ context.Context, _, _ string) ([]provider.Account, error) {
	f.getAccountsCalls.Add(1)
	if f.getAccountsFn != nil {
		return f.getAccountsFn()
	}
	if f.accountsErr != nil {
		return nil, f.accountsErr
	}
	return f.accounts, nil
}

func (f *fakeProvider) SyncTransactions(_ context.Context, params provider.SyncParams) (provider.TransactionSyncResult, error) {
	f.syncCalls.Add(1)
	if f.syncFn != nil {
		return f.syncFn(params)
	}
	return provider.TransactionSyncResult{}, nil
}

func (f *fakeProvider) DeleteUser(_ context.Context, _ string) error {
	f.deleteUserCalls.Add(1)
	return nil
}

// fixture wires the services over in-memory stores and a fake provider in
// simulation mode.
type fixture struct {
	cfg          *config.Provider
	fake         *fakeProvider
	live         *fakeProvider
	selector     *provider.Selector
	sessionStore repo.SessionStore
	accountStore repo.AccountStore
	txnStore     repo.TransactionStore
	sessions     *SessionService
	links        *LinkService
	accounts     *AccountService
	sync         *SyncService
	onboarding   *OnboardingService
}

func newFixture() *fixture {
	logger := zap.NewNop()
	f := &fixture{
		cfg:          &config.Provider{Enabled: false},
		fake:         newFakeProvider("sim"),
		live:         newFakeProvider("live"),
		sessionStore: repo.NewSessionStore(0),
		accountStore: repo.NewAccountStore(),
		txnStore:     repo.NewTransactionStore(),
	}
	f.selector = provider.NewSelector(f.cfg, f.live, f.fake)

	publisher := events.NewPublisher(nil, logger)
	f.sessions = NewSessionService(f.sessionStore, f.selector, provider.SessionTypeTransactionLink, 30*time.Minute, logger)
	f.links = NewLinkService(f.sessions, f.accountStore, f.selector, publisher, logger)
	f.accounts = NewAccountService(f.accountStore, f.selector, 15*time.Minute, logger)
	f.sync = NewSyncService(f.accountStore, f.txnStore, f.selector, publisher, logger)
	f.onboarding = NewOnboardingService(f.sessions, f.links, logger)
	return f
}

// enableLive flips the fixture's configuration so the selector resolves to
// the live fake on the next call.
func (f *fixture) enableLive() {
	f.cfg.Enabled = true
	f.cfg.ClientID = "id"
	f.cfg.ClientSecret = "secret"
}

func (f *fixture) disableLive() {
	f.cfg.Enabled = false
}

func contact() provider.Contact {
	return provider.Contact{Email: "user@example.com"}
}

func providerAccount(id, merchantID, merchantName string) provider.Account {
	return provider.Account{
		ID:           id,
		MerchantID:   merchantID,
		MerchantName: merchantName,
		Status:       "active",
		Permissions:  map[string]bool{"transactions": true},
	}
}
