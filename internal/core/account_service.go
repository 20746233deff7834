package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lattice/backend/internal/provider"
	"github.com/lattice/backend/internal/repo"
)

// AccountService serves the linked-account read and revoke surface.
type AccountService struct {
	accounts        repo.AccountStore
	selector        *provider.Selector
	stalenessWindow time.Duration
	now             func() time.Time
	logger          *zap.Logger
}

// NewAccountService creates an account service. stalenessWindow gates how
// old the stored view may be before a non-forced read refreshes it from the
// provider.
func NewAccountService(accounts repo.AccountStore, selector *provider.Selector, stalenessWindow time.Duration, logger *zap.Logger) *AccountService {
	return &AccountService{
		accounts:        accounts,
		selector:        selector,
		stalenessWindow: stalenessWindow,
		now:             time.Now,
		logger:          logger.Named("account_service"),
	}
}

// List returns the user's active linked accounts. forceRefresh pulls the
// provider's current view first and surfaces any provider failure;
// staleness-triggered refreshes fall back to the stored view on failure,
// since the caller never asked to pay provider latency.
func (s *AccountService) List(ctx context.Context, userID string, forceRefresh bool) ([]repo.LinkedAccount, error) {
	accounts, err := s.accounts.ListActive(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	refresh := forceRefresh || s.stale(accounts)
	if !refresh || len(accounts) == 0 {
		return accounts, nil
	}

	refreshed, err := s.refresh(ctx, userID)
	if err != nil {
		if forceRefresh {
			return nil, err
		}
		s.logger.Warn("Staleness refresh failed, serving stored view",
			zap.String("user_id", userID),
			zap.Error(err))
		return accounts, nil
	}
	return refreshed, nil
}

// Revoke soft-deletes a linked account after verifying ownership. When the
// last active account goes, the provider is asked to drop its linkage data
// for the user too; that cleanup is best-effort and never fails the revoke.
func (s *AccountService) Revoke(ctx context.Context, userID, accountID string) (repo.LinkedAccount, error) {
	account, err := s.accounts.Revoke(ctx, userID, accountID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return repo.LinkedAccount{}, ErrAccountNotFound
		}
		return repo.LinkedAccount{}, fmt.Errorf("failed to revoke account: %w", err)
	}

	s.logger.Info("Account revoked",
		zap.String("user_id", userID),
		zap.String("account_id", accountID),
		zap.String("merchant", account.MerchantName))

	remaining, err := s.accounts.ListActive(ctx, userID)
	if err == nil && len(remaining) == 0 {
		client, mode := s.selector.Pick()
		if err := client.DeleteUser(ctx, userID); err != nil {
			s.logger.Warn("Provider-side cleanup failed",
				zap.String("user_id", userID),
				zap.String("mode", string(mode)),
				zap.Error(err))
		}
	}

	return account, nil
}

func (s *AccountService) refresh(ctx context.Context, userID string) ([]repo.LinkedAccount, error) {
	client, mode := s.selector.Pick()

	providerAccounts, err := client.GetAccounts(ctx, userID, "")
	if err != nil {
		return nil, fmt.Errorf("failed to refresh accounts: %w", err)
	}

	for _, acc := range providerAccounts {
		if _, _, err := s.accounts.Upsert(ctx, repo.UpsertLinkedAccountParams{
			UserID:            userID,
			ProviderAccountID: acc.ID,
			MerchantID:        acc.MerchantID,
			MerchantName:      acc.MerchantName,
			Label:             acc.MerchantName + " Account",
			Permissions:       acc.Permissions,
		}); err != nil {
			return nil, fmt.Errorf("failed to upsert account: %w", err)
		}
	}

	s.logger.Info("Accounts refreshed from provider",
		zap.String("user_id", userID),
		zap.String("mode", string(mode)),
		zap.Int("count", len(providerAccounts)))

	return s.accounts.ListActive(ctx, userID)
}

// stale reports whether every stored account is older than the staleness
// window. An empty store is never stale: there is nothing to refresh.
func (s *AccountService) stale(accounts []repo.LinkedAccount) bool {
	if len(accounts) == 0 {
		return false
	}
	cutoff := s.now().Add(-s.stalenessWindow)
	for _, a := range accounts {
		if a.LastSyncedAt.After(cutoff) {
			return false
		}
	}
	return true
}
