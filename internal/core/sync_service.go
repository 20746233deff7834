package core

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lattice/backend/internal/events"
	"github.com/lattice/backend/internal/provider"
	"github.com/lattice/backend/internal/repo"
)

// MerchantSyncResult reports one merchant's share of a sync call. A failed
// merchant carries Error and never aborts the others.
type MerchantSyncResult struct {
	MerchantID   string `json:"merchant_id"`
	MerchantName string `json:"merchant_name"`
	Count        int    `json:"count"`
	HasMore      bool   `json:"has_more"`
	NextCursor   string `json:"next_cursor,omitempty"`
	Error        string `json:"error,omitempty"`
}

// SyncResult is the union outcome of a transaction sync across merchants.
type SyncResult struct {
	Transactions []repo.CachedTransaction
	Merchants    []MerchantSyncResult
}

// SyncService is the transaction sync engine: it pulls transaction pages per
// (user, merchant) pair using the stored cursor, persists the returned
// cursor, and maintains the per-user cache for snapshot reads.
type SyncService struct {
	accounts     repo.AccountStore
	transactions repo.TransactionStore
	selector     *provider.Selector
	publisher    *events.Publisher
	now          func() time.Time
	logger       *zap.Logger
}

// NewSyncService creates a sync service.
func NewSyncService(accounts repo.AccountStore, transactions repo.TransactionStore, selector *provider.Selector, publisher *events.Publisher, logger *zap.Logger) *SyncService {
	return &SyncService{
		accounts:     accounts,
		transactions: transactions,
		selector:     selector,
		publisher:    publisher,
		now:          time.Now,
		logger:       logger.Named("sync_service"),
	}
}

// Sync pulls the next transaction page for each of the user's linked
// merchants (or the one requested). Failures are collected per merchant;
// partial success is success.
func (s *SyncService) Sync(ctx context.Context, userID, merchantID string, limit int) (SyncResult, error) {
	accounts, err := s.accounts.ListActive(ctx, userID)
	if err != nil {
		return SyncResult{}, fmt.Errorf("failed to list accounts: %w", err)
	}

	merchants := uniqueMerchants(accounts)
	if merchantID != "" {
		m, ok := merchants[merchantID]
		if !ok {
			return SyncResult{}, ErrMerchantNotLinked
		}
		merchants = map[string]string{merchantID: m}
	}

	client, mode := s.selector.Pick()
	result := SyncResult{}
	synced := 0

	for id, name := range merchants {
		merchantResult := MerchantSyncResult{MerchantID: id, MerchantName: name}

		cursor, _, err := s.transactions.GetCursor(ctx, userID, id)
		if err != nil {
			return SyncResult{}, fmt.Errorf("failed to load cursor: %w", err)
		}

		page, err := client.SyncTransactions(ctx, provider.SyncParams{
			UserID:     userID,
			MerchantID: id,
			Cursor:     cursor,
			Limit:      limit,
		})
		if err != nil {
			s.logger.Error("Merchant sync failed",
				zap.String("user_id", userID),
				zap.String("merchant_id", id),
				zap.Error(err))
			merchantResult.Error = syncErrorMessage(err)
			result.Merchants = append(result.Merchants, merchantResult)
			continue
		}

		// Persist the continuation point. An absent next cursor means the
		// history is caught up; the previous cursor stays so the next call
		// resumes from the end rather than re-reading from the start.
		if page.NextCursor != "" {
			if err := s.transactions.PutCursor(ctx, userID, id, page.NextCursor); err != nil {
				return SyncResult{}, fmt.Errorf("failed to store cursor: %w", err)
			}
		}

		cached := make([]repo.CachedTransaction, 0, len(page.Transactions))
		for _, txn := range page.Transactions {
			cached = append(cached, repo.CachedTransaction{
				ID:           txn.ID,
				MerchantID:   id,
				MerchantName: name,
				Amount:       txn.Amount,
				Currency:     txn.Currency,
				Description:  txn.Description,
				Date:         txn.Date,
				Category:     txn.Category,
				Metadata:     txn.Metadata,
			})
		}
		if err := s.transactions.Merge(ctx, userID, cached); err != nil {
			return SyncResult{}, fmt.Errorf("failed to cache transactions: %w", err)
		}
		if err := s.accounts.TouchSynced(ctx, userID, id, s.now().UTC()); err != nil {
			return SyncResult{}, fmt.Errorf("failed to update sync time: %w", err)
		}

		merchantResult.Count = len(cached)
		merchantResult.HasMore = page.HasMore
		merchantResult.NextCursor = page.NextCursor
		result.Merchants = append(result.Merchants, merchantResult)
		result.Transactions = append(result.Transactions, cached...)
		synced += len(cached)
	}

	s.logger.Info("Transaction sync finished",
		zap.String("user_id", userID),
		zap.String("mode", string(mode)),
		zap.Int("merchants", len(merchants)),
		zap.Int("transactions", synced))

	if synced > 0 {
		s.publisher.TransactionsSynced(userID, synced)
	}

	return result, nil
}

// Cached returns the last-synced transactions without calling the provider.
func (s *SyncService) Cached(ctx context.Context, userID, merchantID string, limit int) ([]repo.CachedTransaction, error) {
	transactions, err := s.transactions.List(ctx, userID, merchantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read transaction cache: %w", err)
	}
	return transactions, nil
}

// uniqueMerchants maps merchant ID to name across the user's active accounts.
func uniqueMerchants(accounts []repo.LinkedAccount) map[string]string {
	merchants := make(map[string]string, len(accounts))
	for _, a := range accounts {
		merchants[a.MerchantID] = a.MerchantName
	}
	return merchants
}

// syncErrorMessage renders a provider failure for the per-merchant report
// without leaking transport detail.
func syncErrorMessage(err error) string {
	if apiErr, ok := provider.AsAPIError(err); ok {
		if apiErr.Unavailable() {
			return "provider temporarily unavailable"
		}
		return fmt.Sprintf("provider rejected the request (%d)", apiErr.StatusCode)
	}
	return err.Error()
}
