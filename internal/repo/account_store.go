package repo

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type accountShard struct {
	mu sync.RWMutex
	// userID -> providerAccountID -> account
	byUser map[string]map[string]*LinkedAccount
}

type accountStore struct {
	shards [shardCount]accountShard
	now    func() time.Time
}

// NewAccountStore creates an in-memory linked-account store sharded by user.
func NewAccountStore() AccountStore {
	s := &accountStore{now: time.Now}
	for i := range s.shards {
		s.shards[i].byUser = make(map[string]map[string]*LinkedAccount)
	}
	return s
}

func (s *accountStore) shard(userID string) *accountShard {
	return &s.shards[shardIndex(userID)]
}

func (s *accountStore) Upsert(_ context.Context, params UpsertLinkedAccountParams) (LinkedAccount, bool, error) {
	shard := s.shard(params.UserID)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	accounts := shard.byUser[params.UserID]
	if accounts == nil {
		accounts = make(map[string]*LinkedAccount)
		shard.byUser[params.UserID] = accounts
	}

	now := s.now().UTC()

	if existing, ok := accounts[params.ProviderAccountID]; ok {
		// Relink of a known provider account: refresh metadata in place.
		// A previously revoked account comes back active.
		existing.MerchantID = params.MerchantID
		existing.MerchantName = params.MerchantName
		existing.Label = params.Label
		existing.Permissions = copyPermissions(params.Permissions)
		existing.Status = AccountStatusActive
		existing.LastSyncedAt = now
		existing.UpdatedAt = now
		return copyAccount(existing), false, nil
	}

	account := &LinkedAccount{
		ID:                uuid.New().String(),
		UserID:            params.UserID,
		ProviderAccountID: params.ProviderAccountID,
		MerchantID:        params.MerchantID,
		MerchantName:      params.MerchantName,
		Label:             params.Label,
		Permissions:       copyPermissions(params.Permissions),
		Status:            AccountStatusActive,
		LastSyncedAt:      now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	accounts[params.ProviderAccountID] = account
	return copyAccount(account), true, nil
}

func (s *accountStore) Get(_ context.Context, userID, accountID string) (LinkedAccount, error) {
	shard := s.shard(userID)
	shard.mu.RLock()
	defer shard.mu.RUnlock()

	for _, account := range shard.byUser[userID] {
		if account.ID == accountID {
			return copyAccount(account), nil
		}
	}
	return LinkedAccount{}, ErrNotFound
}

func (s *accountStore) ListActive(_ context.Context, userID string) ([]LinkedAccount, error) {
	shard := s.shard(userID)
	shard.mu.RLock()
	defer shard.mu.RUnlock()

	var out []LinkedAccount
	for _, account := range shard.byUser[userID] {
		if account.Status == AccountStatusActive {
			out = append(out, copyAccount(account))
		}
	}
	return out, nil
}

func (s *accountStore) Revoke(_ context.Context, userID, accountID string) (LinkedAccount, error) {
	shard := s.shard(userID)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	for _, account := range shard.byUser[userID] {
		if account.ID == accountID {
			account.Status = AccountStatusRevoked
			account.UpdatedAt = s.now().UTC()
			return copyAccount(account), nil
		}
	}
	return LinkedAccount{}, ErrNotFound
}

func (s *accountStore) TouchSynced(_ context.Context, userID, merchantID string, at time.Time) error {
	shard := s.shard(userID)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	for _, account := range shard.byUser[userID] {
		if account.MerchantID == merchantID && account.Status == AccountStatusActive {
			account.LastSyncedAt = at
			account.UpdatedAt = at
		}
	}
	return nil
}

func copyAccount(a *LinkedAccount) LinkedAccount {
	out := *a
	out.Permissions = copyPermissions(a.Permissions)
	return out
}

func copyPermissions(p map[string]bool) map[string]bool {
	if p == nil {
		return nil
	}
	out := make(map[string]bool, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
