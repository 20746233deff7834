package repo

import (
	"context"
	"sync"
)

type transactionShard struct {
	mu sync.RWMutex
	// userID -> merchantID -> cursor
	cursors map[string]map[string]string
	// userID -> cached transactions in insertion order, deduped by ID
	cache map[string]*userCache
}

type userCache struct {
	order []string
	byID  map[string]*CachedTransaction
}

type transactionStore struct {
	shards [shardCount]transactionShard
}

// NewTransactionStore creates the in-memory cursor store and transaction
// cache, sharded by user.
func NewTransactionStore() TransactionStore {
	s := &transactionStore{}
	for i := range s.shards {
		s.shards[i].cursors = make(map[string]map[string]string)
		s.shards[i].cache = make(map[string]*userCache)
	}
	return s
}

func (s *transactionStore) shard(userID string) *transactionShard {
	return &s.shards[shardIndex(userID)]
}

func (s *transactionStore) GetCursor(_ context.Context, userID, merchantID string) (string, bool, error) {
	shard := s.shard(userID)
	shard.mu.RLock()
	defer shard.mu.RUnlock()

	cursor, ok := shard.cursors[userID][merchantID]
	return cursor, ok, nil
}

func (s *transactionStore) PutCursor(_ context.Context, userID, merchantID, cursor string) error {
	shard := s.shard(userID)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	merchants := shard.cursors[userID]
	if merchants == nil {
		merchants = make(map[string]string)
		shard.cursors[userID] = merchants
	}
	merchants[merchantID] = cursor
	return nil
}

func (s *transactionStore) Merge(_ context.Context, userID string, transactions []CachedTransaction) error {
	shard := s.shard(userID)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	cache := shard.cache[userID]
	if cache == nil {
		cache = &userCache{byID: make(map[string]*CachedTransaction)}
		shard.cache[userID] = cache
	}

	for i := range transactions {
		txn := transactions[i]
		if _, ok := cache.byID[txn.ID]; !ok {
			cache.order = append(cache.order, txn.ID)
		}
		cache.byID[txn.ID] = &txn
	}
	return nil
}

func (s *transactionStore) List(_ context.Context, userID, merchantID string, limit int) ([]CachedTransaction, error) {
	shard := s.shard(userID)
	shard.mu.RLock()
	defer shard.mu.RUnlock()

	cache := shard.cache[userID]
	if cache == nil {
		return nil, nil
	}

	var out []CachedTransaction
	for _, id := range cache.order {
		txn := cache.byID[id]
		if merchantID != "" && txn.MerchantID != merchantID {
			continue
		}
		out = append(out, *txn)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
