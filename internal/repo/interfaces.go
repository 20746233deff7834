package repo

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a keyed record does not exist.
var ErrNotFound = errors.New("not found")

// Session status values. Expiry is computed from ExpiresAt at read time and
// never written back, so "expired" exists only as a derived view.
const (
	SessionStatusPending   = "pending"
	SessionStatusCompleted = "completed"
	SessionStatusExpired   = "expired"
)

// Linked-account status values. Accounts are soft-revoked, never deleted.
const (
	AccountStatusActive  = "active"
	AccountStatusRevoked = "revoked"
)

// LinkSession is one attempt to link accounts through the provider widget.
// Sessions are retained after completion for audit and idempotency.
type LinkSession struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id"`
	Token     string            `json:"token"`
	Mode      string            `json:"mode"`
	Status    string            `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	ExpiresAt time.Time         `json:"expires_at"`
	Result    *CompletionResult `json:"result,omitempty"`
}

// Expired reports whether the session's validity window has passed.
func (s *LinkSession) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// CompletionResult is the reconciliation outcome cached on a completed
// session so duplicate completion calls return the original counts.
type CompletionResult struct {
	AccountsLinked int    `json:"accounts_linked"`
	Message        string `json:"message"`
}

// LinkedAccount is an external account associated with a user. The dedup key
// is (UserID, ProviderAccountID).
type LinkedAccount struct {
	ID                string          `json:"id"`
	UserID            string          `json:"user_id"`
	ProviderAccountID string          `json:"provider_account_id"`
	MerchantID        string          `json:"merchant_id"`
	MerchantName      string          `json:"merchant_name"`
	Label             string          `json:"label"`
	Permissions       map[string]bool `json:"permissions"`
	Status            string          `json:"status"`
	LastSyncedAt      time.Time       `json:"last_synced_at"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// UpsertLinkedAccountParams holds parameters for reconciling one
// provider-reported account into the store.
type UpsertLinkedAccountParams struct {
	UserID            string
	ProviderAccountID string
	MerchantID        string
	MerchantName      string
	Label             string
	Permissions       map[string]bool
}

// CachedTransaction is a transaction row held in the per-user sync cache.
type CachedTransaction struct {
	ID           string                 `json:"id"`
	MerchantID   string                 `json:"merchant_id"`
	MerchantName string                 `json:"merchant_name"`
	Amount       float64                `json:"amount"`
	Currency     string                 `json:"currency"`
	Description  string                 `json:"description"`
	Date         string                 `json:"date"`
	Category     string                 `json:"category,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// SessionStore persists linking sessions keyed by session ID.
type SessionStore interface {
	Put(ctx context.Context, session LinkSession) error
	Get(ctx context.Context, id string) (LinkSession, error)
	// Complete atomically transitions pending -> completed and stores the
	// reconciliation result. The bool reports whether this call performed
	// the transition; losers receive the winner's stored session.
	Complete(ctx context.Context, id string, result CompletionResult) (LinkSession, bool, error)
}

// AccountStore persists linked accounts keyed by user.
type AccountStore interface {
	// Upsert inserts or updates by (UserID, ProviderAccountID). The bool
	// reports whether a new row was created.
	Upsert(ctx context.Context, params UpsertLinkedAccountParams) (LinkedAccount, bool, error)
	Get(ctx context.Context, userID, accountID string) (LinkedAccount, error)
	ListActive(ctx context.Context, userID string) ([]LinkedAccount, error)
	Revoke(ctx context.Context, userID, accountID string) (LinkedAccount, error)
	// TouchSynced bumps LastSyncedAt on the user's accounts for a merchant.
	TouchSynced(ctx context.Context, userID, merchantID string, at time.Time) error
}

// TransactionStore holds per-(user, merchant) sync cursors and the per-user
// transaction cache.
type TransactionStore interface {
	GetCursor(ctx context.Context, userID, merchantID string) (string, bool, error)
	PutCursor(ctx context.Context, userID, merchantID, cursor string) error
	Merge(ctx context.Context, userID string, transactions []CachedTransaction) error
	List(ctx context.Context, userID, merchantID string, limit int) ([]CachedTransaction, error)
}
