package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Simulator is the deterministic local substitute for the provider API. It
// is selected whenever credentials are absent or the live toggle is off, and
// produces responses with the same shape as the live client so downstream
// consumers cannot tell the modes apart structurally.
type Simulator struct {
	sessionTTL time.Duration
	now        func() time.Time
}

// NewSimulator creates a simulator. now is injectable for tests; pass nil
// for the real clock.
func NewSimulator(sessionTTL time.Duration, now func() time.Time) *Simulator {
	if sessionTTL <= 0 {
		sessionTTL = DefaultSessionTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Simulator{sessionTTL: sessionTTL, now: now}
}

// CreateSession synthesizes a session identifier embedding the user and a
// nanosecond timestamp, so rapid repeated calls from the same user never
// collide on provider-side session conflicts.
func (s *Simulator) CreateSession(_ context.Context, userID string, _ Contact, _ string) (SessionHandle, error) {
	now := s.now().UTC()
	id := fmt.Sprintf("sim-%s-%d", userID, now.UnixNano())
	return SessionHandle{
		ID:        id,
		Token:     id,
		ExpiresAt: now.Add(s.sessionTTL),
	}, nil
}

// ExtendSession returns the same session with a fresh expiry.
func (s *Simulator) ExtendSession(_ context.Context, sessionID string) (SessionHandle, error) {
	return SessionHandle{
		ID:        sessionID,
		Token:     sessionID,
		ExpiresAt: s.now().UTC().Add(s.sessionTTL),
	}, nil
}

// Simulated merchant catalog. IDs match the provider's real identifiers so
// switching a deployment to live mode keeps merchant references stable.
var simulatedMerchants = []Merchant{
	{ID: "44", Name: "Amazon", SupportedFeatures: []string{"transaction_link"}},
	{ID: "19", Name: "DoorDash", SupportedFeatures: []string{"transaction_link"}},
	{ID: "36", Name: "UberEats", SupportedFeatures: []string{"transaction_link", "card_switcher"}},
}

// ListMerchants returns the fixed catalog filtered by supported feature.
func (s *Simulator) ListMerchants(_ context.Context, merchantType string) ([]Merchant, error) {
	var out []Merchant
	for _, m := range simulatedMerchants {
		for _, f := range m.SupportedFeatures {
			if merchantType == "" || f == merchantType {
				out = append(out, m)
				break
			}
		}
	}
	return out, nil
}

// GetAccounts reports a single linked Amazon account for every user.
func (s *Simulator) GetAccounts(_ context.Context, userID, merchantID string) ([]Account, error) {
	accounts := []Account{
		{
			ID:           "acct-amazon-001",
			MerchantID:   "44",
			MerchantName: "Amazon",
			Status:       "active",
			Permissions:  map[string]bool{"transactions": true, "cards": true},
			LinkedAt:     s.now().UTC().Format(time.RFC3339),
		},
	}

	if merchantID == "" {
		return accounts, nil
	}
	var filtered []Account
	for _, a := range accounts {
		if a.MerchantID == merchantID {
			filtered = append(filtered, a)
		}
	}
	return filtered, nil
}

// transactionsPerMerchant is the size of each simulated merchant history.
const transactionsPerMerchant = 8

// SyncTransactions pages through a deterministic per-merchant history using
// an opaque offset cursor. The final page carries no next cursor.
func (s *Simulator) SyncTransactions(_ context.Context, params SyncParams) (TransactionSyncResult, error) {
	offset, err := decodeCursor(params.Cursor)
	if err != nil {
		return TransactionSyncResult{}, &APIError{StatusCode: 400, Message: "invalid cursor"}
	}

	limit := params.Limit
	if limit <= 0 {
		limit = 100
	}

	var page []Transaction
	for i := offset; i < transactionsPerMerchant && len(page) < limit; i++ {
		page = append(page, simulatedTransaction(params.MerchantID, i))
	}

	result := TransactionSyncResult{Transactions: page}
	if next := offset + len(page); next < transactionsPerMerchant {
		result.NextCursor = encodeCursor(next)
		result.HasMore = true
	}
	return result, nil
}

// DeleteUser is a no-op: the simulator holds no per-user state.
func (s *Simulator) DeleteUser(_ context.Context, _ string) error {
	return nil
}

// simulatedTransaction derives a stable transaction from the merchant and
// its position in the history.
func simulatedTransaction(merchantID string, i int) Transaction {
	base := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	return Transaction{
		ID:          fmt.Sprintf("txn-%s-%04d", merchantID, i+1),
		MerchantID:  merchantID,
		Amount:      12.50 + float64(i)*3.25,
		Currency:    "USD",
		Description: fmt.Sprintf("Order #%04d", i+1),
		Date:        base.AddDate(0, 0, -i).Format(time.RFC3339),
		Category:    "shopping",
	}
}

func encodeCursor(offset int) string {
	return base64.StdEncoding.EncodeToString([]byte("offset:" + strconv.Itoa(offset)))
}

func decodeCursor(cursor string) (int, error) {
	if cursor == "" {
		return 0, nil
	}
	raw, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return 0, err
	}
	value, ok := strings.CutPrefix(string(raw), "offset:")
	if !ok {
		return 0, fmt.Errorf("malformed cursor")
	}
	return strconv.Atoi(value)
}
