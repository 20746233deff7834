package provider

import "time"

// DefaultSessionTTL is the fallback validity window applied when the
// provider's session-create response omits an expiry.
const DefaultSessionTTL = 30 * time.Minute

// Session types accepted by the provider.
const (
	SessionTypeTransactionLink = "transaction_link"
	SessionTypeCardSwitcher    = "card_switcher"
)

// Contact identifies the end user to the provider's embedded widget.
type Contact struct {
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// SessionHandle is a normalized linking session returned by the provider.
// The raw wire response may omit the token and expiry; the client fills
// defaults before handing the value out, so all fields are always set.
type SessionHandle struct {
	ID        string
	Token     string
	ExpiresAt time.Time
}

// Merchant is an entry from the provider's merchant catalog.
type Merchant struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	LogoURL           string   `json:"logo_url,omitempty"`
	SupportedFeatures []string `json:"supported_features,omitempty"`
}

// Account is an external account the provider reports as linked to a user.
type Account struct {
	ID           string          `json:"id"`
	MerchantID   string          `json:"merchant_id"`
	MerchantName string          `json:"merchant_name"`
	Status       string          `json:"status"`
	Permissions  map[string]bool `json:"permissions,omitempty"`
	LinkedAt     string          `json:"linked_at,omitempty"`
}

// Transaction is a single transaction row from the provider's sync feed.
type Transaction struct {
	ID          string                 `json:"id"`
	MerchantID  string                 `json:"merchant_id"`
	Amount      float64                `json:"amount"`
	Currency    string                 `json:"currency"`
	Description string                 `json:"description"`
	Date        string                 `json:"date"`
	Category    string                 `json:"category,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// TransactionSyncResult is one page of the provider's transaction feed.
// NextCursor is opaque; an empty value means the history is fully caught up.
type TransactionSyncResult struct {
	Transactions []Transaction `json:"transactions"`
	NextCursor   string        `json:"next_cursor,omitempty"`
	HasMore      bool          `json:"has_more"`
}

// SyncParams describes one transaction sync request.
type SyncParams struct {
	UserID     string
	MerchantID string
	Cursor     string
	Limit      int
}
