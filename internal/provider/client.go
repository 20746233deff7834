package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// API is the set of provider operations the rest of the system consumes.
// Both the live HTTP client and the simulator implement it, so callers are
// mode-agnostic.
type API interface {
	CreateSession(ctx context.Context, userID string, contact Contact, sessionType string) (SessionHandle, error)
	ExtendSession(ctx context.Context, sessionID string) (SessionHandle, error)
	ListMerchants(ctx context.Context, merchantType string) ([]Merchant, error)
	GetAccounts(ctx context.Context, userID, merchantID string) ([]Account, error)
	SyncTransactions(ctx context.Context, params SyncParams) (TransactionSyncResult, error)
	DeleteUser(ctx context.Context, userID string) error
}

// Client is the live HTTP client for the provider's REST API.
type Client struct {
	baseURL       string
	authHeader    string
	maxAttempts   int
	retryInterval time.Duration
	httpClient    *http.Client
	logger        *zap.Logger
}

// NewClient creates a live provider client. The per-attempt timeout bounds
// each outbound call; maxAttempts bounds the total retry budget.
func NewClient(baseURL, clientID, clientSecret string, timeout time.Duration, maxAttempts int, logger *zap.Logger) *Client {
	credentials := base64.StdEncoding.EncodeToString([]byte(clientID + ":" + clientSecret))

	if maxAttempts < 1 {
		maxAttempts = 1
	}

	return &Client{
		baseURL:       baseURL,
		authHeader:    "Basic " + credentials,
		maxAttempts:   maxAttempts,
		retryInterval: 2 * time.Second,
		httpClient:    &http.Client{Timeout: timeout},
		logger:        logger.Named("provider_client"),
	}
}

type sessionCreateResponse struct {
	Session      string `json:"session"`
	SessionToken string `json:"session_token"`
	ExpiresAt    string `json:"expires_at"`
}

// normalize fills the defaults the provider's response is allowed to omit.
func (r sessionCreateResponse) normalize(now time.Time) SessionHandle {
	handle := SessionHandle{
		ID:    r.Session,
		Token: r.SessionToken,
	}
	if handle.Token == "" {
		handle.Token = handle.ID
	}
	if r.ExpiresAt != "" {
		if t, err := time.Parse(time.RFC3339, r.ExpiresAt); err == nil {
			handle.ExpiresAt = t
		}
	}
	if handle.ExpiresAt.IsZero() {
		handle.ExpiresAt = now.Add(DefaultSessionTTL)
	}
	return handle
}

// CreateSession creates a linking session for userID.
func (c *Client) CreateSession(ctx context.Context, userID string, contact Contact, sessionType string) (SessionHandle, error) {
	payload := map[string]interface{}{
		"type":             sessionType,
		"external_user_id": userID,
		"contact":          contact,
	}

	c.logger.Info("Creating provider session", zap.String("user_id", userID))

	var resp sessionCreateResponse
	if err := c.request(ctx, http.MethodPost, "/session/create", payload, nil, &resp); err != nil {
		return SessionHandle{}, err
	}
	return resp.normalize(time.Now().UTC()), nil
}

// ExtendSession extends an existing session's validity window.
func (c *Client) ExtendSession(ctx context.Context, sessionID string) (SessionHandle, error) {
	payload := map[string]interface{}{"session_id": sessionID}

	var resp sessionCreateResponse
	if err := c.request(ctx, http.MethodPost, "/session/extend", payload, nil, &resp); err != nil {
		return SessionHandle{}, err
	}
	return resp.normalize(time.Now().UTC()), nil
}

// ListMerchants returns the merchants supporting the given product type.
func (c *Client) ListMerchants(ctx context.Context, merchantType string) ([]Merchant, error) {
	payload := map[string]interface{}{"type": merchantType}

	var resp struct {
		Merchants []Merchant `json:"merchants"`
	}
	if err := c.request(ctx, http.MethodPost, "/merchant/list", payload, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Merchants, nil
}

// GetAccounts returns the accounts the provider holds for a user, optionally
// filtered to one merchant.
func (c *Client) GetAccounts(ctx context.Context, userID, merchantID string) ([]Account, error) {
	query := url.Values{}
	query.Set("external_user_id", userID)
	if merchantID != "" {
		query.Set("merchant_id", merchantID)
	}

	c.logger.Info("Fetching provider accounts", zap.String("user_id", userID))

	var resp struct {
		Accounts []Account `json:"accounts"`
	}
	if err := c.request(ctx, http.MethodGet, "/accounts/get", nil, query, &resp); err != nil {
		return nil, err
	}
	return resp.Accounts, nil
}

// SyncTransactions fetches one page of a merchant's transaction feed.
func (c *Client) SyncTransactions(ctx context.Context, params SyncParams) (TransactionSyncResult, error) {
	payload := map[string]interface{}{
		"external_user_id": params.UserID,
		"merchant_id":      params.MerchantID,
		"limit":            params.Limit,
	}
	if params.Cursor != "" {
		payload["cursor"] = params.Cursor
	}

	c.logger.Info("Syncing provider transactions",
		zap.String("user_id", params.UserID),
		zap.String("merchant_id", params.MerchantID))

	var resp TransactionSyncResult
	if err := c.request(ctx, http.MethodPost, "/transactions/sync", payload, nil, &resp); err != nil {
		return TransactionSyncResult{}, err
	}
	return resp, nil
}

// DeleteUser removes all provider-side data for a user.
func (c *Client) DeleteUser(ctx context.Context, userID string) error {
	payload := map[string]interface{}{"external_user_id": userID}
	return c.request(ctx, http.MethodPost, "/user/delete", payload, nil, nil)
}

// request performs one provider call with the retry policy: transient
// failures (network, 5xx, 429) retry with exponential backoff up to the
// attempt budget, everything else fails immediately.
func (c *Client) request(ctx context.Context, method, path string, payload interface{}, query url.Values, out interface{}) error {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	op := func() error {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to build request: %w", err))
		}
		req.Header.Set("Authorization", c.authHeader)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		c.logger.Debug("Provider request", zap.String("method", method), zap.String("path", path))

		res, err := c.httpClient.Do(req)
		if err != nil {
			// Network failure or timeout: retryable, no status code.
			return &APIError{StatusCode: 0, Message: err.Error()}
		}
		defer res.Body.Close()

		c.logger.Debug("Provider response", zap.String("path", path), zap.Int("status", res.StatusCode))

		if res.StatusCode >= 400 {
			apiErr := c.errorFromResponse(res)
			if !apiErr.Retryable() {
				return backoff.Permanent(apiErr)
			}
			return apiErr
		}

		if out != nil {
			if err := json.NewDecoder(res.Body).Decode(out); err != nil {
				return backoff.Permanent(&APIError{
					StatusCode: res.StatusCode,
					Message:    fmt.Sprintf("failed to decode response: %v", err),
				})
			}
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryInterval
	bo.MaxInterval = 10 * time.Second
	bo.MaxElapsedTime = 0 // bounded by the attempt count, not wall time

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(c.maxAttempts-1)), ctx))
	if err == nil {
		return nil
	}

	if apiErr, ok := AsAPIError(err); ok {
		c.logger.Error("Provider call failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", apiErr.StatusCode),
			zap.String("message", apiErr.Message))
		return apiErr
	}
	return err
}

// errorFromResponse wraps an HTTP error response into an APIError, keeping
// the raw payload for operator diagnosis.
func (c *Client) errorFromResponse(res *http.Response) *APIError {
	raw, _ := io.ReadAll(io.LimitReader(res.Body, 1<<20))

	message := "unknown error"
	var parsed struct {
		Message string `json:"message"`
	}
	if len(raw) > 0 && json.Unmarshal(raw, &parsed) == nil && parsed.Message != "" {
		message = parsed.Message
	}

	return &APIError{
		StatusCode: res.StatusCode,
		Message:    message,
		Body:       raw,
	}
}
