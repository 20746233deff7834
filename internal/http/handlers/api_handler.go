package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime/types"
	"go.uber.org/zap"

	"github.com/lattice/backend/internal/auth"
	"github.com/lattice/backend/internal/core"
	"github.com/lattice/backend/internal/provider"
	"github.com/lattice/backend/internal/repo"
)

// APIHandler handles HTTP API requests.
type APIHandler struct {
	onboarding *core.OnboardingService
	accounts   *core.AccountService
	sync       *core.SyncService
	merchants  *core.MerchantService
	jwtConfig  *auth.JWTConfig
	logger     *zap.Logger
}

// NewAPIHandler creates a new API handler.
func NewAPIHandler(onboarding *core.OnboardingService, accounts *core.AccountService, sync *core.SyncService, merchants *core.MerchantService, jwtConfig *auth.JWTConfig, logger *zap.Logger) *APIHandler {
	return &APIHandler{
		onboarding: onboarding,
		accounts:   accounts,
		sync:       sync,
		merchants:  merchants,
		jwtConfig:  jwtConfig,
		logger:     logger.Named("api_handler"),
	}
}

// Routes returns the HTTP routes.
func (h *APIHandler) Routes() chi.Router {
	r := chi.NewRouter()

	// Public routes
	r.Get("/health", h.GetHealth)

	// Everything else requires the caller's bearer token
	r.Group(func(r chi.Router) {
		r.Use(h.jwtConfig.ChiMiddleware())

		r.Post("/onboarding/start", h.StartOnboarding)
		r.Post("/onboarding/extend", h.ExtendOnboarding)
		r.Post("/onboarding/complete", h.CompleteOnboarding)

		r.Get("/accounts", h.ListAccounts)
		r.Delete("/accounts/{account_id}", h.RevokeAccount)

		r.Get("/merchants", h.ListMerchants)

		r.Get("/transactions/sync", h.SyncTransactions)
		r.Get("/transactions", h.GetTransactions)
	})

	return r
}

// GetHealth handles health check requests.
func (h *APIHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

// StartOnboarding opens a linking session and returns the widget token.
func (h *APIHandler) StartOnboarding(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.UserIDFromContext(r.Context())
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, "Invalid or missing token", err)
		return
	}

	var req struct {
		Email types.Email `json:"email"`
		Phone string      `json:"phone,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}
	if req.Email == "" {
		h.writeError(w, http.StatusBadRequest, "Missing email", nil)
		return
	}

	result, err := h.onboarding.Start(r.Context(), userID, provider.Contact{
		Email: string(req.Email),
		Phone: req.Phone,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.logger.Info("Onboarding started",
		zap.String("user_id", userID),
		zap.String("session_id", result.SessionID),
		zap.String("mode", string(result.Mode)))

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_token": result.SessionToken,
		"session_id":    result.SessionID,
		"expires_at":    result.ExpiresAt.UTC().Format(time.RFC3339),
		"mode":          result.Mode,
	})
}

// ExtendOnboarding pushes a pending session's expiry window out.
func (h *APIHandler) ExtendOnboarding(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.UserIDFromContext(r.Context())
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, "Invalid or missing token", err)
		return
	}

	var req struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}
	if req.SessionID == "" {
		h.writeError(w, http.StatusBadRequest, "Missing session_id", nil)
		return
	}

	result, err := h.onboarding.Extend(r.Context(), userID, req.SessionID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	response := map[string]interface{}{
		"success":    result.Success,
		"session_id": result.SessionID,
	}
	if result.Success {
		response["expires_at"] = result.ExpiresAt.UTC().Format(time.RFC3339)
	} else {
		response["message"] = result.Message
	}
	h.writeJSON(w, http.StatusOK, response)
}

// CompleteOnboarding reconciles the session's accounts into the store.
func (h *APIHandler) CompleteOnboarding(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.UserIDFromContext(r.Context())
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, "Invalid or missing token", err)
		return
	}

	var req struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}
	if req.SessionID == "" {
		h.writeError(w, http.StatusBadRequest, "Missing session_id", nil)
		return
	}

	result, err := h.onboarding.Complete(r.Context(), userID, req.SessionID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":         result.Success,
		"accounts_linked": result.AccountsLinked,
		"message":         result.Message,
	})
}

// ListAccounts returns the caller's active linked accounts.
func (h *APIHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.UserIDFromContext(r.Context())
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, "Invalid or missing token", err)
		return
	}

	forceRefresh := r.URL.Query().Get("force_refresh") == "true"

	accounts, err := h.accounts.List(r.Context(), userID, forceRefresh)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"accounts": h.convertAccountsToAPI(accounts),
		"total":    len(accounts),
	})
}

// RevokeAccount soft-revokes a linked account owned by the caller.
func (h *APIHandler) RevokeAccount(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.UserIDFromContext(r.Context())
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, "Invalid or missing token", err)
		return
	}

	accountID := chi.URLParam(r, "account_id")
	if accountID == "" {
		h.writeError(w, http.StatusBadRequest, "Missing account_id", nil)
		return
	}

	account, err := h.accounts.Revoke(r.Context(), userID, accountID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":    account.MerchantName + " account unlinked",
		"account_id": account.ID,
	})
}

// ListMerchants returns the provider's merchant catalog.
func (h *APIHandler) ListMerchants(w http.ResponseWriter, r *http.Request) {
	merchants, err := h.merchants.List(r.Context(), r.URL.Query().Get("type"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"merchants": merchants,
		"total":     len(merchants),
	})
}

// SyncTransactions pulls fresh transaction pages and returns the union.
func (h *APIHandler) SyncTransactions(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.UserIDFromContext(r.Context())
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, "Invalid or missing token", err)
		return
	}

	merchantID := r.URL.Query().Get("merchant_id")
	limit, ok := h.parseLimit(w, r)
	if !ok {
		return
	}

	result, err := h.sync.Sync(r.Context(), userID, merchantID, limit)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":          true,
		"transactions":     emptyIfNil(result.Transactions),
		"total_count":      len(result.Transactions),
		"synced_merchants": result.Merchants,
	})
}

// GetTransactions returns cached transactions without provider calls.
func (h *APIHandler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.UserIDFromContext(r.Context())
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, "Invalid or missing token", err)
		return
	}

	merchantID := r.URL.Query().Get("merchant_id")
	limit, ok := h.parseLimit(w, r)
	if !ok {
		return
	}

	transactions, err := h.sync.Cached(r.Context(), userID, merchantID, limit)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"transactions": emptyIfNil(transactions),
		"total_count":  len(transactions),
		"cached":       true,
	})
}

// Helper methods

func (h *APIHandler) parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	limit := 100
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limitInt, err := strconv.Atoi(limitStr)
		if err != nil || limitInt < 1 || limitInt > 500 {
			h.writeError(w, http.StatusBadRequest, "Invalid limit parameter (must be 1-500)", nil)
			return 0, false
		}
		limit = limitInt
	}
	return limit, true
}

// writeDomainError maps domain and provider errors onto the stable wire
// taxonomy. Raw provider errors never pass through to the collaborator.
func (h *APIHandler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrSessionNotFound):
		h.writeError(w, http.StatusNotFound, "Session not found", nil)
	case errors.Is(err, core.ErrSessionOwnership):
		h.writeError(w, http.StatusForbidden, "Session does not belong to the caller", nil)
	case errors.Is(err, core.ErrAccountNotFound):
		h.writeError(w, http.StatusNotFound, "Account not found or not owned by caller", nil)
	case errors.Is(err, core.ErrMerchantNotLinked):
		h.writeError(w, http.StatusNotFound, "Merchant not linked for this user", nil)
	default:
		if apiErr, ok := provider.AsAPIError(err); ok {
			if apiErr.Unavailable() {
				h.writeError(w, http.StatusServiceUnavailable, "Provider temporarily unavailable, please try again", nil)
				return
			}
			// Rejected request: log the raw payload for operator diagnosis,
			// return a generic message.
			h.logger.Error("Provider rejected request",
				zap.Int("status", apiErr.StatusCode),
				zap.String("message", apiErr.Message),
				zap.ByteString("payload", apiErr.Body))
			h.writeError(w, http.StatusBadGateway, "Provider rejected the request", nil)
			return
		}
		h.writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func (h *APIHandler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", zap.Error(err))
	}
}

func (h *APIHandler) writeError(w http.ResponseWriter, status int, message string, err error) {
	h.logger.Error("API error",
		zap.String("message", message),
		zap.Error(err),
		zap.Int("status", status))

	response := map[string]interface{}{
		"error":     message,
		"timestamp": time.Now().UTC(),
	}
	if err != nil {
		response["details"] = err.Error()
	}

	h.writeJSON(w, status, response)
}

func (h *APIHandler) convertAccountsToAPI(accounts []repo.LinkedAccount) []map[string]interface{} {
	result := make([]map[string]interface{}, len(accounts))
	for i, account := range accounts {
		result[i] = map[string]interface{}{
			"id":                  account.ID,
			"provider_account_id": account.ProviderAccountID,
			"merchant_id":         account.MerchantID,
			"merchant_name":       account.MerchantName,
			"label":               account.Label,
			"permissions":         account.Permissions,
			"status":              account.Status,
			"last_synced_at":      account.LastSyncedAt,
			"created_at":          account.CreatedAt,
		}
	}
	return result
}

func emptyIfNil(txns []repo.CachedTransaction) []repo.CachedTransaction {
	if txns == nil {
		return []repo.CachedTransaction{}
	}
	return txns
}
