package core

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/lattice/backend/internal/events"
	"github.com/lattice/backend/internal/provider"
	"github.com/lattice/backend/internal/repo"
)

// ReconcileResult is the outcome of merging provider-reported accounts into
// the store. AccountsLinked counts only accounts new to the store, not the
// total the provider returned.
type ReconcileResult struct {
	AccountsLinked int
	Message        string
	Accounts       []repo.LinkedAccount
}

// LinkService is the linkage reconciler: it pulls the provider's view of a
// user's accounts at completion time and merges it into the local store,
// deduplicating by provider-assigned account identifier.
type LinkService struct {
	sessions  *SessionService
	accounts  repo.AccountStore
	selector  *provider.Selector
	publisher *events.Publisher
	logger    *zap.Logger

	// inflight holds one mutex per session under reconciliation, so two
	// concurrent completion calls for the same session never both perform
	// the merge. Entries are dropped once the session is terminal.
	inflight sync.Map
}

// NewLinkService creates a link service.
func NewLinkService(sessions *SessionService, accounts repo.AccountStore, selector *provider.Selector, publisher *events.Publisher, logger *zap.Logger) *LinkService {
	return &LinkService{
		sessions:  sessions,
		accounts:  accounts,
		selector:  selector,
		publisher: publisher,
		logger:    logger.Named("link_service"),
	}
}

// Reconcile completes a linking session: fetches the session's accounts from
// the provider (in the session's pinned mode), merges them, and marks the
// session completed. A duplicated call for an already-completed session
// returns the cached result without touching the provider. A provider
// failure midway leaves the session pending so a retry is possible.
//
// The fetch, merge, and completion run under a per-session mutex: a
// concurrent caller waits and then reads the winner's stored result instead
// of repeating the provider call. The store CAS stays underneath as the
// authoritative guard on the status transition.
func (s *LinkService) Reconcile(ctx context.Context, userID, sessionID string) (ReconcileResult, error) {
	mu := s.sessionLock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	session, err := s.sessions.Touch(ctx, sessionID)
	if err != nil {
		return ReconcileResult{}, err
	}
	if session.UserID != userID {
		return ReconcileResult{}, ErrSessionOwnership
	}

	if session.Status == repo.SessionStatusCompleted {
		s.logger.Debug("Session already completed (idempotent)",
			zap.String("session_id", sessionID))
		s.inflight.Delete(sessionID)
		return s.cachedResult(ctx, session)
	}

	client := s.selector.ForMode(provider.Mode(session.Mode))
	providerAccounts, err := client.GetAccounts(ctx, userID, "")
	if err != nil {
		s.logger.Error("Failed to fetch accounts from provider",
			zap.String("user_id", userID),
			zap.String("session_id", sessionID),
			zap.Error(err))
		return ReconcileResult{}, fmt.Errorf("failed to fetch accounts: %w", err)
	}

	var linked []repo.LinkedAccount
	created := 0
	for _, acc := range providerAccounts {
		account, isNew, err := s.accounts.Upsert(ctx, repo.UpsertLinkedAccountParams{
			UserID:            userID,
			ProviderAccountID: acc.ID,
			MerchantID:        acc.MerchantID,
			MerchantName:      acc.MerchantName,
			Label:             acc.MerchantName + " Account",
			Permissions:       acc.Permissions,
		})
		if err != nil {
			return ReconcileResult{}, fmt.Errorf("failed to upsert account: %w", err)
		}
		if isNew {
			created++
		}
		linked = append(linked, account)
	}

	result := repo.CompletionResult{
		AccountsLinked: created,
		Message:        completionMessage(len(providerAccounts), created),
	}

	stored, won, err := s.sessions.Complete(ctx, sessionID, result)
	if err != nil {
		return ReconcileResult{}, err
	}
	s.inflight.Delete(sessionID)
	if !won {
		// Another path completed the session first; its stored result
		// stands so both callers report the same counts.
		return s.cachedResult(ctx, stored)
	}

	s.logger.Info("Onboarding reconciled",
		zap.String("user_id", userID),
		zap.String("session_id", sessionID),
		zap.Int("accounts_returned", len(providerAccounts)),
		zap.Int("accounts_linked", created))

	s.publisher.AccountsLinked(userID, created)

	return ReconcileResult{
		AccountsLinked: result.AccountsLinked,
		Message:        result.Message,
		Accounts:       linked,
	}, nil
}

// sessionLock returns the mutex serializing reconciliation for one session.
// Entries for sessions that never complete live until process restart, the
// same bound the session store itself has inside its retention window.
func (s *LinkService) sessionLock(sessionID string) *sync.Mutex {
	mu, _ := s.inflight.LoadOrStore(sessionID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// cachedResult rebuilds a ReconcileResult from a completed session's stored
// outcome plus the user's current active accounts.
func (s *LinkService) cachedResult(ctx context.Context, session repo.LinkSession) (ReconcileResult, error) {
	result := ReconcileResult{}
	if session.Result != nil {
		result.AccountsLinked = session.Result.AccountsLinked
		result.Message = session.Result.Message
	}

	accounts, err := s.accounts.ListActive(ctx, session.UserID)
	if err != nil {
		return ReconcileResult{}, fmt.Errorf("failed to list accounts: %w", err)
	}
	result.Accounts = accounts
	return result, nil
}

// completionMessage distinguishes "user backed out" from a real link. Zero
// accounts is a deliberate user choice, not an error.
func completionMessage(returned, created int) string {
	switch {
	case returned == 0:
		return "No accounts were linked. Restart onboarding to link an account."
	case created == 0:
		return "All returned accounts were already linked."
	case created == 1:
		return "Successfully linked 1 account."
	default:
		return fmt.Sprintf("Successfully linked %d accounts.", created)
	}
}
