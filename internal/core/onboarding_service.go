package core

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/lattice/backend/internal/provider"
)

// StartResult is the façade response for onboarding start. Mode is always
// reported truthfully so the client can adapt UI copy.
type StartResult struct {
	SessionToken string
	SessionID    string
	ExpiresAt    time.Time
	Mode         provider.Mode
}

// CompleteResult is the façade response for onboarding completion. Session
// expiry is a non-success outcome, not an error: the caller is told to
// restart onboarding rather than retry.
type CompleteResult struct {
	Success        bool
	AccountsLinked int
	Message        string
}

// OnboardingService is the façade the chat/account UI collaborators call.
// It composes the session lifecycle manager and the linkage reconciler and
// returns stable response shapes regardless of mode.
type OnboardingService struct {
	sessions *SessionService
	links    *LinkService
	logger   *zap.Logger
}

// NewOnboardingService creates the onboarding façade.
func NewOnboardingService(sessions *SessionService, links *LinkService, logger *zap.Logger) *OnboardingService {
	return &OnboardingService{
		sessions: sessions,
		links:    links,
		logger:   logger.Named("onboarding_service"),
	}
}

// Start opens a linking session for the user and hands back the widget
// token.
func (s *OnboardingService) Start(ctx context.Context, userID string, contact provider.Contact) (StartResult, error) {
	session, err := s.sessions.Start(ctx, userID, contact)
	if err != nil {
		return StartResult{}, err
	}

	return StartResult{
		SessionToken: session.Token,
		SessionID:    session.ID,
		ExpiresAt:    session.ExpiresAt,
		Mode:         provider.Mode(session.Mode),
	}, nil
}

// ExtendResult is the façade response for a session extension.
type ExtendResult struct {
	Success   bool
	SessionID string
	ExpiresAt time.Time
	Message   string
}

// Extend pushes a pending session's expiry out through the provider.
// Terminal sessions cannot be revived; the caller is told to restart instead
// of receiving a transport error.
func (s *OnboardingService) Extend(ctx context.Context, userID, sessionID string) (ExtendResult, error) {
	session, err := s.sessions.Extend(ctx, userID, sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionExpired) {
			return ExtendResult{
				Success:   false,
				SessionID: sessionID,
				Message:   "Your linking session has expired. Please restart onboarding.",
			}, nil
		}
		if errors.Is(err, ErrSessionCompleted) {
			return ExtendResult{
				Success:   false,
				SessionID: sessionID,
				Message:   "This linking session is already completed. Start a new onboarding to link more accounts.",
			}, nil
		}
		return ExtendResult{}, err
	}

	return ExtendResult{
		Success:   true,
		SessionID: session.ID,
		ExpiresAt: session.ExpiresAt,
	}, nil
}

// Complete finishes onboarding for a session: reconciles the provider's
// accounts into the store and reports how many were newly linked. Duplicate
// calls return the original outcome.
func (s *OnboardingService) Complete(ctx context.Context, userID, sessionID string) (CompleteResult, error) {
	result, err := s.links.Reconcile(ctx, userID, sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionExpired) {
			s.logger.Info("Completion attempted on expired session",
				zap.String("user_id", userID),
				zap.String("session_id", sessionID))
			return CompleteResult{
				Success: false,
				Message: "Your linking session has expired. Please restart onboarding.",
			}, nil
		}
		return CompleteResult{}, err
	}

	return CompleteResult{
		Success:        true,
		AccountsLinked: result.AccountsLinked,
		Message:        result.Message,
	}, nil
}
