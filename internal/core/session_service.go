package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lattice/backend/internal/provider"
	"github.com/lattice/backend/internal/repo"
)

// SessionService manages the linking-session lifecycle: creation, lookup,
// and lazy expiry. Status transitions are pending -> completed (performed by
// the reconciler via an atomic store CAS); expiry is computed at read time
// and never written back.
type SessionService struct {
	sessions    repo.SessionStore
	selector    *provider.Selector
	sessionType string
	sessionTTL  time.Duration
	now         func() time.Time
	logger      *zap.Logger
}

// NewSessionService creates a session service.
func NewSessionService(sessions repo.SessionStore, selector *provider.Selector, sessionType string, sessionTTL time.Duration, logger *zap.Logger) *SessionService {
	if sessionTTL <= 0 {
		sessionTTL = provider.DefaultSessionTTL
	}
	return &SessionService{
		sessions:    sessions,
		selector:    selector,
		sessionType: sessionType,
		sessionTTL:  sessionTTL,
		now:         time.Now,
		logger:      logger.Named("session_service"),
	}
}

// Start creates a new linking session for the user. The mode is resolved
// once here and pinned to the session for its lifetime, so a configuration
// change mid-flow never mixes live and synthetic account identifiers.
func (s *SessionService) Start(ctx context.Context, userID string, contact provider.Contact) (repo.LinkSession, error) {
	client, mode := s.selector.Pick()

	s.logger.Info("Starting linking session",
		zap.String("user_id", userID),
		zap.String("mode", string(mode)))

	handle, err := client.CreateSession(ctx, userID, contact, s.sessionType)
	if err != nil {
		s.logger.Error("Failed to create provider session",
			zap.String("user_id", userID),
			zap.Error(err))
		return repo.LinkSession{}, fmt.Errorf("failed to create session: %w", err)
	}

	session := repo.LinkSession{
		ID:        handle.ID,
		UserID:    userID,
		Token:     handle.Token,
		Mode:      string(mode),
		Status:    repo.SessionStatusPending,
		CreatedAt: s.now().UTC(),
		ExpiresAt: handle.ExpiresAt,
	}

	if err := s.sessions.Put(ctx, session); err != nil {
		return repo.LinkSession{}, fmt.Errorf("failed to store session: %w", err)
	}

	s.logger.Info("Linking session created",
		zap.String("session_id", session.ID),
		zap.String("user_id", userID),
		zap.Time("expires_at", session.ExpiresAt))

	return session, nil
}

// Touch returns the session if it is still usable. Completed sessions pass
// regardless of age (re-completion is an idempotent no-op downstream);
// pending sessions past their expiry return ErrSessionExpired.
func (s *SessionService) Touch(ctx context.Context, sessionID string) (repo.LinkSession, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return repo.LinkSession{}, ErrSessionNotFound
		}
		return repo.LinkSession{}, fmt.Errorf("failed to load session: %w", err)
	}

	if session.Status == repo.SessionStatusPending && session.Expired(s.now()) {
		session.Status = repo.SessionStatusExpired
		return session, ErrSessionExpired
	}

	return session, nil
}

// Complete atomically transitions the session pending -> completed, storing
// the reconciliation result. The bool reports whether this call won the
// transition.
func (s *SessionService) Complete(ctx context.Context, sessionID string, result repo.CompletionResult) (repo.LinkSession, bool, error) {
	session, won, err := s.sessions.Complete(ctx, sessionID, result)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return repo.LinkSession{}, false, ErrSessionNotFound
		}
		return repo.LinkSession{}, false, fmt.Errorf("failed to complete session: %w", err)
	}
	return session, won, nil
}

// Extend asks the provider for a fresh expiry on a pending session and
// stores the extended window. Completed sessions are terminal and cannot be
// extended.
func (s *SessionService) Extend(ctx context.Context, userID, sessionID string) (repo.LinkSession, error) {
	session, err := s.Touch(ctx, sessionID)
	if err != nil {
		return repo.LinkSession{}, err
	}
	if session.UserID != userID {
		return repo.LinkSession{}, ErrSessionOwnership
	}
	if session.Status != repo.SessionStatusPending {
		return repo.LinkSession{}, ErrSessionCompleted
	}

	client := s.selector.ForMode(provider.Mode(session.Mode))
	handle, err := client.ExtendSession(ctx, sessionID)
	if err != nil {
		return repo.LinkSession{}, fmt.Errorf("failed to extend session: %w", err)
	}

	session.ExpiresAt = handle.ExpiresAt
	if err := s.sessions.Put(ctx, session); err != nil {
		return repo.LinkSession{}, fmt.Errorf("failed to store session: %w", err)
	}

	s.logger.Info("Session extended",
		zap.String("session_id", sessionID),
		zap.Time("expires_at", session.ExpiresAt))

	return session, nil
}
