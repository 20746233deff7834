package core

import "errors"

// Domain error taxonomy. Handlers translate these into stable responses so
// the UI renders deterministic messaging regardless of which internal step
// failed.
var (
	// ErrSessionNotFound means the session ID was never issued (or was
	// pruned past its retention window).
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExpired means the session's validity window has passed;
	// the caller must restart onboarding rather than retry.
	ErrSessionExpired = errors.New("session expired")

	// ErrSessionCompleted means the session already finished. Terminal
	// sessions accept no writes besides idempotent re-completion.
	ErrSessionCompleted = errors.New("session already completed")

	// ErrSessionOwnership means the session belongs to a different user.
	// Rejected before any provider call: this is a client bug or tampering.
	ErrSessionOwnership = errors.New("session does not belong to user")

	// ErrAccountNotFound means the account ID does not exist for the caller.
	ErrAccountNotFound = errors.New("account not found")

	// ErrMerchantNotLinked means the requested merchant has no active
	// linked account for the caller.
	ErrMerchantNotLinked = errors.New("merchant not linked for user")
)
