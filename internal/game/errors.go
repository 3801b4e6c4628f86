package game

import "errors"

// Error kinds surfaced to transport handlers. Handlers branch on these with
// errors.Is to pick a status code; messages stay non-sensitive.
var (
	ErrValidation        = errors.New("invalid request")
	ErrState             = errors.New("operation not allowed in current phase")
	ErrDuplicateBet      = errors.New("bet already placed for this round")
	ErrInsufficientFunds = errors.New("insufficient balance")
	ErrNotFound          = errors.New("no active bet found")
	ErrConflict          = errors.New("round number conflict")
	ErrExternalService   = errors.New("external service unavailable")
)
