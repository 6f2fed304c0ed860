package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrSigningFailed = errors.New("signing failed")
	ErrLockHeld      = errors.New("lock already held")

	// Engine error kinds. Collaborators wrap transport failures into one of
	// these at their boundary so callers can branch with errors.Is.
	ErrSafetyRejected       = errors.New("safety check rejected")
	ErrExecutionFailed      = errors.New("execution failed")
	ErrInvalidState         = errors.New("invalid position state")
	ErrPriceFeedUnavailable = errors.New("price feed unavailable")
	ErrPositionClosed       = errors.New("position closed")
)
