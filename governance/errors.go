package governance

import "errors"

// Sentinel errors for the governance domain. Callers classify failures with
// errors.Is; wrapped messages carry the specifics.
var (
	// ErrNotFound is returned when a collection or proposal does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNotAuthorized is returned when the caller lacks the standing an
	// operation requires (not an admin, no token balance).
	ErrNotAuthorized = errors.New("not authorized")

	// ErrInvalidState is returned when an operation does not apply to the
	// entity's current lifecycle state or governance model.
	ErrInvalidState = errors.New("invalid state")

	// ErrExpired is returned when a proposal's voting window has closed.
	ErrExpired = errors.New("proposal expired")

	// ErrThresholdNotMet is returned when execution is attempted before the
	// approval threshold holds.
	ErrThresholdNotMet = errors.New("threshold not met")

	// ErrInsufficientResources is returned when a resource preflight fails.
	ErrInsufficientResources = errors.New("insufficient resources")

	// ErrExternalService is returned when a collaborating service call fails.
	ErrExternalService = errors.New("external service error")

	// ErrAlreadyExists is returned on duplicate creation, including a second
	// vote by the same principal.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput is returned when request parameters fail validation.
	ErrInvalidInput = errors.New("invalid input")
)
