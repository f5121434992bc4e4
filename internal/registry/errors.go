package registry

import "errors"

// Call-level error kinds. Every error aborts the whole call; nothing
// partially commits.
var (
	// ErrUnauthorized is returned when the caller does not hold the
	// authority required for an owner-gated operation.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrDuplicateToken is returned when a derived token id collides with an
	// existing token. Under correct counter usage this is an internal
	// invariant violation.
	ErrDuplicateToken = errors.New("duplicate token id")

	// ErrInvalidName is returned when a full name has fewer than 3
	// space-separated components.
	ErrInvalidName = errors.New("full name must contain at least 3 names separated by a space")

	// ErrInvalidAccount is returned when an account identifier fails
	// validation.
	ErrInvalidAccount = errors.New("invalid account id")

	// ErrInsufficientDeposit is returned when the attached deposit does not
	// cover the storage cost of the call.
	ErrInsufficientDeposit = errors.New("insufficient deposit to cover storage cost")

	// ErrTokenNotFound is returned by lookups that require the token to
	// exist.
	ErrTokenNotFound = errors.New("token with provided id doesn't exist")

	// ErrIndexInconsistency is returned when the owner index references a
	// token missing from the token store. The two are written in one
	// transaction, so this must never happen.
	ErrIndexInconsistency = errors.New("owner index references a token missing from the store")
)
