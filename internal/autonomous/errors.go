package autonomous

import "errors"

// Sentinel errors for the autonomous state store. Callers match with
// errors.Is rather than string comparison.
var (
	// ErrInactive is returned by Read when no autonomous state is present,
	// expired, or owned by an unrelated caller.
	ErrInactive = errors.New("autonomous state: inactive")

	// ErrUnknownMode is returned by Activate when mode is not one of the
	// recognized autonomous modes.
	ErrUnknownMode = errors.New("autonomous state: unknown mode")

	// ErrEmptySessionID is returned by Activate when session id is empty.
	ErrEmptySessionID = errors.New("autonomous state: session id required")
)
