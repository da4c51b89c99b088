package atomicio

import "errors"

// Sentinel errors for the atomicio package. Using sentinels instead of
// ad-hoc fmt.Errorf allows callers to match with errors.Is.
var (
	// ErrCorrupt is returned by callers that choose to surface StatusCorrupt as an error.
	ErrCorrupt = errors.New("document is corrupt")

	// ErrMissing is returned by callers that choose to surface StatusMissing as an error.
	ErrMissing = errors.New("document does not exist")
)
