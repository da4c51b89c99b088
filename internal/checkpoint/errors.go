package checkpoint

import "errors"

var (
	// ErrMissing is returned by Load when no checkpoint file exists yet.
	ErrMissing = errors.New("checkpoint: no completion checkpoint recorded")

	// ErrCorrupt is returned by Load when the file exists but fails schema
	// validation (StateCorruption in); validators must fail closed.
	ErrCorrupt = errors.New("checkpoint: stored document is not a valid checkpoint")

	// ErrUnknownField is returned when ResetField targets a name that is not
	// a recognized proven-flag field.
	ErrUnknownField = errors.New("checkpoint: unknown proven-flag field")
)
