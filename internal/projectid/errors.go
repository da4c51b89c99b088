package projectid

import "errors"

// Sentinel errors for the projectid package.
var (
	// ErrNotGitRepo is returned internally when dir is not inside a git
	// repository; Resolve treats this as non-fatal and falls back to
	// hashing the directory path directly.
	ErrNotGitRepo = errors.New("not a git repository")
)
