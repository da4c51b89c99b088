package codeversion

import "errors"

// ErrNotGitRepo is returned internally when root is not inside a git
// repository or HEAD cannot be resolved (e.g. a repo with no commits yet).
var ErrNotGitRepo = errors.New("not a git repository")
