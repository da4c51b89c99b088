package retrieval

import "errors"

// ErrNoBudget is returned by Select when the caller's budget is non-positive.
var ErrNoBudget = errors.New("retrieval: budget must be positive")
