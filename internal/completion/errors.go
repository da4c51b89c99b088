package completion

import "errors"

// ErrNoCheckpoint names the case where no checkpoint has been recorded at
// all. Evaluate does not return it: it still blocks, but with a single
// "checkpoint-present" gate failure rather than attempting field checks.
var ErrNoCheckpoint = errors.New("completion: no checkpoint recorded")
