package cascade

import "errors"

// ErrNoCheckpoint names the no-checkpoint case. No function in this package
// returns it: Invalidate treats a nil checkpoint as a no-op, and
// InvalidateStore passes on the checkpoint store's own Load error.
var ErrNoCheckpoint = errors.New("cascade: no checkpoint to invalidate")
