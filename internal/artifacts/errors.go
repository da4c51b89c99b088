package artifacts

import "errors"

// ErrMissing names the missing-artifact condition. No function in this
// package returns it: the Read* functions report a missing file as a Result
// with Passed=false, on which the completion validator fails closed.
var ErrMissing = errors.New("artifacts: summary file not found")
