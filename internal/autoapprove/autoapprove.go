// Package autoapprove implements the sole pre-tool auto-approval path: an
// active, unexpired autonomous state whose ownership matches the caller is
// the only precondition for emitting allow. No state file means no
// elevation, which keeps the security surface auditable from a single
// lookup.
package autoapprove

import (
	"context"
	"errors"

	"github.com/boshu2/agentops/internal/autonomous"
	"github.com/boshu2/agentops/internal/dispatch"
)

// Approve answers a PreToolUse or PermissionRequest event: allow when an
// active autonomous state owned by the caller exists, passthrough
// otherwise. It never denies — absence of a state is not a rejection, just
// no opinion, leaving denial to the pre-action gates.
func Approve(store *autonomous.Store, in dispatch.Input) dispatch.Decision {
	st, err := store.Read(in.Cwd, in.SessionID)
	if err != nil {
		if errors.Is(err, autonomous.ErrInactive) {
			return dispatch.Passthrough
		}
		return dispatch.Passthrough
	}
	return dispatch.Decision{
		Action: dispatch.ActionAllow,
		Reason: "autonomous mode active (" + string(st.Mode) + "), ownership matches",
	}
}

// Handler adapts Approve to a dispatch.HandlerFunc for registration against
// PreToolUse and PermissionRequest.
func Handler(store *autonomous.Store) dispatch.HandlerFunc {
	return func(_ context.Context, in dispatch.Input) dispatch.Decision {
		return Approve(store, in)
	}
}
