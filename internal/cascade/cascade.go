// Package cascade implements the version-aware dependency graph that
// automatically resets downstream "proven true" flags when upstream code
// changes, preventing the agent from claiming a stale verification.
package cascade

import (
	"sort"

	"github.com/boshu2/agentops/internal/checkpoint"
)

// edges is the fixed dependency DAG: when the key flag is reset, every
// flag in its value slice is also reset, transitively.
var edges = map[string][]string{
	checkpoint.FlagLintersPass: {checkpoint.FlagDeployed},
	checkpoint.FlagDeployed: {
		checkpoint.FlagWebTestingDone,
		checkpoint.FlagConsoleErrorsChecked,
		checkpoint.FlagAPITestingDone,
	},
	// validation_tests_passed is terminal: no outgoing edges.
}

// Report summarizes what Invalidate changed, for stderr messaging by the
// completion validator.
type Report struct {
	// CurrentVersion is the code version this invalidation pass computed.
	CurrentVersion string
	// Reset lists every flag name that was cleared by this pass, in the
	// order they were reset (upstream before downstream).
	Reset []string
}

// Changed reports whether this pass reset anything.
func (r Report) Changed() bool { return len(r.Reset) > 0 }

// Invalidate recomputes staleness for every proven flag in ckpt against
// currentVersion: any flag whose stamp no longer matches is cleared, and
// every flag reachable from it through edges is transitively cleared too.
// It mutates ckpt in place and returns a Report describing what changed.
//
// Invalidate is a pure function of (ckpt, currentVersion): running it twice
// on the same (possibly already-invalidated) checkpoint yields the same
// result both times.
func Invalidate(ckpt *checkpoint.Checkpoint, currentVersion string) Report {
	report := Report{CurrentVersion: currentVersion}
	if ckpt == nil {
		return report
	}
	if ckpt.SelfReport.Flags == nil {
		return report
	}

	toReset := make(map[string]bool)
	for name, flag := range ckpt.SelfReport.Flags {
		if flag.Value && !flag.Trusted(currentVersion) {
			markStale(name, toReset)
		}
	}

	// Deterministic output order: upstream-first per KnownFlags declaration
	// order, matching the edges table above.
	for _, name := range checkpoint.KnownFlags {
		if !toReset[name] {
			continue
		}
		delete(toReset, name)
		flag := ckpt.SelfReport.Flags[name]
		if flag.Value || flag.AtVersion != "" {
			ckpt.SelfReport.Flags[name] = checkpoint.ProvenFlag{}
			report.Reset = append(report.Reset, name)
		}
	}

	// Whatever remains is a stale flag outside KnownFlags; such flags have
	// no edges and are cleared after the known ones, in name order.
	others := make([]string, 0, len(toReset))
	for name := range toReset {
		others = append(others, name)
	}
	sort.Strings(others)
	for _, name := range others {
		ckpt.SelfReport.Flags[name] = checkpoint.ProvenFlag{}
		report.Reset = append(report.Reset, name)
	}
	return report
}

// markStale recursively marks name and everything reachable from it
// through edges as needing reset.
func markStale(name string, acc map[string]bool) {
	if acc[name] {
		return
	}
	acc[name] = true
	for _, downstream := range edges[name] {
		markStale(downstream, acc)
	}
}

// InvalidateStore loads the checkpoint at store, runs Invalidate against
// currentVersion, and saves the result back if anything changed.
// Concurrent invocations serialize via the store's underlying atomic write.
func InvalidateStore(store *checkpoint.Store, currentVersion string) (Report, error) {
	ckpt, err := store.Load()
	if err != nil {
		return Report{}, err
	}
	report := Invalidate(ckpt, currentVersion)
	if report.Changed() {
		if err := store.Save(ckpt); err != nil {
			return report, err
		}
	}
	return report, nil
}
