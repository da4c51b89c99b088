// Package completion implements the hard gate on Stop that blocks
// termination until the agent's self-report is structurally honest and
// consistent with on-disk evidence at the current code version. The
// advisory honesty judge is a separate, never-gating pass in
// internal/honesty.
package completion

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/boshu2/agentops/internal/artifacts"
	"github.com/boshu2/agentops/internal/checkpoint"
	"github.com/boshu2/agentops/internal/memoryevent"
	"github.com/boshu2/agentops/internal/worker"
)

// Phase distinguishes the two-attempt Stop protocol.
type Phase int

const (
	// PhaseFirst is the first Stop attempt: always renders the full
	// checklist and blocks, regardless of whether every gate would pass.
	PhaseFirst Phase = iota
	// PhaseRetry is a Stop attempt with stop_hook_active=true: enforces
	// the same hard gates but allows once they all pass.
	PhaseRetry
)

// GateCheck is one named, evaluated clause of the completion contract.
type GateCheck struct {
	Name   string
	Passed bool
	Detail string
}

// Result is the outcome of one Evaluate call.
type Result struct {
	Phase     Phase
	Allow     bool
	Gates     []GateCheck
	Checklist string // rendered stderr text
}

// ModeRequirements captures which category-specific gates apply, derived
// from the active autonomous mode and the project's detected asset types.
type ModeRequirements struct {
	HasWebAssets         bool
	RequiresWebVerify    bool
	RequiresMobileVerify bool
	RequiresFixTests     bool
}

// Input bundles everything Evaluate needs to judge one Stop attempt.
type Input struct {
	Checkpoint     *checkpoint.Checkpoint
	CurrentVersion string
	Requirements   ModeRequirements
	WebSmokePath   string
	MobileSmokePath string
	ValidationPath string
	Waivers        []string
}

// Evaluate runs the full completion contract against in and renders a
// Result for phase. PhaseFirst always blocks (Allow=false) even when every
// gate passes, to force the agent to see the checklist at least once;
// PhaseRetry allows iff every gate passes.
func Evaluate(phase Phase, in Input) Result {
	if in.Checkpoint == nil {
		return Result{
			Phase: phase,
			Allow: false,
			Gates: []GateCheck{{Name: "checkpoint-present", Passed: false, Detail: "no completion-checkpoint.json recorded"}},
			Checklist: renderChecklist([]GateCheck{{Name: "checkpoint-present", Passed: false, Detail: "no completion-checkpoint.json recorded"}}),
		}
	}

	gates := []GateCheck{
		gate1JobComplete(in.Checkpoint),
		gate2ReflectionWellFormed(in.Checkpoint),
		gate3VersionConsistency(in.Checkpoint, in.CurrentVersion),
		gate4LintersPass(in.Checkpoint, in.CurrentVersion),
	}
	gates = append(gates, artifactGates(in)...)

	allPass := true
	for _, g := range gates {
		if !g.Passed {
			allPass = false
			break
		}
	}

	result := Result{Phase: phase, Gates: gates, Checklist: renderChecklist(gates)}
	if phase == PhaseFirst {
		result.Allow = false
	} else {
		result.Allow = allPass
	}
	return result
}

func gate1JobComplete(ckpt *checkpoint.Checkpoint) GateCheck {
	ok := ckpt.SelfReport.IsJobComplete && ckpt.Reflection.RemainsNone()
	detail := fmt.Sprintf("is_job_complete=%v what_remains=%q", ckpt.SelfReport.IsJobComplete, ckpt.Reflection.WhatRemains)
	return GateCheck{Name: "1. job complete and nothing remains", Passed: ok, Detail: detail}
}

func gate2ReflectionWellFormed(ckpt *checkpoint.Checkpoint) GateCheck {
	r := ckpt.Reflection
	var problems []string
	if len(r.WhatWasDone) < 20 {
		problems = append(problems, fmt.Sprintf("what_was_done is %d chars, need >= 20", len(r.WhatWasDone)))
	}
	if len(r.KeyInsight) <= 50 {
		problems = append(problems, fmt.Sprintf("key_insight is %d chars, need more than 50", len(r.KeyInsight)))
	}
	if n := len(r.SearchTerms); n < 2 || n > 7 {
		problems = append(problems, fmt.Sprintf("search_terms has %d items, need 2-7", n))
	}
	if !checkpoint.ValidCategory(r.Category) {
		problems = append(problems, fmt.Sprintf("category %q is not a recognized value", r.Category))
	}
	return GateCheck{Name: "2. reflection schema well-formed", Passed: len(problems) == 0, Detail: strings.Join(problems, "; ")}
}

func gate3VersionConsistency(ckpt *checkpoint.Checkpoint, currentVersion string) GateCheck {
	var stale []string
	for name, flag := range ckpt.SelfReport.Flags {
		if flag.AtVersion != "" && flag.AtVersion != currentVersion {
			stale = append(stale, fmt.Sprintf("%s stamped %s, current is %s", name, flag.AtVersion, currentVersion))
		}
	}
	return GateCheck{Name: "3. every proven flag stamped at current version", Passed: len(stale) == 0, Detail: strings.Join(stale, "; ")}
}

func gate4LintersPass(ckpt *checkpoint.Checkpoint, currentVersion string) GateCheck {
	if !ckpt.SelfReport.CodeChangesMade {
		return GateCheck{Name: "4. linters pass (code changed)", Passed: true, Detail: "no code changes claimed"}
	}
	flag := ckpt.SelfReport.Flags[checkpoint.FlagLintersPass]
	ok := flag.Trusted(currentVersion)
	return GateCheck{Name: "4. linters pass (code changed)", Passed: ok, Detail: fmt.Sprintf("linters_pass=%v at_version=%q", flag.Value, flag.AtVersion)}
}

// artifactGates reads whichever of the three verification artifacts apply
// to in.Requirements concurrently, then returns their gate checks in the
// fixed 5/6/7 order regardless of which read finished first.
func artifactGates(in Input) []GateCheck {
	var jobs []func() GateCheck
	if in.Requirements.RequiresWebVerify && in.Requirements.HasWebAssets {
		jobs = append(jobs, func() GateCheck {
			return gate5WebVerification(in.WebSmokePath, in.CurrentVersion, in.Waivers)
		})
	}
	if in.Requirements.RequiresMobileVerify {
		jobs = append(jobs, func() GateCheck {
			return gate6MobileVerification(in.MobileSmokePath, in.CurrentVersion)
		})
	}
	if in.Checkpoint.SelfReport.CodeChangesMade && in.Requirements.RequiresFixTests {
		jobs = append(jobs, func() GateCheck {
			return gate7ValidationTests(in.ValidationPath, in.CurrentVersion)
		})
	}
	if len(jobs) == 0 {
		return nil
	}

	results := worker.Map(0, jobs, func(run func() GateCheck) (GateCheck, error) {
		return run(), nil
	})
	gates := make([]GateCheck, len(results))
	for i, r := range results {
		gates[i] = r.Value
	}
	return gates
}

func gate5WebVerification(path, currentVersion string, waivers []string) GateCheck {
	res := artifacts.ReadWebSmoke(path, currentVersion, waivers)
	return GateCheck{Name: "5. web verification artifact (" + path + ")", Passed: res.Passed, Detail: res.Reason}
}

func gate6MobileVerification(path, currentVersion string) GateCheck {
	res := artifacts.ReadMobileSmoke(path, currentVersion)
	return GateCheck{Name: "6. mobile verification artifact (" + path + ")", Passed: res.Passed, Detail: res.Reason}
}

func gate7ValidationTests(path, currentVersion string) GateCheck {
	res := artifacts.ReadValidationTests(path, currentVersion)
	return GateCheck{Name: "7. fix-targeted validation tests (" + path + ")", Passed: res.Passed, Detail: res.Reason}
}

// filenamePattern spots bare filenames mentioned in prose, used to enrich
// the memory event's entities beyond the explicit search_terms.
var filenamePattern = regexp.MustCompile(`\b[\w-]+\.[a-zA-Z]{1,5}\b`)

// BuildMemoryEvent summarizes an allowed Stop into the MemoryEvent the
// validator appends to the memory event store: LESSON-first content, entities
// from search_terms plus filenames mentioned in what_was_done, category
// and problem_type copied through.
func BuildMemoryEvent(ckpt *checkpoint.Checkpoint, source string) memoryevent.Event {
	r := ckpt.Reflection
	entities := append([]string{}, r.SearchTerms...)
	for _, match := range filenamePattern.FindAllString(r.WhatWasDone, -1) {
		entities = append(entities, match)
	}

	content := fmt.Sprintf("LESSON: %s\n\nWhat was done: %s", r.KeyInsight, r.WhatWasDone)
	return memoryevent.Event{
		Type:     "stop",
		Source:   source,
		Category: string(r.Category),
		Content:  content,
		Entities: dedupeStrings(entities),
	}
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// renderChecklist produces the numbered stderr text naming exactly which
// clauses failed, with paths and expected vs. actual values.
func renderChecklist(gates []GateCheck) string {
	var b strings.Builder
	b.WriteString("Completion checklist:\n")
	for _, g := range gates {
		status := "PASS"
		if !g.Passed {
			status = "FAIL"
		}
		fmt.Fprintf(&b, "  [%s] %s", status, g.Name)
		if g.Detail != "" {
			fmt.Fprintf(&b, " — %s", g.Detail)
		}
		b.WriteString("\n")
	}
	return b.String()
}
