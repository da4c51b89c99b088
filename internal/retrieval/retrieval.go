// Package retrieval selects which memory events to inject as context:
// entity-gated, recency-and-overlap scored, packed into tiered excerpts
// under a character budget, with a prefix-hash repeat guard and a
// cross-project concept fallback.
package retrieval

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/boshu2/agentops/internal/memoryevent"
)

// Excerpt budget tiers: top event gets the largest slice,
// tapering for subsequent events until the overall budget is exhausted.
var excerptTiers = []int{600, 350, 200}

// DefaultProjectBudget is used when the host has not already injected its
// own native project memory.
const DefaultProjectBudget = 1200

// ReducedBudget is used when host-native project memory is already present,
// to avoid duplicating content.
const ReducedBudget = 600

// RecencyHalfLifeAnchor is the hour at which the linear ramp hands off to
// exponential decay, both evaluating to 0.5 at that point.
const RecencyHalfLifeAnchor = 48 * time.Hour

// RecencyHalfLife governs the exponential decay beyond the anchor.
const RecencyHalfLife = 7 * 24 * time.Hour

// LookbackInjections bounds how many prior prefix hashes are checked for
// the repeat guard, alongside the 60-minute time window.
const LookbackInjections = 8

// RepeatWindow is the time-based component of the repeat guard.
const RepeatWindow = 60 * time.Minute

// CrossProjectOverlapFloor is the higher bar cross-project concept matches
// must clear.
const CrossProjectOverlapFloor = 0.5

// EntityGateFloor: events scoring zero entity overlap are rejected outright.
const EntityGateFloor = 0.0

// NativeMemoryDupThreshold is the significant-word overlap fraction above
// which an event is skipped as duplicating host-native project memory.
const NativeMemoryDupThreshold = 0.6

// QueryContext is everything the scorer needs about "now": the active
// mode (for the debugging boost), the entities mined from recent tool
// inputs/user prompt/project seeds, and the host's native-memory content
// for de-dup.
type QueryContext struct {
	Entities            []string
	Mode                string
	NativeMemoryContent string
	DebuggingModes      map[string]bool
}

// IsDebuggingMode reports whether qc.Mode is configured as a debugging mode.
func (qc QueryContext) IsDebuggingMode() bool {
	if qc.DebuggingModes == nil {
		return qc.Mode == "melt" || qc.Mode == "repair"
	}
	return qc.DebuggingModes[qc.Mode]
}

// Scored pairs an event with its computed score and overlap, for callers
// that want to inspect the ranking (e.g. "ao status", tests).
type Scored struct {
	Event     memoryevent.Event
	Score     float64
	Overlap   float64
	Recency   float64
	Rejected  bool // true if gated out by zero entity overlap
}

// Score computes the final retrieval score for ev against qc, as of now.
// Final score = 0.5*overlap + 0.5*recency + debugging boost.
func Score(ev memoryevent.Event, qc QueryContext, now time.Time) Scored {
	overlap := entityOverlap(ev.Entities, qc.Entities)
	if overlap <= EntityGateFloor {
		return Scored{Event: ev, Overlap: overlap, Rejected: true}
	}

	recency := recencyComponent(now.Sub(ev.Ts))
	boost := debugBoost(ev, qc)

	return Scored{
		Event:   ev,
		Overlap: overlap,
		Recency: recency,
		Score:   0.5*overlap + 0.5*recency + boost,
	}
}

// entityOverlap returns the maximum tiered match across all (event-entity,
// query-entity) pairs: exact match 1.0, file-stem 0.6, directory-prefix
// 0.3, substring 0.35. There is no separate concept-keyword tier: an exact
// keyword match scores 1.0, the same as an exact basename.
func entityOverlap(eventEntities, queryEntities []string) float64 {
	best := 0.0
	for _, e := range eventEntities {
		for _, q := range queryEntities {
			if score := pairScore(e, q); score > best {
				best = score
			}
		}
	}
	return best
}

func pairScore(a, b string) float64 {
	a, b = strings.ToLower(strings.TrimSpace(a)), strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1.0 // exact basename / concept keyword exact match
	}
	if stem(a) == stem(b) && stem(a) != "" {
		return 0.6 // file-stem match (same name, different extension/dir)
	}
	if isPathLike(a) && isPathLike(b) && samePrefix(a, b) {
		return 0.3 // directory-prefix match
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return 0.35 // substring match
	}
	return 0
}

func stem(s string) string {
	base := s
	if idx := strings.LastIndexAny(base, "/\\"); idx >= 0 {
		base = base[idx+1:]
	}
	if idx := strings.LastIndex(base, "."); idx > 0 {
		base = base[:idx]
	}
	return base
}

func isPathLike(s string) bool {
	return strings.ContainsAny(s, "/\\")
}

func samePrefix(a, b string) bool {
	da, db := dirOf(a), dirOf(b)
	return da != "" && da == db
}

func dirOf(s string) string {
	idx := strings.LastIndexAny(s, "/\\")
	if idx < 0 {
		return ""
	}
	return s[:idx]
}

// recencyComponent implements the linear-then-exponential recency curve:
// 1.0 at age=0 ramping linearly to 0.5 at 48h, then exponential decay with
// a 7-day half-life anchored at 0.5, continuous at the 48h boundary.
func recencyComponent(age time.Duration) float64 {
	if age < 0 {
		age = 0
	}
	if age <= RecencyHalfLifeAnchor {
		frac := float64(age) / float64(RecencyHalfLifeAnchor)
		return 1.0 - 0.5*frac
	}
	past := age - RecencyHalfLifeAnchor
	halfLives := float64(past) / float64(RecencyHalfLife)
	return 0.5 * math.Pow(0.5, halfLives)
}

// debugBoost adds +0.10 for category in {bugfix, config} when the active
// mode is a debugging mode, plus +0.05 when a problem-type concept entity
// is present.
func debugBoost(ev memoryevent.Event, qc QueryContext) float64 {
	if !qc.IsDebuggingMode() {
		return 0
	}
	var boost float64
	if ev.Category == "bugfix" || ev.Category == "config" {
		boost += 0.10
	}
	if ev.ProblemType != "" {
		boost += 0.05
	}
	return boost
}

// PrefixHash returns the hex-encoded sha256 of the first 40 characters of
// content, used by the repeat guard.
func PrefixHash(content string) string {
	prefix := content
	if len(prefix) > 40 {
		prefix = prefix[:40]
	}
	sum := sha256.Sum256([]byte(prefix))
	return hex.EncodeToString(sum[:])
}

// InjectionRecord is one prior injection, tracked so the repeat guard can
// skip events whose content prefix was recently shown again.
type InjectionRecord struct {
	Hash string
	At   time.Time
}

// repeated reports whether hash appears in history within RepeatWindow, or
// within the last LookbackInjections entries.
func repeated(hash string, history []InjectionRecord, now time.Time) bool {
	lookback := history
	if len(lookback) > LookbackInjections {
		lookback = lookback[len(lookback)-LookbackInjections:]
	}
	for _, rec := range lookback {
		if rec.Hash == hash {
			return true
		}
	}
	for _, rec := range history {
		if rec.Hash == hash && now.Sub(rec.At) <= RepeatWindow {
			return true
		}
	}
	return false
}

// Selection is the result of Select: the chosen events (already truncated
// to their excerpt budget) in rank order, plus bookkeeping for citation
// credit and the updated injection history.
type Selection struct {
	Events  []ExcerptedEvent
	History []InjectionRecord
}

// ExcerptedEvent is a selected event truncated to its tier's character
// budget.
type ExcerptedEvent struct {
	Event   memoryevent.Event
	Excerpt string
	Score   Scored
}

// Select scores candidates against qc, applies the entity gate, the
// repeat guard, and native-memory de-dup, then packs the top-ranked
// survivors into excerptTiers until budget characters are spent.
func Select(candidates []memoryevent.Event, qc QueryContext, budget int, history []InjectionRecord, now time.Time) (Selection, error) {
	if budget <= 0 {
		return Selection{}, ErrNoBudget
	}

	scored := make([]Scored, 0, len(candidates))
	for _, ev := range candidates {
		if isBootstrapEvent(ev) {
			continue
		}
		s := Score(ev, qc, now)
		if s.Rejected {
			continue
		}
		if dupesNativeMemory(ev.Content, qc.NativeMemoryContent) {
			continue
		}
		if repeated(PrefixHash(ev.Content), history, now) {
			continue
		}
		scored = append(scored, s)
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })

	out := Selection{History: append([]InjectionRecord{}, history...)}
	remaining := budget
	for i, s := range scored {
		if remaining <= 0 {
			break
		}
		tier := excerptTiers[len(excerptTiers)-1]
		if i < len(excerptTiers) {
			tier = excerptTiers[i]
		}
		size := tier
		if size > remaining {
			size = remaining
		}
		if size <= 0 {
			break
		}
		excerpt := s.Event.Content
		if len(excerpt) > size {
			excerpt = excerpt[:size]
		}
		out.Events = append(out.Events, ExcerptedEvent{Event: s.Event, Excerpt: excerpt, Score: s})
		out.History = append(out.History, InjectionRecord{Hash: PrefixHash(s.Event.Content), At: now})
		remaining -= len(excerpt)
	}
	return out, nil
}

// isBootstrapEvent filters the synthetic "project bootstrap commit" event
// type that seeds a brand-new memory store.
func isBootstrapEvent(ev memoryevent.Event) bool {
	return ev.Type == "bootstrap"
}

// dupesNativeMemory reports whether content's significant-word overlap
// with nativeMemory exceeds NativeMemoryDupThreshold. An empty nativeMemory
// means the host has no native project memory file, so nothing is deduped.
func dupesNativeMemory(content, nativeMemory string) bool {
	if strings.TrimSpace(nativeMemory) == "" {
		return false
	}
	cWords := significantWords(content)
	if len(cWords) == 0 {
		return false
	}
	nWords := significantWords(nativeMemory)
	nSet := make(map[string]bool, len(nWords))
	for _, w := range nWords {
		nSet[w] = true
	}

	overlap := 0
	for _, w := range cWords {
		if nSet[w] {
			overlap++
		}
	}
	return float64(overlap)/float64(len(cWords)) > NativeMemoryDupThreshold
}

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true, "was": true,
	"were": true, "of": true, "to": true, "and": true, "in": true, "on": true,
	"for": true, "it": true, "this": true, "that": true, "with": true,
}

func significantWords(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	})
	out := make([]string, 0, len(fields))
	for _, w := range fields {
		if len(w) < 3 || stopWords[w] {
			continue
		}
		out = append(out, w)
	}
	return out
}

// CrossProjectCandidate is a memory event sourced from a project other
// than the current one, scoped to concept entities only (never file
// paths), used to fill remaining budget slots.
type CrossProjectCandidate struct {
	ProjectID string
	Event     memoryevent.Event
}

// SelectCrossProject scores cross-project candidates at the higher
// CrossProjectOverlapFloor and fills whatever budget project-local
// Select left unspent. Project-local recency always fills first: this
// is only ever called with the budget remaining after local selection.
func SelectCrossProject(candidates []CrossProjectCandidate, qc QueryContext, remainingBudget int, history []InjectionRecord, now time.Time) (Selection, error) {
	if remainingBudget <= 0 {
		return Selection{History: history}, nil
	}

	conceptQC := QueryContext{Entities: conceptOnly(qc.Entities), Mode: qc.Mode, DebuggingModes: qc.DebuggingModes}
	events := make([]memoryevent.Event, 0, len(candidates))
	byID := make(map[string]CrossProjectCandidate, len(candidates))
	for _, c := range candidates {
		events = append(events, c.Event)
		byID[c.Event.ID] = c
	}

	sel, err := Select(events, conceptQC, remainingBudget, history, now)
	if err != nil {
		return Selection{}, err
	}

	filtered := sel.Events[:0]
	for _, e := range sel.Events {
		if e.Score.Overlap >= CrossProjectOverlapFloor {
			filtered = append(filtered, e)
		}
	}
	sel.Events = filtered
	return sel, nil
}

// conceptOnly drops path-like entities (containing a slash or a dot-ext),
// since cross-project queries must match on concept keywords, not file
// paths that are meaningless outside their origin project.
func conceptOnly(entities []string) []string {
	out := make([]string, 0, len(entities))
	for _, e := range entities {
		if isPathLike(e) || strings.Contains(e, ".") {
			continue
		}
		out = append(out, e)
	}
	return out
}
