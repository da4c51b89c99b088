// Package checkpoint stores and validates the agent's self-report and
// reflection at an attempted termination. Every boolean in self_report
// that claims a proven fact carries a companion "<field>_at_version"
// string; this package represents that uniform pattern as a single
// tagged type, ProvenFlag.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/boshu2/agentops/internal/atomicio"
)

// SchemaVersion is bumped whenever a breaking change is made to the
// checkpoint document shape; unknown fields are still preserved regardless.
const SchemaVersion = 1

// Recognized proven-flag names; the cascade engine's dependency graph operates over these.
const (
	FlagLintersPass           = "linters_pass"
	FlagDeployed              = "deployed"
	FlagWebTestingDone        = "web_testing_done"
	FlagConsoleErrorsChecked  = "console_errors_checked"
	FlagAPITestingDone        = "api_testing_done"
	FlagMobileTestingDone     = "mobile_testing_done"
	FlagValidationTestsPassed = "validation_tests_passed"
)

// KnownFlags enumerates every recognized proven-flag name, in cascade
// declaration order.
var KnownFlags = []string{
	FlagLintersPass,
	FlagDeployed,
	FlagWebTestingDone,
	FlagConsoleErrorsChecked,
	FlagAPITestingDone,
	FlagMobileTestingDone,
	FlagValidationTestsPassed,
}

// Category is the reflection's topic classification.
type Category string

const (
	CategoryBugfix       Category = "bugfix"
	CategoryGotcha       Category = "gotcha"
	CategoryArchitecture Category = "architecture"
	CategoryPattern      Category = "pattern"
	CategoryConfig       Category = "config"
	CategoryRefactor     Category = "refactor"
)

var validCategories = map[Category]bool{
	CategoryBugfix: true, CategoryGotcha: true, CategoryArchitecture: true,
	CategoryPattern: true, CategoryConfig: true, CategoryRefactor: true,
}

// ValidCategory reports whether c is one of the recognized enum values.
func ValidCategory(c Category) bool { return validCategories[c] }

// ProvenFlag is the uniform "boolean assertion + version stamp" pattern
// used for every field in self_report that claims a verified fact. Value
// is only trusted by the completion validator when AtVersion equals the
// current CodeVersion.
type ProvenFlag struct {
	Value     bool   `json:"value"`
	AtVersion string `json:"at_version"`
}

// Trusted reports whether the flag is both asserted true and stamped with
// currentVersion.
func (f ProvenFlag) Trusted(currentVersion string) bool {
	return f.Value && f.AtVersion != "" && f.AtVersion == currentVersion
}

// SelfReport is the agent's structured claim about what it did. IsJobComplete
// and CodeChangesMade are plain booleans (no version stamp: they describe
// intent, not a verifiable fact). Flags holds every "<name>"/"<name>_at_version"
// pair keyed by name; unrecognized flag names are preserved so the schema
// can grow without breaking older checkpoints.
type SelfReport struct {
	IsJobComplete   bool                  `json:"is_job_complete"`
	CodeChangesMade bool                  `json:"code_changes_made"`
	Flags           map[string]ProvenFlag `json:"-"`
}

// MarshalJSON flattens Flags back into "<name>"/"<name>_at_version" pairs
// alongside the plain fields, matching the canonical on-disk checkpoint
// schema.
func (r SelfReport) MarshalJSON() ([]byte, error) {
	out := map[string]interface{}{
		"is_job_complete":   r.IsJobComplete,
		"code_changes_made": r.CodeChangesMade,
	}
	for name, flag := range r.Flags {
		out[name] = flag.Value
		out[name+"_at_version"] = flag.AtVersion
	}
	return json.Marshal(out)
}

// UnmarshalJSON reconstructs SelfReport from the flattened wire shape,
// pairing every "<name>_at_version" string with its boolean sibling.
func (r *SelfReport) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if v, ok := raw["is_job_complete"]; ok {
		if err := json.Unmarshal(v, &r.IsJobComplete); err != nil {
			return fmt.Errorf("is_job_complete: %w", err)
		}
	}
	if v, ok := raw["code_changes_made"]; ok {
		if err := json.Unmarshal(v, &r.CodeChangesMade); err != nil {
			return fmt.Errorf("code_changes_made: %w", err)
		}
	}

	r.Flags = make(map[string]ProvenFlag)
	for key, v := range raw {
		if key == "is_job_complete" || key == "code_changes_made" {
			continue
		}
		if strings.HasSuffix(key, "_at_version") {
			continue // merged below via its boolean sibling
		}
		var b bool
		if err := json.Unmarshal(v, &b); err != nil {
			continue // not a boolean flag; leave it out rather than fail closed on forward-compat data
		}
		flag := ProvenFlag{Value: b}
		if av, ok := raw[key+"_at_version"]; ok {
			_ = json.Unmarshal(av, &flag.AtVersion)
		}
		r.Flags[key] = flag
	}
	return nil
}

// Reflection is the agent's structured lesson capture, feeding the
// memory event store on successful Stop.
type Reflection struct {
	WhatWasDone string   `json:"what_was_done"`
	WhatRemains string   `json:"what_remains"`
	KeyInsight  string   `json:"key_insight"`
	SearchTerms []string `json:"search_terms"`
	Category    Category `json:"category"`

	// MemoryThatHelped optionally attributes injected memory event ids that
	// the agent found useful; credited to the manifest's cited counter on
	// successful Stop.
	MemoryThatHelped []string `json:"memory_that_helped,omitempty"`
}

// RemainsNone reports whether WhatRemains is exactly "none", case-insensitive
// and trimmed.
func (r Reflection) RemainsNone() bool {
	return strings.EqualFold(strings.TrimSpace(r.WhatRemains), "none")
}

// Evidence is optional free-form supporting material: tested URLs, artifact
// pointers, and notes.
type Evidence struct {
	URLsTested []string               `json:"urls_tested,omitempty"`
	Artifacts  []string               `json:"artifacts,omitempty"`
	Notes      string                 `json:"notes,omitempty"`
	Extra      map[string]interface{} `json:"-"`
}

// Checkpoint is the full two-part (plus optional evidence) document.
// Unknown top-level keys survive a load/save round-trip (Extra), so a
// cascade reset rewriting the file never drops fields a newer schema added.
type Checkpoint struct {
	SchemaVersion int        `json:"schema_version"`
	SelfReport    SelfReport `json:"self_report"`
	Reflection    Reflection `json:"reflection"`
	Evidence      *Evidence  `json:"evidence,omitempty"`
	Extra         map[string]json.RawMessage `json:"-"`
}

var checkpointKnownKeys = map[string]bool{
	"schema_version": true, "self_report": true, "reflection": true, "evidence": true,
}

// UnmarshalJSON decodes the typed fields and stashes any unknown top-level
// keys into Extra.
func (c *Checkpoint) UnmarshalJSON(data []byte) error {
	type plain Checkpoint
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*c = Checkpoint(p)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for key := range raw {
		if checkpointKnownKeys[key] {
			continue
		}
		if c.Extra == nil {
			c.Extra = make(map[string]json.RawMessage)
		}
		c.Extra[key] = raw[key]
	}
	return nil
}

// MarshalJSON re-emits the typed fields alongside whatever Extra preserved.
func (c Checkpoint) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, 4+len(c.Extra))
	for key, val := range c.Extra {
		out[key] = val
	}
	out["schema_version"] = c.SchemaVersion
	out["self_report"] = c.SelfReport
	out["reflection"] = c.Reflection
	if c.Evidence != nil {
		out["evidence"] = c.Evidence
	}
	return json.Marshal(out)
}

// Store loads and saves a single project's checkpoint file.
type Store struct {
	Path string
}

// NewStore builds a Store for <project-root>/.claude/completion-checkpoint.json.
func NewStore(path string) *Store {
	return &Store{Path: path}
}

// Load reads and schema-validates the checkpoint. A missing file yields
// ErrMissing; a present-but-malformed file yields ErrCorrupt so callers can
// fail closed.
func (s *Store) Load() (*Checkpoint, error) {
	var ckpt Checkpoint
	status := atomicio.ReadJSON(s.Path, &ckpt)
	switch status {
	case atomicio.StatusMissing:
		return nil, ErrMissing
	case atomicio.StatusOK:
		// fallthrough to structural validation below
	default:
		return nil, ErrCorrupt
	}
	if ckpt.SelfReport.Flags == nil {
		ckpt.SelfReport.Flags = make(map[string]ProvenFlag)
	}
	return &ckpt, nil
}

// Save atomically persists the checkpoint, stamping SchemaVersion.
func (s *Store) Save(ckpt *Checkpoint) error {
	if ckpt.SchemaVersion == 0 {
		ckpt.SchemaVersion = SchemaVersion
	}
	return atomicio.WriteJSON(s.Path, ckpt)
}

// ResetField clears a proven flag (sets Value=false, AtVersion="") and
// persists the result. The cascade engine does not call it: Invalidate
// clears flags in memory and InvalidateStore saves the whole checkpoint.
// Returns ErrUnknownField for names outside KnownFlags so a typo never
// silently no-ops.
func (s *Store) ResetField(field string) error {
	known := false
	for _, f := range KnownFlags {
		if f == field {
			known = true
			break
		}
	}
	if !known {
		return ErrUnknownField
	}

	ckpt, err := s.Load()
	if err != nil {
		return err
	}
	ckpt.SelfReport.Flags[field] = ProvenFlag{}
	return s.Save(ckpt)
}
