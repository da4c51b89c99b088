package completion

import (
	"path/filepath"
	"testing"

	"github.com/boshu2/agentops/internal/atomicio"
	"github.com/boshu2/agentops/internal/checkpoint"
)

func cleanCheckpoint() *checkpoint.Checkpoint {
	return &checkpoint.Checkpoint{
		SelfReport: checkpoint.SelfReport{
			IsJobComplete:   true,
			CodeChangesMade: true,
			Flags: map[string]checkpoint.ProvenFlag{
				checkpoint.FlagLintersPass: {Value: true, AtVersion: "abc1234"},
			},
		},
		Reflection: checkpoint.Reflection{
			WhatWasDone: "Implemented logout button",
			WhatRemains: "none",
			KeyInsight:  "Guard token clears behind a single helper so 401 paths don't diverge",
			SearchTerms: []string{"auth", "logout", "token"},
			Category:    checkpoint.CategoryPattern,
		},
	}
}

func TestScenarioS1CleanCompletionAllowsOnRetry(t *testing.T) {
	ckpt := cleanCheckpoint()
	webPath := filepath.Join(t.TempDir(), "summary.json")
	if err := atomicio.WriteJSON(webPath, map[string]interface{}{
		"passed": true, "tested_at_version": "abc1234",
		"urls_tested": []string{"https://app.example.com/dashboard"},
	}); err != nil {
		t.Fatalf("fixture: %v", err)
	}

	in := Input{
		Checkpoint:     ckpt,
		CurrentVersion: "abc1234",
		Requirements:   ModeRequirements{HasWebAssets: true, RequiresWebVerify: true},
		WebSmokePath:   webPath,
	}

	first := Evaluate(PhaseFirst, in)
	if first.Allow {
		t.Fatalf("expected PhaseFirst to always block")
	}

	retry := Evaluate(PhaseRetry, in)
	if !retry.Allow {
		t.Fatalf("expected clean checkpoint to allow on retry, gates=%+v", retry.Gates)
	}
}

func TestScenarioS2StaleDeployBlocks(t *testing.T) {
	ckpt := cleanCheckpoint()
	ckpt.SelfReport.Flags[checkpoint.FlagDeployed] = checkpoint.ProvenFlag{Value: true, AtVersion: "abc1234"}

	in := Input{Checkpoint: ckpt, CurrentVersion: "abc1234-dirty-11ff22ee33dd"}
	result := Evaluate(PhaseRetry, in)
	if result.Allow {
		t.Fatalf("expected stale deployed stamp to block Stop")
	}

	found := false
	for _, g := range result.Gates {
		if !g.Passed && g.Name == "3. every proven flag stamped at current version" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected version-consistency gate to fail, got %+v", result.Gates)
	}
}

func TestScenarioS4HealthEndpointOnlyBlocks(t *testing.T) {
	ckpt := cleanCheckpoint()
	webPath := filepath.Join(t.TempDir(), "summary.json")
	if err := atomicio.WriteJSON(webPath, map[string]interface{}{
		"passed": true, "tested_at_version": "abc1234",
		"urls_tested": []string{"https://app.example.com/health"},
	}); err != nil {
		t.Fatalf("fixture: %v", err)
	}

	in := Input{
		Checkpoint:     ckpt,
		CurrentVersion: "abc1234",
		Requirements:   ModeRequirements{HasWebAssets: true, RequiresWebVerify: true},
		WebSmokePath:   webPath,
	}
	result := Evaluate(PhaseRetry, in)
	if result.Allow {
		t.Fatalf("expected health-endpoint-only verification to block")
	}
}

func TestWhatRemainsNonEmptyBlocks(t *testing.T) {
	ckpt := cleanCheckpoint()
	ckpt.Reflection.WhatRemains = "add more tests"
	result := Evaluate(PhaseRetry, Input{Checkpoint: ckpt, CurrentVersion: "abc1234"})
	if result.Allow {
		t.Fatalf("expected non-none what_remains to block")
	}
}

func TestKeyInsightBoundary(t *testing.T) {
	ckpt := cleanCheckpoint()
	ckpt.Reflection.KeyInsight = stringOfLen(50)
	result := Evaluate(PhaseRetry, Input{Checkpoint: ckpt, CurrentVersion: "abc1234"})
	if result.Allow {
		t.Fatalf("expected exactly-50-char key_insight to block")
	}

	ckpt.Reflection.KeyInsight = stringOfLen(51)
	result = Evaluate(PhaseRetry, Input{Checkpoint: ckpt, CurrentVersion: "abc1234"})
	if !result.Allow {
		t.Fatalf("expected 51-char key_insight to pass, gates=%+v", result.Gates)
	}
}

func stringOfLen(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = 'a'
	}
	return string(b)
}

func TestNoCheckpointBlocks(t *testing.T) {
	result := Evaluate(PhaseRetry, Input{CurrentVersion: "abc1234"})
	if result.Allow {
		t.Fatalf("expected no-checkpoint to block")
	}
}

func TestBuildMemoryEventCapturesSearchTermsAndFilenames(t *testing.T) {
	ckpt := cleanCheckpoint()
	ckpt.Reflection.WhatWasDone = "Fixed the bug in auth.go by guarding token.go"
	ev := BuildMemoryEvent(ckpt, "completion-validator")
	if ev.Category != string(checkpoint.CategoryPattern) {
		t.Fatalf("expected category copied through, got %q", ev.Category)
	}
	hasFile := false
	for _, e := range ev.Entities {
		if e == "auth.go" {
			hasFile = true
		}
	}
	if !hasFile {
		t.Fatalf("expected filename entity from what_was_done, got %+v", ev.Entities)
	}
}
