package main

import (
	"path/filepath"
	"testing"

	"github.com/boshu2/agentops/internal/autonomous"
	"github.com/boshu2/agentops/internal/checkpoint"
	"github.com/boshu2/agentops/internal/config"
	"github.com/boshu2/agentops/internal/coreassert"
	"github.com/boshu2/agentops/internal/dispatch"
	"github.com/boshu2/agentops/internal/memoryevent"
)

func newTestEnv(t *testing.T, projectRoot string) *hookEnv {
	t.Helper()
	userRoot := filepath.Join(t.TempDir(), "user")
	return &hookEnv{
		cfg:             config.Default(),
		currentVersion:  "v1",
		autonomousStore: autonomous.NewStore(projectRoot, userRoot, 0),
		checkpointStore: checkpoint.NewStore(filepath.Join(projectRoot, ".claude", "completion-checkpoint.json")),
		memStore:        memoryevent.NewStore(filepath.Join(userRoot, "memory")),
		assertStore:     coreassert.NewStore(filepath.Join(userRoot, "memory", "core-assertions.jsonl")),
	}
}

func bashInput(cwd, sessionID, command string) dispatch.Input {
	return dispatch.Input{
		Cwd: cwd, SessionID: sessionID, ToolName: "Bash",
		ToolInput: map[string]interface{}{"command": command},
	}
}

func TestRunPreToolUseBlocksDangerousCommandRegardlessOfState(t *testing.T) {
	root := t.TempDir()
	env := newTestEnv(t, root)
	d := runPreToolUse(bashInput(root, "s1", "git push --force origin main"), env)
	if d.Action != dispatch.ActionDeny {
		t.Fatalf("expected deny, got %v", d.Action)
	}
}

func TestRunPreToolUseAllowsUnderActiveAutonomousState(t *testing.T) {
	root := t.TempDir()
	env := newTestEnv(t, root)
	if _, err := env.autonomousStore.Activate(autonomous.ModeMelt, "s1", root); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if _, err := env.autonomousStore.MarkPlanModeCompleted(root, "s1"); err != nil {
		t.Fatalf("mark plan: %v", err)
	}
	d := runPreToolUse(bashInput(root, "s1", "go test ./..."), env)
	if d.Action != dispatch.ActionAllow {
		t.Fatalf("expected allow, got %v: %s", d.Action, d.Reason)
	}
}

func TestRunPreToolUseDeniesEditBeforePlanOnFirstIteration(t *testing.T) {
	root := t.TempDir()
	env := newTestEnv(t, root)
	if _, err := env.autonomousStore.Activate(autonomous.ModeMelt, "s1", root); err != nil {
		t.Fatalf("activate: %v", err)
	}
	d := runPreToolUse(dispatch.Input{
		Cwd: root, SessionID: "s1", ToolName: "Edit",
		ToolInput: map[string]interface{}{"file_path": "main.go"},
	}, env)
	if d.Action != dispatch.ActionDeny {
		t.Fatalf("expected deny on unplanned first-iteration edit, got %v", d.Action)
	}
}

func TestEntitiesFromInputMinesWordsAndFilePath(t *testing.T) {
	in := dispatch.Input{
		Message:   "debugging the auth token refresh",
		ToolInput: map[string]interface{}{"file_path": "/repo/internal/auth/token.go"},
	}
	got := entitiesFromInput(in)
	want := map[string]bool{"debugging": true, "auth": true, "token": true, "refresh": true, "token.go": true}
	for _, w := range got {
		delete(want, w)
	}
	if len(want) != 0 {
		t.Fatalf("missing expected entities %v in %v", want, got)
	}
}

func TestInjectMemorySelectsOverlappingEvent(t *testing.T) {
	root := t.TempDir()
	env := newTestEnv(t, root)
	if _, err := env.memStore.AppendEvent(memoryevent.Event{
		Content:  "the auth token refresh path needed a mutex around the cache write",
		Entities: []string{"auth", "token", "refresh"},
	}); err != nil {
		t.Fatalf("append event: %v", err)
	}

	in := dispatch.Input{Cwd: root, SessionID: "s1", Message: "working on auth token refresh again"}
	d := injectMemory(in, env, 1200)
	if d.Context == nil || d.Context["additionalContext"] == "" {
		t.Fatalf("expected injected additional context, got %+v", d)
	}
}

func TestInjectMemoryRepeatGuardAcrossInvocations(t *testing.T) {
	root := t.TempDir()
	env := newTestEnv(t, root)
	if _, err := env.memStore.AppendEvent(memoryevent.Event{
		Content:  "the auth token refresh path needed a mutex around the cache write",
		Entities: []string{"auth", "token"},
	}); err != nil {
		t.Fatalf("append event: %v", err)
	}

	in := dispatch.Input{Cwd: root, SessionID: "s1", Message: "working on auth token refresh again"}
	first := injectMemory(in, env, 1200)
	if first.Context == nil {
		t.Fatalf("expected first invocation to inject")
	}

	// A second short-lived process sees the same event but must skip it:
	// its content prefix hash was recorded by the first injection.
	second := injectMemory(in, env, 1200)
	if second.Context != nil {
		t.Fatalf("expected repeat guard to suppress immediate re-injection, got %+v", second)
	}
}

func TestInjectMemoryPassesThroughWithNoStore(t *testing.T) {
	root := t.TempDir()
	env := newTestEnv(t, root)
	in := dispatch.Input{Cwd: root, SessionID: "s1", Message: "anything"}
	d := injectMemory(in, env, 1200)
	if d.Action != dispatch.ActionPassthrough || d.Context != nil {
		t.Fatalf("expected plain passthrough with empty store, got %+v", d)
	}
}

func cleanCheckpoint() *checkpoint.Checkpoint {
	return &checkpoint.Checkpoint{
		SelfReport: checkpoint.SelfReport{
			IsJobComplete:   true,
			CodeChangesMade: false,
			Flags:           map[string]checkpoint.ProvenFlag{},
		},
		Reflection: checkpoint.Reflection{
			WhatWasDone: "Reworked the auth token refresh to hold a mutex",
			WhatRemains: "none",
			KeyInsight:  "Guard the refresh path with a single mutex so concurrent 401s never double-refresh",
			SearchTerms: []string{"auth", "token"},
			Category:    checkpoint.CategoryBugfix,
		},
	}
}

func TestRunStopFirstAttemptAlwaysBlocks(t *testing.T) {
	root := t.TempDir()
	env := newTestEnv(t, root)
	if err := env.checkpointStore.Save(cleanCheckpoint()); err != nil {
		t.Fatalf("save checkpoint: %v", err)
	}
	d := runStop(dispatch.Input{Cwd: root, SessionID: "s1", StopHookActive: false}, env)
	if d.Action != dispatch.ActionDeny {
		t.Fatalf("expected first Stop attempt to block, got %v", d.Action)
	}
}

func TestRunStopRetryAllowsCleanCheckpointAndAppendsMemoryEvent(t *testing.T) {
	root := t.TempDir()
	env := newTestEnv(t, root)
	if err := env.checkpointStore.Save(cleanCheckpoint()); err != nil {
		t.Fatalf("save checkpoint: %v", err)
	}
	d := runStop(dispatch.Input{Cwd: root, SessionID: "s1", StopHookActive: true}, env)
	if d.Action != dispatch.ActionPassthrough {
		t.Fatalf("expected retry with clean checkpoint to allow, got %v: %s", d.Action, d.Reason)
	}

	events, err := env.memStore.ListRecent(10)
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected one memory event appended on successful stop, got %d", len(events))
	}
}

func TestRunStopRetryBlocksWithoutCheckpoint(t *testing.T) {
	root := t.TempDir()
	env := newTestEnv(t, root)
	d := runStop(dispatch.Input{Cwd: root, SessionID: "s1", StopHookActive: true}, env)
	if d.Action != dispatch.ActionDeny {
		t.Fatalf("expected deny with no checkpoint recorded, got %v", d.Action)
	}
}

func TestRunPostToolUseInvalidatesStaleFlagsAcrossVersions(t *testing.T) {
	root := t.TempDir()
	env := newTestEnv(t, root)
	ckpt := cleanCheckpoint()
	ckpt.SelfReport.CodeChangesMade = true
	ckpt.SelfReport.Flags[checkpoint.FlagLintersPass] = checkpoint.ProvenFlag{Value: true, AtVersion: "stale-version"}
	if err := env.checkpointStore.Save(ckpt); err != nil {
		t.Fatalf("save checkpoint: %v", err)
	}

	runPostToolUse(bashInput(root, "s1", "go test ./..."), env)

	reloaded, err := env.checkpointStore.Load()
	if err != nil {
		t.Fatalf("reload checkpoint: %v", err)
	}
	if reloaded.SelfReport.Flags[checkpoint.FlagLintersPass].Value {
		t.Fatalf("expected linters_pass to be invalidated after a stale-version post-tool-use pass")
	}
}
