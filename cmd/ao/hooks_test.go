package main

import (
	"testing"
)

func TestGenerateHooksConfigCoversAllDispatchedEvents(t *testing.T) {
	hooks := generateHooksConfig()

	for _, event := range AllEventNames() {
		groups := hooks.GetEventGroups(event)
		if len(groups) != 1 || len(groups[0].Hooks) != 1 {
			t.Fatalf("event %s: expected exactly one hook group with one entry, got %+v", event, groups)
		}
		want := hookEventCommands[event]
		got := groups[0].Hooks[0].Command
		if got != want {
			t.Errorf("event %s: expected command %q, got %q", event, want, got)
		}
	}
}

func TestAllEventNamesMatchesDispatchContract(t *testing.T) {
	events := AllEventNames()
	if len(events) != 7 {
		t.Fatalf("expected 7 events, got %d", len(events))
	}
	expected := []string{
		"SessionStart", "UserPromptSubmit",
		"PreToolUse", "PostToolUse",
		"Stop", "PreCompact",
		"PermissionRequest",
	}
	for i, e := range expected {
		if events[i] != e {
			t.Errorf("event %d: expected %s, got %s", i, e, events[i])
		}
	}
}

func TestHooksConfigGetSetEventGroups(t *testing.T) {
	config := &HooksConfig{}
	groups := []HookGroup{
		{Hooks: []HookEntry{{Type: "command", Command: "test"}}},
	}

	for _, event := range AllEventNames() {
		config.SetEventGroups(event, groups)
		got := config.GetEventGroups(event)
		if len(got) != 1 {
			t.Errorf("event %s: expected 1 group after set, got %d", event, len(got))
		}
	}

	if got := config.GetEventGroups("Unknown"); got != nil {
		t.Error("expected nil for unknown event")
	}
}

func TestHookGroupToMapStringMatcher(t *testing.T) {
	g := HookGroup{
		Matcher: "Write|Edit",
		Hooks: []HookEntry{
			{Type: "command", Command: "echo hello"},
		},
	}

	m := hookGroupToMap(g)

	matcher, ok := m["matcher"].(string)
	if !ok {
		t.Fatal("expected matcher to be a string")
	}
	if matcher != "Write|Edit" {
		t.Errorf("expected matcher 'Write|Edit', got '%s'", matcher)
	}

	hooks, ok := m["hooks"].([]map[string]any)
	if !ok {
		t.Fatal("expected hooks array in map")
	}
	if len(hooks) != 1 {
		t.Fatalf("expected 1 hook, got %d", len(hooks))
	}
}

func TestHookGroupToMapEmptyMatcher(t *testing.T) {
	g := HookGroup{
		Hooks: []HookEntry{
			{Type: "command", Command: "echo hello"},
		},
	}

	m := hookGroupToMap(g)
	if _, exists := m["matcher"]; exists {
		t.Error("expected no matcher key when Matcher is empty string")
	}
}

func TestHookGroupToMapTimeout(t *testing.T) {
	g := HookGroup{
		Hooks: []HookEntry{
			{Type: "command", Command: "test", Timeout: 120},
		},
	}

	m := hookGroupToMap(g)
	hooks := m["hooks"].([]map[string]any)
	if hooks[0]["timeout"] != 120 {
		t.Errorf("expected timeout 120, got %v", hooks[0]["timeout"])
	}

	g2 := HookGroup{
		Hooks: []HookEntry{
			{Type: "command", Command: "test", Timeout: 0},
		},
	}
	m2 := hookGroupToMap(g2)
	hooks2 := m2["hooks"].([]map[string]any)
	if _, exists := hooks2[0]["timeout"]; exists {
		t.Error("expected no timeout key when Timeout is 0")
	}
}

func TestFilterNonAoHookGroupsAllEvents(t *testing.T) {
	hooksMap := make(map[string]any)
	for _, event := range AllEventNames() {
		hooksMap[event] = []any{
			map[string]any{
				"hooks": []any{
					map[string]any{"type": "command", "command": "ao hook pre-tool-use"},
				},
			},
			map[string]any{
				"hooks": []any{
					map[string]any{"type": "command", "command": "my-custom-hook"},
				},
			},
		}
	}

	for _, event := range AllEventNames() {
		filtered := filterNonAoHookGroups(hooksMap, event)
		if len(filtered) != 1 {
			t.Errorf("event %s: expected 1 non-ao group, got %d", event, len(filtered))
		}
		if hooks, ok := filtered[0]["hooks"].([]any); ok {
			if hook, ok := hooks[0].(map[string]any); ok {
				if hook["command"] != "my-custom-hook" {
					t.Errorf("event %s: expected non-ao hook preserved, got %v", event, hook["command"])
				}
			}
		}
	}
}

func TestHookGroupContainsAoAllEvents(t *testing.T) {
	hooksMap := make(map[string]any)
	for _, event := range AllEventNames() {
		hooksMap[event] = []any{
			map[string]any{
				"hooks": []any{
					map[string]any{"type": "command", "command": "ao hook stop"},
				},
			},
		}
	}

	for _, event := range AllEventNames() {
		if !hookGroupContainsAo(hooksMap, event) {
			t.Errorf("event %s: expected ao hook detected", event)
		}
	}
}

func TestMergeHookEventsReplacesExistingAoEntriesOnly(t *testing.T) {
	hooksMap := map[string]any{
		"Stop": []any{
			map[string]any{
				"hooks": []any{
					map[string]any{"type": "command", "command": "ao hook stop"},
				},
			},
			map[string]any{
				"hooks": []any{
					map[string]any{"type": "command", "command": "my-custom-hook"},
				},
			},
		},
	}

	newHooks := generateHooksConfig()
	installed := mergeHookEvents(hooksMap, newHooks, AllEventNames())
	if installed != len(AllEventNames()) {
		t.Fatalf("expected all %d events installed, got %d", len(AllEventNames()), installed)
	}

	stopGroups, ok := hooksMap["Stop"].([]map[string]any)
	if !ok {
		t.Fatalf("expected Stop groups as []map[string]any, got %T", hooksMap["Stop"])
	}
	if len(stopGroups) != 2 {
		t.Fatalf("expected the custom hook preserved alongside the refreshed ao hook, got %d groups", len(stopGroups))
	}
}
