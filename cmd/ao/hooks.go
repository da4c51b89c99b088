package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	hooksOutputFormat string
	hooksDryRun       bool
	hooksForce        bool
)

// HookEntry represents a single hook command (e.g., {"type": "command", "command": "..."}).
type HookEntry struct {
	Type    string `json:"type"`
	Command string `json:"command"`
	Timeout int    `json:"timeout,omitempty"`
}

// HookGroup represents a hook group with optional matcher and a hooks array.
// Claude Code format: {"matcher": "Write|Edit", "hooks": [{"type": "command", "command": "..."}]}
type HookGroup struct {
	Matcher string      `json:"matcher,omitempty"`
	Hooks   []HookEntry `json:"hooks"`
}

// AllEventNames returns the lifecycle event names the dispatcher answers, in
// the order the host fires them over a session.
func AllEventNames() []string {
	return []string{
		"SessionStart", "UserPromptSubmit",
		"PreToolUse", "PostToolUse",
		"Stop", "PreCompact",
		"PermissionRequest",
	}
}

// HooksConfig represents the hooks section of Claude settings, scoped to
// the events ao's dispatcher answers.
type HooksConfig struct {
	SessionStart       []HookGroup `json:"SessionStart,omitempty"`
	UserPromptSubmit   []HookGroup `json:"UserPromptSubmit,omitempty"`
	PreToolUse         []HookGroup `json:"PreToolUse,omitempty"`
	PostToolUse        []HookGroup `json:"PostToolUse,omitempty"`
	Stop               []HookGroup `json:"Stop,omitempty"`
	PreCompact         []HookGroup `json:"PreCompact,omitempty"`
	PermissionRequest  []HookGroup `json:"PermissionRequest,omitempty"`
}

// GetEventGroups returns the hook groups for a given event name.
func (c *HooksConfig) GetEventGroups(event string) []HookGroup {
	switch event {
	case "SessionStart":
		return c.SessionStart
	case "UserPromptSubmit":
		return c.UserPromptSubmit
	case "PreToolUse":
		return c.PreToolUse
	case "PostToolUse":
		return c.PostToolUse
	case "Stop":
		return c.Stop
	case "PreCompact":
		return c.PreCompact
	case "PermissionRequest":
		return c.PermissionRequest
	default:
		return nil
	}
}

// SetEventGroups sets the hook groups for a given event name.
func (c *HooksConfig) SetEventGroups(event string, groups []HookGroup) {
	switch event {
	case "SessionStart":
		c.SessionStart = groups
	case "UserPromptSubmit":
		c.UserPromptSubmit = groups
	case "PreToolUse":
		c.PreToolUse = groups
	case "PostToolUse":
		c.PostToolUse = groups
	case "Stop":
		c.Stop = groups
	case "PreCompact":
		c.PreCompact = groups
	case "PermissionRequest":
		c.PermissionRequest = groups
	}
}

// ClaudeSettings represents the Claude Code settings.json structure.
type ClaudeSettings struct {
	Hooks *HooksConfig   `json:"hooks,omitempty"`
	Other map[string]any `json:"-"` // Preserve other settings
}

var hooksCmd = &cobra.Command{
	Use:   "hooks",
	Short: "Manage Claude Code hooks wiring for ao",
	Long: `The hooks command installs and inspects the Claude Code settings.json
wiring that routes lifecycle events to "ao hook <event>".

Subcommands:
  init      Print the hooks configuration ao would install
  install   Install hooks to ~/.claude/settings.json
  show      Display current hook configuration
  test      Verify the ao binary and installed hooks are wired correctly

Example workflow:
  ao hooks init                    # Preview configuration
  ao hooks install                 # Install to Claude Code
  ao hooks test                    # Verify everything works`,
}

var hooksInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Print the hooks configuration ao would install",
	Long: `Print the Claude Code hooks configuration ao would install: one
"ao hook <event>" command per lifecycle event the dispatcher answers.

Output formats:
  json     JSON for manual settings.json editing
  shell    The equivalent command lines, for a quick sanity read`,
	RunE: runHooksInit,
}

var hooksInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Install hooks to Claude Code settings",
	Long: `Install ao hooks to ~/.claude/settings.json.

This command:
  1. Reads existing settings.json (if any)
  2. Merges ao's hook entries with existing configuration
  3. Creates a backup of the original settings
  4. Writes the updated configuration

All 7 events the dispatcher answers are installed in one pass:
  SessionStart, UserPromptSubmit, PreToolUse, PostToolUse,
  Stop, PreCompact, PermissionRequest

Use --force to overwrite an existing ao installation.`,
	RunE: runHooksInstall,
}

var hooksShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display current hook configuration",
	Long:  `Display the current Claude Code hooks configuration from ~/.claude/settings.json.`,
	RunE:  runHooksShow,
}

var hooksTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Test hooks configuration",
	Long: `Test that ao is wired correctly as a Claude Code hook.

This command:
  1. Verifies ao is in PATH
  2. Checks that the hook subcommand exists
  3. Reports settings.json coverage
  4. Dry-runs a SessionStart hook invocation`,
	RunE: runHooksTest,
}

func init() {
	rootCmd.AddCommand(hooksCmd)
	hooksCmd.AddCommand(hooksInitCmd)
	hooksCmd.AddCommand(hooksInstallCmd)
	hooksCmd.AddCommand(hooksShowCmd)
	hooksCmd.AddCommand(hooksTestCmd)

	hooksInitCmd.Flags().StringVar(&hooksOutputFormat, "format", "json", "Output format: json, shell")

	hooksInstallCmd.Flags().BoolVar(&hooksDryRun, "dry-run", false, "Show what would be installed without making changes")
	hooksInstallCmd.Flags().BoolVar(&hooksForce, "force", false, "Overwrite existing ao hooks")

	hooksTestCmd.Flags().BoolVar(&hooksDryRun, "dry-run", false, "Show test steps without running hooks")
}

// hookEventCommands maps each lifecycle event to the "ao hook <event>"
// subcommand that answers it. Every event is a single binary invocation;
// there are no external shell scripts to install or copy.
var hookEventCommands = map[string]string{
	"SessionStart":      "ao hook session-start",
	"UserPromptSubmit":   "ao hook user-prompt-submit",
	"PreToolUse":         "ao hook pre-tool-use",
	"PostToolUse":        "ao hook post-tool-use",
	"Stop":               "ao hook stop",
	"PreCompact":         "ao hook pre-compact",
	"PermissionRequest":  "ao hook permission-request",
}

// generateHooksConfig builds the ao hooks configuration: one hook group per
// event, each running the matching "ao hook <event>" subcommand.
func generateHooksConfig() *HooksConfig {
	config := &HooksConfig{}
	for _, event := range AllEventNames() {
		config.SetEventGroups(event, []HookGroup{
			{Hooks: []HookEntry{{Type: "command", Command: hookEventCommands[event]}}},
		})
	}
	return config
}

func runHooksInit(cmd *cobra.Command, args []string) error {
	hooks := generateHooksConfig()

	switch hooksOutputFormat {
	case "json":
		wrapper := struct {
			Hooks *HooksConfig `json:"hooks"`
		}{Hooks: hooks}

		data, err := json.MarshalIndent(wrapper, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal hooks: %w", err)
		}
		fmt.Println(string(data))

	case "shell":
		for _, event := range AllEventNames() {
			fmt.Printf("# %s\n%s\n\n", event, hookEventCommands[event])
		}

	default:
		return fmt.Errorf("unknown format: %s (use json or shell)", hooksOutputFormat)
	}

	return nil
}

func loadHooksSettings(settingsPath string) (map[string]any, error) {
	rawSettings := make(map[string]any)
	data, err := os.ReadFile(settingsPath)
	if err == nil {
		if err := json.Unmarshal(data, &rawSettings); err != nil {
			return nil, fmt.Errorf("parse existing settings: %w", err)
		}
		return rawSettings, nil
	}
	if os.IsNotExist(err) {
		return rawSettings, nil
	}
	return nil, fmt.Errorf("read settings: %w", err)
}

func cloneHooksMap(rawSettings map[string]any) map[string]any {
	hooksMap := make(map[string]any)
	if existing, ok := rawSettings["hooks"].(map[string]any); ok {
		for k, v := range existing {
			hooksMap[k] = v
		}
	}
	return hooksMap
}

func mergeHookEvents(hooksMap map[string]any, newHooks *HooksConfig, eventsToInstall []string) int {
	installedEvents := 0
	for _, event := range eventsToInstall {
		groups := filterNonAoHookGroups(hooksMap, event)
		newGroups := newHooks.GetEventGroups(event)
		for _, g := range newGroups {
			groups = append(groups, hookGroupToMap(g))
		}
		if len(newGroups) > 0 {
			hooksMap[event] = groups
			installedEvents++
		}
	}
	return installedEvents
}

func backupHooksSettings(settingsPath string) error {
	if _, err := os.Stat(settingsPath); err != nil {
		return nil
	}
	backupPath := fmt.Sprintf("%s.backup.%s", settingsPath, time.Now().Format("20060102-150405"))
	data, err := os.ReadFile(settingsPath)
	if err != nil {
		return nil
	}
	if err := os.WriteFile(backupPath, data, 0644); err != nil {
		return fmt.Errorf("create backup: %w", err)
	}
	fmt.Printf("Backed up existing settings to %s\n", backupPath)
	return nil
}

func writeHooksSettings(settingsPath string, rawSettings map[string]any) error {
	claudeDir := filepath.Dir(settingsPath)
	if err := os.MkdirAll(claudeDir, 0755); err != nil {
		return fmt.Errorf("create .claude directory: %w", err)
	}

	data, err := json.MarshalIndent(rawSettings, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	if err := os.WriteFile(settingsPath, data, 0644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}

func printHooksInstallSummary(settingsPath string, newHooks *HooksConfig, eventsToInstall []string, installedEvents int) {
	fmt.Printf("Installed ao hooks to %s\n", settingsPath)
	fmt.Println()
	fmt.Printf("Hooks installed: %d/%d events\n", installedEvents, len(AllEventNames()))
	for _, event := range eventsToInstall {
		groups := newHooks.GetEventGroups(event)
		if len(groups) == 0 {
			continue
		}
		hookCount := 0
		for _, g := range groups {
			hookCount += len(g.Hooks)
		}
		fmt.Printf("  %s: %d hook(s)\n", event, hookCount)
	}
	fmt.Println()
	fmt.Println("Run 'ao hooks test' to verify the installation.")
}

func runHooksInstall(cmd *cobra.Command, args []string) error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("get home directory: %w", err)
	}

	settingsPath := filepath.Join(homeDir, ".claude", "settings.json")
	rawSettings, err := loadHooksSettings(settingsPath)
	if err != nil {
		return err
	}

	newHooks := generateHooksConfig()
	eventsToInstall := AllEventNames()

	if existingHooks, ok := rawSettings["hooks"].(map[string]any); ok && !hooksForce {
		if hookGroupContainsAo(existingHooks, "SessionStart") {
			fmt.Println("ao hooks already installed. Use --force to overwrite.")
			return nil
		}
	}

	hooksMap := cloneHooksMap(rawSettings)
	installedEvents := mergeHookEvents(hooksMap, newHooks, eventsToInstall)
	rawSettings["hooks"] = hooksMap

	if hooksDryRun {
		fmt.Println("[dry-run] Would write to", settingsPath)
		data, err := json.MarshalIndent(rawSettings, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal hooks settings: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	if err := backupHooksSettings(settingsPath); err != nil {
		return err
	}
	if err := writeHooksSettings(settingsPath, rawSettings); err != nil {
		return err
	}
	printHooksInstallSummary(settingsPath, newHooks, eventsToInstall, installedEvents)

	return nil
}

func runHooksShow(cmd *cobra.Command, args []string) error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("get home directory: %w", err)
	}

	settingsPath := filepath.Join(homeDir, ".claude", "settings.json")

	data, err := os.ReadFile(settingsPath)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Println("No Claude settings found at", settingsPath)
			fmt.Println("Run 'ao hooks install' to set up hooks.")
			return nil
		}
		return fmt.Errorf("read settings: %w", err)
	}

	var settings map[string]any
	if err := json.Unmarshal(data, &settings); err != nil {
		return fmt.Errorf("parse settings: %w", err)
	}

	hooks, ok := settings["hooks"]
	if !ok {
		fmt.Println("No hooks configured in", settingsPath)
		fmt.Println("Run 'ao hooks install' to set up hooks.")
		return nil
	}

	hooksMap, ok := hooks.(map[string]any)
	if !ok {
		fmt.Println("Invalid hooks format in", settingsPath)
		return nil
	}

	allEvents := AllEventNames()
	installedCount := 0
	fmt.Println("Hook Event Coverage:")
	fmt.Println()
	for _, event := range allEvents {
		groups, hasEvent := hooksMap[event].([]any)
		if hasEvent && len(groups) > 0 {
			hookCount := 0
			for _, g := range groups {
				if gm, ok := g.(map[string]any); ok {
					if hs, ok := gm["hooks"].([]any); ok {
						hookCount += len(hs)
					}
				}
			}
			fmt.Printf("  [x] %-20s %d hook(s)\n", event, hookCount)
			installedCount++
		} else {
			fmt.Printf("  [ ] %-20s not installed\n", event)
		}
	}

	fmt.Println()
	fmt.Printf("%d/%d events installed\n", installedCount, len(allEvents))

	if hookGroupContainsAo(hooksMap, "SessionStart") {
		fmt.Println()
		fmt.Println("ao hooks are installed")
	} else {
		fmt.Println()
		fmt.Println("ao hooks not found. Run 'ao hooks install' to set up.")
	}

	return nil
}

// hookGroupContainsAo checks if any hook group in the given event contains an ao command.
func hookGroupContainsAo(hooksMap map[string]any, event string) bool {
	groups, ok := hooksMap[event].([]any)
	if !ok {
		return false
	}
	for _, g := range groups {
		group, ok := g.(map[string]any)
		if !ok {
			continue
		}
		if hooks, ok := group["hooks"].([]any); ok {
			for _, h := range hooks {
				if hook, ok := h.(map[string]any); ok {
					if cmd, ok := hook["command"].(string); ok && isAoManagedHookCommand(cmd) {
						return true
					}
				}
			}
		}
	}
	return false
}

// filterNonAoHookGroups returns hook groups that don't contain ao commands.
func filterNonAoHookGroups(hooksMap map[string]any, event string) []map[string]any {
	result := make([]map[string]any, 0)
	groups, ok := hooksMap[event].([]any)
	if !ok {
		return result
	}
	for _, g := range groups {
		group, ok := g.(map[string]any)
		if !ok {
			continue
		}
		isAo := false
		if hooks, ok := group["hooks"].([]any); ok {
			for _, h := range hooks {
				if hook, ok := h.(map[string]any); ok {
					if cmd, ok := hook["command"].(string); ok && isAoManagedHookCommand(cmd) {
						isAo = true
						break
					}
				}
			}
		}
		if !isAo {
			result = append(result, group)
		}
	}
	return result
}

func isAoManagedHookCommand(cmd string) bool {
	return strings.Contains(cmd, "ao hook ")
}

// hookGroupToMap converts a HookGroup to a map for JSON serialization.
func hookGroupToMap(g HookGroup) map[string]any {
	hooks := make([]map[string]any, len(g.Hooks))
	for i, h := range g.Hooks {
		entry := map[string]any{
			"type":    h.Type,
			"command": h.Command,
		}
		if h.Timeout > 0 {
			entry["timeout"] = h.Timeout
		}
		hooks[i] = entry
	}
	result := map[string]any{
		"hooks": hooks,
	}
	if g.Matcher != "" {
		result["matcher"] = g.Matcher
	}
	return result
}

func runAoPathTest(testNum int, allPassed *bool) {
	fmt.Printf("%d. Checking ao is in PATH... ", testNum)
	aoPath, err := exec.LookPath("ao")
	if err != nil {
		fmt.Println("FAILED")
		fmt.Printf("   ao not found in PATH. Ensure ao is installed and in your PATH.\n")
		*allPassed = false
		return
	}
	fmt.Printf("found at %s\n", aoPath)
}

func runHookSubcommandTest(testNum int, allPassed *bool) {
	fmt.Printf("%d. Checking hook subcommand exists... ", testNum)
	testCmd := exec.Command("ao", "hook", "--help")
	if err := testCmd.Run(); err != nil {
		fmt.Println("FAILED")
		fmt.Println("   'ao hook' subcommand not found.")
		*allPassed = false
		return
	}
	fmt.Println("present")
}

func runSettingsCoverageTest(testNum int, homeDir string, allPassed *bool) {
	fmt.Printf("%d. Checking Claude settings... ", testNum)
	settingsPath := filepath.Join(homeDir, ".claude", "settings.json")
	if _, err := os.Stat(settingsPath); os.IsNotExist(err) {
		fmt.Println("settings.json not found")
		fmt.Println("   Run 'ao hooks install' to create hooks configuration.")
		return
	}

	data, err := os.ReadFile(settingsPath)
	if err != nil {
		fmt.Println("FAILED to read")
		*allPassed = false
		return
	}

	var settings map[string]any
	if err := json.Unmarshal(data, &settings); err != nil {
		fmt.Println("FAILED to parse")
		*allPassed = false
		return
	}

	hooksRaw, ok := settings["hooks"]
	if !ok {
		fmt.Println("no hooks configured")
		fmt.Println("   Run 'ao hooks install' to set up hooks.")
		return
	}

	hooksMap, ok := hooksRaw.(map[string]any)
	if !ok {
		return
	}

	installed := 0
	for _, event := range AllEventNames() {
		if groups, ok := hooksMap[event].([]any); ok && len(groups) > 0 {
			installed++
		}
	}
	fmt.Printf("%d/%d events installed\n", installed, len(AllEventNames()))
	if installed < len(AllEventNames()) {
		fmt.Println("   Run 'ao hooks install' for complete coverage.")
	}
}

func runSessionStartDryRunTest(testNum int, allPassed *bool) {
	fmt.Printf("%d. Dry-running SessionStart hook... ", testNum)
	if hooksDryRun {
		fmt.Println("skipped (--dry-run)")
		return
	}

	testCmd := exec.Command("ao", "hook", "session-start")
	testCmd.Stdin = strings.NewReader(`{"cwd":"."}`)
	if err := testCmd.Run(); err != nil {
		fmt.Println("FAILED")
		fmt.Printf("   Error: %v\n", err)
		*allPassed = false
		return
	}
	fmt.Println("ran")
}

func runHooksTest(cmd *cobra.Command, args []string) error {
	fmt.Println("Testing ao hooks configuration...")
	fmt.Println()

	allPassed := true
	testNum := 0

	testNum++
	runAoPathTest(testNum, &allPassed)

	testNum++
	runHookSubcommandTest(testNum, &allPassed)

	homeDir, _ := os.UserHomeDir()

	testNum++
	runSettingsCoverageTest(testNum, homeDir, &allPassed)

	testNum++
	runSessionStartDryRunTest(testNum, &allPassed)

	fmt.Println()
	if allPassed {
		fmt.Println("All tests passed. Hooks are ready to use.")
	} else {
		fmt.Println("Some tests failed. Please fix the issues above.")
	}

	return nil
}
