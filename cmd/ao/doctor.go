package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/boshu2/agentops/internal/artifacts"
)

var doctorJSON bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check ao's hook wiring and on-disk state",
	Long: `Run health checks on ao's Claude Code hook installation and the
on-disk state it reads and writes for this project.

Validates that the hooks are wired, the .claude/ layout is sane, and the
memory store is readable. Missing optional artifacts are reported as
warnings, not failures.

Examples:
  ao doctor
  ao doctor --json`,
	RunE: runDoctor,
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorJSON, "json", false, "Output results as JSON")
	rootCmd.AddCommand(doctorCmd)
}

type doctorCheck struct {
	Name     string `json:"name"`
	Status   string `json:"status"` // "pass", "warn", "fail"
	Detail   string `json:"detail"`
	Required bool   `json:"required"`
}

type doctorOutput struct {
	Checks  []doctorCheck `json:"checks"`
	Result  string        `json:"result"` // "HEALTHY", "DEGRADED", "UNHEALTHY"
	Summary string        `json:"summary"`
}

// gatherDoctorChecks runs all doctor checks and returns the results.
func gatherDoctorChecks(cwd string) []doctorCheck {
	return []doctorCheck{
		{Name: "ao CLI", Status: "pass", Detail: fmt.Sprintf("v%s", version), Required: true},
		checkHookCoverage(),
		checkClaudeLayout(cwd),
		checkMemoryStore(cwd),
		checkArtifacts(cwd),
	}
}

// doctorStatusIcon returns the display icon for a check status.
func doctorStatusIcon(status string) string {
	switch status {
	case "pass":
		return "✓"
	case "warn":
		return "!"
	case "fail":
		return "✗"
	}
	return "?"
}

// renderDoctorTable writes the formatted doctor output table.
func renderDoctorTable(w io.Writer, output doctorOutput) {
	fmt.Fprintln(w, "ao doctor")
	fmt.Fprintln(w, "─────────")

	maxName := 0
	for _, c := range output.Checks {
		if len(c.Name) > maxName {
			maxName = len(c.Name)
		}
	}

	for _, c := range output.Checks {
		padding := strings.Repeat(" ", maxName-len(c.Name))
		fmt.Fprintf(w, "%s %s%s  %s\n", doctorStatusIcon(c.Status), c.Name, padding, c.Detail)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s\n", output.Summary)
}

// hasRequiredFailure returns true if any required check has failed.
func hasRequiredFailure(checks []doctorCheck) bool {
	for _, c := range checks {
		if c.Required && c.Status == "fail" {
			return true
		}
	}
	return false
}

func runDoctor(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	output := computeResult(gatherDoctorChecks(cwd))
	w := cmd.OutOrStdout()

	if doctorJSON {
		data, err := json.MarshalIndent(output, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal doctor output: %w", err)
		}
		fmt.Fprintln(w, string(data))
		return nil
	}

	renderDoctorTable(w, output)

	if hasRequiredFailure(output.Checks) {
		return fmt.Errorf("doctor failed: one or more required checks did not pass")
	}

	return nil
}

// checkHookCoverage checks if Claude hooks are installed with event coverage.
func checkHookCoverage() doctorCheck {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return doctorCheck{Name: "Hook Coverage", Status: "fail", Detail: "cannot determine home directory", Required: true}
	}

	settingsPath := filepath.Join(homeDir, ".claude", "settings.json")
	data, err := os.ReadFile(settingsPath)
	if err != nil {
		return doctorCheck{
			Name:     "Hook Coverage",
			Status:   "warn",
			Detail:   "No hooks found — run 'ao hooks install'",
			Required: false,
		}
	}

	hooksMap, ok := extractHooksMap(data)
	if !ok {
		return doctorCheck{
			Name:     "Hook Coverage",
			Status:   "warn",
			Detail:   "settings.json has no hooks section — run 'ao hooks install'",
			Required: false,
		}
	}

	return evaluateHookCoverage(hooksMap)
}

func evaluateHookCoverage(hooksMap map[string]any) doctorCheck {
	installedEvents := countInstalledEvents(hooksMap)
	if installedEvents == 0 {
		return doctorCheck{
			Name:     "Hook Coverage",
			Status:   "warn",
			Detail:   "No hooks found — run 'ao hooks install --force'",
			Required: false,
		}
	}

	if !hookGroupContainsAo(hooksMap, "SessionStart") {
		return doctorCheck{
			Name:     "Hook Coverage",
			Status:   "warn",
			Detail:   "Non-ao hooks detected — run 'ao hooks install --force'",
			Required: false,
		}
	}

	if installedEvents < len(AllEventNames()) {
		return doctorCheck{
			Name:     "Hook Coverage",
			Status:   "warn",
			Detail:   fmt.Sprintf("Partial coverage: %d/%d events — run 'ao hooks install --force'", installedEvents, len(AllEventNames())),
			Required: false,
		}
	}

	return doctorCheck{
		Name:     "Hook Coverage",
		Status:   "pass",
		Detail:   fmt.Sprintf("Full coverage: %d/%d events", installedEvents, len(AllEventNames())),
		Required: false,
	}
}

func extractHooksMap(data []byte) (map[string]any, bool) {
	var parsed map[string]any
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, false
	}

	if hooksRaw, ok := parsed["hooks"]; ok {
		if hooksMap, ok := hooksRaw.(map[string]any); ok {
			return hooksMap, true
		}
	}
	return nil, false
}

func countInstalledEvents(hooksMap map[string]any) int {
	installed := 0
	for _, event := range AllEventNames() {
		if groups, ok := hooksMap[event].([]any); ok && len(groups) > 0 {
			installed++
		}
	}
	return installed
}

// checkClaudeLayout checks that the project's .claude/ directory exists
// and, if a checkpoint has been written, that it's readable.
func checkClaudeLayout(cwd string) doctorCheck {
	claudeDir := filepath.Join(cwd, ".claude")
	if _, err := os.Stat(claudeDir); os.IsNotExist(err) {
		return doctorCheck{
			Name:     ".claude layout",
			Status:   "warn",
			Detail:   "no .claude/ directory yet — created on first hook invocation",
			Required: false,
		}
	}

	ckptPath := filepath.Join(claudeDir, "completion-checkpoint.json")
	if _, err := os.Stat(ckptPath); err == nil {
		data, err := os.ReadFile(ckptPath)
		if err != nil || !json.Valid(data) {
			return doctorCheck{Name: ".claude layout", Status: "fail", Detail: "completion-checkpoint.json is not valid JSON", Required: true}
		}
	}

	return doctorCheck{Name: ".claude layout", Status: "pass", Detail: claudeDir, Required: false}
}

// checkMemoryStore verifies the project's memory event directory, if it
// exists, is readable and its manifest is well-formed.
func checkMemoryStore(cwd string) doctorCheck {
	env, err := newHookEnv(cwd)
	if err != nil {
		return doctorCheck{Name: "Memory Store", Status: "fail", Detail: fmt.Sprintf("cannot resolve environment: %v", err), Required: true}
	}

	manifest, err := env.memStore.LoadManifest()
	if err != nil {
		return doctorCheck{Name: "Memory Store", Status: "fail", Detail: fmt.Sprintf("manifest unreadable: %v", err), Required: true}
	}

	if manifest.TotalCount == 0 {
		return doctorCheck{
			Name:     "Memory Store",
			Status:   "warn",
			Detail:   "no memory events recorded yet",
			Required: false,
		}
	}

	return doctorCheck{
		Name:     "Memory Store",
		Status:   "pass",
		Detail:   fmt.Sprintf("%d events recorded", manifest.TotalCount),
		Required: false,
	}
}

// checkArtifacts reports which external verification artifacts are present
// for this project, without requiring any of them (a project may not have
// web or mobile surfaces to test).
func checkArtifacts(cwd string) doctorCheck {
	paths := []string{
		artifacts.WebSmokePath,
		artifacts.MobileSmokePath,
		artifacts.ValidationTestsPath,
	}
	var present []string
	for _, p := range paths {
		if _, err := os.Stat(filepath.Join(cwd, p)); err == nil {
			present = append(present, p)
		}
	}

	if len(present) == 0 {
		return doctorCheck{
			Name:     "Verification Artifacts",
			Status:   "warn",
			Detail:   "no web-smoke, mobile-smoke, or validation-tests summary found",
			Required: false,
		}
	}

	return doctorCheck{
		Name:     "Verification Artifacts",
		Status:   "pass",
		Detail:   fmt.Sprintf("found: %s", strings.Join(present, ", ")),
		Required: false,
	}
}

// countCheckStatuses tallies pass, fail, and warn counts from checks.
func countCheckStatuses(checks []doctorCheck) (passes, fails, warns int) {
	for _, c := range checks {
		switch c.Status {
		case "pass":
			passes++
		case "fail":
			fails++
		case "warn":
			warns++
		}
	}
	return passes, fails, warns
}

// buildDoctorSummary constructs a human-readable summary from check tallies.
func buildDoctorSummary(passes, fails, warns, total int) string {
	switch {
	case fails == 0 && warns == 0:
		return fmt.Sprintf("%d/%d checks passed", passes, total)
	case fails == 0:
		summary := fmt.Sprintf("%d/%d checks passed, %d warning", passes, total, warns)
		if warns > 1 {
			summary += "s"
		}
		return summary
	default:
		parts := []string{fmt.Sprintf("%d/%d checks passed", passes, total)}
		if warns > 0 {
			w := fmt.Sprintf("%d warning", warns)
			if warns > 1 {
				w += "s"
			}
			parts = append(parts, w)
		}
		if fails > 0 {
			f := fmt.Sprintf("%d failed", fails)
			parts = append(parts, f)
		}
		return strings.Join(parts, ", ")
	}
}

func computeResult(checks []doctorCheck) doctorOutput {
	passes, fails, warns := countCheckStatuses(checks)
	total := len(checks)

	result := "HEALTHY"
	if fails > 0 {
		result = "UNHEALTHY"
	} else if warns > 0 {
		result = "DEGRADED"
	}

	return doctorOutput{
		Checks:  checks,
		Result:  result,
		Summary: buildDoctorSummary(passes, fails, warns, total),
	}
}
