// Package artifacts reads the external verification artifacts the
// completion validator consults: web smoke, mobile smoke, and validation
// test summaries. Each artifact carries a passed bool and a
// tested_at_version string; structural defects fail closed.
package artifacts

import (
	"regexp"
	"strings"

	"github.com/boshu2/agentops/internal/atomicio"
)

// RelPath constants, relative to the project root.
const (
	WebSmokePath          = ".claude/web-smoke/summary.json"
	WebSmokeWaiversPath   = ".claude/web-smoke/waivers.json"
	MobileSmokePath       = ".claude/maestro-smoke/summary.json"
	ValidationTestsPath   = ".claude/validation-tests/summary.json"
)

// Result normalizes any of the three artifact kinds to a single pass/fail
// plus reason, for the completion validator's checklist rendering.
type Result struct {
	Passed          bool
	TestedAtVersion string
	Reason          string
}

// WebSmoke is the web verification artifact.
type WebSmoke struct {
	Passed          bool     `json:"passed"`
	TestedAt        string   `json:"tested_at"`
	TestedAtVersion string   `json:"tested_at_version"`
	URLsTested      []string `json:"urls_tested"`
	ConsoleClean    bool     `json:"console_clean"`
}

// Waivers lists regex patterns exempted from the health-endpoint-only rule.
type Waivers struct {
	URLPatterns []string `json:"url_patterns"`
}

// healthEndpointSuffixes is the default deny-list of trivially-tested
// paths that never count as real page verification.
var healthEndpointSuffixes = []string{"/health", "/healthz", "/ping", "/status"}

// ReadWebSmoke loads and normalizes the web smoke artifact at path. It
// enforces the "not purely health endpoints" rule: a smoke run that only
// ever touched /health-style routes does not count as real verification.
func ReadWebSmoke(path, currentVersion string, waivers []string) Result {
	var ws WebSmoke
	status := atomicio.ReadJSON(path, &ws)
	if status == atomicio.StatusMissing {
		return Result{Reason: "missing artifact: " + path}
	}
	if status != atomicio.StatusOK {
		return Result{Reason: "artifact malformed: " + path}
	}
	if !ws.Passed {
		return Result{TestedAtVersion: ws.TestedAtVersion, Reason: "web smoke reports passed=false"}
	}
	if ws.TestedAtVersion != currentVersion {
		return Result{TestedAtVersion: ws.TestedAtVersion, Reason: "web smoke stamp is stale"}
	}
	if onlyHealthEndpoints(ws.URLsTested, waivers) {
		return Result{TestedAtVersion: ws.TestedAtVersion, Reason: "only health endpoints were tested; a real user page is required"}
	}
	return Result{Passed: true, TestedAtVersion: ws.TestedAtVersion}
}

func onlyHealthEndpoints(urls, waivers []string) bool {
	if len(urls) == 0 {
		return true
	}
	for _, u := range urls {
		if isWaived(u, waivers) {
			return false
		}
		if !isHealthEndpoint(u) {
			return false
		}
	}
	return true
}

func isHealthEndpoint(url string) bool {
	lower := strings.ToLower(url)
	for _, suffix := range healthEndpointSuffixes {
		if strings.HasSuffix(strings.TrimSuffix(lower, "/"), suffix) {
			return true
		}
	}
	return false
}

func isWaived(url string, waivers []string) bool {
	for _, w := range waivers {
		if matched, err := regexp.MatchString(w, url); err == nil && matched {
			return true
		}
	}
	return false
}

// MobileSmoke is the mobile verification artifact.
type MobileSmoke struct {
	Passed          bool     `json:"passed"`
	TestedAtVersion string   `json:"tested_at_version"`
	Platform        string   `json:"platform"`
	Device          string   `json:"device"`
	FlowsExecuted   []string `json:"flows_executed"`
}

// ReadMobileSmoke loads and normalizes the mobile smoke artifact.
func ReadMobileSmoke(path, currentVersion string) Result {
	var ms MobileSmoke
	status := atomicio.ReadJSON(path, &ms)
	if status == atomicio.StatusMissing {
		return Result{Reason: "missing artifact: " + path}
	}
	if status != atomicio.StatusOK {
		return Result{Reason: "artifact malformed: " + path}
	}
	if !ms.Passed {
		return Result{TestedAtVersion: ms.TestedAtVersion, Reason: "mobile smoke reports passed=false"}
	}
	if ms.TestedAtVersion != currentVersion {
		return Result{TestedAtVersion: ms.TestedAtVersion, Reason: "mobile smoke stamp is stale"}
	}
	return Result{Passed: true, TestedAtVersion: ms.TestedAtVersion}
}

// TestCase is one entry in a validation-tests summary.
type TestCase struct {
	ID       string `json:"id"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	Passed   bool   `json:"passed"`
}

// ValidationTests is the fix-targeted test-run artifact.
type ValidationTests struct {
	Passed          bool       `json:"passed"`
	TestedAtVersion string     `json:"tested_at_version"`
	TotalTests      int        `json:"total_tests"`
	PassedTests     int        `json:"passed_tests"`
	FailedTests     int        `json:"failed_tests"`
	Tests           []TestCase `json:"tests"`
}

// ReadValidationTests loads and normalizes the validation-tests artifact.
func ReadValidationTests(path, currentVersion string) Result {
	var vt ValidationTests
	status := atomicio.ReadJSON(path, &vt)
	if status == atomicio.StatusMissing {
		return Result{Reason: "missing artifact: " + path}
	}
	if status != atomicio.StatusOK {
		return Result{Reason: "artifact malformed: " + path}
	}
	if vt.FailedTests != 0 {
		return Result{TestedAtVersion: vt.TestedAtVersion, Reason: "validation tests report failures"}
	}
	if vt.TestedAtVersion != currentVersion {
		return Result{TestedAtVersion: vt.TestedAtVersion, Reason: "validation tests stamp is stale"}
	}
	return Result{Passed: true, TestedAtVersion: vt.TestedAtVersion}
}

// LoadWaivers reads the sibling waivers.json for web smoke, returning an
// empty list (not an error) when absent — waivers are opt-in.
func LoadWaivers(path string) []string {
	var w Waivers
	status := atomicio.ReadJSON(path, &w)
	if status != atomicio.StatusOK {
		return nil
	}
	return w.URLPatterns
}
