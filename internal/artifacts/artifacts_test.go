package artifacts

import (
	"path/filepath"
	"testing"

	"github.com/boshu2/agentops/internal/atomicio"
)

func TestReadWebSmokeMissing(t *testing.T) {
	res := ReadWebSmoke(filepath.Join(t.TempDir(), "summary.json"), "abc1234", nil)
	if res.Passed {
		t.Fatalf("expected missing artifact to fail closed")
	}
}

func TestReadWebSmokeHealthEndpointOnlyBlocks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.json")
	ws := WebSmoke{Passed: true, TestedAtVersion: "abc1234", URLsTested: []string{"https://app.example.com/health"}}
	if err := atomicio.WriteJSON(path, ws); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	res := ReadWebSmoke(path, "abc1234", nil)
	if res.Passed {
		t.Fatalf("expected health-endpoint-only artifact to fail (scenario S4)")
	}
}

func TestReadWebSmokeRealPagePasses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.json")
	ws := WebSmoke{Passed: true, TestedAtVersion: "abc1234", URLsTested: []string{"https://app.example.com/dashboard"}}
	if err := atomicio.WriteJSON(path, ws); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	res := ReadWebSmoke(path, "abc1234", nil)
	if !res.Passed {
		t.Fatalf("expected real-page artifact to pass, got %+v", res)
	}
}

func TestReadWebSmokeStaleVersionFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.json")
	ws := WebSmoke{Passed: true, TestedAtVersion: "old-version", URLsTested: []string{"https://app.example.com/dashboard"}}
	if err := atomicio.WriteJSON(path, ws); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	res := ReadWebSmoke(path, "abc1234", nil)
	if res.Passed {
		t.Fatalf("expected stale-stamp artifact to fail")
	}
}

func TestReadValidationTestsFailedCountBlocks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.json")
	vt := ValidationTests{Passed: false, TestedAtVersion: "abc1234", FailedTests: 2}
	if err := atomicio.WriteJSON(path, vt); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	res := ReadValidationTests(path, "abc1234")
	if res.Passed {
		t.Fatalf("expected failing validation tests to block")
	}
}
