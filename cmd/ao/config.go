package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/boshu2/agentops/internal/config"
)

var (
	configShow bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `View and manage AgentOps configuration.

Configuration priority (highest to lowest):
  1. Command-line flags
  2. Environment variables (AGENTOPS_*)
  3. Project config (.agentops/config.yaml)
  4. Home config (~/.agentops/config.yaml)
  5. Defaults

Environment variables:
  AGENTOPS_CONFIG     - Explicit config file path (overrides default project config location)
  AGENTOPS_OUTPUT     - Default output format (table, json, yaml)
  AGENTOPS_BASE_DIR   - Data directory path
  AGENTOPS_VERBOSE    - Enable verbose output (true/1)
  AGENTOPS_AUTONOMOUS_TTL - Autonomous session state TTL override, in seconds
  AGENTOPS_MEMORY_BUDGET  - Memory injection character budget override
  AGENTOPS_DEBUG_LOG      - Path to receive non-gating hook diagnostics
  AGENTOPS_CROSS_PROJECT_RECALL - Enable/disable cross-project memory recall (true/1, false/0)
  AGENTOPS_ADVISORY_STOP        - Enable/disable the secondary advisory stop judge (true/1, false/0)

Examples:
  ao config --show           # Show resolved configuration
  ao config --show -o json   # Output as JSON`,
	RunE: runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.Flags().BoolVar(&configShow, "show", false, "Show resolved configuration with sources")
}

func runConfig(cmd *cobra.Command, args []string) error {
	if !configShow {
		// Show help if no flags
		return cmd.Help()
	}

	// Get resolved config with sources
	resolved := config.Resolve(GetOutput(), "", GetVerbose())

	if GetOutput() == "json" {
		data, err := json.MarshalIndent(resolved, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	// Print table format
	fmt.Println("AgentOps Configuration")
	fmt.Println("=====================")
	fmt.Println()

	fmt.Println("Config files:")
	homeConfig := filepath.Join(os.Getenv("HOME"), ".agentops", "config.yaml")
	if _, err := os.Stat(homeConfig); err == nil {
		fmt.Printf("  ✓ Home:    %s\n", homeConfig)
	} else {
		fmt.Printf("  ✗ Home:    %s (not found)\n", homeConfig)
	}

	cwd, _ := os.Getwd()
	projectConfig := filepath.Join(cwd, ".agentops", "config.yaml")
	if _, err := os.Stat(projectConfig); err == nil {
		fmt.Printf("  ✓ Project: %s\n", projectConfig)
	} else {
		fmt.Printf("  ✗ Project: %s (not found)\n", projectConfig)
	}

	fmt.Println()
	fmt.Println("Resolved values:")
	fmt.Printf("  output:   %v  (from %s)\n", resolved.Output.Value, resolved.Output.Source)
	fmt.Printf("  base_dir: %v  (from %s)\n", resolved.BaseDir.Value, resolved.BaseDir.Source)
	fmt.Printf("  verbose:  %v  (from %s)\n", resolved.Verbose.Value, resolved.Verbose.Source)
	fmt.Printf("  hooks.autonomous_ttl_seconds:       %v  (from %s)\n", resolved.AutonomousTTLSeconds.Value, resolved.AutonomousTTLSeconds.Source)
	fmt.Printf("  hooks.memory_budget_override:       %v  (from %s)\n", resolved.MemoryBudgetOverride.Value, resolved.MemoryBudgetOverride.Source)
	fmt.Printf("  hooks.cross_project_recall_enabled: %v  (from %s)\n", resolved.CrossProjectRecallEnabled.Value, resolved.CrossProjectRecallEnabled.Source)
	fmt.Printf("  hooks.advisory_stop_enabled:        %v  (from %s)\n", resolved.AdvisoryStopEnabled.Value, resolved.AdvisoryStopEnabled.Source)
	fmt.Printf("  hooks.debug_log_path:               %v  (from %s)\n", resolved.DebugLogPath.Value, resolved.DebugLogPath.Source)

	fmt.Println()
	fmt.Println("Environment variables (if set):")
	envVars := []string{
		"AGENTOPS_CONFIG",
		"AGENTOPS_OUTPUT",
		"AGENTOPS_BASE_DIR",
		"AGENTOPS_VERBOSE",
		"AGENTOPS_AUTONOMOUS_TTL",
		"AGENTOPS_MEMORY_BUDGET",
		"AGENTOPS_DEBUG_LOG",
		"AGENTOPS_CROSS_PROJECT_RECALL",
		"AGENTOPS_ADVISORY_STOP",
	}
	anySet := false
	for _, env := range envVars {
		if v := os.Getenv(env); v != "" {
			fmt.Printf("  %s=%s\n", env, v)
			anySet = true
		}
	}
	if !anySet {
		fmt.Println("  (none set)")
	}

	return nil
}
