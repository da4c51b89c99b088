// Package config provides configuration management for AgentOps.
// Configuration is loaded from (highest to lowest priority):
// 1. Command-line flags
// 2. Environment variables (AGENTOPS_*)
// 3. Project config (.agentops/config.yaml in cwd)
// 4. Home config (~/.agentops/config.yaml)
// 5. Defaults
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all AgentOps configuration.
type Config struct {
	// Output controls the default output format (table, json, yaml).
	Output string `yaml:"output" json:"output"`

	// BaseDir is the AgentOps data directory (default: .agents/ao).
	BaseDir string `yaml:"base_dir" json:"base_dir"`

	// Verbose enables verbose output.
	Verbose bool `yaml:"verbose" json:"verbose"`

	// Hooks settings govern the lifecycle-hook dispatcher and its gates.
	Hooks HooksConfig `yaml:"hooks" json:"hooks"`
}

// HooksConfig holds lifecycle-hook dispatcher settings: the autonomous
// state TTL, the memory retrieval engine's feature flags and budget
// override, pre-action gate toggles, and the debug log target.
type HooksConfig struct {
	// AutonomousTTLSeconds overrides autonomous.DefaultTTL when non-zero.
	// AGENTOPS_AUTONOMOUS_TTL.
	AutonomousTTLSeconds int `yaml:"autonomous_ttl_seconds" json:"autonomous_ttl_seconds"`

	// ProductionAuthorized allows the dangerous-command guard to pass
	// deploy commands through instead of denying them outright.
	ProductionAuthorized bool `yaml:"production_authorized" json:"production_authorized"`

	// ExternalSearchMCP is the MCP tool name the search redirector sends
	// built-in web-search calls to. Empty disables redirection.
	ExternalSearchMCP string `yaml:"external_search_mcp" json:"external_search_mcp"`

	// MemoryBudgetOverride replaces retrieval.DefaultProjectBudget and
	// retrieval.ReducedBudget when non-zero. AGENTOPS_MEMORY_BUDGET
	// (characters).
	MemoryBudgetOverride int `yaml:"memory_budget_override" json:"memory_budget_override"`

	// CrossProjectRecallEnabled gates whether the retrieval engine fans
	// out to sibling projects' memory stores to fill budget left over
	// after project-local selection. AGENTOPS_CROSS_PROJECT_RECALL.
	CrossProjectRecallEnabled bool `yaml:"cross_project_recall_enabled" json:"cross_project_recall_enabled"`

	// AdvisoryStopEnabled gates whether the secondary advisory stop judge
	// (internal/honesty) runs at all. It never blocks Stop either way;
	// this only controls whether its verdict is computed and reported.
	// AGENTOPS_ADVISORY_STOP.
	AdvisoryStopEnabled bool `yaml:"advisory_stop_enabled" json:"advisory_stop_enabled"`

	// DebugLogPath, when non-empty, receives non-gating handler errors
	// and diagnostics instead of stderr; stderr is still used when the
	// file cannot be opened.
	// AGENTOPS_DEBUG_LOG.
	DebugLogPath string `yaml:"debug_log_path" json:"debug_log_path"`

	// Disabled is the global kill switch (AGENTOPS_HOOKS_DISABLED): every
	// hook entry point exits 0 with a passthrough decision when set.
	Disabled bool `yaml:"-" json:"-"`
}

// Default config values (used in resolution and validation).
const (
	defaultOutput  = "table"
	defaultBaseDir = ".agents/ao"
)

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Output:  defaultOutput,
		BaseDir: defaultBaseDir,
		Verbose: false,
		Hooks: HooksConfig{
			AutonomousTTLSeconds:      0,
			ProductionAuthorized:      false,
			ExternalSearchMCP:         "",
			MemoryBudgetOverride:      0,
			CrossProjectRecallEnabled: true,
			AdvisoryStopEnabled:       true,
			DebugLogPath:              "",
		},
	}
}

// Load loads configuration with proper precedence.
// Priority: flags > env > project > home > defaults
func Load(flagOverrides *Config) (*Config, error) {
	cfg := Default()

	// Load home config
	homeConfig, _ := loadFromPath(homeConfigPath())
	if homeConfig != nil {
		cfg = merge(cfg, homeConfig)
	}

	// Load project config
	projectConfig, _ := loadFromPath(projectConfigPath())
	if projectConfig != nil {
		cfg = merge(cfg, projectConfig)
	}

	// Apply environment variables
	cfg = applyEnv(cfg)

	// Apply flag overrides
	if flagOverrides != nil {
		cfg = merge(cfg, flagOverrides)
	}

	return cfg, nil
}

// homeConfigPath returns the home config path.
func homeConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".agentops", "config.yaml")
}

// projectConfigPath returns the project config path.
func projectConfigPath() string {
	if override := strings.TrimSpace(os.Getenv("AGENTOPS_CONFIG")); override != "" {
		return override
	}
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return filepath.Join(cwd, ".agentops", "config.yaml")
}

// loadFromPath loads config from a YAML file.
func loadFromPath(path string) (*Config, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyEnv applies environment variable overrides.
func applyEnv(cfg *Config) *Config {
	if v := os.Getenv("AGENTOPS_OUTPUT"); v != "" {
		cfg.Output = v
	}
	if v := os.Getenv("AGENTOPS_BASE_DIR"); v != "" {
		cfg.BaseDir = v
	}
	if os.Getenv("AGENTOPS_VERBOSE") == "true" || os.Getenv("AGENTOPS_VERBOSE") == "1" {
		cfg.Verbose = true
	}
	if v := os.Getenv("AGENTOPS_AUTONOMOUS_TTL"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			cfg.Hooks.AutonomousTTLSeconds = secs
		}
	}
	if v := os.Getenv("AGENTOPS_PRODUCTION_AUTHORIZED"); v == "true" || v == "1" {
		cfg.Hooks.ProductionAuthorized = true
	}
	if v := os.Getenv("AGENTOPS_SEARCH_MCP"); v != "" {
		cfg.Hooks.ExternalSearchMCP = v
	}
	if v := os.Getenv("AGENTOPS_HOOKS_DISABLED"); v == "true" || v == "1" {
		cfg.Hooks.Disabled = true
	}
	if v := os.Getenv("AGENTOPS_MEMORY_BUDGET"); v != "" {
		if chars, err := strconv.Atoi(v); err == nil {
			cfg.Hooks.MemoryBudgetOverride = chars
		}
	}
	if v := os.Getenv("AGENTOPS_CROSS_PROJECT_RECALL"); v != "" {
		cfg.Hooks.CrossProjectRecallEnabled = v == "true" || v == "1"
	}
	if v := os.Getenv("AGENTOPS_ADVISORY_STOP"); v != "" {
		cfg.Hooks.AdvisoryStopEnabled = v == "true" || v == "1"
	}
	if v := os.Getenv("AGENTOPS_DEBUG_LOG"); v != "" {
		cfg.Hooks.DebugLogPath = v
	}
	return cfg
}

// merge merges src into dst, with src values taking precedence.
// For booleans, we need explicit tracking via pointer or separate "set" flag.
func merge(dst, src *Config) *Config {
	if src.Output != "" {
		dst.Output = src.Output
	}
	if src.BaseDir != "" {
		dst.BaseDir = src.BaseDir
	}
	if src.Verbose {
		dst.Verbose = true
	}

	// Merge Hooks config
	if src.Hooks.AutonomousTTLSeconds != 0 {
		dst.Hooks.AutonomousTTLSeconds = src.Hooks.AutonomousTTLSeconds
	}
	if src.Hooks.ProductionAuthorized {
		dst.Hooks.ProductionAuthorized = true
	}
	if src.Hooks.ExternalSearchMCP != "" {
		dst.Hooks.ExternalSearchMCP = src.Hooks.ExternalSearchMCP
	}
	if src.Hooks.Disabled {
		dst.Hooks.Disabled = true
	}
	if src.Hooks.MemoryBudgetOverride != 0 {
		dst.Hooks.MemoryBudgetOverride = src.Hooks.MemoryBudgetOverride
	}
	if src.Hooks.DebugLogPath != "" {
		dst.Hooks.DebugLogPath = src.Hooks.DebugLogPath
	}

	return dst
}

// Source represents where a config value came from.
type Source string

const (
	SourceDefault Source = "default"
	SourceHome    Source = "~/.agentops/config.yaml"
	SourceProject Source = ".agentops/config.yaml"
	SourceEnv     Source = "environment"
	SourceFlag    Source = "flag"
)

// getEnvString returns the value and whether the env var was set.
func getEnvString(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}

// getEnvBool returns the boolean value and whether it was truthy.
func getEnvBool(key string) (bool, bool) {
	v := os.Getenv(key)
	if v == "true" || v == "1" {
		return true, true
	}
	return false, false
}

// resolveStringField resolves a string through the precedence chain.
// Returns the resolved value and its source.
func resolveStringField(home, project, env, flag, def string) resolved {
	// Start with default
	result := resolved{Value: def, Source: SourceDefault}

	// Home config overrides default
	if home != "" {
		result = resolved{Value: home, Source: SourceHome}
	}

	// Project config overrides home
	if project != "" {
		result = resolved{Value: project, Source: SourceProject}
	}

	// Environment overrides project
	if env != "" {
		result = resolved{Value: env, Source: SourceEnv}
	}

	// Flag overrides everything (if set)
	if flag != "" {
		result = resolved{Value: flag, Source: SourceFlag}
	}

	return result
}

// ResolvedConfig shows config values with their sources.
type ResolvedConfig struct {
	Output                    resolved `json:"output"`
	BaseDir                   resolved `json:"base_dir"`
	Verbose                   resolved `json:"verbose"`
	AutonomousTTLSeconds      resolved `json:"autonomous_ttl_seconds"`
	MemoryBudgetOverride      resolved `json:"memory_budget_override"`
	CrossProjectRecallEnabled resolved `json:"cross_project_recall_enabled"`
	AdvisoryStopEnabled       resolved `json:"advisory_stop_enabled"`
	DebugLogPath              resolved `json:"debug_log_path"`
}

type resolved struct {
	Value  interface{} `json:"value"`
	Source Source      `json:"source"`
}

// Resolve returns configuration with source tracking.
// Uses precedence chain: flags > env > project > home > defaults.
func Resolve(flagOutput, flagBaseDir string, flagVerbose bool) *ResolvedConfig {
	// Load configs once
	homeConfig, _ := loadFromPath(homeConfigPath())
	projectConfig, _ := loadFromPath(projectConfigPath())

	// Get config values (empty string if not set)
	var homeOutput, homeBaseDir string
	var homeVerbose bool
	var homeTTL string
	var homeBudget string
	if homeConfig != nil {
		homeOutput = homeConfig.Output
		homeBaseDir = homeConfig.BaseDir
		homeVerbose = homeConfig.Verbose
		if homeConfig.Hooks.AutonomousTTLSeconds != 0 {
			homeTTL = strconv.Itoa(homeConfig.Hooks.AutonomousTTLSeconds)
		}
		if homeConfig.Hooks.MemoryBudgetOverride != 0 {
			homeBudget = strconv.Itoa(homeConfig.Hooks.MemoryBudgetOverride)
		}
	}

	var projectOutput, projectBaseDir string
	var projectVerbose bool
	var projectTTL string
	var projectBudget string
	if projectConfig != nil {
		projectOutput = projectConfig.Output
		projectBaseDir = projectConfig.BaseDir
		projectVerbose = projectConfig.Verbose
		if projectConfig.Hooks.AutonomousTTLSeconds != 0 {
			projectTTL = strconv.Itoa(projectConfig.Hooks.AutonomousTTLSeconds)
		}
		if projectConfig.Hooks.MemoryBudgetOverride != 0 {
			projectBudget = strconv.Itoa(projectConfig.Hooks.MemoryBudgetOverride)
		}
	}

	// Get environment values
	envOutput, _ := getEnvString("AGENTOPS_OUTPUT")
	envBaseDir, _ := getEnvString("AGENTOPS_BASE_DIR")
	envVerbose, envVerboseSet := getEnvBool("AGENTOPS_VERBOSE")
	envTTL, _ := getEnvString("AGENTOPS_AUTONOMOUS_TTL")
	envBudget, _ := getEnvString("AGENTOPS_MEMORY_BUDGET")
	envCrossProject, envCrossProjectSet := getEnvBool("AGENTOPS_CROSS_PROJECT_RECALL")
	envAdvisoryStop, envAdvisoryStopSet := getEnvBool("AGENTOPS_ADVISORY_STOP")
	envDebugLog, _ := getEnvString("AGENTOPS_DEBUG_LOG")

	// Resolve string/numeric fields through precedence chain
	rc := &ResolvedConfig{
		Output:                    resolveStringField(homeOutput, projectOutput, envOutput, flagOutput, defaultOutput),
		BaseDir:                   resolveStringField(homeBaseDir, projectBaseDir, envBaseDir, flagBaseDir, defaultBaseDir),
		Verbose:                   resolved{Value: false, Source: SourceDefault},
		AutonomousTTLSeconds:      resolveStringField(homeTTL, projectTTL, envTTL, "", "0"),
		MemoryBudgetOverride:      resolveStringField(homeBudget, projectBudget, envBudget, "", "0"),
		CrossProjectRecallEnabled: resolved{Value: true, Source: SourceDefault},
		AdvisoryStopEnabled:       resolved{Value: true, Source: SourceDefault},
		DebugLogPath:              resolveStringField("", "", envDebugLog, "", ""),
	}

	// Resolve verbose (boolean with OR semantics through chain)
	if homeVerbose {
		rc.Verbose = resolved{Value: true, Source: SourceHome}
	}
	if projectVerbose {
		rc.Verbose = resolved{Value: true, Source: SourceProject}
	}
	if envVerboseSet && envVerbose {
		rc.Verbose = resolved{Value: true, Source: SourceEnv}
	}
	if flagVerbose {
		rc.Verbose = resolved{Value: true, Source: SourceFlag}
	}

	// Cross-project recall and advisory-stop default to enabled; env can
	// only ever be the override source here since neither has a flag or
	// a home/project wiring path yet.
	if envCrossProjectSet {
		rc.CrossProjectRecallEnabled = resolved{Value: envCrossProject, Source: SourceEnv}
	}
	if envAdvisoryStopSet {
		rc.AdvisoryStopEnabled = resolved{Value: envAdvisoryStop, Source: SourceEnv}
	}

	return rc
}
