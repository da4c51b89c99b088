package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/boshu2/agentops/internal/checkpoint"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show autonomous session, checkpoint, and cascade status",
	Long: `Display the current state of ao's lifecycle-hook machinery for
this project:

  - Whether an autonomous session is active, and since when
  - The last recorded completion checkpoint, if any
  - Which proven flags in that checkpoint are still trusted at the
    current code version

Examples:
  ao status
  ao status -o json`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

type statusOutput struct {
	Cwd            string          `json:"cwd"`
	CurrentVersion string          `json:"current_version"`
	Autonomous     *autonomousBrief `json:"autonomous,omitempty"`
	Checkpoint     *checkpointBrief `json:"checkpoint,omitempty"`
}

type autonomousBrief struct {
	Mode              string `json:"mode"`
	SessionID         string `json:"session_id"`
	Iteration         int    `json:"iteration"`
	PlanModeCompleted bool   `json:"plan_mode_completed"`
	LastActivityAgo   string `json:"last_activity_ago"`
}

type checkpointBrief struct {
	IsJobComplete bool     `json:"is_job_complete"`
	WhatRemains   string   `json:"what_remains,omitempty"`
	TrustedFlags  []string `json:"trusted_flags,omitempty"`
	StaleFlags    []string `json:"stale_flags,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	env, err := newHookEnv(cwd)
	if err != nil {
		return fmt.Errorf("resolve ao environment: %w", err)
	}

	out := &statusOutput{Cwd: cwd, CurrentVersion: env.currentVersion}

	if st, err := env.autonomousStore.Read(cwd, ""); err == nil {
		out.Autonomous = &autonomousBrief{
			Mode:              string(st.Mode),
			SessionID:         st.SessionID,
			Iteration:         st.Iteration,
			PlanModeCompleted: st.PlanModeCompleted,
			LastActivityAgo:   formatDurationBrief(time.Since(st.LastActivityAt)),
		}
	}

	if ckpt, err := env.checkpointStore.Load(); err == nil && ckpt != nil {
		brief := &checkpointBrief{
			IsJobComplete: ckpt.SelfReport.IsJobComplete,
			WhatRemains:   ckpt.Reflection.WhatRemains,
		}
		for _, name := range checkpoint.KnownFlags {
			flag, ok := ckpt.SelfReport.Flags[name]
			if !ok {
				continue
			}
			if flag.Trusted(env.currentVersion) {
				brief.TrustedFlags = append(brief.TrustedFlags, name)
			} else if flag.Value {
				brief.StaleFlags = append(brief.StaleFlags, name)
			}
		}
		out.Checkpoint = brief
	}

	return outputStatus(out)
}

func outputStatus(out *statusOutput) error {
	if GetOutput() == "json" {
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal status: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Println("ao status")
	fmt.Println("=========")
	fmt.Printf("cwd:             %s\n", out.Cwd)
	fmt.Printf("current version: %s\n", out.CurrentVersion)
	fmt.Println()

	if out.Autonomous == nil {
		fmt.Println("Autonomous session: inactive")
	} else {
		a := out.Autonomous
		fmt.Println("Autonomous session: active")
		fmt.Printf("  mode:       %s\n", a.Mode)
		fmt.Printf("  session id: %s\n", a.SessionID)
		fmt.Printf("  iteration:  %d\n", a.Iteration)
		fmt.Printf("  plan done:  %v\n", a.PlanModeCompleted)
		fmt.Printf("  last activity: %s ago\n", a.LastActivityAgo)
	}

	fmt.Println()
	if out.Checkpoint == nil {
		fmt.Println("Checkpoint: none recorded")
		return nil
	}
	c := out.Checkpoint
	fmt.Printf("Checkpoint: is_job_complete=%v\n", c.IsJobComplete)
	if c.WhatRemains != "" {
		fmt.Printf("  what remains: %s\n", c.WhatRemains)
	}
	if len(c.TrustedFlags) > 0 {
		fmt.Printf("  trusted flags: %v\n", c.TrustedFlags)
	}
	if len(c.StaleFlags) > 0 {
		fmt.Printf("  stale flags (reset by cascade invalidation): %v\n", c.StaleFlags)
	}

	return nil
}

// formatDurationBrief formats a duration as a human-friendly short string (e.g., "2h", "3d").
func formatDurationBrief(d time.Duration) string {
	if d < time.Minute {
		return "<1m"
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	days := int(d.Hours() / 24)
	if days < 30 {
		return fmt.Sprintf("%dd", days)
	}
	return fmt.Sprintf("%dw", days/7)
}
