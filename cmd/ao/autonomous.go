package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/boshu2/agentops/internal/autonomous"
)

var (
	autonomousSession  string
	autonomousCoord    bool
	autonomousParallel bool
	autonomousAgentID  string
	autonomousWorktree string
)

var autonomousCmd = &cobra.Command{
	Use:   "autonomous",
	Short: "Manage the autonomous session state for this project",
	Long: `The autonomous command activates, inspects, and clears the per-session
autonomous state that relaxes permission prompting and arms the completion
contract.

While a state is active and unexpired, every tool call owned by the
activating session (or issued from under its origin project) is
auto-approved, and Stop is gated on the completion checkpoint.

Subcommands:
  activate <mode>   Enter an autonomous loop (melt, repair, burndown, improve)
  deactivate        Clear the state for this project and session
  plan-done         Record that planning finished, unlocking first-iteration edits`,
}

var autonomousActivateCmd = &cobra.Command{
	Use:   "activate <mode>",
	Short: "Activate an autonomous session in the current project",
	Args:  cobra.ExactArgs(1),
	RunE:  runAutonomousActivate,
}

var autonomousDeactivateCmd = &cobra.Command{
	Use:   "deactivate",
	Short: "Clear the autonomous state for this project and session",
	RunE:  runAutonomousDeactivate,
}

var autonomousPlanDoneCmd = &cobra.Command{
	Use:   "plan-done",
	Short: "Mark plan mode completed for the active autonomous session",
	RunE:  runAutonomousPlanDone,
}

func init() {
	rootCmd.AddCommand(autonomousCmd)
	autonomousCmd.AddCommand(autonomousActivateCmd)
	autonomousCmd.AddCommand(autonomousDeactivateCmd)
	autonomousCmd.AddCommand(autonomousPlanDoneCmd)

	autonomousCmd.PersistentFlags().StringVar(&autonomousSession, "session", "", "Session id claiming ownership (generated when omitted on activate)")
	autonomousActivateCmd.Flags().BoolVar(&autonomousCoord, "coordinator", false, "Mark this state as the coordinator of a parallel swarm")
	autonomousActivateCmd.Flags().BoolVar(&autonomousParallel, "parallel", false, "Mark this state as part of a parallel swarm")
	autonomousActivateCmd.Flags().StringVar(&autonomousAgentID, "agent-id", "", "Agent identity scoping this state's writes (generated when --parallel is set and omitted)")
	autonomousActivateCmd.Flags().StringVar(&autonomousWorktree, "worktree", "", "Worktree path isolating this agent's changes")
}

func runAutonomousActivate(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}
	env, err := newHookEnv(cwd)
	if err != nil {
		return fmt.Errorf("resolve ao environment: %w", err)
	}

	sessionID := autonomousSession
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	agentID := autonomousAgentID
	if agentID == "" && autonomousParallel {
		agentID = uuid.NewString()
	}

	st, err := env.autonomousStore.ActivateWithOptions(autonomous.Mode(args[0]), sessionID, cwd, autonomous.ActivateOptions{
		Coordinator:  autonomousCoord,
		ParallelMode: autonomousParallel,
		AgentID:      agentID,
		WorktreePath: autonomousWorktree,
	})
	if err != nil {
		return fmt.Errorf("activate autonomous mode: %w", err)
	}

	if GetOutput() == "json" {
		data, err := json.MarshalIndent(st, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal state: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("Autonomous mode %s activated\n", st.Mode)
	fmt.Printf("  session id: %s\n", st.SessionID)
	fmt.Printf("  origin:     %s\n", st.OriginProject)
	if st.ParallelMode {
		role := "worker"
		if st.Coordinator {
			role = "coordinator"
		}
		fmt.Printf("  parallel:   %s (agent %s)\n", role, st.AgentID)
	}
	fmt.Println()
	fmt.Println("Record a plan and run 'ao autonomous plan-done' before the first edit.")
	return nil
}

func runAutonomousDeactivate(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}
	env, err := newHookEnv(cwd)
	if err != nil {
		return fmt.Errorf("resolve ao environment: %w", err)
	}
	if err := env.autonomousStore.Deactivate(); err != nil {
		return fmt.Errorf("deactivate autonomous mode: %w", err)
	}
	fmt.Println("Autonomous state cleared.")
	return nil
}

func runAutonomousPlanDone(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}
	env, err := newHookEnv(cwd)
	if err != nil {
		return fmt.Errorf("resolve ao environment: %w", err)
	}
	st, err := env.autonomousStore.MarkPlanModeCompleted(cwd, autonomousSession)
	if err != nil {
		return fmt.Errorf("mark plan mode completed: %w", err)
	}
	fmt.Printf("Plan recorded for session %s; edits are now unlocked.\n", st.SessionID)
	return nil
}
