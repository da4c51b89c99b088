// Package gates implements the pre-action guards that run before
// auto-approval can take effect and are the only component in this
// repository allowed to deny a tool call outright: a dangerous-command
// deny-list, a plan-mode-before-edit enforcer, a deploy-scoping enforcer,
// a worker-identity guard, and web-search redirection.
//
// The guards implement the pre-action half of the threat model cataloged
// in internal/safety (T1 destructive git operations, T2 unauthorized
// deploys, T3 worker privilege escalation, T4 plan-free editing).
package gates

import (
	"context"
	"os"
	"regexp"
	"strings"

	"github.com/boshu2/agentops/internal/autonomous"
	"github.com/boshu2/agentops/internal/dispatch"
)

// editClassTools are tools that write to the filesystem and therefore fall
// under the plan-mode-before-edit rule.
var editClassTools = map[string]bool{
	"Write": true, "Edit": true, "MultiEdit": true, "NotebookEdit": true,
}

// dangerousCommandPatterns pairs a regex against a Bash command string with
// the safer alternative to suggest when it matches.
var dangerousCommandPatterns = []struct {
	pattern     *regexp.Regexp
	alternative string
}{
	{regexp.MustCompile(`\bgit\s+push\b[^|;&]*(--force(?:\s|$)|(?:^|\s)-f\b)`), "use --force-with-lease instead of --force"},
	{regexp.MustCompile(`\bgit\s+reset\s+--hard\b`), "stash or soft-reset instead of a hard reset"},
	{regexp.MustCompile(`\bgit\s+clean\s+-[a-z]*f[a-z]*d?\b`), "review untracked files before force-cleaning"},
	{regexp.MustCompile(`\bgit\s+checkout\s+--\s+\.`), "checkout specific paths, not the whole tree, or stash first"},
	{regexp.MustCompile(`\bgit\s+restore\s+(--staged\s+)?\.\s*$`), "restore specific paths, not the whole tree"},
	{regexp.MustCompile(`\bgit\s+branch\s+-D\b`), "use -d (safe delete) unless the branch is confirmed merged"},
	{regexp.MustCompile(`\brm\s+-rf\s+/(?:\s|$)`), "never rm -rf an absolute root path"},
}

// deployCommandPattern matches shell invocations that ship code to a live
// target, used by both the dangerous-command guard's production check and
// the deploy enforcer's coordinator check.
var deployCommandPattern = regexp.MustCompile(`(?i)\b(deploy|kubectl\s+apply|terraform\s+apply|npm\s+run\s+deploy)\b`)

func bashCommand(in dispatch.Input) (string, bool) {
	if in.ToolName != "Bash" {
		return "", false
	}
	cmd, ok := in.ToolInput["command"].(string)
	return cmd, ok && cmd != ""
}

// DangerousCommandGuard denies Bash invocations matching the destructive-git
// or production-deploy-without-authorization deny-list, naming a safer
// alternative in the denial reason. Every other command is passthrough.
func DangerousCommandGuard(productionAuthorized bool) dispatch.HandlerFunc {
	return func(_ context.Context, in dispatch.Input) dispatch.Decision {
		cmd, ok := bashCommand(in)
		if !ok {
			return dispatch.Passthrough
		}
		for _, dc := range dangerousCommandPatterns {
			if dc.pattern.MatchString(cmd) {
				return dispatch.Decision{
					Action: dispatch.ActionDeny,
					Reason: "dangerous command blocked: " + dc.alternative,
				}
			}
		}
		if deployCommandPattern.MatchString(cmd) && !productionAuthorized {
			return dispatch.Decision{
				Action: dispatch.ActionDeny,
				Reason: "deploy command blocked: session is not flagged production-authorized",
			}
		}
		return dispatch.Passthrough
	}
}

// claudeDirPrefix is the one exception to the plan-mode-before-edit rule:
// the agent must always be able to record its plan and state.
const claudeDirPrefix = ".claude/"

func editTargetsClaudeDir(toolInput map[string]interface{}) bool {
	path, _ := toolInput["file_path"].(string)
	path = strings.TrimPrefix(path, "./")
	return strings.HasPrefix(path, claudeDirPrefix) || strings.Contains(path, "/"+claudeDirPrefix)
}

// PlanModeEnforcer denies edit-class tools on iteration 1 of a new
// autonomous state unless plan_mode_completed is already true, except
// writes under .claude/ which are always permitted.
func PlanModeEnforcer(store *autonomous.Store) dispatch.HandlerFunc {
	return func(_ context.Context, in dispatch.Input) dispatch.Decision {
		if !editClassTools[in.ToolName] {
			return dispatch.Passthrough
		}
		if editTargetsClaudeDir(in.ToolInput) {
			return dispatch.Passthrough
		}
		st, err := store.Read(in.Cwd, in.SessionID)
		if err != nil {
			return dispatch.Passthrough
		}
		if st.Iteration > 1 || st.PlanModeCompleted {
			return dispatch.Passthrough
		}
		return dispatch.Decision{
			Action: dispatch.ActionDeny,
			Reason: "plan-mode-before-edit: record a plan before editing outside .claude/ on the first iteration",
		}
	}
}

// DeployEnforcer denies deploy commands issued by non-coordinator
// (subagent) autonomous states, requiring the coordinator to hold the
// deploy.
func DeployEnforcer(store *autonomous.Store) dispatch.HandlerFunc {
	return func(_ context.Context, in dispatch.Input) dispatch.Decision {
		cmd, ok := bashCommand(in)
		if !ok || !deployCommandPattern.MatchString(cmd) {
			return dispatch.Passthrough
		}
		st, err := store.Read(in.Cwd, in.SessionID)
		if err != nil {
			return dispatch.Passthrough
		}
		if !st.ParallelMode || st.Coordinator {
			return dispatch.Passthrough
		}
		return dispatch.Decision{
			Action: dispatch.ActionDeny,
			Reason: "deploy blocked: only the coordinator state may deploy in parallel mode",
		}
	}
}

// gitMutatingVerbs are the subcommands a worker identity is forbidden from
// running at all, regardless of flags.
var gitMutatingVerbs = regexp.MustCompile(`\bgit\s+(commit|push)\b`)
var gitAddAllPattern = regexp.MustCompile(`\bgit\s+add\s+(-A\b|--all\b|\.\s*$)`)

// workerIdentity resolves the calling agent's identity for the privilege
// check: the CLAUDE_AGENT_NAME environment variable, falling back to the
// .agents/swarm-role file under cwd.
func workerIdentity(cwd string) string {
	if name := os.Getenv("CLAUDE_AGENT_NAME"); name != "" {
		return name
	}
	data, err := os.ReadFile(cwd + "/.agents/swarm-role")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// WorkerIdentityGuard denies git commit, git push, and git add -A/--all for
// identities prefixed "worker" — in a parallel swarm, worker agents write
// files but must never commit or push, since doing so creates merge
// conflicts across parallel workers and can corrupt the shared branch.
func WorkerIdentityGuard() dispatch.HandlerFunc {
	return func(_ context.Context, in dispatch.Input) dispatch.Decision {
		cmd, ok := bashCommand(in)
		if !ok {
			return dispatch.Passthrough
		}
		if !strings.HasPrefix(workerIdentity(in.Cwd), "worker") {
			return dispatch.Passthrough
		}
		if gitMutatingVerbs.MatchString(cmd) || gitAddAllPattern.MatchString(cmd) {
			return dispatch.Decision{
				Action: dispatch.ActionDeny,
				Reason: "worker identities may write files but must not commit, push, or stage the whole tree",
			}
		}
		return dispatch.Passthrough
	}
}

// builtinSearchTools are the host's native web-search tool names this gate
// intercepts.
var builtinSearchTools = map[string]bool{"WebSearch": true}

// SearchRedirector redirects built-in web-search tool invocations to the
// configured external search MCP, when one is present, by denying the
// built-in call with a reason naming the MCP tool to use instead.
func SearchRedirector(externalSearchMCP string) dispatch.HandlerFunc {
	return func(_ context.Context, in dispatch.Input) dispatch.Decision {
		if externalSearchMCP == "" || !builtinSearchTools[in.ToolName] {
			return dispatch.Passthrough
		}
		return dispatch.Decision{
			Action: dispatch.ActionDeny,
			Reason: "redirected: use " + externalSearchMCP + " instead of the built-in web search tool",
		}
	}
}
