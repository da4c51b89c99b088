package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/boshu2/agentops/internal/artifacts"
	"github.com/boshu2/agentops/internal/atomicio"
	"github.com/boshu2/agentops/internal/autoapprove"
	"github.com/boshu2/agentops/internal/autonomous"
	"github.com/boshu2/agentops/internal/cascade"
	"github.com/boshu2/agentops/internal/checkpoint"
	"github.com/boshu2/agentops/internal/codeversion"
	"github.com/boshu2/agentops/internal/completion"
	"github.com/boshu2/agentops/internal/config"
	"github.com/boshu2/agentops/internal/coreassert"
	"github.com/boshu2/agentops/internal/dispatch"
	"github.com/boshu2/agentops/internal/gates"
	"github.com/boshu2/agentops/internal/honesty"
	"github.com/boshu2/agentops/internal/memoryevent"
	"github.com/boshu2/agentops/internal/projectid"
	"github.com/boshu2/agentops/internal/retrieval"
	"github.com/boshu2/agentops/internal/worker"
)

// hookCmd is the parent for the one-subcommand-per-lifecycle-event dispatch
// entrypoint: each subcommand reads one JSON document from stdin, routes it
// through the registry for that event, and prints the resulting decision.
var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Run a single Claude Code lifecycle hook",
	Long: `hook dispatches one lifecycle event read from stdin through the
handlers registered for it (autonomous state, pre-action gates,
auto-approval, the completion checkpoint validator, cascade invalidation,
and memory retrieval) and writes the resulting decision to stdout.

This is what "ao hooks install" wires into settings.json; it is rarely
run by hand except to debug a specific event.`,
}

func init() {
	rootCmd.AddCommand(hookCmd)
	for _, ev := range []struct {
		use string
		run func(dispatch.Input, *hookEnv) dispatch.Decision
	}{
		{"session-start", runSessionStart},
		{"user-prompt-submit", runUserPromptSubmit},
		{"pre-tool-use", runPreToolUse},
		{"post-tool-use", runPostToolUse},
		{"stop", runStop},
		{"pre-compact", runPreCompact},
		{"permission-request", runPreToolUse},
	} {
		ev := ev
		hookCmd.AddCommand(&cobra.Command{
			Use:          ev.use,
			Short:        "Handle the " + ev.use + " lifecycle event",
			SilenceUsage: true,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runHook(ev.run)
			},
		})
	}
}

// hookEnv bundles every store and config value a hook handler needs,
// resolved once per invocation from the calling project's cwd.
type hookEnv struct {
	cfg             *config.Config
	currentVersion  string
	autonomousStore *autonomous.Store
	checkpointStore *checkpoint.Store
	memStore        *memoryevent.Store
	assertStore     *coreassert.Store
	userConfigRoot  string
	projectID       string
}

func newHookEnv(cwd string) (*hookEnv, error) {
	cfg, err := config.Load(nil)
	if err != nil {
		return nil, err
	}

	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	userConfigRoot := filepath.Join(home, ".agentops")
	pid := projectid.Resolve(cwd)
	dataRoot := projectid.DataRoot(userConfigRoot, pid)

	version, err := codeversion.Current(cwd)
	if err != nil {
		version = codeversion.NoRepo
	}

	ttl := time.Duration(cfg.Hooks.AutonomousTTLSeconds) * time.Second

	return &hookEnv{
		cfg:             cfg,
		currentVersion:  version,
		autonomousStore: autonomous.NewStore(cwd, userConfigRoot, ttl),
		checkpointStore: checkpoint.NewStore(filepath.Join(cwd, ".claude", "completion-checkpoint.json")),
		memStore:        memoryevent.NewStore(dataRoot),
		assertStore:     coreassert.NewStore(filepath.Join(dataRoot, "core-assertions.jsonl")),
		userConfigRoot:  userConfigRoot,
		projectID:       pid,
	}, nil
}

// debugLogf reports a non-gating hook diagnostic to env.cfg.Hooks.DebugLogPath
// when set, appending one line per call; otherwise it falls back to stderr.
// Errors here are themselves never fatal to the hook.
func debugLogf(env *hookEnv, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	path := env.cfg.Hooks.DebugLogPath
	if path == "" {
		fmt.Fprintf(os.Stderr, "ao hook: %s\n", msg)
		return
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ao hook: %s\n", msg)
		return
	}
	defer f.Close()
	fmt.Fprintf(f, "%s ao hook: %s\n", time.Now().UTC().Format(time.RFC3339), msg)
}

// runHook wires the stdin/stdout/exit-code contract shared by every
// subcommand: parse input, resolve the environment, run handle, and encode
// the result.
func runHook(handle func(dispatch.Input, *hookEnv) dispatch.Decision) error {
	in := dispatch.ParseInput(os.Stdin)
	env, err := newHookEnv(in.Cwd)
	if err != nil {
		// A hook that cannot even resolve its environment must never block
		// the host; report the failure on stderr and pass through.
		fmt.Fprintf(os.Stderr, "ao hook: %v\n", err)
		os.Exit(0)
	}
	if env.cfg.Hooks.Disabled {
		os.Exit(0)
	}

	d := handle(in, env)
	emitDecision(d)
	return nil
}

// emitDecision writes d's JSON document (if any) to stdout, any deny/block
// reason to stderr, and exits with the code the host expects: 0 for
// allow/passthrough, 2 for deny/block (Claude Code treats exit 2 as a
// blocking error fed back to the model via stderr).
func emitDecision(d dispatch.Decision) {
	if doc := dispatch.EncodeDecision(d); doc != nil {
		data, err := json.Marshal(doc)
		if err == nil {
			fmt.Println(string(data))
		}
	}
	switch d.Action {
	case dispatch.ActionDeny, dispatch.ActionBlock:
		if d.Reason != "" {
			fmt.Fprintln(os.Stderr, d.Reason)
		}
		os.Exit(2)
	default:
		os.Exit(0)
	}
}

// preToolRegistry builds the shared PreToolUse/PermissionRequest pipeline:
// every pre-action gate runs first (the only component allowed to deny),
// then the auto-approver (allow-or-passthrough only). Registry composition
// already gives deny precedence over allow, so the gates never need to run
// before auto-approve for correctness, only for clarity.
func preToolRegistry(env *hookEnv) *dispatch.Registry {
	reg := dispatch.NewRegistry(dispatch.DefaultTimeout)
	reg.Register(dispatch.EventPreToolUse, "", gates.DangerousCommandGuard(env.cfg.Hooks.ProductionAuthorized))
	reg.Register(dispatch.EventPreToolUse, "", gates.PlanModeEnforcer(env.autonomousStore))
	reg.Register(dispatch.EventPreToolUse, "", gates.DeployEnforcer(env.autonomousStore))
	reg.Register(dispatch.EventPreToolUse, "", gates.WorkerIdentityGuard())
	reg.Register(dispatch.EventPreToolUse, "", gates.SearchRedirector(env.cfg.Hooks.ExternalSearchMCP))
	reg.Register(dispatch.EventPreToolUse, "", autoapprove.Handler(env.autonomousStore))
	return reg
}

func runPreToolUse(in dispatch.Input, env *hookEnv) dispatch.Decision {
	reg := preToolRegistry(env)
	return reg.Dispatch(dispatch.EventPreToolUse, in)
}

// runPostToolUse re-validates every proven flag against the current code
// version after each tool call: an edit or a fresh git commit can silently
// invalidate a "linters_pass" claimed two iterations ago.
func runPostToolUse(in dispatch.Input, env *hookEnv) dispatch.Decision {
	report, err := cascade.InvalidateStore(env.checkpointStore, env.currentVersion)
	if err == nil && report.Changed() {
		debugLogf(env, "cascade invalidated %s", strings.Join(report.Reset, ", "))
	}
	_, _ = env.autonomousStore.Touch(in.Cwd, in.SessionID)
	return dispatch.Passthrough
}

// runSessionStart sweeps expired state, compacts the assertion log, and
// injects the highest-scoring prior memory events as additional context.
func runSessionStart(in dispatch.Input, env *hookEnv) dispatch.Decision {
	_ = env.autonomousStore.SweepExpired()
	_ = env.assertStore.Compact()
	if _, err := env.memStore.GC(); err != nil {
		debugLogf(env, "memory gc: %v", err)
	}
	return injectMemory(in, env, memoryBudget(env, retrieval.DefaultProjectBudget))
}

// runUserPromptSubmit mines entities from the new prompt and injects the
// same retrieval pipeline at a reduced budget, since SessionStart has
// typically already injected the bulk of relevant memory this session.
func runUserPromptSubmit(in dispatch.Input, env *hookEnv) dispatch.Decision {
	return injectMemory(in, env, memoryBudget(env, retrieval.ReducedBudget))
}

// memoryBudget returns env.cfg.Hooks.MemoryBudgetOverride in place of
// deflt when the operator has set one.
func memoryBudget(env *hookEnv, deflt int) int {
	if env.cfg.Hooks.MemoryBudgetOverride > 0 {
		return env.cfg.Hooks.MemoryBudgetOverride
	}
	return deflt
}

func injectMemory(in dispatch.Input, env *hookEnv, budget int) dispatch.Decision {
	st, _ := env.autonomousStore.Read(in.Cwd, in.SessionID)
	mode := ""
	if st != nil {
		mode = string(st.Mode)
	}

	candidates, err := env.memStore.ListRecent(memoryevent.MaxEvents)
	if err != nil {
		debugLogf(env, "list recent memory: %v", err)
	}

	// When the host already injects its own project memory file, shrink the
	// budget and de-dup our excerpts against its content.
	native := nativeProjectMemory(in.Cwd)
	if native != "" && budget > retrieval.ReducedBudget {
		budget = retrieval.ReducedBudget
	}

	qc := retrieval.QueryContext{
		Entities:            entitiesFromInput(in),
		Mode:                mode,
		NativeMemoryContent: native,
	}

	// The repeat guard needs to see what earlier hook processes injected,
	// so history round-trips through a sidecar next to the manifest.
	history := loadInjectionHistory(env)

	var sel retrieval.Selection
	sel.History = history
	if len(candidates) > 0 {
		sel, err = retrieval.Select(candidates, qc, budget, history, time.Now().UTC())
		if err != nil {
			debugLogf(env, "select memory: %v", err)
			sel = retrieval.Selection{History: history}
		}
	}

	if env.cfg.Hooks.CrossProjectRecallEnabled {
		spent := 0
		for _, ev := range sel.Events {
			spent += len(ev.Excerpt)
		}
		if remaining := budget - spent; remaining > 0 {
			crossSel := crossProjectRecall(env, qc, remaining, sel.History, time.Now().UTC())
			sel.Events = append(sel.Events, crossSel.Events...)
			sel.History = crossSel.History
		}
	}

	if len(sel.Events) == 0 {
		return dispatch.Passthrough
	}
	saveInjectionHistory(env, sel.History)

	var b strings.Builder
	for _, ev := range sel.Events {
		fmt.Fprintf(&b, "- [%s] %s\n", ev.Event.ID, ev.Excerpt)
		_ = env.memStore.CreditInjection(ev.Event.ID)
	}
	return dispatch.Decision{
		Action:  dispatch.ActionPassthrough,
		Context: map[string]interface{}{"additionalContext": b.String()},
	}
}

// crossProjectRecall fans out across sibling projects under
// userConfigRoot/memory/*, loading each one's recent memory events
// concurrently, and fills whatever budget project-local selection left
// unspent with concept-only cross-project matches.
func crossProjectRecall(env *hookEnv, qc retrieval.QueryContext, remainingBudget int, history []retrieval.InjectionRecord, now time.Time) retrieval.Selection {
	siblings, err := siblingProjectIDs(env.userConfigRoot, env.projectID)
	if err != nil || len(siblings) == 0 {
		return retrieval.Selection{History: history}
	}

	results := worker.Map(0, siblings, func(sibID string) ([]retrieval.CrossProjectCandidate, error) {
		store := memoryevent.NewStore(projectid.DataRoot(env.userConfigRoot, sibID))
		events, err := store.ListRecent(memoryevent.MaxEvents)
		if err != nil {
			return nil, err
		}
		out := make([]retrieval.CrossProjectCandidate, 0, len(events))
		for _, ev := range events {
			out = append(out, retrieval.CrossProjectCandidate{ProjectID: sibID, Event: ev})
		}
		return out, nil
	})

	var candidates []retrieval.CrossProjectCandidate
	for _, r := range results {
		if r.Err != nil {
			debugLogf(env, "cross-project recall: %v", r.Err)
			continue
		}
		candidates = append(candidates, r.Value...)
	}
	if len(candidates) == 0 {
		return retrieval.Selection{History: history}
	}

	sel, err := retrieval.SelectCrossProject(candidates, qc, remainingBudget, history, now)
	if err != nil {
		debugLogf(env, "cross-project select: %v", err)
		return retrieval.Selection{History: history}
	}
	return sel
}

// siblingProjectIDs lists project ids under userConfigRoot/memory other
// than self.
func siblingProjectIDs(userConfigRoot, self string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(userConfigRoot, "memory"))
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if !e.IsDir() || e.Name() == self {
			continue
		}
		ids = append(ids, e.Name())
	}
	return ids, nil
}

const injectionHistoryFile = "injection-history.json"
const injectionHistoryCap = 64

func injectionHistoryPath(env *hookEnv) string {
	return filepath.Join(env.memStore.Root, injectionHistoryFile)
}

func loadInjectionHistory(env *hookEnv) []retrieval.InjectionRecord {
	var history []retrieval.InjectionRecord
	atomicio.ReadJSON(injectionHistoryPath(env), &history)
	return history
}

// saveInjectionHistory persists the rolling prefix-hash log, trimmed to the
// most recent entries; the guard only ever consults its tail.
func saveInjectionHistory(env *hookEnv, history []retrieval.InjectionRecord) {
	if len(history) > injectionHistoryCap {
		history = history[len(history)-injectionHistoryCap:]
	}
	if err := atomicio.WriteJSON(injectionHistoryPath(env), history); err != nil {
		debugLogf(env, "save injection history: %v", err)
	}
}

// nativeProjectMemory reads the host's own project memory file under cwd,
// returning "" when the project has none.
func nativeProjectMemory(cwd string) string {
	data, err := os.ReadFile(filepath.Join(cwd, "CLAUDE.md"))
	if err != nil {
		return ""
	}
	return string(data)
}

// entitiesFromInput mines a coarse entity set from whatever the event
// handed us: the prompt text (UserPromptSubmit) or the tool's target path
// (PreToolUse/PostToolUse), falling back to the project directory name.
func entitiesFromInput(in dispatch.Input) []string {
	var words []string
	for _, field := range []string{in.Message} {
		for _, w := range strings.Fields(field) {
			w = strings.Trim(w, ".,:;!?\"'()[]{}")
			if len(w) >= 4 {
				words = append(words, strings.ToLower(w))
			}
		}
	}
	if path, ok := in.ToolInput["file_path"].(string); ok && path != "" {
		words = append(words, strings.ToLower(filepath.Base(path)))
	}
	if len(words) == 0 {
		words = append(words, strings.ToLower(filepath.Base(in.Cwd)))
	}
	return words
}

// runPreCompact uses the imminent context compaction as the natural
// maintenance point: GC the memory event log and compact the assertion
// log before the transcript that referenced them is gone.
func runPreCompact(in dispatch.Input, env *hookEnv) dispatch.Decision {
	if _, err := env.memStore.GC(); err != nil {
		debugLogf(env, "memory gc: %v", err)
	}
	if err := env.assertStore.Compact(); err != nil {
		debugLogf(env, "assertion compact: %v", err)
	}
	return dispatch.Passthrough
}

// runStop implements the two-attempt completion protocol: first attempt
// always renders the full checklist and blocks; a retry
// (stop_hook_active=true) blocks only if a hard gate still fails.
func runStop(in dispatch.Input, env *hookEnv) dispatch.Decision {
	phase := completion.PhaseFirst
	if in.StopHookActive {
		phase = completion.PhaseRetry
	}

	ckpt, err := env.checkpointStore.Load()
	if err != nil {
		ckpt = nil
	}

	waivers := artifacts.LoadWaivers(filepath.Join(in.Cwd, artifacts.WebSmokeWaiversPath))
	result := completion.Evaluate(phase, completion.Input{
		Checkpoint:      ckpt,
		CurrentVersion:  env.currentVersion,
		Requirements:    stopRequirements(in.Cwd),
		WebSmokePath:    filepath.Join(in.Cwd, artifacts.WebSmokePath),
		MobileSmokePath: filepath.Join(in.Cwd, artifacts.MobileSmokePath),
		ValidationPath:  filepath.Join(in.Cwd, artifacts.ValidationTestsPath),
		Waivers:         waivers,
	})

	var verdict *honesty.Verdict
	if ckpt != nil && env.cfg.Hooks.AdvisoryStopEnabled {
		v := honesty.Judge(in.Message, ckpt)
		verdict = &v
		if !v.Clean() {
			debugLogf(env, "honesty advisory: %s", strings.Join(v.Concerns, "; "))
		}
	}

	if !result.Allow {
		// A blocked Stop ends one fix/verify round; the next edit belongs to
		// the round after it.
		_, _ = env.autonomousStore.AdvanceIteration(in.Cwd, in.SessionID)
		return dispatch.Decision{Action: dispatch.ActionDeny, Reason: result.Checklist}
	}

	if ckpt != nil {
		ev := completion.BuildMemoryEvent(ckpt, "stop")
		if verdict != nil {
			ev.Meta = map[string]interface{}{"honesty": verdict}
		}
		if _, err := env.memStore.AppendEvent(ev); err != nil {
			debugLogf(env, "append memory event: %v", err)
		}
		for _, id := range ckpt.Reflection.MemoryThatHelped {
			if _, err := env.memStore.PromoteIfEligible(id); err != nil {
				debugLogf(env, "credit citation %s: %v", id, err)
			}
		}
	}
	return dispatch.Passthrough
}

// stopRequirements derives which category-specific gates apply by probing
// cwd for web and mobile asset markers; absent either marker, the
// corresponding gate is skipped rather than forced to fail.
func stopRequirements(cwd string) completion.ModeRequirements {
	hasWeb := fileExists(filepath.Join(cwd, "package.json")) || fileExists(filepath.Join(cwd, "index.html"))
	hasMobile := fileExists(filepath.Join(cwd, "app.json")) || fileExists(filepath.Join(cwd, "Podfile"))
	return completion.ModeRequirements{
		HasWebAssets:         hasWeb,
		RequiresWebVerify:    hasWeb,
		RequiresMobileVerify: hasMobile,
		RequiresFixTests:     true,
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
