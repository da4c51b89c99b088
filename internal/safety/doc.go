// Package safety documents the threat model behind the pre-action gates
// and the completion validator.
//
// AgentOps sits between Claude Code and a repository while an autonomous
// agent executes shell commands, modifies files, and interacts with git.
// This package centralizes the threat categories those hooks defend
// against; the enforcement itself lives in internal/gates,
// internal/completion, internal/cascade, and internal/autonomous.
//
// # Threat Model
//
// T1 - Destructive Git Operations: An autonomous agent may attempt force
// push, hard reset, force clean, checkout-dot, restore-dot, or force
// branch delete, any of which can destroy uncommitted work or rewrite
// shared history. The dangerous-command guard pattern-matches Bash
// invocations against a block-list and names a safer alternative
// (--force-with-lease, stash, soft reset) in the denial.
//
// T2 - Unauthorized Deploys: Commands that ship code to a live target
// (deploy scripts, kubectl apply, terraform apply) are denied unless the
// session is explicitly flagged production-authorized, and in parallel
// swarms only the coordinator state may deploy at all.
//
// T3 - Worker Privilege Escalation: In parallel swarm execution, worker
// agents must write files but never commit or push; a worker that commits
// creates merge conflicts across parallel workers and can corrupt the
// shared branch. The worker-identity guard gates on CLAUDE_AGENT_NAME (or
// the .agents/swarm-role fallback) and blocks git commit, git push, and
// git add -A/--all for worker-prefixed identities.
//
// T4 - Plan-Free Editing: An agent that starts editing before recording a
// plan tends to thrash. On iteration 1 of a fresh autonomous state,
// edit-class tools are denied until plan_mode_completed is set, with a
// single exception for writes under .claude/ so the plan itself can be
// recorded.
//
// T5 - Stale Verification Claims: A "linters pass" or "deployed" claim
// proven against one code version silently becomes a lie once the tree
// changes. Every proven flag carries a version stamp; the cascade engine
// resets any flag whose stamp drifts from the current version, along with
// everything downstream of it in the dependency graph.
//
// T6 - Dishonest Self-Reports: The agent's completion checkpoint is
// untrusted input. The Stop validator only accepts claims backed by a
// version-stamp match or an on-disk artifact, rejects health-endpoint-only
// web "verification", and fails closed on missing or malformed state.
//
// T7 - Cross-Session Privilege Leakage: Auto-approval must never leak from
// one session to an unrelated one sharing the machine. An autonomous state
// is owned by its session id or by directories under its origin project;
// anything else sees passthrough, and expired states are swept at session
// start.
//
// # Design Principles
//
// Fail open on ambient errors, fail closed on evidence: gates that cannot
// resolve their inputs pass through rather than wedge the host, but the
// completion validator blocks whenever required state is missing or
// corrupt.
//
// Kill switches at every layer: global (AGENTOPS_HOOKS_DISABLED), per-run
// TTL expiry, and explicit deactivation, so an operator can always stop
// enforcement without code changes.
//
// Deny > allow > passthrough: gate composition is deterministic, and the
// auto-approver can only ever add allow, never deny, keeping the security
// surface auditable from the single state-file lookup.
package safety
