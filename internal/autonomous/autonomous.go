// Package autonomous implements the process-wide, session-scoped,
// TTL-governed state machine that gates every tool invocation once an
// agent has entered an autonomous execute-verify loop. It is the on-disk
// analogue of a lock held across many short-lived hook processes: two
// documents per active session (one project-scoped, one user-scoped) so
// that ownership survives both a directory change within the same session
// and, independently, a session ending.
package autonomous

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/boshu2/agentops/internal/atomicio"
)

// Mode is the flavor of autonomous loop the agent activated.
type Mode string

const (
	ModeMelt      Mode = "melt"
	ModeRepair    Mode = "repair"
	ModeBurndown  Mode = "burndown"
	ModeImprove   Mode = "improve"
	ModeGodoStyle Mode = "godo-style quick"
)

// validModes is the recognized set; Activate rejects anything else.
var validModes = map[Mode]bool{
	ModeMelt:      true,
	ModeRepair:    true,
	ModeBurndown:  true,
	ModeImprove:   true,
	ModeGodoStyle: true,
}

// DefaultTTL is how long a state remains valid with no activity before
// SweepExpired discards it. Overridable via AGENTOPS_AUTONOMOUS_TTL (seconds).
const DefaultTTL = 8 * time.Hour

// fileName is shared by both the project-scoped and user-scoped documents.
const fileName = "autonomous-state.json"

// State is the autonomous-mode descriptor persisted to disk. Two copies of
// this struct exist per active session: one under the project's .claude/
// directory, one at the top of the user config root, which records the
// origin project in its origin_project field.
type State struct {
	Mode              Mode      `json:"mode"`
	SessionID         string    `json:"session_id"`
	OriginProject     string    `json:"origin_project"`
	StartedAt         time.Time `json:"started_at"`
	LastActivityAt    time.Time `json:"last_activity_at"`
	Iteration         int       `json:"iteration"`
	PlanModeCompleted bool      `json:"plan_mode_completed"`
	Coordinator       bool      `json:"coordinator"`
	ParallelMode      bool      `json:"parallel_mode"`
	AgentID           string    `json:"agent_id,omitempty"`
	WorktreePath      string    `json:"worktree_path,omitempty"`
}

// Store reads and writes autonomous state for one project, backed by a
// project-scoped file and a user-scoped file that together implement
// cross-directory session continuation.
type Store struct {
	// ProjectStatePath is <project-root>/.claude/autonomous-state.json.
	ProjectStatePath string
	// UserStatePath is <user-config-root>/autonomous-state.json.
	UserStatePath string
	// TTL overrides DefaultTTL when non-zero.
	TTL time.Duration
}

// NewStore builds a Store rooted at projectRoot/.claude and userConfigRoot.
func NewStore(projectRoot, userConfigRoot string, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		ProjectStatePath: filepath.Join(projectRoot, ".claude", fileName),
		UserStatePath:    filepath.Join(userConfigRoot, fileName),
		TTL:              ttl,
	}
}

// ActivateOptions carries the multi-agent coordination flags an activation
// may set: whether this state is the coordinator of a parallel swarm, and
// the agent identity/worktree that scope a subagent's writes.
type ActivateOptions struct {
	Coordinator  bool
	ParallelMode bool
	AgentID      string
	WorktreePath string
}

// Activate creates both scopes of a new autonomous state, superseding any
// prior state for this project/session pair. Inactive -> Active.
func (s *Store) Activate(mode Mode, sessionID, cwd string) (*State, error) {
	return s.ActivateWithOptions(mode, sessionID, cwd, ActivateOptions{})
}

// ActivateWithOptions is Activate with multi-agent coordination flags.
func (s *Store) ActivateWithOptions(mode Mode, sessionID, cwd string, opts ActivateOptions) (*State, error) {
	if !validModes[mode] {
		return nil, ErrUnknownMode
	}
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrEmptySessionID
	}

	now := time.Now().UTC()
	st := &State{
		Mode:           mode,
		SessionID:      sessionID,
		OriginProject:  cwd,
		StartedAt:      now,
		LastActivityAt: now,
		Iteration:      1,
		Coordinator:    opts.Coordinator,
		ParallelMode:   opts.ParallelMode,
		AgentID:        opts.AgentID,
		WorktreePath:   opts.WorktreePath,
	}

	if err := atomicio.WriteJSON(s.ProjectStatePath, st); err != nil {
		return nil, err
	}
	if err := atomicio.WriteJSON(s.UserStatePath, st); err != nil {
		return nil, err
	}
	return st, nil
}

// Read returns the active state for cwd/sessionID, or ErrInactive. A state
// is only returned when it has not expired and ownership holds: either the
// caller's cwd is at or below origin_project, or the caller's session id
// matches exactly.
func (s *Store) Read(cwd, sessionID string) (*State, error) {
	st, ok := s.readScope(s.ProjectStatePath)
	if !ok || !s.owns(st, cwd, sessionID) || s.expired(st) {
		st, ok = s.readScope(s.UserStatePath)
	}
	if !ok {
		return nil, ErrInactive
	}
	if !s.owns(st, cwd, sessionID) {
		return nil, ErrInactive
	}
	if s.expired(st) {
		return nil, ErrInactive
	}
	return st, nil
}

// update applies mutate to the owned state and persists both scopes.
func (s *Store) update(cwd, sessionID string, mutate func(*State)) (*State, error) {
	st, err := s.Read(cwd, sessionID)
	if err != nil {
		return nil, err
	}
	mutate(st)
	if err := atomicio.WriteJSON(s.ProjectStatePath, st); err != nil {
		return nil, err
	}
	if err := atomicio.WriteJSON(s.UserStatePath, st); err != nil {
		return nil, err
	}
	return st, nil
}

// Touch bumps last_activity_at on both scopes. Called on every tool event
// while the state is active; it never advances the iteration counter.
func (s *Store) Touch(cwd, sessionID string) (*State, error) {
	return s.update(cwd, sessionID, func(st *State) {
		st.LastActivityAt = time.Now().UTC()
	})
}

// AdvanceIteration increments the fix/verify round counter and bumps
// last_activity_at. A round ends at a Stop attempt, so this is called when
// the completion validator blocks a Stop and the agent goes back to work.
func (s *Store) AdvanceIteration(cwd, sessionID string) (*State, error) {
	return s.update(cwd, sessionID, func(st *State) {
		st.Iteration++
		st.LastActivityAt = time.Now().UTC()
	})
}

// MarkPlanModeCompleted sets plan_mode_completed=true, used by the
// plan-mode-before-edit gate once the agent has recorded a plan.
func (s *Store) MarkPlanModeCompleted(cwd, sessionID string) (*State, error) {
	return s.update(cwd, sessionID, func(st *State) {
		st.PlanModeCompleted = true
	})
}

// Deactivate clears both scopes of state by overwriting each with an empty
// document. Active -> Inactive.
func (s *Store) Deactivate() error {
	var empty State
	if err := atomicio.WriteJSON(s.ProjectStatePath, &empty); err != nil {
		return err
	}
	return atomicio.WriteJSON(s.UserStatePath, &empty)
}

// SweepExpired clears the user-scoped state if it has gone stale. Intended
// to be called once at session start only, never mid-flight, since the
// user-scoped file is a shared resource across concurrent sessions.
func (s *Store) SweepExpired() error {
	st, ok := s.readScope(s.UserStatePath)
	if !ok {
		return nil
	}
	if s.expired(st) {
		return atomicio.WriteJSON(s.UserStatePath, &State{})
	}
	return nil
}

func (s *Store) expired(st *State) bool {
	if st == nil || st.SessionID == "" {
		return true
	}
	return time.Since(st.LastActivityAt) > s.TTL
}

// owns implements the Ownership relation from the glossary: session_id
// match, OR cwd at/below origin_project.
func (s *Store) owns(st *State, cwd, sessionID string) bool {
	if st == nil {
		return false
	}
	if sessionID != "" && st.SessionID == sessionID {
		return true
	}
	return underRoot(cwd, st.OriginProject)
}

func (s *Store) readScope(path string) (*State, bool) {
	var st State
	status := atomicio.ReadJSON(path, &st)
	if status != atomicio.StatusOK {
		return nil, false
	}
	if st.SessionID == "" {
		return nil, false
	}
	return &st, true
}

// underRoot reports whether cwd is root or a descendant of root.
func underRoot(cwd, root string) bool {
	if cwd == "" || root == "" {
		return false
	}
	cwdAbs, err1 := filepath.Abs(cwd)
	rootAbs, err2 := filepath.Abs(root)
	if err1 != nil || err2 != nil {
		return cwd == root
	}
	cwdAbs = filepath.Clean(cwdAbs)
	rootAbs = filepath.Clean(rootAbs)
	if cwdAbs == rootAbs {
		return true
	}
	rel, err := filepath.Rel(rootAbs, cwdAbs)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
