// Package memoryevent implements the project-scoped, append-only memory
// event log: one JSON file per event plus a manifest index, so readers
// never block writers and the manifest can always be rebuilt by scanning
// the events directory.
package memoryevent

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/boshu2/agentops/internal/atomicio"
)

// RetentionDays is how long an event is kept absent the event cap.
const RetentionDays = 90

// MaxEvents is the hard cap on events retained per project; GC evicts the
// least-recently-timestamped events first once this cap is exceeded.
const MaxEvents = 500

// MinAge is the floor below which GC never deletes an event, even if it
// would otherwise be evicted by the cap.
const MinAge = time.Hour

const eventsDirName = "events"
const manifestFileName = "manifest.json"
const promotedFileName = "promoted-events.json"

// PromotionThreshold is the cited-count at which an event has proven
// useful enough to be recorded in the promotion sidecar.
const PromotionThreshold = 3

// Event is an immutable append-only memory record.
type Event struct {
	ID          string                 `json:"id"`
	Ts          time.Time              `json:"ts"`
	SchemaVersion int                  `json:"v"`
	Type        string                 `json:"type"`
	Source      string                 `json:"source"`
	Category    string                 `json:"category"`
	ProblemType string                 `json:"problem_type,omitempty"`
	Content     string                 `json:"content"`
	Entities    []string               `json:"entities"`
	Meta        map[string]interface{} `json:"meta,omitempty"`
}

// EventStats tracks per-event utility counters referenced by the retrieval
// engine's cited-feedback mechanism.
type EventStats struct {
	Injected int `json:"injected"`
	Cited    int `json:"cited"`
}

// Manifest is the per-project index: total count, recent ids, and
// per-event utility counters.
type Manifest struct {
	TotalCount int                   `json:"total_count"`
	RecentIDs  []string              `json:"recent_ids"`
	Stats      map[string]EventStats `json:"stats"`
}

// Store reads and writes the memory event log for one project.
type Store struct {
	// Root is <user-config-root>/memory/<project-id>.
	Root string
}

// NewStore builds a Store rooted at root.
func NewStore(root string) *Store {
	return &Store{Root: root}
}

func (s *Store) eventsDir() string     { return filepath.Join(s.Root, eventsDirName) }
func (s *Store) manifestPath() string  { return filepath.Join(s.Root, manifestFileName) }
func (s *Store) eventPath(id string) string {
	return filepath.Join(s.eventsDir(), id+".json")
}

// AppendEvent writes a new event file and updates the manifest. Each event
// lives at its own path so two concurrent writers for different events
// never collide; only the manifest update is serialized.
func (s *Store) AppendEvent(ev Event) (Event, error) {
	if strings.TrimSpace(ev.Content) == "" {
		return Event{}, ErrEmptyContent
	}
	if ev.Ts.IsZero() {
		ev.Ts = time.Now().UTC()
	}
	if ev.ID == "" {
		ev.ID = NewID(ev.Ts)
	}
	if ev.SchemaVersion == 0 {
		ev.SchemaVersion = 1
	}

	if err := atomicio.WriteJSON(s.eventPath(ev.ID), ev); err != nil {
		return Event{}, err
	}

	if err := s.updateManifest(func(m *Manifest) {
		m.TotalCount++
		m.RecentIDs = prependCapped(m.RecentIDs, ev.ID, MaxEvents)
		if m.Stats == nil {
			m.Stats = make(map[string]EventStats)
		}
	}); err != nil {
		return ev, err
	}
	return ev, nil
}

// NewID generates a sortable, collision-resistant event id:
// evt_<unix-nanos>-<uuid>. The unix-nanos prefix keeps ids human-sortable
// on disk; the uuid guarantees no two concurrent writers collide.
func NewID(ts time.Time) string {
	return fmt.Sprintf("evt_%d-%s", ts.UnixNano(), uuid.NewString())
}

// Read loads a single event by id.
func (s *Store) Read(id string) (Event, error) {
	var ev Event
	status := atomicio.ReadJSON(s.eventPath(id), &ev)
	if status != atomicio.StatusOK {
		return Event{}, ErrNotFound
	}
	return ev, nil
}

// ListRecent returns up to n most recent events, newest first. It scans
// the events directory directly rather than trusting the manifest, so a
// lost or corrupt manifest never hides data.
func (s *Store) ListRecent(n int) ([]Event, error) {
	all, err := s.listAll()
	if err != nil {
		return nil, err
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Ts.After(all[j].Ts) })
	if n > 0 && len(all) > n {
		all = all[:n]
	}
	return all, nil
}

func (s *Store) listAll() ([]Event, error) {
	entries, err := os.ReadDir(s.eventsDir())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var events []Event
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		var ev Event
		status := atomicio.ReadJSON(filepath.Join(s.eventsDir(), entry.Name()), &ev)
		if status != atomicio.StatusOK {
			continue // tolerate a corrupt sibling file; GC/inspection tools surface it separately
		}
		events = append(events, ev)
	}
	return events, nil
}

// GC enforces the 90-day/500-event retention budget: events older than
// RetentionDays, or beyond MaxEvents by LRU-by-ts, are deleted, except any
// event younger than MinAge which is never evicted regardless of the cap.
func (s *Store) GC() (deleted int, err error) {
	all, err := s.listAll()
	if err != nil {
		return 0, err
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Ts.After(all[j].Ts) }) // newest first

	now := time.Now().UTC()
	keep := make([]Event, 0, len(all))
	for i, ev := range all {
		age := now.Sub(ev.Ts)
		if age < MinAge {
			keep = append(keep, ev)
			continue
		}
		if age > RetentionDays*24*time.Hour {
			continue // too old
		}
		if i >= MaxEvents {
			continue // beyond the cap, and old enough to be evicted
		}
		keep = append(keep, ev)
	}

	deleted = len(all) - len(keep)
	if deleted == 0 {
		return 0, nil
	}

	keepIDs := make(map[string]bool, len(keep))
	for _, ev := range keep {
		keepIDs[ev.ID] = true
	}
	for _, ev := range all {
		if !keepIDs[ev.ID] {
			_ = os.Remove(s.eventPath(ev.ID)) //nolint:errcheck // best-effort; GC is opportunistic
		}
	}

	ids := make([]string, 0, len(keep))
	for _, ev := range keep {
		ids = append(ids, ev.ID)
	}
	err = s.updateManifest(func(m *Manifest) {
		m.TotalCount = len(keep)
		m.RecentIDs = ids
	})
	return deleted, err
}

// CreditCitation increments the cited counter for id in the manifest,
// called by the completion validator when the agent's checkpoint attributes
// an injected event in memory_that_helped.
func (s *Store) CreditCitation(id string) error {
	return s.updateManifest(func(m *Manifest) {
		if m.Stats == nil {
			m.Stats = make(map[string]EventStats)
		}
		stat := m.Stats[id]
		stat.Cited++
		m.Stats[id] = stat
	})
}

// CreditInjection increments the injected counter for id in the manifest.
func (s *Store) CreditInjection(id string) error {
	return s.updateManifest(func(m *Manifest) {
		if m.Stats == nil {
			m.Stats = make(map[string]EventStats)
		}
		stat := m.Stats[id]
		stat.Injected++
		m.Stats[id] = stat
	})
}

// LoadManifest reads the manifest, rebuilding it from the events directory
// if it is missing or corrupt.
func (s *Store) LoadManifest() (Manifest, error) {
	var m Manifest
	status := atomicio.ReadJSON(s.manifestPath(), &m)
	if status == atomicio.StatusOK {
		if m.Stats == nil {
			m.Stats = make(map[string]EventStats)
		}
		return m, nil
	}

	all, err := s.listAll()
	if err != nil {
		return Manifest{Stats: make(map[string]EventStats)}, err
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Ts.After(all[j].Ts) })
	ids := make([]string, 0, len(all))
	for _, ev := range all {
		ids = append(ids, ev.ID)
	}
	return Manifest{TotalCount: len(all), RecentIDs: ids, Stats: make(map[string]EventStats)}, nil
}

func (s *Store) updateManifest(mutate func(*Manifest)) error {
	m, err := s.LoadManifest()
	if err != nil {
		return err
	}
	mutate(&m)
	return atomicio.WriteJSON(s.manifestPath(), m)
}

func prependCapped(ids []string, id string, cap int) []string {
	out := append([]string{id}, ids...)
	if len(out) > cap {
		out = out[:cap]
	}
	return out
}

// MarshalEvent is a small convenience used by tests and callers that need
// the canonical on-wire JSON for an event without writing it to disk.
func MarshalEvent(ev Event) ([]byte, error) {
	return json.MarshalIndent(ev, "", "  ")
}

// PromotedEvents is the sidecar tracking which events have earned
// promotion out of ordinary GC eviction by accumulating citations. GC
// still respects RetentionDays/MaxEvents; promotion is advisory metadata
// surfaced to retrieval and inspection tools, not an eviction override.
type PromotedEvents struct {
	IDs map[string]time.Time `json:"ids"`
}

func (s *Store) promotedPath() string { return filepath.Join(s.Root, promotedFileName) }

// LoadPromotions reads the promotion sidecar, treating a missing file as
// an empty set.
func (s *Store) LoadPromotions() (PromotedEvents, error) {
	var p PromotedEvents
	status := atomicio.ReadJSON(s.promotedPath(), &p)
	switch status {
	case atomicio.StatusOK:
		if p.IDs == nil {
			p.IDs = make(map[string]time.Time)
		}
		return p, nil
	case atomicio.StatusMissing:
		return PromotedEvents{IDs: make(map[string]time.Time)}, nil
	default:
		return PromotedEvents{IDs: make(map[string]time.Time)}, ErrNotFound
	}
}

// PromoteIfEligible credits a citation for id via CreditCitation, then
// promotes it in the sidecar once its cited count reaches
// PromotionThreshold. Returns whether this call caused a new promotion.
func (s *Store) PromoteIfEligible(id string) (bool, error) {
	if err := s.CreditCitation(id); err != nil {
		return false, err
	}
	m, err := s.LoadManifest()
	if err != nil {
		return false, err
	}
	if m.Stats[id].Cited < PromotionThreshold {
		return false, nil
	}

	p, err := s.LoadPromotions()
	if err != nil {
		return false, err
	}
	if _, already := p.IDs[id]; already {
		return false, nil
	}
	p.IDs[id] = time.Now().UTC()
	if err := atomicio.WriteJSON(s.promotedPath(), p); err != nil {
		return false, err
	}
	return true, nil
}

// IsPromoted reports whether id has been promoted.
func (s *Store) IsPromoted(id string) (bool, error) {
	p, err := s.LoadPromotions()
	if err != nil {
		return false, err
	}
	_, ok := p.IDs[id]
	return ok, nil
}
