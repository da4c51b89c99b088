package retrieval

import (
	"testing"
	"time"

	"github.com/boshu2/agentops/internal/memoryevent"
)

func TestEntityGateRejectsZeroOverlap(t *testing.T) {
	ev := memoryevent.Event{Entities: []string{"billing"}, Ts: time.Now()}
	qc := QueryContext{Entities: []string{"auth", "logout"}}
	s := Score(ev, qc, time.Now())
	if !s.Rejected {
		t.Fatalf("expected event with zero overlap to be gated out")
	}
}

func TestEntityOverlapTiers(t *testing.T) {
	cases := []struct {
		a, b string
		want float64
	}{
		{"logout", "logout", 1.0},
		{"navbar.tsx", "navbar.go", 0.6},
		{"src/auth/token.go", "src/auth/session.go", 0.3},
		{"authentication", "auth", 0.35},
		{"unrelated", "other", 0},
	}
	for _, c := range cases {
		got := pairScore(c.a, c.b)
		if got != c.want {
			t.Errorf("pairScore(%q,%q) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}

func TestRecencyBoundaryContinuousAt48h(t *testing.T) {
	at48 := recencyComponent(48 * time.Hour)
	justBefore := recencyComponent(48*time.Hour - time.Nanosecond)
	justAfter := recencyComponent(48*time.Hour + time.Nanosecond)

	if at48 != 0.5 {
		t.Fatalf("expected recency at exactly 48h to be 0.5, got %v", at48)
	}
	if diff := abs(justBefore - 0.5); diff > 1e-9 {
		t.Fatalf("expected recency just before 48h to approach 0.5, got %v", justBefore)
	}
	if diff := abs(justAfter - 0.5); diff > 1e-9 {
		t.Fatalf("expected recency just after 48h to approach 0.5, got %v", justAfter)
	}
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

func TestScenarioS5EntityGateAndRanking(t *testing.T) {
	now := time.Now()
	e1 := memoryevent.Event{ID: "E1", Entities: []string{"auth", "token"}, Ts: now, Content: "auth token lesson content"}
	e2 := memoryevent.Event{ID: "E2", Entities: []string{"billing"}, Ts: now, Content: "billing lesson"}
	e3 := memoryevent.Event{ID: "E3", Entities: []string{"auth", "logout", "navbar.tsx"}, Ts: now, Content: "auth logout navbar lesson"}

	qc := QueryContext{Entities: []string{"auth", "logout"}}
	sel, err := Select([]memoryevent.Event{e1, e2, e3}, qc, 1200, nil, now)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}

	if len(sel.Events) != 2 {
		t.Fatalf("expected E2 gated out, got %d events: %+v", len(sel.Events), sel.Events)
	}
	if sel.Events[0].Event.ID != "E3" {
		t.Fatalf("expected E3 (exact 'logout' match) to rank first, got %s", sel.Events[0].Event.ID)
	}
	if sel.Events[1].Event.ID != "E1" {
		t.Fatalf("expected E1 second, got %s", sel.Events[1].Event.ID)
	}
}

func TestSelectRespectsBudget(t *testing.T) {
	now := time.Now()
	long := make([]byte, 2000)
	for i := range long {
		long[i] = 'x'
	}
	ev := memoryevent.Event{ID: "E1", Entities: []string{"auth"}, Ts: now, Content: "auth " + string(long)}
	qc := QueryContext{Entities: []string{"auth"}}

	sel, err := Select([]memoryevent.Event{ev}, qc, 600, nil, now)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(sel.Events[0].Excerpt) > 600 {
		t.Fatalf("expected excerpt truncated to budget, got len=%d", len(sel.Events[0].Excerpt))
	}
}

func TestRepeatGuardSkipsRecentPrefix(t *testing.T) {
	now := time.Now()
	ev := memoryevent.Event{ID: "E1", Entities: []string{"auth"}, Ts: now, Content: "same prefix content here and more text after it"}
	qc := QueryContext{Entities: []string{"auth"}}
	history := []InjectionRecord{{Hash: PrefixHash(ev.Content), At: now.Add(-time.Minute)}}

	sel, err := Select([]memoryevent.Event{ev}, qc, 1200, history, now)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(sel.Events) != 0 {
		t.Fatalf("expected repeat guard to skip recently-injected event, got %d", len(sel.Events))
	}
}

func TestBootstrapEventFiltered(t *testing.T) {
	now := time.Now()
	ev := memoryevent.Event{ID: "E1", Type: "bootstrap", Entities: []string{"auth"}, Ts: now, Content: "project initialized"}
	qc := QueryContext{Entities: []string{"auth"}}
	sel, err := Select([]memoryevent.Event{ev}, qc, 1200, nil, now)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(sel.Events) != 0 {
		t.Fatalf("expected bootstrap event to be filtered, got %d", len(sel.Events))
	}
}

func TestNativeMemoryDedup(t *testing.T) {
	native := "guard token clears behind single helper path diverge lesson content words here"
	ev := memoryevent.Event{ID: "E1", Entities: []string{"auth"}, Content: "guard token clears behind single helper path diverge lesson content words here extra"}
	if !dupesNativeMemory(ev.Content, native) {
		t.Fatalf("expected high-overlap content to be deduped against native memory")
	}
}

func TestDebugBoostAppliesForDebuggingModeBugfix(t *testing.T) {
	now := time.Now()
	ev := memoryevent.Event{Entities: []string{"auth"}, Category: "bugfix", ProblemType: "race-condition", Ts: now}
	qc := QueryContext{Entities: []string{"auth"}, Mode: "melt"}
	s := Score(ev, qc, now)
	if s.Score <= 0.5*s.Overlap+0.5*s.Recency {
		t.Fatalf("expected debug boost to raise score above base, got %+v", s)
	}
}
