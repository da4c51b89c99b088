package dispatch

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestParseInputFallsBackToCwd(t *testing.T) {
	in := ParseInput(strings.NewReader(""))
	if in.Cwd == "" {
		t.Fatalf("expected ParseInput to fall back to process cwd on empty input")
	}
}

func TestParseInputNormalizesFields(t *testing.T) {
	in := ParseInput(strings.NewReader(`{"session_id":"s1","tool_name":"Bash","cwd":"/repo"}`))
	if in.SessionID != "s1" || in.ToolName != "Bash" || in.Cwd != "/repo" {
		t.Fatalf("unexpected parse result: %+v", in)
	}
}

func TestDispatchDenyWinsOverAllow(t *testing.T) {
	r := NewRegistry(time.Second)
	r.Register(EventPreToolUse, "", func(ctx context.Context, in Input) Decision {
		return Decision{Action: ActionAllow}
	})
	r.Register(EventPreToolUse, "", func(ctx context.Context, in Input) Decision {
		return Decision{Action: ActionDeny, Reason: "dangerous command"}
	})

	d := r.Dispatch(EventPreToolUse, Input{ToolName: "Bash"})
	if d.Action != ActionDeny {
		t.Fatalf("expected deny to win, got %s", d.Action)
	}
}

func TestDispatchPassthroughWhenNoHandlers(t *testing.T) {
	r := NewRegistry(time.Second)
	d := r.Dispatch(EventPreToolUse, Input{ToolName: "Bash"})
	if d.Action != ActionPassthrough {
		t.Fatalf("expected passthrough with no handlers, got %s", d.Action)
	}
}

func TestDispatchToolPatternScoping(t *testing.T) {
	r := NewRegistry(time.Second)
	r.Register(EventPreToolUse, "Deploy", func(ctx context.Context, in Input) Decision {
		return Decision{Action: ActionDeny}
	})
	d := r.Dispatch(EventPreToolUse, Input{ToolName: "Bash"})
	if d.Action != ActionPassthrough {
		t.Fatalf("expected handler scoped to Deploy to be skipped for Bash, got %s", d.Action)
	}
}

func TestDispatchTimeoutYieldsPassthrough(t *testing.T) {
	r := NewRegistry(5 * time.Millisecond)
	r.Register(EventStop, "", func(ctx context.Context, in Input) Decision {
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond)
		return Decision{Action: ActionDeny}
	})
	d := r.Dispatch(EventStop, Input{})
	if d.Action != ActionPassthrough {
		t.Fatalf("expected timeout to yield passthrough, got %s", d.Action)
	}
}

func TestEncodeDecisionOmitsPurePassthrough(t *testing.T) {
	if EncodeDecision(Passthrough) != nil {
		t.Fatalf("expected nil encoding for pure passthrough")
	}
}

func TestEncodeDecisionIncludesReason(t *testing.T) {
	out := EncodeDecision(Decision{Action: ActionDeny, Reason: "blocked"})
	hook, ok := out["hookSpecificOutput"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected hookSpecificOutput in encoded decision: %+v", out)
	}
	if hook["reason"] != "blocked" {
		t.Fatalf("expected reason to be preserved, got %+v", hook)
	}
}
