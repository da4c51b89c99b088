package honesty

import (
	"testing"

	"github.com/boshu2/agentops/internal/checkpoint"
)

func TestJudgeFlagsConfidentClaimWithoutEvidence(t *testing.T) {
	v := Judge("All tests pass now, completely fixed the bug.", &checkpoint.Checkpoint{})
	if !v.ConfidentWithoutEvidence {
		t.Fatalf("expected confident-without-evidence finding")
	}
	if v.Clean() {
		t.Fatalf("expected verdict to be non-clean")
	}
}

func TestJudgeAllowsHedgedLanguage(t *testing.T) {
	v := Judge("This should fix the issue but I have not fully tested it.", &checkpoint.Checkpoint{})
	if v.ConfidentWithoutEvidence {
		t.Fatalf("expected hedged language to avoid the confident-claim finding")
	}
}

func TestJudgeAllowsConfidentClaimWithEvidence(t *testing.T) {
	ckpt := &checkpoint.Checkpoint{
		SelfReport: checkpoint.SelfReport{
			Flags: map[string]checkpoint.ProvenFlag{
				checkpoint.FlagLintersPass: {Value: true, AtVersion: "abc1234"},
			},
		},
	}
	v := Judge("All tests pass now.", ckpt)
	if v.ConfidentWithoutEvidence {
		t.Fatalf("expected a stamped proven flag to count as evidence")
	}
}

func TestJudgeFlagsGenericInsight(t *testing.T) {
	ckpt := &checkpoint.Checkpoint{
		Reflection: checkpoint.Reflection{KeyInsight: "Fixed the login bug by updating the handler."},
	}
	v := Judge("", ckpt)
	if !v.GenericInsight {
		t.Fatalf("expected generic insight to be flagged")
	}
}

func TestVerdictNeverBlocks(t *testing.T) {
	v := Judge("All tests pass now.", &checkpoint.Checkpoint{})
	_ = v // Verdict has no field or method that can signal a block; advisory only.
}
