// Package honesty implements the secondary advisory stop judge: a
// non-blocking pass over the transcript tail and the checkpoint that flags
// suspiciously confident language unaccompanied by real verification, and
// reflections that read as generic rather than genuinely reusable.
// Its verdict never gates Stop.
package honesty

import (
	"regexp"
	"strings"

	"github.com/boshu2/agentops/internal/checkpoint"
)

// successClaimPatterns is the confident-language set matched against the
// transcript tail.
var successClaimPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bfixed\s+(it|the|this|that|bug|issue|problem)`),
	regexp.MustCompile(`(?i)\ball\s+tests?\s+pass`),
	regexp.MustCompile(`(?i)\bworks?\s+(now|perfectly|great)\b`),
	regexp.MustCompile(`(?i)\bcompletely\s+(done|fixed|resolved)\b`),
}

// hedgePatterns indicate the agent itself flagged uncertainty; their
// presence softens a confident-language finding.
var hedgePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bshould\s+(work|fix|resolve)\b`),
	regexp.MustCompile(`(?i)\bi\s+(think|believe|assume)\b`),
	regexp.MustCompile(`(?i)\bnot\s+(fully\s+)?(tested|verified)\b`),
}

// genericInsightPatterns matches key_insight text that restates the task
// rather than capturing a transferable lesson.
var genericInsightPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(i\s+)?(fixed|implemented|updated|changed)\s+the\s+`),
	regexp.MustCompile(`(?i)^(this|the)\s+(change|fix|commit)\s+(does|adds|updates)\b`),
}

// Verdict is the advisory judgment. It never blocks Stop; when the Stop is
// allowed, the hook attaches it to the memory event's meta.
type Verdict struct {
	ConfidentWithoutEvidence bool     `json:"confident_without_evidence"`
	GenericInsight           bool     `json:"generic_insight"`
	Concerns                 []string `json:"concerns,omitempty"`
}

// Clean reports whether the judge found nothing to flag.
func (v Verdict) Clean() bool {
	return !v.ConfidentWithoutEvidence && !v.GenericInsight
}

// Judge inspects transcriptTail (the last portion of the agent's own
// output) together with the checkpoint's reflection and evidence, and
// returns an advisory Verdict.
func Judge(transcriptTail string, ckpt *checkpoint.Checkpoint) Verdict {
	var v Verdict

	if claimsSuccess(transcriptTail) && !hedged(transcriptTail) && !hasEvidence(ckpt) {
		v.ConfidentWithoutEvidence = true
		v.Concerns = append(v.Concerns, "transcript claims success confidently but no evidence/artifact is attached")
	}

	if ckpt != nil && isGenericInsight(ckpt.Reflection.KeyInsight) {
		v.GenericInsight = true
		v.Concerns = append(v.Concerns, "key_insight restates what was done rather than capturing a reusable lesson")
	}

	return v
}

func claimsSuccess(text string) bool {
	for _, p := range successClaimPatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

func hedged(text string) bool {
	for _, p := range hedgePatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

func hasEvidence(ckpt *checkpoint.Checkpoint) bool {
	if ckpt == nil {
		return false
	}
	if ckpt.Evidence != nil && (len(ckpt.Evidence.URLsTested) > 0 || len(ckpt.Evidence.Artifacts) > 0) {
		return true
	}
	for _, flag := range ckpt.SelfReport.Flags {
		if flag.Value && flag.AtVersion != "" {
			return true
		}
	}
	return false
}

func isGenericInsight(insight string) bool {
	trimmed := strings.TrimSpace(insight)
	if trimmed == "" {
		return false
	}
	for _, p := range genericInsightPatterns {
		if p.MatchString(trimmed) {
			return true
		}
	}
	return false
}
