package checkpoint

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestSelfReportRoundTrip(t *testing.T) {
	r := SelfReport{
		IsJobComplete:   true,
		CodeChangesMade: true,
		Flags: map[string]ProvenFlag{
			FlagLintersPass: {Value: true, AtVersion: "abc1234"},
			FlagDeployed:    {Value: false, AtVersion: ""},
		},
	}
	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var r2 SelfReport
	if err := json.Unmarshal(data, &r2); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !r2.IsJobComplete || !r2.CodeChangesMade {
		t.Fatalf("plain bool fields did not round-trip: %+v", r2)
	}
	if flag := r2.Flags[FlagLintersPass]; !flag.Trusted("abc1234") {
		t.Fatalf("linters_pass flag did not round-trip as trusted: %+v", flag)
	}
}

func TestProvenFlagTrusted(t *testing.T) {
	cases := []struct {
		flag    ProvenFlag
		version string
		want    bool
	}{
		{ProvenFlag{Value: true, AtVersion: "v1"}, "v1", true},
		{ProvenFlag{Value: true, AtVersion: "v1"}, "v2", false},
		{ProvenFlag{Value: false, AtVersion: "v1"}, "v1", false},
		{ProvenFlag{Value: true, AtVersion: ""}, "", false},
	}
	for _, c := range cases {
		if got := c.flag.Trusted(c.version); got != c.want {
			t.Errorf("Trusted(%q) on %+v = %v, want %v", c.version, c.flag, got, c.want)
		}
	}
}

func TestRemainsNoneBoundaries(t *testing.T) {
	cases := map[string]bool{
		"none": true, "None": true, "  NONE  ": true,
		"": false, "nonexistent": false, "none.": false,
	}
	for in, want := range cases {
		r := Reflection{WhatRemains: in}
		if got := r.RemainsNone(); got != want {
			t.Errorf("RemainsNone(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestStoreLoadMissing(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "completion-checkpoint.json"))
	if _, err := s.Load(); err != ErrMissing {
		t.Fatalf("expected ErrMissing, got %v", err)
	}
}

func TestStoreSaveAndLoad(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "completion-checkpoint.json"))
	ckpt := &Checkpoint{
		SelfReport: SelfReport{
			IsJobComplete:   true,
			CodeChangesMade: true,
			Flags: map[string]ProvenFlag{
				FlagLintersPass: {Value: true, AtVersion: "abc1234"},
			},
		},
		Reflection: Reflection{
			WhatWasDone: "Implemented logout button",
			WhatRemains: "none",
			KeyInsight:  "Guard token clears behind a single helper so 401 paths don't diverge",
			SearchTerms: []string{"auth", "logout", "token"},
			Category:    CategoryPattern,
		},
	}
	if err := s.Save(ckpt); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Reflection.WhatWasDone != ckpt.Reflection.WhatWasDone {
		t.Fatalf("reflection did not round-trip: %+v", got.Reflection)
	}
	if !got.SelfReport.Flags[FlagLintersPass].Trusted("abc1234") {
		t.Fatalf("linters_pass flag did not round-trip: %+v", got.SelfReport.Flags)
	}
}

func TestUnknownTopLevelKeysSurviveLoadSaveCycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "completion-checkpoint.json")
	s := NewStore(path)

	doc := []byte(`{
  "schema_version": 1,
  "self_report": {"is_job_complete": true, "deployed": true, "deployed_at_version": "abc1234"},
  "reflection": {"what_remains": "none"},
  "future_section": {"added_by": "a newer toolkit"}
}`)
	if err := json.Unmarshal(doc, new(Checkpoint)); err != nil {
		t.Fatalf("fixture does not parse: %v", err)
	}
	if err := writeRaw(path, doc); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	if err := s.ResetField(FlagDeployed); err != nil {
		t.Fatalf("ResetField: %v", err)
	}

	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := got.Extra["future_section"]; !ok {
		t.Fatalf("expected unknown top-level key to survive the reset rewrite, got %+v", got.Extra)
	}
	if got.SelfReport.Flags[FlagDeployed].Value {
		t.Fatalf("expected deployed reset alongside preservation")
	}
}

func writeRaw(path string, data []byte) error {
	return os.WriteFile(path, data, 0o600)
}

func TestResetFieldClearsFlagAndStamp(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "completion-checkpoint.json"))
	ckpt := &Checkpoint{SelfReport: SelfReport{Flags: map[string]ProvenFlag{
		FlagDeployed: {Value: true, AtVersion: "abc1234"},
	}}}
	if err := s.Save(ckpt); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := s.ResetField(FlagDeployed); err != nil {
		t.Fatalf("ResetField: %v", err)
	}

	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.SelfReport.Flags[FlagDeployed].Value {
		t.Fatalf("expected deployed to be reset false")
	}
}

func TestResetFieldUnknownName(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "completion-checkpoint.json"))
	if err := s.ResetField("not_a_real_flag"); err != ErrUnknownField {
		t.Fatalf("expected ErrUnknownField, got %v", err)
	}
}

func TestValidCategory(t *testing.T) {
	if !ValidCategory(CategoryBugfix) {
		t.Fatalf("expected bugfix to be valid")
	}
	if ValidCategory(Category("not-a-category")) {
		t.Fatalf("expected unknown category to be invalid")
	}
}
