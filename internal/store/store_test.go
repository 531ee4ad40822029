package store

import (
	"errors"
	"testing"
)

func TestSelectionStatusValues(t *testing.T) {
	statuses := []SelectionStatus{StatusSelected, StatusInReview, StatusCompleted, StatusSkipped}
	expected := []string{"selected", "in_review", "completed", "skipped"}
	for i, s := range statuses {
		if string(s) != expected[i] {
			t.Errorf("expected %s, got %s", expected[i], s)
		}
	}
}

func TestParseStatus(t *testing.T) {
	for _, s := range []string{"selected", "in_review", "completed", "skipped"} {
		got, err := ParseStatus(s)
		if err != nil {
			t.Fatalf("ParseStatus(%q): %v", s, err)
		}
		if string(got) != s {
			t.Errorf("expected %s, got %s", s, got)
		}
	}

	_, err := ParseStatus("archived")
	if !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestSelectionFilterDefaults(t *testing.T) {
	f := SelectionFilter{}
	if f.Limit != 0 {
		t.Errorf("expected 0 default limit, got %d", f.Limit)
	}
	if f.Status != nil || f.WeekStart != nil {
		t.Error("expected nil pointer filters")
	}
}

func TestJudgmentSetClone(t *testing.T) {
	ts := 42
	orig := JudgmentSet{
		General:    []Judgment{{Key: "saludo", Weight: 10, Satisfied: true, TimestampSeconds: &ts}},
		HighImpact: []Judgment{{Key: "maltrato", Satisfied: true}},
	}

	cp := orig.Clone()
	cp.General[0].Satisfied = false
	*cp.General[0].TimestampSeconds = 7
	cp.HighImpact[0].Satisfied = false

	if !orig.General[0].Satisfied || !orig.HighImpact[0].Satisfied {
		t.Error("clone must not alias the original slices")
	}
	if *orig.General[0].TimestampSeconds != 42 {
		t.Error("clone must not alias timestamp pointers")
	}
}

func TestGeneralByKey(t *testing.T) {
	set := JudgmentSet{General: []Judgment{{Key: "a"}, {Key: "b"}}}

	j := set.GeneralByKey("b")
	if j == nil {
		t.Fatal("expected judgment b")
	}
	j.NotApplicable = true
	if !set.General[1].NotApplicable {
		t.Error("GeneralByKey should return a pointer into the set")
	}
	if set.GeneralByKey("missing") != nil {
		t.Error("expected nil for unknown key")
	}
}
