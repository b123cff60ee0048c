package tasks

import "testing"

func baseTask() *Task {
	return &Task{
		ID:           "1",
		Title:        "Build parser",
		Description:  "parse things",
		Status:       StatusPending,
		Priority:     PriorityHigh,
		Dependencies: []string{"2", "3"},
		TestStrategy: "table tests",
	}
}

func TestFingerprintStable(t *testing.T) {
	a := ComputeFingerprint(baseTask(), "")
	b := ComputeFingerprint(baseTask(), "")
	if a != b {
		t.Fatalf("same task produced different fingerprints: %+v vs %+v", a, b)
	}
}

func TestFingerprintDependencyOrderIrrelevant(t *testing.T) {
	x := baseTask()
	y := baseTask()
	y.Dependencies = []string{"3", "2"}
	if ComputeFingerprint(x, "") != ComputeFingerprint(y, "") {
		t.Error("dependency order changed the fingerprint")
	}
}

func TestFingerprintWhitespaceCollapsed(t *testing.T) {
	x := baseTask()
	y := baseTask()
	y.Description = "parse   things"
	if ComputeFingerprint(x, "") != ComputeFingerprint(y, "") {
		t.Error("whitespace reflow changed the fingerprint")
	}
}

func TestFingerprintComponents(t *testing.T) {
	orig := ComputeFingerprint(baseTask(), "")

	statusChanged := baseTask()
	statusChanged.Status = StatusDone
	fp := ComputeFingerprint(statusChanged, "")
	if fp.Fields == orig.Fields {
		t.Error("status change should alter the fields hash")
	}
	if fp.Body != orig.Body {
		t.Error("status change should not alter the body hash")
	}

	bodyChanged := baseTask()
	bodyChanged.Details = "new details"
	fp = ComputeFingerprint(bodyChanged, "")
	if fp.Body == orig.Body {
		t.Error("details change should alter the body hash")
	}
	if fp.Fields != orig.Fields {
		t.Error("details change should not alter the fields hash")
	}

	if fp.Full == orig.Full {
		t.Error("full fingerprint should change with any component")
	}
}

func TestFingerprintSubtaskSection(t *testing.T) {
	orig := ComputeFingerprint(baseTask(), "section-a")
	changed := ComputeFingerprint(baseTask(), "section-b")
	if orig.Body == changed.Body || orig.Full == changed.Full {
		t.Error("rendered subtask section must feed the body hash")
	}
}
