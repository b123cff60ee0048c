package ui

import (
	"strings"
	"testing"
	"time"

	"github.com/untoldecay/tmsync/internal/engine"
	"github.com/untoldecay/tmsync/internal/github"
)

func testProject() *github.Project {
	return &github.Project{ID: "PVT_1", Number: 7, Title: "Taskmaster: master"}
}

func TestRenderSummaryNoColorPlainOutput(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	stats := engine.Statistics{
		Created: 2, Updated: 1, Skipped: 3,
		Errors: []engine.ItemError{{TaskID: "4", Phase: engine.PhaseUpdateFields, Message: "boom"}},
	}
	out := RenderSummary(stats, "master", testProject(), false, 1250*time.Millisecond)

	if strings.Contains(out, "\x1b") {
		t.Errorf("output carries ANSI escapes despite NO_COLOR:\n%q", out)
	}
	for _, want := range []string{
		`Synced tag "master" to Taskmaster: master (#7)`,
		"created 2, updated 1, deleted 0, skipped 3",
		"errors 1",
		"4 (update_fields): boom",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderSummaryDryRunHeader(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	out := RenderSummary(engine.Statistics{}, "master", testProject(), true, time.Second)
	if !strings.Contains(out, `Dry run for tag "master"`) {
		t.Errorf("dry-run header missing:\n%s", out)
	}
	if !strings.Contains(out, "no errors") {
		t.Errorf("clean run should say no errors:\n%s", out)
	}
}

func TestRenderDuplicatesNoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	groups := []engine.DuplicateGroup{{
		TMID: "3",
		Items: []github.Item{
			{ID: "I_1", Title: "Build parser"},
			{ID: "I_2", Title: "Build parser"},
		},
	}}
	out := RenderDuplicates(groups, 1, false)

	if strings.Contains(out, "\x1b") {
		t.Errorf("output carries ANSI escapes despite NO_COLOR:\n%q", out)
	}
	for _, want := range []string{"1 duplicated identity value(s)", "[keep] I_1", "[duplicate] I_2", "--delete"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	if got := RenderDuplicates(nil, 0, false); !strings.Contains(got, "No duplicate items found.") {
		t.Errorf("empty scan = %q", got)
	}
}

func TestRenderStatusNoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	out := RenderStatus("master", 12, 7, "")
	if strings.Contains(out, "\x1b") {
		t.Errorf("output carries ANSI escapes despite NO_COLOR:\n%q", out)
	}
	for _, want := range []string{`Tag "master"`, "board:       #7", "tracked:     12 item(s)", "last sync:   never"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
