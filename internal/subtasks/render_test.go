package subtasks

import (
	"strings"
	"testing"

	"github.com/untoldecay/tmsync/internal/tasks"
)

func parentTask() *tasks.Task {
	return &tasks.Task{
		ID:    "5",
		Title: "Ship feature",
		Subtasks: []tasks.Task{
			{ID: "5.1", Title: "Write code", Status: tasks.StatusDone},
			{ID: "5.2", Title: "Write docs", Status: tasks.StatusPending},
		},
	}
}

func TestParseMode(t *testing.T) {
	cases := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", ModeNested, false},
		{"nested", ModeNested, false},
		{"separate", ModeSeparate, false},
		{"inline", "", true},
	}
	for _, tc := range cases {
		got, err := ParseMode(tc.in)
		if tc.wantErr != (err != nil) {
			t.Errorf("ParseMode(%q) err = %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseMode(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestRenderNested(t *testing.T) {
	section := RenderNested(parentTask())
	for _, want := range []string{
		markerStart,
		markerEnd,
		"## Subtasks",
		"- [x] Write code",
		"- [ ] Write docs",
	} {
		if !strings.Contains(section, want) {
			t.Errorf("section missing %q:\n%s", want, section)
		}
	}
	// Source order is part of the contract.
	if strings.Index(section, "Write code") > strings.Index(section, "Write docs") {
		t.Error("subtasks rendered out of source order")
	}
}

func TestRenderNestedEmpty(t *testing.T) {
	if got := RenderNested(&tasks.Task{ID: "1"}); got != "" {
		t.Errorf("no subtasks should render nothing, got %q", got)
	}
}

func TestRenderSeparate(t *testing.T) {
	specs, section := RenderSeparate(parentTask())
	if len(specs) != 2 {
		t.Fatalf("got %d child specs, want 2", len(specs))
	}
	if specs[0].Key != "5::5.1" || specs[1].Key != "5::5.2" {
		t.Errorf("child keys wrong: %s, %s", specs[0].Key, specs[1].Key)
	}
	if !strings.Contains(section, markerStart) || !strings.Contains(section, "Write docs") {
		t.Errorf("link section incomplete:\n%s", section)
	}
}

func TestChildTitleAndBody(t *testing.T) {
	p := parentTask()
	c := &p.Subtasks[0]
	if got := ChildTitle(p, c); got != "Write code [Ship feature]" {
		t.Errorf("ChildTitle = %q", got)
	}
	if body := ChildBody(p, c); !strings.Contains(body, "**Parent Task:** Ship feature") {
		t.Errorf("ChildBody missing back reference:\n%s", body)
	}
}

func TestComposeBodyAppendsAndReplaces(t *testing.T) {
	body := "Hand-written intro."
	first := ComposeBody(body, RenderNested(parentTask()))
	if !strings.HasPrefix(first, "Hand-written intro.") {
		t.Fatalf("hand-written text lost:\n%s", first)
	}

	// A second render replaces only the generated region.
	p := parentTask()
	p.Subtasks[1].Status = tasks.StatusDone
	second := ComposeBody(first, RenderNested(p))
	if strings.Count(second, markerStart) != 1 {
		t.Errorf("generated region duplicated:\n%s", second)
	}
	if !strings.Contains(second, "- [x] Write docs") {
		t.Errorf("region not refreshed:\n%s", second)
	}
	if !strings.HasPrefix(second, "Hand-written intro.") {
		t.Errorf("hand-written text lost on replace:\n%s", second)
	}
}

func TestComposeBodyRemovesRegion(t *testing.T) {
	withSection := ComposeBody("intro", RenderNested(parentTask()))
	cleared := ComposeBody(withSection, "")
	if strings.Contains(cleared, markerStart) {
		t.Errorf("empty section should remove the region:\n%s", cleared)
	}
	if !strings.Contains(cleared, "intro") {
		t.Errorf("hand-written text lost:\n%s", cleared)
	}
}
