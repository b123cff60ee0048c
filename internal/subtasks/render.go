// Package subtasks projects a task's subtasks onto the board, either inline
// in the parent body (nested mode) or as separate linked items.
package subtasks

import (
	"fmt"
	"strings"

	"github.com/untoldecay/tmsync/internal/tasks"
)

// Mode selects how subtasks are represented on the board.
type Mode string

const (
	// ModeNested renders subtasks as a checklist inside the parent body.
	ModeNested Mode = "nested"
	// ModeSeparate creates one board item per subtask and links them from
	// the parent body.
	ModeSeparate Mode = "separate"
)

// Marker lines delimiting the generated region of a parent body. A later
// run replaces only the text between them, so hand-written body text above
// the region survives re-renders.
const (
	markerStart = "<!-- tmsync:subtasks -->"
	markerEnd   = "<!-- /tmsync:subtasks -->"
)

// ChildSpec describes one separate-mode child item to create.
type ChildSpec struct {
	// Key identifies the child in the identity store: "<parent>::<child>".
	Key      string
	ParentID string
	Subtask  tasks.Task
}

// ChildKey builds the identity-store key for a separate-mode child.
func ChildKey(parentID, childID string) string {
	return parentID + "::" + childID
}

// ParseMode validates a mode string, defaulting empty to nested.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeNested:
		return ModeNested, nil
	case ModeSeparate:
		return ModeSeparate, nil
	}
	return "", fmt.Errorf("unknown subtask mode %q", s)
}

// RenderNested returns the generated checklist section for t's subtasks, in
// source order. An empty string is returned when there are no subtasks.
// The output is deterministic and is part of the task fingerprint.
func RenderNested(t *tasks.Task) string {
	if len(t.Subtasks) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(markerStart)
	b.WriteString("\n## Subtasks\n")
	for _, st := range t.Subtasks {
		b.WriteString(checklistLine(&st))
	}
	b.WriteString(markerEnd)
	return b.String()
}

// RenderSeparate returns the child item specs for t's subtasks plus the link
// list to write into the parent's generated region. links maps a child key
// to the text to show for it (usually the child's title; callers may pass
// the board URL once known).
func RenderSeparate(t *tasks.Task) ([]ChildSpec, string) {
	if len(t.Subtasks) == 0 {
		return nil, ""
	}
	specs := make([]ChildSpec, 0, len(t.Subtasks))
	var b strings.Builder
	b.WriteString(markerStart)
	b.WriteString("\n## Subtasks\n")
	for _, st := range t.Subtasks {
		specs = append(specs, ChildSpec{
			Key:      ChildKey(t.ID, st.ID),
			ParentID: t.ID,
			Subtask:  st,
		})
		glyph := " "
		if st.Status == tasks.StatusDone {
			glyph = "x"
		}
		fmt.Fprintf(&b, "- [%s] %s (tracked as separate item)\n", glyph, st.Title)
	}
	b.WriteString(markerEnd)
	return specs, b.String()
}

// ChildTitle builds the board title for a separate-mode child, carrying the
// parent title for context the way Taskmaster's own exports do.
func ChildTitle(parent, child *tasks.Task) string {
	return fmt.Sprintf("%s [%s]", child.Title, parent.Title)
}

// ChildBody builds the board body for a separate-mode child, with a back
// reference to the parent.
func ChildBody(parent, child *tasks.Task) string {
	body := child.Body()
	if body != "" {
		body += "\n\n"
	}
	return body + "**Parent Task:** " + parent.Title
}

// ComposeBody splices the generated section into a parent body. If body
// already contains a generated region it is replaced in place; otherwise the
// section is appended after a blank line. An empty section removes any
// existing region.
func ComposeBody(body, section string) string {
	if start := strings.Index(body, markerStart); start >= 0 {
		if end := strings.Index(body, markerEnd); end >= 0 {
			end += len(markerEnd)
			replaced := body[:start] + section + body[end:]
			return strings.TrimRight(replaced, "\n ")
		}
	}
	if section == "" {
		return body
	}
	if body == "" {
		return section
	}
	return body + "\n\n" + section
}

func checklistLine(st *tasks.Task) string {
	glyph := " "
	if st.Status == tasks.StatusDone {
		glyph = "x"
	}
	return fmt.Sprintf("- [%s] %s\n", glyph, st.Title)
}
