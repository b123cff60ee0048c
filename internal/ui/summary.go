// Package ui renders human-facing command output. Machine output (--json)
// bypasses this package entirely.
package ui

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/untoldecay/tmsync/internal/engine"
	"github.com/untoldecay/tmsync/internal/github"
)

// styleSet is the palette one render call draws from.
type styleSet struct {
	title lipgloss.Style
	ok    lipgloss.Style
	warn  lipgloss.Style
	fail  lipgloss.Style
	dim   lipgloss.Style
}

var (
	colorStyles = styleSet{
		title: lipgloss.NewStyle().Bold(true),
		ok:    lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		warn:  lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		fail:  lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		dim:   lipgloss.NewStyle().Faint(true),
	}
	plainStyles = styleSet{
		title: lipgloss.NewStyle(),
		ok:    lipgloss.NewStyle(),
		warn:  lipgloss.NewStyle(),
		fail:  lipgloss.NewStyle(),
		dim:   lipgloss.NewStyle(),
	}
)

// styles picks the palette for the current environment.
func styles() styleSet {
	if ShouldUseColor() {
		return colorStyles
	}
	return plainStyles
}

// ShouldUseColor respects NO_COLOR and TTY detection.
func ShouldUseColor() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return termenv.NewOutput(os.Stdout).Profile != termenv.Ascii
}

// RenderSummary formats the outcome of one sync run.
func RenderSummary(stats engine.Statistics, tag string, project *github.Project, dryRun bool, elapsed time.Duration) string {
	s := styles()
	var b strings.Builder

	header := fmt.Sprintf("Synced tag %q to %s (#%d)", tag, project.Title, project.Number)
	if dryRun {
		header = fmt.Sprintf("Dry run for tag %q against %s (#%d)", tag, project.Title, project.Number)
	}
	b.WriteString(s.title.Render(header))
	b.WriteString("\n")

	line := fmt.Sprintf("  created %d, updated %d, deleted %d, skipped %d",
		stats.Created, stats.Updated, stats.Deleted, stats.Skipped)
	if stats.HasErrors() {
		line += s.warn.Render(fmt.Sprintf(", errors %d", len(stats.Errors)))
	} else {
		line += s.ok.Render(", no errors")
	}
	b.WriteString(line)
	b.WriteString(s.dim.Render(fmt.Sprintf("  (%s)", elapsed.Round(time.Millisecond))))
	b.WriteString("\n")

	for _, e := range stats.Errors {
		subject := e.TaskID
		if subject == "" {
			subject = e.Phase
		} else {
			subject += " (" + e.Phase + ")"
		}
		b.WriteString(s.fail.Render("  ✗ "+subject) + ": " + e.Message + "\n")
	}
	return b.String()
}

// RenderDuplicates formats a duplicate scan report.
func RenderDuplicates(groups []engine.DuplicateGroup, removed int, deleted bool) string {
	s := styles()
	if len(groups) == 0 {
		return s.ok.Render("No duplicate items found.") + "\n"
	}
	var b strings.Builder
	b.WriteString(s.title.Render(fmt.Sprintf("%d duplicated identity value(s)", len(groups))))
	b.WriteString("\n")
	for _, g := range groups {
		b.WriteString(fmt.Sprintf("  %s: %d items\n", g.TMID, len(g.Items)))
		for i, it := range g.Items {
			marker := "keep"
			if i > 0 {
				marker = "duplicate"
				if deleted {
					marker = "deleted"
				}
			}
			b.WriteString(s.dim.Render(fmt.Sprintf("    [%s] %s %s\n", marker, it.ID, it.Title)))
		}
	}
	if !deleted && removed > 0 {
		b.WriteString(s.warn.Render(fmt.Sprintf("Run with --delete to remove %d item(s).", removed)))
		b.WriteString("\n")
	}
	return b.String()
}

// RenderStatus formats the per-tag tracking summary for the status command.
func RenderStatus(tag string, tracked int, projectNumber int, lastSync string) string {
	s := styles()
	var b strings.Builder
	b.WriteString(s.title.Render(fmt.Sprintf("Tag %q", tag)))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("  board:       #%d\n", projectNumber))
	b.WriteString(fmt.Sprintf("  tracked:     %d item(s)\n", tracked))
	if lastSync == "" {
		lastSync = s.dim.Render("never")
	}
	b.WriteString(fmt.Sprintf("  last sync:   %s\n", lastSync))
	return b.String()
}
