// Package tasks reads and normalizes the Taskmaster tasks file.
//
// Two on-disk shapes are accepted: the tagged shape, where the top-level
// object maps tag names to {tasks, metadata}, and the legacy shape, where
// the top-level object holds a bare "tasks" array (treated as the tag
// configured as default, "master" unless overridden).
package tasks

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
)

// DefaultTag is the tag assigned to legacy-shape files.
const DefaultTag = "master"

var (
	// ErrTagNotFound is returned when the requested tag is absent from a
	// tagged-shape file.
	ErrTagNotFound = errors.New("tag not found in tasks file")

	// ErrDuplicateID is returned when two tasks in the same tag share an id.
	ErrDuplicateID = errors.New("duplicate task id")
)

// ParseError wraps a malformed or unreadable tasks file.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// LoadedTaskSet is the normalized result of loading one tag.
type LoadedTaskSet struct {
	Tag      string
	Tasks    []Task
	Warnings []string
}

// TaskByID returns the task with the given id, or nil.
func (s *LoadedTaskSet) TaskByID(id string) *Task {
	for i := range s.Tasks {
		if s.Tasks[i].ID == id {
			return &s.Tasks[i]
		}
	}
	return nil
}

type taggedEntry struct {
	Tasks []rawTask `json:"tasks"`
}

// Load reads the tasks file at path and returns the normalized task set for
// tag. An empty tag selects the legacy default. Unresolved dependency
// references are stripped with a warning; duplicate ids are fatal.
func Load(path, tag string) (*LoadedTaskSet, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return Parse(content, path, tag)
}

// Parse is Load without the file read, used by tests and the watch driver.
func Parse(content []byte, path, tag string) (*LoadedTaskSet, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(content, &top); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}

	if tag == "" {
		tag = DefaultTag
	}

	raw, err := selectTag(top, path, tag)
	if err != nil {
		return nil, err
	}

	set := &LoadedTaskSet{Tag: tag}
	seen := make(map[string]bool, len(raw))
	for _, rt := range raw {
		t := normalize(rt.toTask())
		if t.ID == "" {
			return nil, &ParseError{Path: path, Err: fmt.Errorf("task %q has no id", t.Title)}
		}
		if seen[t.ID] {
			return nil, fmt.Errorf("%w: %s (tag %s)", ErrDuplicateID, t.ID, tag)
		}
		seen[t.ID] = true
		set.Tasks = append(set.Tasks, t)
	}

	stripUnresolvedDeps(set, seen)
	return set, nil
}

// selectTag picks the raw task array for tag, handling both file shapes.
func selectTag(top map[string]json.RawMessage, path, tag string) ([]rawTask, error) {
	// Legacy shape: top-level "tasks" array.
	if rawList, ok := top["tasks"]; ok && len(rawList) > 0 && rawList[0] == '[' {
		var raw []rawTask
		if err := json.Unmarshal(rawList, &raw); err != nil {
			return nil, &ParseError{Path: path, Err: err}
		}
		if tag != DefaultTag {
			return nil, fmt.Errorf("%w: %s (legacy file only has %q)", ErrTagNotFound, tag, DefaultTag)
		}
		return raw, nil
	}

	entry, ok := top[tag]
	if !ok {
		return nil, fmt.Errorf("%w: %s (available: %s)", ErrTagNotFound, tag, strings.Join(tagNames(top), ", "))
	}
	var tagged taggedEntry
	if err := json.Unmarshal(entry, &tagged); err != nil {
		return nil, &ParseError{Path: path, Err: fmt.Errorf("tag %q: %w", tag, err)}
	}
	if tagged.Tasks == nil {
		return nil, &ParseError{Path: path, Err: fmt.Errorf("tag %q has no tasks array", tag)}
	}
	return tagged.Tasks, nil
}

// Tags lists the tag names present in a tasks file.
func Tags(path string) ([]string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	var top map[string]json.RawMessage
	if err := json.Unmarshal(content, &top); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	if rawList, ok := top["tasks"]; ok && len(rawList) > 0 && rawList[0] == '[' {
		return []string{DefaultTag}, nil
	}
	return tagNames(top), nil
}

func tagNames(top map[string]json.RawMessage) []string {
	names := make([]string, 0, len(top))
	for name, entry := range top {
		if len(entry) > 0 && entry[0] == '{' {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func normalize(t Task) Task {
	t.ID = strings.TrimSpace(t.ID)
	t.Title = strings.TrimSpace(t.Title)
	t.Description = strings.TrimSpace(t.Description)
	t.Details = strings.TrimSpace(t.Details)
	t.TestStrategy = strings.TrimSpace(t.TestStrategy)
	t.Assignee = strings.TrimSpace(t.Assignee)
	t.Status = strings.ToLower(strings.TrimSpace(t.Status))
	if t.Status == "" {
		t.Status = StatusPending
	}
	t.Priority = strings.ToLower(strings.TrimSpace(t.Priority))
	for i, d := range t.Dependencies {
		t.Dependencies[i] = strings.TrimSpace(d)
	}
	for i := range t.Subtasks {
		t.Subtasks[i] = normalize(t.Subtasks[i])
	}
	return t
}

// stripUnresolvedDeps drops dependency references that do not resolve within
// the set. The board side tolerates missing back-references, so this is a
// warning rather than an error.
func stripUnresolvedDeps(set *LoadedTaskSet, ids map[string]bool) {
	for i := range set.Tasks {
		t := &set.Tasks[i]
		kept := t.Dependencies[:0]
		for _, dep := range t.Dependencies {
			if ids[dep] {
				kept = append(kept, dep)
				continue
			}
			set.Warnings = append(set.Warnings,
				fmt.Sprintf("task %s: dependency %q not found in tag %s, dropped", t.ID, dep, set.Tag))
		}
		t.Dependencies = kept
	}
}
