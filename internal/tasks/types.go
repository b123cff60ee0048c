package tasks

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Task statuses understood by the sync engine. Anything else is carried
// through verbatim and mapped to the closest board option at sync time.
const (
	StatusPending    = "pending"
	StatusInProgress = "in-progress"
	StatusDone       = "done"
	StatusReview     = "review"
	StatusQA         = "qa"
	StatusBlocked    = "blocked"
	StatusDeferred   = "deferred"
	StatusCancelled  = "cancelled"
)

// Priority levels. An empty priority means "none".
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Task is one entry in the Taskmaster tasks file. IDs and dependency
// references are strings in the canonical form, but the on-disk file may use
// JSON numbers (older Taskmaster versions did), so both are accepted.
type Task struct {
	ID           string
	Title        string
	Description  string
	Details      string
	Status       string
	Priority     string
	Assignee     string
	Dependencies []string
	TestStrategy string
	Subtasks     []Task
}

// rawTask mirrors the on-disk JSON shape. Unknown fields are ignored.
type rawTask struct {
	ID           flexString   `json:"id"`
	Title        string       `json:"title"`
	Description  string       `json:"description"`
	Details      string       `json:"details"`
	Status       string       `json:"status"`
	Priority     string       `json:"priority"`
	Assignee     string       `json:"assignee"`
	Dependencies []flexString `json:"dependencies"`
	TestStrategy string       `json:"testStrategy"`
	Subtasks     []rawSubtask `json:"subtasks"`
}

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*f = flexString(n.String())
	return nil
}

// rawSubtask accepts either a full task object or a bare title string.
type rawSubtask struct {
	task  rawTask
	title string
	bare  bool
}

func (r *rawSubtask) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		r.bare = true
		return json.Unmarshal(data, &r.title)
	}
	return json.Unmarshal(data, &r.task)
}

func (r rawTask) toTask() Task {
	t := Task{
		ID:           string(r.ID),
		Title:        r.Title,
		Description:  r.Description,
		Details:      r.Details,
		Status:       r.Status,
		Priority:     r.Priority,
		Assignee:     r.Assignee,
		TestStrategy: r.TestStrategy,
	}
	for _, d := range r.Dependencies {
		t.Dependencies = append(t.Dependencies, string(d))
	}
	for i, s := range r.Subtasks {
		if s.bare {
			t.Subtasks = append(t.Subtasks, Task{
				ID:     "subtask-" + strconv.Itoa(i),
				Title:  s.title,
				Status: StatusPending,
			})
			continue
		}
		t.Subtasks = append(t.Subtasks, s.task.toTask())
	}
	return t
}

// Body returns the rendered description body for a task, without the
// generated subtask section. Details and test strategy get their own
// markdown sections, matching what Taskmaster itself renders.
func (t *Task) Body() string {
	body := t.Description
	if t.Details != "" {
		body += "\n\n## Details\n" + t.Details
	}
	if t.TestStrategy != "" {
		body += "\n\n## Test Strategy\n" + t.TestStrategy
	}
	return body
}
