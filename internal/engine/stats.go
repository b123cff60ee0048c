package engine

import "sync"

// ItemError records one failed operation. The run continues past it.
type ItemError struct {
	TaskID  string `json:"task_id,omitempty"`
	Phase   string `json:"phase"`
	Message string `json:"message"`
}

// Phases an ItemError can occur in.
const (
	PhaseCreate       = "create"
	PhaseUpdateFields = "update_fields"
	PhaseUpdateBody   = "update_body"
	PhaseDelete       = "delete"
	PhasePlan         = "plan"
)

// Statistics is the outcome of one run.
type Statistics struct {
	Created int         `json:"created"`
	Updated int         `json:"updated"`
	Deleted int         `json:"deleted"`
	Skipped int         `json:"skipped"`
	Errors  []ItemError `json:"errors"`
}

// HasErrors reports whether any operation failed.
func (s *Statistics) HasErrors() bool { return len(s.Errors) > 0 }

// statsCollector accumulates counters from executor workers.
type statsCollector struct {
	mu    sync.Mutex
	stats Statistics
}

func (c *statsCollector) addCreated() { c.mu.Lock(); c.stats.Created++; c.mu.Unlock() }
func (c *statsCollector) addUpdated() { c.mu.Lock(); c.stats.Updated++; c.mu.Unlock() }
func (c *statsCollector) addDeleted() { c.mu.Lock(); c.stats.Deleted++; c.mu.Unlock() }
func (c *statsCollector) addSkipped() { c.mu.Lock(); c.stats.Skipped++; c.mu.Unlock() }

func (c *statsCollector) addError(taskID, phase string, err error) {
	c.mu.Lock()
	c.stats.Errors = append(c.stats.Errors, ItemError{TaskID: taskID, Phase: phase, Message: err.Error()})
	c.mu.Unlock()
}

// snapshot returns the accumulated statistics with a non-nil Errors slice,
// so --json output always carries an errors array.
func (c *statsCollector) snapshot() Statistics {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.stats
	out.Errors = make([]ItemError, len(c.stats.Errors))
	copy(out.Errors, c.stats.Errors)
	return out
}
