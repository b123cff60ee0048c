// Package fields maintains the board's custom field schema: discovery,
// on-demand creation of missing required fields, and the mapping from
// logical names to remote field and option identifiers.
package fields

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/untoldecay/tmsync/internal/github"
	"github.com/untoldecay/tmsync/internal/tasks"
)

// Logical field names the engine requires on every board.
const (
	FieldTMID         = github.FieldTMID
	FieldStatus       = "Status"
	FieldPriority     = "Priority"
	FieldDependencies = "Dependencies"
	FieldTestStrategy = "Test Strategy"
	FieldAgent        = "Agent"
)

// Status option names. Done is listed because bootstrap ensures it exists,
// but the sync path never assigns it; moving an item to Done is a human act.
const (
	OptionTodo       = "Todo"
	OptionInProgress = "In Progress"
	OptionQAReview   = "QA Review"
	OptionDone       = "Done"
	OptionBlocked    = "Blocked"
)

// Priority option names.
const (
	OptionHigh   = "High"
	OptionMedium = "Medium"
	OptionLow    = "Low"
)

// ErrOptionUnknown reports a single-select lookup that matched no option.
var ErrOptionUnknown = errors.New("unknown field option")

// remote is the slice of the GitHub client the catalog needs.
type remote interface {
	GetFields(ctx context.Context, projectID string) ([]github.Field, error)
	CreateField(ctx context.Context, projectID, name, dataType string, options []github.SelectOptionInput) (*github.Field, error)
	AddFieldOptions(ctx context.Context, fieldID, name string, options []github.SelectOptionInput) (*github.Field, error)
}

// Catalog caches the board's field descriptors for the process lifetime.
// Resolve builds the cache; Invalidate drops it after a schema error so the
// next Resolve refetches.
type Catalog struct {
	client    remote
	projectID string
	log       *zap.Logger

	mu     sync.Mutex
	byName map[string]github.Field
}

// NewCatalog builds a catalog for one board.
func NewCatalog(client remote, projectID string, log *zap.Logger) *Catalog {
	return &Catalog{client: client, projectID: projectID, log: log}
}

// defaultOption colors match what the board UI assigns to fresh fields.
func selectOptions(names ...string) []github.SelectOptionInput {
	opts := make([]github.SelectOptionInput, len(names))
	for i, n := range names {
		opts[i] = github.SelectOptionInput{Name: n, Color: "GRAY", Description: ""}
	}
	return opts
}

// requiredField describes one field Resolve must guarantee.
type requiredField struct {
	name     string
	dataType string
	options  []string // single-select only; options that must exist
}

func (c *Catalog) required(agentOptions []string) []requiredField {
	return []requiredField{
		{name: FieldTMID, dataType: github.FieldTypeText},
		{name: FieldDependencies, dataType: github.FieldTypeText},
		{name: FieldTestStrategy, dataType: github.FieldTypeText},
		{name: FieldPriority, dataType: github.FieldTypeSingleSelect,
			options: []string{OptionHigh, OptionMedium, OptionLow}},
		{name: FieldStatus, dataType: github.FieldTypeSingleSelect,
			options: []string{OptionTodo, OptionInProgress, OptionQAReview, OptionDone}},
		{name: FieldAgent, dataType: github.FieldTypeSingleSelect, options: agentOptions},
	}
}

// Resolve guarantees every required field exists with its required options,
// creating what is missing, and fills the cache. agentOptions is the
// configured agent list; an empty list still creates the Agent field with a
// placeholder option because the API rejects empty option sets.
func (c *Catalog) Resolve(ctx context.Context, agentOptions []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.byName != nil {
		return nil
	}

	existing, err := c.client.GetFields(ctx, c.projectID)
	if err != nil {
		return fmt.Errorf("list fields: %w", err)
	}
	byName := make(map[string]github.Field, len(existing))
	for _, f := range existing {
		byName[f.Name] = f
	}

	if len(agentOptions) == 0 {
		agentOptions = []string{"unassigned"}
	}
	for _, req := range c.required(agentOptions) {
		f, ok := byName[req.name]
		if !ok {
			c.log.Info("creating board field", zap.String("field", req.name), zap.String("type", req.dataType))
			created, err := c.client.CreateField(ctx, c.projectID, req.name, req.dataType, selectOptions(req.options...))
			if err != nil {
				return fmt.Errorf("create field %q: %w", req.name, err)
			}
			byName[req.name] = *created
			continue
		}
		if req.dataType == github.FieldTypeSingleSelect {
			updated, err := c.ensureOptions(ctx, f, req.options)
			if err != nil {
				return err
			}
			byName[req.name] = *updated
		}
	}

	c.byName = byName
	return nil
}

// ensureOptions appends any missing option names to a single-select field.
// The update mutation replaces the whole option set, so existing options are
// carried along untouched.
func (c *Catalog) ensureOptions(ctx context.Context, f github.Field, want []string) (*github.Field, error) {
	have := make(map[string]bool, len(f.Options))
	for _, o := range f.Options {
		have[strings.ToLower(o.Name)] = true
	}
	var missing []string
	for _, name := range want {
		if !have[strings.ToLower(name)] {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return &f, nil
	}

	c.log.Info("adding field options",
		zap.String("field", f.Name), zap.Strings("options", missing))
	full := make([]github.SelectOptionInput, 0, len(f.Options)+len(missing))
	for _, o := range f.Options {
		full = append(full, github.SelectOptionInput{Name: o.Name, Color: "GRAY"})
	}
	full = append(full, selectOptions(missing...)...)
	updated, err := c.client.AddFieldOptions(ctx, f.ID, f.Name, full)
	if err != nil {
		return nil, fmt.Errorf("add options to %q: %w", f.Name, err)
	}
	return updated, nil
}

// Invalidate drops the cache so the next Resolve refetches the schema.
func (c *Catalog) Invalidate() {
	c.mu.Lock()
	c.byName = nil
	c.mu.Unlock()
}

// Field returns the descriptor for a logical field name. Resolve must have
// succeeded first.
func (c *Catalog) Field(name string) (github.Field, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.byName[name]
	return f, ok
}

// FieldID returns the remote identifier for a logical field name.
func (c *Catalog) FieldID(name string) (string, error) {
	f, ok := c.Field(name)
	if !ok {
		return "", fmt.Errorf("field %q not in catalog", name)
	}
	return f.ID, nil
}

// OptionID resolves a single-select option by name, case-insensitively.
func (c *Catalog) OptionID(field, option string) (string, error) {
	f, ok := c.Field(field)
	if !ok {
		return "", fmt.Errorf("field %q not in catalog", field)
	}
	if id := optionID(f, option); id != "" {
		return id, nil
	}
	return "", fmt.Errorf("%w: %s/%s", ErrOptionUnknown, field, option)
}

func optionID(f github.Field, option string) string {
	for _, o := range f.Options {
		if strings.EqualFold(o.Name, option) {
			return o.ID
		}
	}
	return ""
}

// EnsureAgentOption resolves an Agent option id, creating the option when it
// does not exist yet. Only the Agent field grows on demand; Status and
// Priority option sets are policy-controlled and never extended here.
//
// The mutex is held across the whole read-ensure-store sequence: the update
// mutation replaces the field's full option set, so two concurrent growers
// reading the same snapshot would each push a list missing the other's
// option and one would be lost.
func (c *Catalog) EnsureAgentOption(ctx context.Context, name string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, ok := c.byName[FieldAgent]
	if !ok {
		return "", fmt.Errorf("field %q not in catalog", FieldAgent)
	}
	if id := optionID(f, name); id != "" {
		return id, nil
	}
	updated, err := c.ensureOptions(ctx, f, []string{name})
	if err != nil {
		return "", err
	}
	c.byName[FieldAgent] = *updated
	if id := optionID(*updated, name); id != "" {
		return id, nil
	}
	return "", fmt.Errorf("%w: %s/%s", ErrOptionUnknown, FieldAgent, name)
}

// HasOption reports whether a single-select field carries the named option.
func (c *Catalog) HasOption(field, option string) bool {
	_, err := c.OptionID(field, option)
	return err == nil
}

// StatusOption maps a local task status to the board's Status option name.
// The done-to-QA-Review mapping is deliberate and not configurable: Done is
// reserved for a human reviewer, so automation can never close the loop on
// its own work.
func (c *Catalog) StatusOption(status string) string {
	switch status {
	case tasks.StatusPending:
		return OptionTodo
	case tasks.StatusInProgress:
		return OptionInProgress
	case tasks.StatusDone, tasks.StatusReview, tasks.StatusQA:
		return OptionQAReview
	case tasks.StatusBlocked:
		if c.HasOption(FieldStatus, OptionBlocked) {
			return OptionBlocked
		}
		return OptionTodo
	case tasks.StatusDeferred, tasks.StatusCancelled:
		if name := titleCase(status); c.HasOption(FieldStatus, name) {
			return name
		}
		return OptionTodo
	default:
		return OptionTodo
	}
}

// PriorityOption maps a local priority to the board's Priority option name.
func PriorityOption(priority string) string {
	switch priority {
	case tasks.PriorityHigh:
		return OptionHigh
	case tasks.PriorityLow:
		return OptionLow
	default:
		return OptionMedium
	}
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
