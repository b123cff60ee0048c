// Package agents maps a task's declared owner to the board's Agent option
// and, where known, a remote login. Resolution is pure rule evaluation; no
// network calls.
package agents

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/untoldecay/tmsync/internal/tasks"
)

// Identity links a logical agent name to its board representation.
type Identity struct {
	OptionName  string `yaml:"option" json:"option"`
	RemoteLogin string `yaml:"login,omitempty" json:"login,omitempty"`
}

// Rule assigns an agent when a task field matches a predicate. Rules are
// evaluated in slice order; the first match wins.
type Rule struct {
	// Field is one of "title", "description", "status", "priority", "id".
	Field string `yaml:"field" json:"field"`
	// Predicate is "equals", "contains", or "prefix".
	Predicate string `yaml:"predicate" json:"predicate"`
	Value     string `yaml:"value" json:"value"`
	Agent     string `yaml:"agent" json:"agent"`
}

// Config is the full rule set, loadable from the agent_mapping block of the
// sync config or from a standalone agents.yaml.
type Config struct {
	Agents  map[string]Identity `yaml:"agents" json:"agents"`
	Rules   []Rule              `yaml:"rules,omitempty" json:"rules,omitempty"`
	Default string              `yaml:"default,omitempty" json:"default,omitempty"`
}

// Assignment is the resolver output for one task.
type Assignment struct {
	OptionName  string
	RemoteLogin string
}

// Resolver evaluates ownership rules for tasks.
type Resolver struct {
	cfg Config
}

// NewResolver builds a resolver; a nil-map config resolves everything to the
// default (or to the raw owner string when no config exists at all).
func NewResolver(cfg Config) *Resolver {
	return &Resolver{cfg: cfg}
}

// LoadFile reads a standalone YAML rule file.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read agent rules: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse agent rules %s: %w", path, err)
	}
	for i, r := range cfg.Rules {
		switch r.Predicate {
		case "equals", "contains", "prefix":
		default:
			return Config{}, fmt.Errorf("agent rule %d: unknown predicate %q", i, r.Predicate)
		}
	}
	return cfg, nil
}

// Merge overlays a standalone rules file onto the config-block mapping.
// Identities merge by name with the overlay winning; rules and the default
// are replaced wholesale when the overlay declares them, since rule order is
// meaningful and interleaving two lists would scramble precedence.
func Merge(base, overlay Config) Config {
	out := Config{
		Agents:  make(map[string]Identity, len(base.Agents)+len(overlay.Agents)),
		Rules:   base.Rules,
		Default: base.Default,
	}
	for name, id := range base.Agents {
		out.Agents[name] = id
	}
	for name, id := range overlay.Agents {
		out.Agents[name] = id
	}
	if len(overlay.Rules) > 0 {
		out.Rules = overlay.Rules
	}
	if overlay.Default != "" {
		out.Default = overlay.Default
	}
	return out
}

// OptionNames returns the agent option names the board's Agent field needs,
// in stable order: mapped identities sorted by name, then the default if
// unmapped. The order feeds field-option creation, so it must not depend on
// map iteration.
func (r *Resolver) OptionNames() []string {
	seen := make(map[string]bool)
	var names []string
	add := func(n string) {
		if n != "" && !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	mapped := make([]string, 0, len(r.cfg.Agents))
	for name := range r.cfg.Agents {
		mapped = append(mapped, name)
	}
	sort.Strings(mapped)
	for _, name := range mapped {
		add(r.cfg.Agents[name].OptionName)
	}
	if def, ok := r.cfg.Agents[r.cfg.Default]; ok {
		add(def.OptionName)
	} else {
		add(r.cfg.Default)
	}
	return names
}

// Resolve maps one task to its agent assignment. Explicit owner beats rules;
// rules beat the default. The zero Assignment means "leave the field alone".
func (r *Resolver) Resolve(t *tasks.Task) Assignment {
	if t.Assignee != "" {
		return r.lookup(t.Assignee)
	}
	for _, rule := range r.cfg.Rules {
		if ruleMatches(rule, t) {
			return r.lookup(rule.Agent)
		}
	}
	if r.cfg.Default != "" {
		return r.lookup(r.cfg.Default)
	}
	return Assignment{}
}

// lookup translates a logical agent name through the identity map, falling
// back to the raw name as the option when unmapped.
func (r *Resolver) lookup(name string) Assignment {
	if id, ok := r.cfg.Agents[name]; ok {
		opt := id.OptionName
		if opt == "" {
			opt = name
		}
		return Assignment{OptionName: opt, RemoteLogin: id.RemoteLogin}
	}
	return Assignment{OptionName: name}
}

func ruleMatches(rule Rule, t *tasks.Task) bool {
	var subject string
	switch rule.Field {
	case "title":
		subject = t.Title
	case "description":
		subject = t.Description
	case "status":
		subject = t.Status
	case "priority":
		subject = t.Priority
	case "id":
		subject = t.ID
	default:
		return false
	}
	subject = strings.ToLower(subject)
	value := strings.ToLower(rule.Value)
	switch rule.Predicate {
	case "equals":
		return subject == value
	case "contains":
		return strings.Contains(subject, value)
	case "prefix":
		return strings.HasPrefix(subject, value)
	}
	return false
}
