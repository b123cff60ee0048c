// Package config loads and rewrites the sync configuration file. Unknown
// JSON keys survive a rewrite, so other tools sharing the file keep their
// settings.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/untoldecay/tmsync/internal/agents"
)

// ErrConfig marks configuration failures. The CLI maps it to exit code 4.
var ErrConfig = errors.New("configuration error")

// DefaultFileName is the config file looked up next to the task file.
const DefaultFileName = "sync-config.json"

// supportedVersion is the config schema major version this build accepts.
const supportedVersion = "1"

// ProjectMapping binds one tag to one board.
type ProjectMapping struct {
	ProjectNumber int               `json:"project_number"`
	ProjectID     string            `json:"project_id,omitempty"`
	SubtaskMode   string            `json:"subtask_mode,omitempty"`
	FieldMappings map[string]string `json:"field_mappings,omitempty"`
	LastSync      string            `json:"last_sync,omitempty"`

	extra map[string]json.RawMessage
}

// Config is the parsed sync configuration.
type Config struct {
	Version      string
	Organization string
	Mappings     map[string]*ProjectMapping
	AgentMapping *agents.Config

	path  string
	extra map[string]json.RawMessage
}

// knownTopKeys lists the keys this program owns at the top level; everything
// else rides along in extra.
var knownTopKeys = map[string]bool{
	"version": true, "organization": true,
	"project_mappings": true, "agent_mapping": true,
}

var knownMappingKeys = map[string]bool{
	"project_number": true, "project_id": true, "subtask_mode": true,
	"field_mappings": true, "last_sync": true,
}

// Load reads and validates the config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrConfig, path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConfig, path, err)
	}
	cfg.path = path
	return cfg, nil
}

// Parse decodes config content, keeping unknown keys for rewrite.
func Parse(data []byte) (*Config, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}

	cfg := &Config{
		Mappings: make(map[string]*ProjectMapping),
		extra:    make(map[string]json.RawMessage),
	}
	for k, v := range top {
		if !knownTopKeys[k] {
			cfg.extra[k] = v
		}
	}

	if raw, ok := top["version"]; ok {
		if err := json.Unmarshal(raw, &cfg.Version); err != nil {
			return nil, fmt.Errorf("version must be a string: %w", err)
		}
	}
	if cfg.Version == "" {
		return nil, errors.New("missing version")
	}
	if major, _, _ := strings.Cut(cfg.Version, "."); major != supportedVersion {
		return nil, fmt.Errorf("unsupported config version %q (want %s.x)", cfg.Version, supportedVersion)
	}

	if raw, ok := top["organization"]; ok {
		if err := json.Unmarshal(raw, &cfg.Organization); err != nil {
			return nil, fmt.Errorf("organization: %w", err)
		}
	}

	if raw, ok := top["project_mappings"]; ok {
		var mappings map[string]map[string]json.RawMessage
		if err := json.Unmarshal(raw, &mappings); err != nil {
			return nil, fmt.Errorf("project_mappings: %w", err)
		}
		for tag, fields := range mappings {
			pm, err := parseMapping(fields)
			if err != nil {
				return nil, fmt.Errorf("project_mappings.%s: %w", tag, err)
			}
			cfg.Mappings[tag] = pm
		}
	}

	if raw, ok := top["agent_mapping"]; ok {
		var am agents.Config
		if err := json.Unmarshal(raw, &am); err != nil {
			return nil, fmt.Errorf("agent_mapping: %w", err)
		}
		cfg.AgentMapping = &am
	}
	return cfg, nil
}

func parseMapping(fields map[string]json.RawMessage) (*ProjectMapping, error) {
	pm := &ProjectMapping{extra: make(map[string]json.RawMessage)}
	for k, v := range fields {
		if !knownMappingKeys[k] {
			pm.extra[k] = v
			continue
		}
		var err error
		switch k {
		case "project_number":
			err = json.Unmarshal(v, &pm.ProjectNumber)
		case "project_id":
			err = json.Unmarshal(v, &pm.ProjectID)
		case "subtask_mode":
			err = json.Unmarshal(v, &pm.SubtaskMode)
		case "field_mappings":
			err = json.Unmarshal(v, &pm.FieldMappings)
		case "last_sync":
			err = json.Unmarshal(v, &pm.LastSync)
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
	}
	if pm.ProjectNumber <= 0 {
		return nil, errors.New("project_number must be a positive integer")
	}
	return pm, nil
}

// Mapping returns the board binding for a tag.
func (c *Config) Mapping(tag string) (*ProjectMapping, error) {
	pm, ok := c.Mappings[tag]
	if !ok {
		return nil, fmt.Errorf("%w: no project mapping for tag %q", ErrConfig, tag)
	}
	return pm, nil
}

// SetMapping inserts or replaces the binding for a tag.
func (c *Config) SetMapping(tag string, pm *ProjectMapping) {
	if pm.extra == nil {
		pm.extra = make(map[string]json.RawMessage)
	}
	c.Mappings[tag] = pm
}

// TouchLastSync records a successful run time on a tag's mapping.
func (c *Config) TouchLastSync(tag string, now time.Time) {
	if pm, ok := c.Mappings[tag]; ok {
		pm.LastSync = now.UTC().Format(time.RFC3339)
	}
}

// Save rewrites the config file it was loaded from, unknown keys included.
func (c *Config) Save() error {
	if c.path == "" {
		return fmt.Errorf("%w: config has no backing file", ErrConfig)
	}
	data, err := c.Encode()
	if err != nil {
		return err
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}

// Encode serializes the config with unknown keys merged back in.
func (c *Config) Encode() ([]byte, error) {
	top := make(map[string]any, len(c.extra)+4)
	for k, v := range c.extra {
		top[k] = v
	}
	top["version"] = c.Version
	if c.Organization != "" {
		top["organization"] = c.Organization
	}
	mappings := make(map[string]any, len(c.Mappings))
	for tag, pm := range c.Mappings {
		m := make(map[string]any, len(pm.extra)+5)
		for k, v := range pm.extra {
			m[k] = v
		}
		m["project_number"] = pm.ProjectNumber
		if pm.ProjectID != "" {
			m["project_id"] = pm.ProjectID
		}
		if pm.SubtaskMode != "" {
			m["subtask_mode"] = pm.SubtaskMode
		}
		if len(pm.FieldMappings) > 0 {
			m["field_mappings"] = pm.FieldMappings
		}
		if pm.LastSync != "" {
			m["last_sync"] = pm.LastSync
		}
		mappings[tag] = m
	}
	top["project_mappings"] = mappings
	if c.AgentMapping != nil {
		top["agent_mapping"] = c.AgentMapping
	}
	return json.MarshalIndent(top, "", "  ")
}

// Env is the environment overlay read through viper with the TMS_ prefix.
// Environment values win over config-file values where both exist.
type Env struct {
	Organization      string
	Repository        string // "owner/name", for issue-backed items
	AutoCreateProject bool
	Concurrency       int
	DebounceMS        int
}

// LoadEnv reads the TMS_* environment overlay.
func LoadEnv() Env {
	v := viper.New()
	v.SetEnvPrefix("TMS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return Env{
		Organization:      v.GetString("organization"),
		Repository:        v.GetString("repository"),
		AutoCreateProject: v.GetBool("auto_create_project"),
		Concurrency:       v.GetInt("concurrency"),
		DebounceMS:        v.GetInt("debounce_ms"),
	}
}

// DetectRepository finds the "owner/name" of the surrounding repository:
// GITHUB_REPOSITORY when set (CI), otherwise the origin remote URL.
func DetectRepository() (string, error) {
	if repo := os.Getenv("GITHUB_REPOSITORY"); repo != "" {
		return repo, nil
	}
	out, err := exec.Command("git", "remote", "get-url", "origin").Output()
	if err != nil {
		return "", fmt.Errorf("detect repository: %w", err)
	}
	return parseRemoteURL(strings.TrimSpace(string(out)))
}

// parseRemoteURL extracts owner/name from https and ssh git remotes.
func parseRemoteURL(url string) (string, error) {
	url = strings.TrimSuffix(url, ".git")
	if i := strings.Index(url, "github.com/"); i >= 0 {
		return url[i+len("github.com/"):], nil
	}
	if i := strings.Index(url, "github.com:"); i >= 0 {
		return url[i+len("github.com:"):], nil
	}
	return "", fmt.Errorf("unrecognized remote url %q", url)
}

// DefaultPath returns the conventional config location for a taskmaster
// directory.
func DefaultPath(taskmasterDir string) string {
	return filepath.Join(taskmasterDir, DefaultFileName)
}
