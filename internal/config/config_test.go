package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleConfig = `{
	"version": "1.2",
	"organization": "acme",
	"project_mappings": {
		"master": {
			"project_number": 12,
			"project_id": "PVT_12",
			"subtask_mode": "nested",
			"last_sync": "2026-08-01T10:00:00Z",
			"custom_tool_setting": {"keep": "me"}
		}
	},
	"agent_mapping": {
		"agents": {"claude": {"option": "Claude"}},
		"default": "claude"
	},
	"unknown_top_level": [1, 2, 3]
}`

func TestParseSample(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Organization != "acme" {
		t.Errorf("organization = %q", cfg.Organization)
	}
	pm, err := cfg.Mapping("master")
	if err != nil {
		t.Fatal(err)
	}
	if pm.ProjectNumber != 12 || pm.ProjectID != "PVT_12" || pm.SubtaskMode != "nested" {
		t.Errorf("mapping = %+v", pm)
	}
	if cfg.AgentMapping == nil || cfg.AgentMapping.Default != "claude" {
		t.Errorf("agent mapping = %+v", cfg.AgentMapping)
	}
}

func TestParseRejectsVersions(t *testing.T) {
	cases := []string{
		`{"project_mappings": {}}`,                    // missing
		`{"version": 2, "project_mappings": {}}`,      // not a string
		`{"version": "2.0", "project_mappings": {}}`,  // unsupported major
	}
	for _, c := range cases {
		if _, err := Parse([]byte(c)); err == nil {
			t.Errorf("Parse(%s) accepted", c)
		}
	}
	if _, err := Parse([]byte(`{"version": "1.9"}`)); err != nil {
		t.Errorf("minor version bump rejected: %v", err)
	}
}

func TestParseRejectsBadMapping(t *testing.T) {
	content := `{"version": "1.0", "project_mappings": {"master": {"project_number": 0}}}`
	if _, err := Parse([]byte(content)); err == nil {
		t.Error("zero project_number accepted")
	}
}

func TestUnknownKeysSurviveRewrite(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	if err != nil {
		t.Fatal(err)
	}
	cfg.TouchLastSync("master", time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC))

	out, err := cfg.Encode()
	if err != nil {
		t.Fatal(err)
	}
	var round map[string]json.RawMessage
	if err := json.Unmarshal(out, &round); err != nil {
		t.Fatal(err)
	}
	if _, ok := round["unknown_top_level"]; !ok {
		t.Error("unknown top-level key dropped on rewrite")
	}

	var mappings map[string]map[string]json.RawMessage
	if err := json.Unmarshal(round["project_mappings"], &mappings); err != nil {
		t.Fatal(err)
	}
	if _, ok := mappings["master"]["custom_tool_setting"]; !ok {
		t.Error("unknown mapping key dropped on rewrite")
	}
	var lastSync string
	if err := json.Unmarshal(mappings["master"]["last_sync"], &lastSync); err != nil {
		t.Fatal(err)
	}
	if lastSync != "2026-08-26T12:00:00Z" {
		t.Errorf("last_sync = %q, want updated stamp", lastSync)
	}
}

func TestLoadAndSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	cfg.Organization = "other"
	if err := cfg.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	reloaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Organization != "other" {
		t.Errorf("organization after save = %q", reloaded.Organization)
	}
}

func TestLoadMissingFileIsConfigError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if !errors.Is(err, ErrConfig) {
		t.Fatalf("got %v, want ErrConfig", err)
	}
}

func TestMappingUnknownTag(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := cfg.Mapping("nope"); !errors.Is(err, ErrConfig) {
		t.Errorf("got %v, want ErrConfig", err)
	}
}

func TestLoadEnvOverlay(t *testing.T) {
	t.Setenv("TMS_ORGANIZATION", "env-org")
	t.Setenv("TMS_AUTO_CREATE_PROJECT", "true")
	t.Setenv("TMS_CONCURRENCY", "4")
	env := LoadEnv()
	if env.Organization != "env-org" {
		t.Errorf("Organization = %q", env.Organization)
	}
	if !env.AutoCreateProject {
		t.Error("AutoCreateProject not read")
	}
	if env.Concurrency != 4 {
		t.Errorf("Concurrency = %d", env.Concurrency)
	}
}

func TestParseRemoteURL(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"https://github.com/acme/widgets.git", "acme/widgets"},
		{"https://github.com/acme/widgets", "acme/widgets"},
		{"git@github.com:acme/widgets.git", "acme/widgets"},
	}
	for _, tc := range cases {
		got, err := parseRemoteURL(tc.in)
		if err != nil || got != tc.want {
			t.Errorf("parseRemoteURL(%q) = %q, %v; want %q", tc.in, got, err, tc.want)
		}
	}
	if _, err := parseRemoteURL("https://gitlab.com/acme/widgets"); err == nil {
		t.Error("non-github remote accepted")
	}
}

func TestDetectRepositoryEnv(t *testing.T) {
	t.Setenv("GITHUB_REPOSITORY", "acme/widgets")
	got, err := DetectRepository()
	if err != nil || got != "acme/widgets" {
		t.Errorf("DetectRepository = %q, %v", got, err)
	}
}
