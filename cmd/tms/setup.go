package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/untoldecay/tmsync/internal/agents"
	"github.com/untoldecay/tmsync/internal/config"
	"github.com/untoldecay/tmsync/internal/engine"
	"github.com/untoldecay/tmsync/internal/fields"
	"github.com/untoldecay/tmsync/internal/github"
	"github.com/untoldecay/tmsync/internal/state"
)

// runtime bundles the pieces every board-facing command needs.
type runtime struct {
	cfg    *config.Config
	env    config.Env
	log    *zap.Logger
	client *github.Client
	dir    string // taskmaster directory
}

func tasksPath(dir string) string {
	return filepath.Join(dir, "tasks", "tasks.json")
}

// newRuntime loads configuration and builds the GitHub client.
func newRuntime(log *zap.Logger) (*runtime, error) {
	dir := flagTaskmasterDir
	cfgPath := flagConfigPath
	if cfgPath == "" {
		cfgPath = config.DefaultPath(dir)
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	env := config.LoadEnv()

	var opts []github.Option
	if env.Concurrency > 0 {
		opts = append(opts, github.WithConcurrency(int64(env.Concurrency)))
	}
	client := github.NewClient(github.NewCLITokenProvider(), log.Named("github"), opts...)

	return &runtime{cfg: cfg, env: env, log: log, client: client, dir: dir}, nil
}

// owner returns the board owner login: environment beats config.
func (rt *runtime) owner() (string, error) {
	if rt.env.Organization != "" {
		return rt.env.Organization, nil
	}
	if rt.cfg.Organization != "" {
		return rt.cfg.Organization, nil
	}
	return "", fmt.Errorf("%w: no organization configured (set organization in config or TMS_ORGANIZATION)", config.ErrConfig)
}

// parseBoardRef accepts "123" or "owner/123". An empty ref falls back to the
// tag's configured mapping.
func parseBoardRef(ref string) (owner string, number int, err error) {
	if i := strings.LastIndex(ref, "/"); i >= 0 {
		owner, ref = ref[:i], ref[i+1:]
	}
	number, err = strconv.Atoi(strings.TrimPrefix(ref, "#"))
	if err != nil || number <= 0 {
		return "", 0, fmt.Errorf("%w: board reference %q is not a project number", config.ErrConfig, ref)
	}
	return owner, number, nil
}

// resolveBoard resolves the target board for a tag, bootstrapping it when
// allowed. A freshly created board is written back to the config mapping.
func (rt *runtime) resolveBoard(ctx context.Context, tag, boardRef string) (*github.Project, error) {
	owner, err := rt.owner()
	if err != nil {
		return nil, err
	}
	number := 0
	if boardRef != "" {
		refOwner, n, err := parseBoardRef(boardRef)
		if err != nil {
			return nil, err
		}
		if refOwner != "" {
			owner = refOwner
		}
		number = n
	} else {
		pm, err := rt.cfg.Mapping(tag)
		if err != nil {
			return nil, err
		}
		number = pm.ProjectNumber
	}

	autoCreate := rt.env.AutoCreateProject
	project, created, err := engine.EnsureProject(ctx, rt.client, owner, number, "Taskmaster: "+tag, autoCreate, rt.log)
	if err != nil {
		return nil, err
	}
	if created {
		pm := &config.ProjectMapping{ProjectNumber: project.Number, ProjectID: project.ID}
		if old, err := rt.cfg.Mapping(tag); err == nil {
			pm.SubtaskMode = old.SubtaskMode
			pm.FieldMappings = old.FieldMappings
		}
		rt.cfg.SetMapping(tag, pm)
		if err := rt.cfg.Save(); err != nil {
			rt.log.Warn("could not record new project in config", zap.Error(err))
		}
		rt.log.Info("created project board",
			zap.Int("number", project.Number), zap.String("url", project.URL))
	}
	return project, nil
}

// agentConfig builds the agent rule set: the agent_mapping block from the
// sync config, overlaid with the standalone <taskmaster-dir>/agents.yaml
// when that file exists.
func (rt *runtime) agentConfig() (agents.Config, error) {
	var cfg agents.Config
	if rt.cfg.AgentMapping != nil {
		cfg = *rt.cfg.AgentMapping
	}
	path := filepath.Join(rt.dir, "agents.yaml")
	if _, err := os.Stat(path); err != nil {
		return cfg, nil
	}
	fileCfg, err := agents.LoadFile(path)
	if err != nil {
		return agents.Config{}, fmt.Errorf("%w: %v", config.ErrConfig, err)
	}
	return agents.Merge(cfg, fileCfg), nil
}

// buildEngine wires the catalog, state store, and agent resolver for a tag.
func (rt *runtime) buildEngine(ctx context.Context, tag string, project *github.Project, itemKind github.ContentKind) (*engine.Engine, *state.Store, error) {
	store := state.NewStore(state.Path(rt.dir, tag), tag)
	if err := store.Load(); err != nil {
		return nil, nil, err
	}

	agentCfg, err := rt.agentConfig()
	if err != nil {
		return nil, nil, err
	}
	resolver := agents.NewResolver(agentCfg)

	catalog := fields.NewCatalog(rt.client, project.ID, rt.log.Named("fields"))

	repositoryID := ""
	if itemKind == github.ContentIssue {
		repo := rt.env.Repository
		if repo == "" {
			detected, err := config.DetectRepository()
			if err != nil {
				return nil, nil, fmt.Errorf("%w: issue-backed items need a repository: %v", config.ErrConfig, err)
			}
			repo = detected
		}
		repoOwner, repoName, ok := strings.Cut(repo, "/")
		if !ok {
			return nil, nil, fmt.Errorf("%w: repository %q is not owner/name", config.ErrConfig, repo)
		}
		id, err := rt.client.GetRepositoryID(ctx, repoOwner, repoName)
		if err != nil {
			return nil, nil, err
		}
		repositoryID = id
	}

	eng := engine.New(rt.client, catalog, store, resolver, project.ID, repositoryID, rt.log.Named("engine"))
	return eng, store, nil
}
