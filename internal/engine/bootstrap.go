package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/untoldecay/tmsync/internal/github"
)

// BootstrapClient is the slice of the GitHub client board bootstrapping
// needs.
type BootstrapClient interface {
	GetProject(ctx context.Context, owner string, number int) (*github.Project, error)
	GetOwnerID(ctx context.Context, login string) (string, error)
	CreateProject(ctx context.Context, ownerID, title string) (*github.Project, error)
}

// EnsureProject resolves the configured board, creating it when absent and
// autoCreate is on. The second return reports whether a board was created;
// callers persist the new project number back to the config when it was.
// Re-running is idempotent: an existing board is returned as-is.
func EnsureProject(ctx context.Context, client BootstrapClient, owner string, number int, title string, autoCreate bool, log *zap.Logger) (*github.Project, bool, error) {
	project, err := client.GetProject(ctx, owner, number)
	if err == nil {
		return project, false, nil
	}
	if !errors.Is(err, github.ErrNotFound) {
		return nil, false, err
	}
	if !autoCreate {
		return nil, false, fmt.Errorf("board %s/#%d: %w (auto-create is off)", owner, number, github.ErrNotFound)
	}

	ownerID, err := client.GetOwnerID(ctx, owner)
	if err != nil {
		return nil, false, fmt.Errorf("resolve owner %s: %w", owner, err)
	}
	if title == "" {
		title = "Taskmaster"
	}
	log.Info("creating project board", zap.String("owner", owner), zap.String("title", title))
	project, err = client.CreateProject(ctx, ownerID, title)
	if err != nil {
		return nil, false, fmt.Errorf("create project: %w", err)
	}
	return project, true, nil
}
