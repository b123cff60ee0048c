package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/untoldecay/tmsync/internal/config"
	"github.com/untoldecay/tmsync/internal/engine"
	"github.com/untoldecay/tmsync/internal/github"
	"github.com/untoldecay/tmsync/internal/logging"
	"github.com/untoldecay/tmsync/internal/subtasks"
	"github.com/untoldecay/tmsync/internal/tasks"
	"github.com/untoldecay/tmsync/internal/ui"
)

var (
	syncDryRun     bool
	syncFull       bool
	syncJSON       bool
	syncAsItems    bool
	syncInBody     bool
	syncIssues     bool
	syncKeepOrphan bool
)

var syncCmd = &cobra.Command{
	Use:   "sync <tag> [board-ref]",
	Short: "Reconcile a tag's tasks onto its project board",
	Long: `Reconcile the tasks of one tag onto a GitHub project board.

board-ref is a project number ("12") or owner-qualified ("myorg/12");
when omitted, the tag's mapping from sync-config.json is used.

Tasks with local status "done" land in the "QA Review" column; an item
only reaches "Done" when a human moves it there.

Examples:
  tms sync master
  tms sync feature-x myorg/12 --dry-run --json
  tms sync master --subtasks-as-items`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runSync,
}

func init() {
	syncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "plan only, mutate nothing")
	syncCmd.Flags().BoolVar(&syncFull, "full-sync", false, "ignore cached fingerprints, push every item")
	syncCmd.Flags().BoolVar(&syncJSON, "json", false, "write statistics to stdout as JSON")
	syncCmd.Flags().BoolVar(&syncAsItems, "subtasks-as-items", false, "create one board item per subtask")
	syncCmd.Flags().BoolVar(&syncInBody, "subtasks-in-body", false, "render subtasks as a checklist in the parent body")
	syncCmd.Flags().BoolVar(&syncIssues, "issues", false, "back new items with repository issues instead of drafts")
	syncCmd.Flags().BoolVar(&syncKeepOrphan, "keep-orphans", false, "leave board items whose task was removed")
	syncCmd.MarkFlagsMutuallyExclusive("subtasks-as-items", "subtasks-in-body")
	rootCmd.AddCommand(syncCmd)
}

// jsonReport is the --json output shape.
type jsonReport struct {
	Stats         engine.Statistics `json:"stats"`
	ProjectNumber int               `json:"project_number"`
	ProjectID     string            `json:"project_id"`
	Tag           string            `json:"tag"`
	DurationMS    int64             `json:"duration_ms"`
}

func runSync(cmd *cobra.Command, args []string) error {
	log := logging.New(flagVerbose)
	defer log.Sync()

	start := time.Now()
	tag := args[0]
	boardRef := ""
	if len(args) > 1 {
		boardRef = args[1]
	}

	rt, err := newRuntime(log)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	set, err := tasks.Load(tasksPath(rt.dir), tag)
	if err != nil {
		return err
	}
	for _, w := range set.Warnings {
		log.Warn(w)
	}

	project, err := rt.resolveBoard(ctx, tag, boardRef)
	if err != nil {
		return err
	}

	opts, itemKind, err := syncOptions(rt, tag)
	if err != nil {
		return err
	}

	eng, _, err := rt.buildEngine(ctx, tag, project, itemKind)
	if err != nil {
		return err
	}

	stats, err := eng.Sync(ctx, set, opts)
	elapsed := time.Since(start)
	if err != nil {
		// Fatal mid-run; still emit whatever was observed.
		emit(stats, tag, project, elapsed)
		return err
	}

	if !opts.DryRun {
		rt.cfg.TouchLastSync(tag, time.Now())
		if saveErr := rt.cfg.Save(); saveErr != nil {
			log.Warn("could not update last_sync", zap.Error(saveErr))
		}
	}

	emit(stats, tag, project, elapsed)
	if !syncJSON {
		fmt.Print(ui.RenderSummary(stats, tag, project, opts.DryRun, elapsed))
	}
	return nil
}

func syncOptions(rt *runtime, tag string) (engine.Options, github.ContentKind, error) {
	modeStr := ""
	if pm, err := rt.cfg.Mapping(tag); err == nil {
		modeStr = pm.SubtaskMode
	}
	if syncAsItems {
		modeStr = string(subtasks.ModeSeparate)
	}
	if syncInBody {
		modeStr = string(subtasks.ModeNested)
	}
	mode, err := subtasks.ParseMode(modeStr)
	if err != nil {
		return engine.Options{}, "", fmt.Errorf("%w: %v", config.ErrConfig, err)
	}

	itemKind := github.ContentDraft
	if syncIssues {
		itemKind = github.ContentIssue
	}

	return engine.Options{
		DryRun:        syncDryRun,
		FullSync:      syncFull,
		SubtaskMode:   mode,
		ItemKind:      itemKind,
		DeleteOrphans: !syncKeepOrphan,
		Workers:       rt.env.Concurrency,
	}, itemKind, nil
}

// emit writes the machine-readable record when --json is on.
func emit(stats engine.Statistics, tag string, project *github.Project, elapsed time.Duration) {
	if !syncJSON {
		return
	}
	enc := json.NewEncoder(os.Stdout)
	_ = enc.Encode(jsonReport{
		Stats:         stats,
		ProjectNumber: project.Number,
		ProjectID:     project.ID,
		Tag:           tag,
		DurationMS:    elapsed.Milliseconds(),
	})
}
