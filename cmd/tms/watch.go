package main

import (
	"context"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/untoldecay/tmsync/internal/logging"
	"github.com/untoldecay/tmsync/internal/tasks"
	"github.com/untoldecay/tmsync/internal/watch"
)

var (
	watchDebounceMS int
	watchLogFile    string
)

var watchCmd = &cobra.Command{
	Use:   "watch <tag> [board-ref]",
	Short: "Continuously sync a tag as its task file changes",
	Long: `Watch the task file and re-sync the board after every change.

Change bursts are debounced; a change arriving during a run queues one
follow-up run. A failing board does not stop the watcher, it retries
with growing backoff. Stop with Ctrl-C; the in-flight run finishes
first.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().IntVar(&watchDebounceMS, "debounce", 0, "quiet period in milliseconds before a run starts (default 400)")
	watchCmd.Flags().StringVar(&watchLogFile, "log-file", "", "also log to a rotating file (default: <taskmaster-dir>/tms-watch.log)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	tag := args[0]
	boardRef := ""
	if len(args) > 1 {
		boardRef = args[1]
	}

	logPath := watchLogFile
	if logPath == "" {
		logPath = filepath.Join(flagTaskmasterDir, "tms-watch.log")
	}
	log := logging.NewWatch(logPath, flagVerbose)
	defer log.Sync()

	rt, err := newRuntime(log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Resolve the board once; a watch session targets a fixed board.
	project, err := rt.resolveBoard(ctx, tag, boardRef)
	if err != nil {
		return err
	}

	debounce := time.Duration(watchDebounceMS) * time.Millisecond
	if watchDebounceMS <= 0 && rt.env.DebounceMS > 0 {
		debounce = time.Duration(rt.env.DebounceMS) * time.Millisecond
	}

	run := func(ctx context.Context) error {
		set, err := tasks.Load(tasksPath(rt.dir), tag)
		if err != nil {
			return err
		}
		opts, itemKind, err := syncOptions(rt, tag)
		if err != nil {
			return err
		}
		// The engine is rebuilt per run so the state store always reflects
		// the file on disk, even if another process committed in between.
		eng, _, err := rt.buildEngine(ctx, tag, project, itemKind)
		if err != nil {
			return err
		}
		stats, err := eng.Sync(ctx, set, opts)
		if err != nil {
			return err
		}
		log.Info("run complete",
			zap.Int("created", stats.Created),
			zap.Int("updated", stats.Updated),
			zap.Int("deleted", stats.Deleted),
			zap.Int("skipped", stats.Skipped),
			zap.Int("errors", len(stats.Errors)))
		return nil
	}

	w := watch.New(tasksPath(rt.dir), debounce, run, log.Named("watch"))
	return w.Watch(ctx)
}
