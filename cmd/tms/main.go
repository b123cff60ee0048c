// Command tms synchronizes a Taskmaster tasks.json onto a GitHub Projects v2
// board, one way: the file is the source of truth, the board is the
// projection.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/untoldecay/tmsync/internal/config"
	"github.com/untoldecay/tmsync/internal/github"
)

// Exit codes. Partial success (some items failed) still exits 0; CI
// consumers inspect errors[] in the --json output.
const (
	exitOK        = 0
	exitFatal     = 1
	exitBootstrap = 2
	exitAuth      = 3
	exitConfig    = 4
)

var (
	flagVerbose       bool
	flagTaskmasterDir string
	flagConfigPath    string
)

var rootCmd = &cobra.Command{
	Use:   "tms",
	Short: "Sync Taskmaster tasks to a GitHub Projects v2 board",
	Long: `tms projects a local Taskmaster task file onto a GitHub project board.

The task file is the source of truth: items are created, updated, and
deleted on the board to match it, never the other way around. Completed
tasks land in "QA Review"; moving them to "Done" is left to a human.

Authentication uses the gh CLI (run 'gh auth login' first).`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&flagTaskmasterDir, "taskmaster-dir", ".taskmaster", "directory holding tasks.json and sync state")
	rootCmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "path to sync-config.json (default: <taskmaster-dir>/sync-config.json)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, github.ErrAuth):
		return exitAuth
	case errors.Is(err, github.ErrNotFound):
		return exitBootstrap
	case errors.Is(err, config.ErrConfig):
		return exitConfig
	default:
		return exitFatal
	}
}
