package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/untoldecay/tmsync/internal/logging"
	"github.com/untoldecay/tmsync/internal/state"
	"github.com/untoldecay/tmsync/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status <tag>",
	Short: "Show sync tracking for a tag",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	log := logging.New(flagVerbose)
	defer log.Sync()

	rt, err := newRuntime(log)
	if err != nil {
		return err
	}
	tag := args[0]

	pm, err := rt.cfg.Mapping(tag)
	if err != nil {
		return err
	}
	store := state.NewStore(state.Path(rt.dir, tag), tag)
	if err := store.Load(); err != nil {
		return err
	}
	fmt.Print(ui.RenderStatus(tag, store.Len(), pm.ProjectNumber, pm.LastSync))
	return nil
}
