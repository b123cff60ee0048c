package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/untoldecay/tmsync/internal/engine"
	"github.com/untoldecay/tmsync/internal/logging"
	"github.com/untoldecay/tmsync/internal/ui"
)

var duplicatesDelete bool

var cleanDuplicatesCmd = &cobra.Command{
	Use:   "clean-duplicates <board-ref>",
	Short: "Report or remove board items sharing a TM_ID",
	Long: `Find board items carrying the same TM_ID value.

Duplicates appear when a sync is interrupted between creating an item
and recording it, then re-run. The earliest-created item of each group
is kept; the rest are reported, or deleted with --delete.`,
	Args: cobra.ExactArgs(1),
	RunE: runCleanDuplicates,
}

func init() {
	cleanDuplicatesCmd.Flags().BoolVar(&duplicatesDelete, "delete", false, "delete the duplicates instead of only reporting them")
	rootCmd.AddCommand(cleanDuplicatesCmd)
}

func runCleanDuplicates(cmd *cobra.Command, args []string) error {
	log := logging.New(flagVerbose)
	defer log.Sync()

	rt, err := newRuntime(log)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	owner, err := rt.owner()
	if err != nil {
		return err
	}
	refOwner, number, err := parseBoardRef(args[0])
	if err != nil {
		return err
	}
	if refOwner != "" {
		owner = refOwner
	}
	project, err := rt.client.GetProject(ctx, owner, number)
	if err != nil {
		return err
	}

	groups, err := engine.ScanDuplicates(ctx, rt.client, project.ID)
	if err != nil {
		return err
	}
	count := 0
	for _, g := range groups {
		count += len(g.Items) - 1
	}
	if duplicatesDelete && count > 0 {
		if _, err := engine.CleanDuplicates(ctx, rt.client, project.ID, true, log); err != nil {
			return err
		}
	}
	fmt.Print(ui.RenderDuplicates(groups, count, duplicatesDelete))
	return nil
}
