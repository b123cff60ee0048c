package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/untoldecay/tmsync/internal/logging"
	"github.com/untoldecay/tmsync/internal/tasks"
)

var listTagsCmd = &cobra.Command{
	Use:   "list-tags",
	Short: "List the tags present in the task file",
	Args:  cobra.NoArgs,
	RunE:  runListTags,
}

func init() {
	rootCmd.AddCommand(listTagsCmd)
}

func runListTags(cmd *cobra.Command, args []string) error {
	log := logging.New(flagVerbose)
	defer log.Sync()

	tags, err := tasks.Tags(tasksPath(flagTaskmasterDir))
	if err != nil {
		return err
	}
	for _, tag := range tags {
		fmt.Println(tag)
	}
	return nil
}
