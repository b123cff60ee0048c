package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/untoldecay/tmsync/internal/agents"
	"github.com/untoldecay/tmsync/internal/fields"
	"github.com/untoldecay/tmsync/internal/logging"
)

var createProjectOrg string

var createProjectCmd = &cobra.Command{
	Use:   "create-project <title>",
	Short: "Create a new project board with the required fields",
	Long: `Create a project board and provision the fields the sync needs:
TM_ID, Dependencies, Test Strategy, Priority, Status options (including
"QA Review"), and Agent.

Safe to re-run: existing boards and fields are left as they are.`,
	Args: cobra.ExactArgs(1),
	RunE: runCreateProject,
}

var setupProjectCmd = &cobra.Command{
	Use:   "setup-project <board-ref>",
	Short: "Ensure an existing board has the required fields and options",
	Args:  cobra.ExactArgs(1),
	RunE:  runSetupProject,
}

func init() {
	createProjectCmd.Flags().StringVar(&createProjectOrg, "org", "", "owner login (default: configured organization)")
	rootCmd.AddCommand(createProjectCmd)
	rootCmd.AddCommand(setupProjectCmd)
}

func runCreateProject(cmd *cobra.Command, args []string) error {
	log := logging.New(flagVerbose)
	defer log.Sync()

	rt, err := newRuntime(log)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	owner := createProjectOrg
	if owner == "" {
		if owner, err = rt.owner(); err != nil {
			return err
		}
	}

	ownerID, err := rt.client.GetOwnerID(ctx, owner)
	if err != nil {
		return err
	}
	project, err := rt.client.CreateProject(ctx, ownerID, args[0])
	if err != nil {
		return err
	}
	if err := provisionFields(cmd, rt, project.ID); err != nil {
		return err
	}

	fmt.Printf("Created project #%d: %s\n", project.Number, project.URL)
	return nil
}

func runSetupProject(cmd *cobra.Command, args []string) error {
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
	if err := provisionFields(cmd, rt, project.ID); err != nil {
		return err
	}

	fmt.Printf("Project #%d is ready: required fields and options exist.\n", project.Number)
	return nil
}

func provisionFields(cmd *cobra.Command, rt *runtime, projectID string) error {
	agentCfg, err := rt.agentConfig()
	if err != nil {
		return err
	}
	resolver := agents.NewResolver(agentCfg)
	catalog := fields.NewCatalog(rt.client, projectID, rt.log.Named("fields"))
	return catalog.Resolve(cmd.Context(), resolver.OptionNames())
}
