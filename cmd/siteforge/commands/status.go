package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newStatusCommand() *cobra.Command {
	var (
		projectID string
		history   bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show project provisioning status",
		Long: `Show the persisted pipeline state of one project, or of every
project when no ID is given. With --history the transition audit log is
included.`,
		Example: `  # List all projects and their states
  siteforge status

  # Show one project with its transition history
  siteforge status --id 1b4e28ba-2fa1-11d2-883f-0016d3cca427 --history`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			if projectID == "" {
				projects, err := rt.store.ListProjects(ctx)
				if err != nil {
					return err
				}
				if jsonOutput {
					return json.NewEncoder(os.Stdout).Encode(projects)
				}
				for _, p := range projects {
					fmt.Printf("%s  %-20s %s\n", p.ID, p.Slug(), p.State())
				}
				return nil
			}

			project, err := rt.store.GetProject(ctx, projectID)
			if err != nil {
				return err
			}

			if jsonOutput {
				return json.NewEncoder(os.Stdout).Encode(project)
			}

			fmt.Printf("Project:    %s (%s)\n", project.Name, project.ID)
			fmt.Printf("Slug:       %s\n", project.Slug())
			fmt.Printf("Repository: %s\n", project.RepoURL)
			fmt.Printf("State:      %s\n", project.State())

			if history {
				changes, err := rt.store.ProjectStateChanges(ctx, projectID)
				if err != nil {
					return err
				}
				fmt.Println("History:")
				for _, c := range changes {
					fmt.Printf("  %s  %s -> %s\n",
						c.ChangedAt.Format("2006-01-02 15:04:05"), c.FromState, c.ToState)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&projectID, "id", "", "project ID (default: list all)")
	cmd.Flags().BoolVar(&history, "history", false, "include the transition audit log")

	return cmd
}
