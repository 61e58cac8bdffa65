package commands

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/siteforge/siteforge/pkg/pipeline"
	"github.com/siteforge/siteforge/pkg/provision"
)

func newProvisionCommand() *cobra.Command {
	var (
		name     string
		appType  string
		country  string
		baseRepo string
		token    string
		resumeID string
	)

	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Provision a site end to end",
		Long: `Run the full provisioning pipeline for a site.

This command:
  - Creates the project record (or resumes an existing one)
  - Creates the hosted repository and clones it
  - Merges the base content and pushes it back
  - Registers the push webhook
  - Renders the settings artifact
  - Provisions and initializes the database
  - Reloads the web serving layer
  - Registers the application with the orchestrator

A failed stage stops the run with state at the last completed stage;
re-running with the same project resumes from there.`,
		Example: `  # Provision a new site
  siteforge provision --name "FFL South Africa" --app-type ffl --country za \
    --base-repo https://git.example.com/base/ffl.git --token $HOSTING_TOKEN

  # Resume a previously failed run
  siteforge provision --id 1b4e28ba-2fa1-11d2-883f-0016d3cca427 --token $HOSTING_TOKEN`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			var project *provision.Project
			if resumeID != "" {
				project, err = rt.store.GetProject(ctx, resumeID)
				if err != nil {
					return err
				}
			} else {
				project = &provision.Project{
					ID:          uuid.New().String(),
					Name:        name,
					AppType:     appType,
					Country:     country,
					BaseRepoURL: baseRepo,
				}
				if err := rt.store.CreateProject(ctx, project); err != nil {
					return err
				}
				log.Info().Str("project_id", project.ID).Msg("Project created")
			}

			params := pipeline.Params{provision.ParamAccessToken: token}
			if err := rt.engine.RunToCompletion(ctx, project, params); err != nil {
				return err
			}

			fmt.Printf("Project %s provisioned (state: %s)\n", project.ID, project.State())
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "human-readable project name")
	cmd.Flags().StringVar(&appType, "app-type", "", "application type (e.g. ffl)")
	cmd.Flags().StringVar(&country, "country", "", "country code (e.g. za)")
	cmd.Flags().StringVar(&baseRepo, "base-repo", "", "base content repository URL")
	cmd.Flags().StringVar(&token, "token", "", "hosting API access token")
	cmd.Flags().StringVar(&resumeID, "id", "", "resume an existing project by ID")

	return cmd
}
