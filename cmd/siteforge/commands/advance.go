package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/siteforge/siteforge/pkg/pipeline"
	"github.com/siteforge/siteforge/pkg/provision"
)

func newAdvanceCommand() *cobra.Command {
	var (
		projectID string
		stage     string
		token     string
	)

	cmd := &cobra.Command{
		Use:   "advance",
		Short: "Run a single pipeline stage",
		Long: `Advance a project by exactly one pipeline stage.

Without --stage the next stage is computed from the project's persisted
state. With --stage the named stage is attempted and rejected unless the
project's state is that stage's declared predecessor.`,
		Example: `  # Run whatever stage comes next
  siteforge advance --id 1b4e28ba-2fa1-11d2-883f-0016d3cca427 --token $HOSTING_TOKEN

  # Attempt a specific stage
  siteforge advance --id 1b4e28ba-2fa1-11d2-883f-0016d3cca427 --stage create_webhook --token $HOSTING_TOKEN`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			project, err := rt.store.GetProject(ctx, projectID)
			if err != nil {
				return err
			}

			params := pipeline.Params{provision.ParamAccessToken: token}
			if stage != "" {
				err = rt.engine.ApplyStage(ctx, project, stage, params)
			} else {
				err = rt.engine.Advance(ctx, project, params)
			}
			if err != nil {
				return err
			}

			fmt.Printf("Project %s advanced to %s\n", project.ID, project.State())
			return nil
		},
	}

	cmd.Flags().StringVar(&projectID, "id", "", "project ID")
	cmd.Flags().StringVar(&stage, "stage", "", "stage name to attempt (default: next)")
	cmd.Flags().StringVar(&token, "token", "", "hosting API access token")
	cmd.MarkFlagRequired("id")

	return cmd
}
