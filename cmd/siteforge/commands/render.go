package commands

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newRenderCommand() *cobra.Command {
	var (
		projectID string
		watch     bool
	)

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Re-render a project's settings artifact",
		Long: `Render the settings artifact for a project outside pipeline order.

Use this after editing advanced settings on a project that is already
provisioned: the artifact is regenerated from the current attributes
without touching the pipeline state. With --watch the command keeps
running and re-renders whenever a template file changes.`,
		Example: `  # Regenerate once
  siteforge render --id 1b4e28ba-2fa1-11d2-883f-0016d3cca427

  # Keep regenerating on template edits
  siteforge render --id 1b4e28ba-2fa1-11d2-883f-0016d3cca427 --watch`,
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

			if err := rt.steps.RenderSettings(project); err != nil {
				return err
			}
			fmt.Printf("Settings rendered: %s\n", rt.renderer.OutputPath(project.Slug()+".ini"))

			if !watch {
				return nil
			}

			if err := rt.renderer.Watch(ctx); err != nil {
				return err
			}
			log.Info().Msg("Watching templates; press Ctrl-C to stop")

			// The watcher reloads the parsed set; re-render on a short cadence
			// so edits reach the artifact without manual reruns.
			ticker := time.NewTicker(2 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					if err := rt.steps.RenderSettings(project); err != nil {
						log.Warn().Err(err).Msg("Re-render failed")
					}
				}
			}
		},
	}

	cmd.Flags().StringVar(&projectID, "id", "", "project ID")
	cmd.Flags().BoolVar(&watch, "watch", false, "keep running and re-render on template changes")
	cmd.MarkFlagRequired("id")

	return cmd
}
