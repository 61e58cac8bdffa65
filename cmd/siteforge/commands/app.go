package commands

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/siteforge/siteforge/pkg/lifecycle"
)

func newAppCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "app",
		Short: "Manage orchestrator application lifecycles",
		Long: `Manage the lifecycle of orchestrator applications.

Every application has a recorded state (unbuilt, present, missing) that
mirrors the orchestrator's truth as of the last successful observation.
The reconcile subcommand polls the orchestrator continuously and corrects
drift in the recorded state.`,
	}

	cmd.AddCommand(newAppCreateCommand())
	cmd.AddCommand(newAppBuildCommand())
	cmd.AddCommand(newAppInspectCommand())
	cmd.AddCommand(newAppRestartCommand())
	cmd.AddCommand(newAppDestroyCommand())
	cmd.AddCommand(newAppReconcileCommand())

	return cmd
}

func newAppCreateCommand() *cobra.Command {
	var (
		name      string
		slug      string
		cpus      float64
		mem       float64
		instances int
		command   string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a managed application",
		Long: `Create the record for a managed application in the unbuilt state.
Nothing is sent to the orchestrator until "app build" runs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			app := &lifecycle.ManagedApp{
				ID:        uuid.New().String(),
				Name:      name,
				Slug:      slug,
				CPUs:      cpus,
				Mem:       mem,
				Instances: instances,
				Cmd:       command,
			}
			if err := rt.store.CreateApp(ctx, app); err != nil {
				return err
			}

			fmt.Printf("App %s created (state: %s)\n", app.ID, app.State)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "human-readable application name")
	cmd.Flags().StringVar(&slug, "slug", "", "orchestrator application identifier")
	cmd.Flags().Float64Var(&cpus, "cpus", 0.1, "CPU share per instance")
	cmd.Flags().Float64Var(&mem, "mem", 128, "memory per instance in MiB")
	cmd.Flags().IntVar(&instances, "instances", 1, "number of instances")
	cmd.Flags().StringVar(&command, "cmd", "", "instance command")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("slug")
	cmd.MarkFlagRequired("cmd")

	return cmd
}

func newAppBuildCommand() *cobra.Command {
	var appID string

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build an application on the orchestrator",
		Long: `Ensure the application exists on the orchestrator. From the unbuilt
state it is created; otherwise the full specification is re-sent as an
idempotent update, so retrying a half-finished build is safe.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), appID, func(ctx context.Context, rt *runtime, app *lifecycle.ManagedApp) error {
				if err := rt.recon.Build(ctx, app); err != nil {
					return err
				}
				fmt.Printf("App %s built (state: %s)\n", app.ID, app.State)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&appID, "id", "", "application ID")
	cmd.MarkFlagRequired("id")
	return cmd
}

func newAppInspectCommand() *cobra.Command {
	var appID string

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Poll the orchestrator and correct drift",
		Long: `Ask the orchestrator whether the application is running and overwrite
the recorded state with the observation. A failed poll leaves the
recorded state untouched.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), appID, func(ctx context.Context, rt *runtime, app *lifecycle.ManagedApp) error {
				state, err := rt.recon.Inspect(ctx, app)
				if err != nil {
					return err
				}
				fmt.Printf("App %s observed %s\n", app.ID, state)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&appID, "id", "", "application ID")
	cmd.MarkFlagRequired("id")
	return cmd
}

func newAppRestartCommand() *cobra.Command {
	var appID string

	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Trigger a rolling restart",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), appID, func(ctx context.Context, rt *runtime, app *lifecycle.ManagedApp) error {
				if err := rt.recon.Restart(ctx, app); err != nil {
					return err
				}
				fmt.Printf("App %s restarted\n", app.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&appID, "id", "", "application ID")
	cmd.MarkFlagRequired("id")
	return cmd
}

func newAppDestroyCommand() *cobra.Command {
	var appID string

	cmd := &cobra.Command{
		Use:   "destroy",
		Short: "Remove an application from the orchestrator",
		Long: `Remove the application from the orchestrator and return its recorded
state to unbuilt. The application record itself is kept, so a later
build recreates it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), appID, func(ctx context.Context, rt *runtime, app *lifecycle.ManagedApp) error {
				if err := rt.recon.Destroy(ctx, app); err != nil {
					return err
				}
				fmt.Printf("App %s destroyed (state: %s)\n", app.ID, app.State)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&appID, "id", "", "application ID")
	cmd.MarkFlagRequired("id")
	return cmd
}

func newAppReconcileCommand() *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Continuously reconcile all applications",
		Long: `Poll the orchestrator for every managed application on a fixed
interval, correcting recorded-state drift as it is observed. Runs until
interrupted. The metrics endpoint is served while the loop runs.`,
		Example: `  # Reconcile every 30 seconds
  siteforge app reconcile --interval 30s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			if rt.cfg.Metrics.Enabled {
				mux := http.NewServeMux()
				mux.Handle("/metrics", rt.metrics.Handler())
				srv := &http.Server{Addr: rt.cfg.Metrics.Listen, Handler: mux}
				go func() {
					if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						log.Error().Err(err).Msg("Metrics server failed")
					}
				}()
				defer srv.Shutdown(context.Background())
			}

			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			log.Info().Dur("interval", interval).Msg("Reconcile loop started")
			for {
				reconcileAll(ctx, rt)
				select {
				case <-ctx.Done():
					log.Info().Msg("Reconcile loop stopped")
					return nil
				case <-ticker.C:
				}
			}
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 30*time.Second, "poll interval")
	return cmd
}

// reconcileAll inspects every managed application once and refreshes the
// per-state gauge. Poll failures are logged and skipped; the loop must keep
// going for the remaining applications.
func reconcileAll(ctx context.Context, rt *runtime) {
	apps, err := rt.store.ListApps(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list applications")
		return
	}

	counts := map[lifecycle.State]int{}
	for _, app := range apps {
		state, err := rt.recon.Inspect(ctx, app)
		if err != nil {
			state = app.State
		}
		counts[state]++
	}

	for _, state := range []lifecycle.State{lifecycle.StateUnbuilt, lifecycle.StatePresent, lifecycle.StateMissing} {
		rt.metrics.SetAppsByState(string(state), float64(counts[state]))
	}
}

// withApp wires the runtime, loads the application, and runs fn against it.
func withApp(ctx context.Context, appID string, fn func(context.Context, *runtime, *lifecycle.ManagedApp) error) error {
	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.close(ctx)

	app, err := rt.store.GetApp(ctx, appID)
	if err != nil {
		return err
	}
	return fn(ctx, rt, app)
}
