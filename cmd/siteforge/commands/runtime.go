package commands

import (
	"context"
	"fmt"

	"github.com/siteforge/siteforge/pkg/config"
	"github.com/siteforge/siteforge/pkg/gitops"
	"github.com/siteforge/siteforge/pkg/hosting"
	"github.com/siteforge/siteforge/pkg/lifecycle"
	"github.com/siteforge/siteforge/pkg/orchestrator"
	"github.com/siteforge/siteforge/pkg/pipeline"
	"github.com/siteforge/siteforge/pkg/provision"
	"github.com/siteforge/siteforge/pkg/render"
	"github.com/siteforge/siteforge/pkg/runner"
	"github.com/siteforge/siteforge/pkg/stores"
	"github.com/siteforge/siteforge/pkg/telemetry"
)

// runtime holds the wired components a command needs. Construction order
// follows the dependency chain: telemetry, store, clients, steps, engine.
type runtime struct {
	cfg      *config.Config
	log      *telemetry.Logger
	metrics  *telemetry.Metrics
	tracer   *telemetry.Tracer
	events   *telemetry.EventPublisher
	store    *stores.SQLiteStore
	steps    *provision.Steps
	engine   *pipeline.Engine[*provision.Project]
	recon    *lifecycle.Reconciler
	renderer *render.Renderer
}

// newRuntime loads the configuration and wires every component.
func newRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logCfg := telemetry.LoggingConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: "stderr",
	}
	if verbose {
		logCfg.Level = "debug"
	}
	log, err := telemetry.NewLogger(logCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	metrics, err := telemetry.NewMetrics(telemetry.MetricsConfig{
		Enabled:   cfg.Metrics.Enabled,
		Namespace: "siteforge",
		Listen:    cfg.Metrics.Listen,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	tracer, err := telemetry.NewTracer(telemetry.TracingConfig{
		Enabled:      cfg.Tracing.Enabled,
		Exporter:     cfg.Tracing.Exporter,
		SamplingRate: 1.0,
	}, "siteforge")
	if err != nil {
		return nil, fmt.Errorf("failed to create tracer: %w", err)
	}

	events := telemetry.NewEventPublisher(telemetry.EventsConfig{
		Enabled:    true,
		BufferSize: 256,
	})

	store, err := stores.NewSQLiteStore(stores.Config{Path: cfg.Store.Path})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, err
	}

	hostingClient := hosting.NewClient(cfg.Hosting.APIBase, hosting.WithLogger(log))
	orchClient := orchestrator.NewClient(cfg.Orchestrator.APIBase,
		orchestrator.WithLogger(log),
		orchestrator.WithTracer(tracer),
	)
	workdirs := gitops.New(cfg.Paths.Repos, log)
	renderer, err := render.New(cfg.Paths.Templates, cfg.Paths.Settings, log)
	if err != nil {
		store.Close()
		return nil, err
	}
	procRunner := runner.New(log)

	steps := provision.NewSteps(hostingClient, workdirs, renderer, procRunner,
		orchClient, store, provision.Config{
			WebhookURL:    cfg.Hosting.WebhookURL,
			CMSPython:     cfg.CMS.Python,
			CMSManageDir:  cfg.CMS.ManageDir,
			ReloadProgram: cfg.CMS.ReloadProgram,
			ReloadArgs:    cfg.CMS.ReloadArgs,
			AppCPUs:       cfg.App.CPUs,
			AppMem:        cfg.App.Mem,
			AppInstances:  cfg.App.Instances,
			AppCmdFormat:  cfg.App.CmdFormat,
		}, log)

	def, err := provision.NewPipeline(steps)
	if err != nil {
		store.Close()
		return nil, err
	}

	engine := pipeline.NewEngine(def, store.ProjectStates(),
		pipeline.WithLogger[*provision.Project](log),
		pipeline.WithMetrics[*provision.Project](metrics),
		pipeline.WithTracer[*provision.Project](tracer),
		pipeline.WithNotifier[*provision.Project](func(t pipeline.Transition) {
			events.Publish(telemetry.Event{
				Type:     telemetry.EventTypeProjectStateChanged,
				EntityID: t.EntityID,
				Stage:    t.Stage,
				State:    string(t.To),
			})
		}),
	)

	recon := lifecycle.NewReconciler(store, orchClient,
		lifecycle.WithLogger(log),
		lifecycle.WithMetrics(metrics),
		lifecycle.WithNotifier(func(c lifecycle.Change) {
			events.Publish(telemetry.Event{
				Type:     telemetry.EventTypeAppLifecycleChanged,
				EntityID: c.AppID,
				State:    string(c.To),
			})
		}),
	)

	return &runtime{
		cfg:      cfg,
		log:      log,
		metrics:  metrics,
		tracer:   tracer,
		events:   events,
		store:    store,
		steps:    steps,
		engine:   engine,
		recon:    recon,
		renderer: renderer,
	}, nil
}

// close releases the runtime's resources in reverse construction order.
func (rt *runtime) close(ctx context.Context) {
	rt.events.Close()
	if err := rt.tracer.Shutdown(ctx); err != nil {
		rt.log.WithError(err).Warn("tracer shutdown failed")
	}
	if err := rt.store.Close(); err != nil {
		rt.log.WithError(err).Warn("store close failed")
	}
}
