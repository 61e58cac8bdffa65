package provision

import (
	"context"
	"fmt"

	"github.com/siteforge/siteforge/pkg/gitops"
	"github.com/siteforge/siteforge/pkg/hosting"
	"github.com/siteforge/siteforge/pkg/orchestrator"
	"github.com/siteforge/siteforge/pkg/pipeline"
	"github.com/siteforge/siteforge/pkg/render"
	"github.com/siteforge/siteforge/pkg/runner"
	"github.com/siteforge/siteforge/pkg/telemetry"
)

// ParamAccessToken is the caller-supplied hosting API credential. It is
// passed per invocation and never stored.
const ParamAccessToken = "access_token"

// SettingsTemplate is the template name for the frontend settings artifact.
const SettingsTemplate = "frontend.ini.tmpl"

// RepoRecorder persists the repository coordinates the create_repo step
// obtains from the hosting API, so a resumed pipeline can pick them up.
type RepoRecorder interface {
	RecordRepo(ctx context.Context, projectID, fullName, cloneURL string) error
}

// Config is the construction-time configuration for the capability steps.
// Everything external (URLs, directories, tool paths) is explicit here;
// steps read no ambient global state.
type Config struct {
	// WebhookURL is the push webhook target registered on the hosted repo.
	WebhookURL string

	// CMSPython is the interpreter used for CMS management commands.
	CMSPython string

	// CMSManageDir is the directory holding the CMS manage script.
	CMSManageDir string

	// ReloadProgram and ReloadArgs form the service-reload command.
	ReloadProgram string
	ReloadArgs    []string

	// AppCPUs, AppMem, AppInstances and AppCmdFormat describe the
	// orchestrator application registered for the project. AppCmdFormat is
	// expanded with the project slug.
	AppCPUs      float64
	AppMem       float64
	AppInstances int
	AppCmdFormat string
}

// Steps holds the capability step implementations for the project pipeline.
// Each step is a single unit of side-effecting work selected by the pipeline
// definition; none of them touches the persisted pipeline state.
type Steps struct {
	hosting  *hosting.Client
	workdirs *gitops.Workdirs
	renderer *render.Renderer
	runner   *runner.Runner
	orch     *orchestrator.Client
	recorder RepoRecorder
	cfg      Config
	log      *telemetry.Logger
}

// NewSteps wires the capability steps to their external collaborators.
func NewSteps(
	hostingClient *hosting.Client,
	workdirs *gitops.Workdirs,
	renderer *render.Renderer,
	procRunner *runner.Runner,
	orch *orchestrator.Client,
	recorder RepoRecorder,
	cfg Config,
	log *telemetry.Logger,
) *Steps {
	return &Steps{
		hosting:  hostingClient,
		workdirs: workdirs,
		renderer: renderer,
		runner:   procRunner,
		orch:     orch,
		recorder: recorder,
		cfg:      cfg,
		log:      log.NewComponentLogger("provision"),
	}
}

// CreateRepo creates the hosted repository and records its coordinates on
// the project. A retry after an earlier attempt that created the repository
// but never recorded success surfaces the hosting API's already-exists
// response as a remote API failure carrying its status and message; the
// caller resolves it, the stage does not guess.
func (s *Steps) CreateRepo(ctx context.Context, p *Project, params pipeline.Params) error {
	token, _ := params.Get(ParamAccessToken)

	repo, err := s.hosting.CreateRepo(ctx, token, p.Slug())
	if err != nil {
		return err
	}

	if err := s.recorder.RecordRepo(ctx, p.ID, repo.FullName, repo.CloneURL); err != nil {
		return fmt.Errorf("failed to record repository coordinates: %w", err)
	}
	p.RepoFullName = repo.FullName
	p.RepoURL = repo.CloneURL
	return nil
}

// CloneRepo clones the hosted repository into the project's working copy.
func (s *Steps) CloneRepo(ctx context.Context, p *Project, _ pipeline.Params) error {
	return s.workdirs.Clone(ctx, p.Slug(), p.RepoURL)
}

// CreateRemote registers the base content repository as the upstream remote.
func (s *Steps) CreateRemote(_ context.Context, p *Project, _ pipeline.Params) error {
	return s.workdirs.AddUpstream(p.Slug(), p.BaseRepoURL)
}

// MergeRemote merges the upstream content into the working copy.
func (s *Steps) MergeRemote(ctx context.Context, p *Project, _ pipeline.Params) error {
	return s.workdirs.MergeUpstream(ctx, p.Slug())
}

// PushRepo pushes the merged working copy back to the hosted repository.
func (s *Steps) PushRepo(ctx context.Context, p *Project, _ pipeline.Params) error {
	return s.workdirs.Push(ctx, p.Slug())
}

// CreateWebhook registers the push webhook on the hosted repository.
func (s *Steps) CreateWebhook(ctx context.Context, p *Project, params pipeline.Params) error {
	token, _ := params.Get(ParamAccessToken)
	return s.hosting.CreateWebhook(ctx, token, p.RepoFullName, s.cfg.WebhookURL)
}

// CreateSettings renders the frontend settings artifact for the project.
func (s *Steps) CreateSettings(_ context.Context, p *Project, _ pipeline.Params) error {
	return s.RenderSettings(p)
}

// RenderSettings renders the settings artifact outside pipeline order. This
// is the escape hatch for callers that edited advanced settings and need the
// artifact regenerated now: a direct capability step invocation, not a
// pipeline-order violation.
func (s *Steps) RenderSettings(p *Project) error {
	data := settingsData{
		Name:         p.Name,
		Slug:         p.Slug(),
		SettingsName: p.SettingsName(),
		AppType:      p.AppType,
		Country:      p.Country,
		RepoURL:      p.RepoURL,
	}
	return s.renderer.Render(SettingsTemplate, p.Slug()+".ini", data)
}

// settingsData is the template context for the settings artifact. Rendering
// is a pure function of these attributes.
type settingsData struct {
	Name         string
	Slug         string
	SettingsName string
	AppType      string
	Country      string
	RepoURL      string
}

// CreateDB provisions the project's CMS database via the management command.
func (s *Steps) CreateDB(ctx context.Context, p *Project, _ pipeline.Params) error {
	_, err := s.runner.Run(ctx, s.cfg.CMSManageDir, s.cmsEnv(p),
		s.cfg.CMSPython, "manage.py", "syncdb", "--migrate", "--noinput")
	return err
}

// InitDB imports the project's content into the freshly created database.
func (s *Steps) InitDB(ctx context.Context, p *Project, _ pipeline.Params) error {
	_, err := s.runner.Run(ctx, s.cfg.CMSManageDir, s.cmsEnv(p),
		s.cfg.CMSPython, "manage.py", "import_from_git", "--quiet")
	return err
}

func (s *Steps) cmsEnv(p *Project) map[string]string {
	return map[string]string{
		"DJANGO_SETTINGS_MODULE": "project." + p.SettingsName() + "_settings",
	}
}

// ReloadWeb reloads the web serving layer so it picks up the new site.
func (s *Steps) ReloadWeb(ctx context.Context, _ *Project, _ pipeline.Params) error {
	_, err := s.runner.Run(ctx, "", nil, s.cfg.ReloadProgram, s.cfg.ReloadArgs...)
	return err
}

// CreateApp registers the project's application with the orchestrator. On a
// non-2xx response the pipeline halts at the pre-registration state and the
// stage is safely retryable.
func (s *Steps) CreateApp(ctx context.Context, p *Project, _ pipeline.Params) error {
	return s.orch.CreateApp(ctx, s.AppSpec(p))
}

// AppSpec builds the orchestrator application specification for a project.
func (s *Steps) AppSpec(p *Project) orchestrator.AppSpec {
	return orchestrator.AppSpec{
		ID:        p.Slug(),
		CPUs:      s.cfg.AppCPUs,
		Mem:       s.cfg.AppMem,
		Instances: s.cfg.AppInstances,
		Cmd:       fmt.Sprintf(s.cfg.AppCmdFormat, p.Slug()),
	}
}

// Finish marks the pipeline complete. No side effects.
func (s *Steps) Finish(_ context.Context, _ *Project, _ pipeline.Params) error {
	return nil
}
