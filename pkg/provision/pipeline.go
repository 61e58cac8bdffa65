package provision

import "github.com/siteforge/siteforge/pkg/pipeline"

// Pipeline states, one per completed stage. StateInitial precedes the first
// stage and StateDone is terminal.
const (
	StateInitial         pipeline.State = "initial"
	StateRepoCreated     pipeline.State = "repo_created"
	StateRepoCloned      pipeline.State = "repo_cloned"
	StateRemoteCreated   pipeline.State = "remote_created"
	StateRemoteMerged    pipeline.State = "remote_merged"
	StateRepoPushed      pipeline.State = "repo_pushed"
	StateWebhookCreated  pipeline.State = "webhook_created"
	StateSettingsCreated pipeline.State = "settings_created"
	StateDBCreated       pipeline.State = "db_created"
	StateDBInitialized   pipeline.State = "db_initialized"
	StateWebReloaded     pipeline.State = "web_reloaded"
	StateAppCreated      pipeline.State = "app_created"
	StateDone            pipeline.State = "done"
)

// Stage names.
const (
	StageCreateRepo     = "create_repo"
	StageCloneRepo      = "clone_repo"
	StageCreateRemote   = "create_remote"
	StageMergeRemote    = "merge_remote"
	StagePushRepo       = "push_repo"
	StageCreateWebhook  = "create_webhook"
	StageCreateSettings = "create_settings"
	StageCreateDB       = "create_db"
	StageInitDB         = "init_db"
	StageReloadWeb      = "reload_web"
	StageCreateApp      = "create_app"
	StageFinish         = "finish"
)

// NewPipeline builds the project provisioning pipeline definition over the
// given capability steps. The order is a strict dependency chain: a
// repository cannot be pushed before it is cloned, a webhook cannot be
// registered before the repository exists on the remote host, and so on.
func NewPipeline(steps *Steps) (*pipeline.Definition[*Project], error) {
	return pipeline.NewDefinition(StateInitial, StateDone, []pipeline.Stage[*Project]{
		{
			Name:     StageCreateRepo,
			From:     StateInitial,
			To:       StateRepoCreated,
			Requires: []string{ParamAccessToken},
			Step:     pipeline.StepFunc[*Project](steps.CreateRepo),
		},
		{
			Name: StageCloneRepo,
			From: StateRepoCreated,
			To:   StateRepoCloned,
			Step: pipeline.StepFunc[*Project](steps.CloneRepo),
		},
		{
			Name: StageCreateRemote,
			From: StateRepoCloned,
			To:   StateRemoteCreated,
			Step: pipeline.StepFunc[*Project](steps.CreateRemote),
		},
		{
			Name: StageMergeRemote,
			From: StateRemoteCreated,
			To:   StateRemoteMerged,
			Step: pipeline.StepFunc[*Project](steps.MergeRemote),
		},
		{
			Name: StagePushRepo,
			From: StateRemoteMerged,
			To:   StateRepoPushed,
			Step: pipeline.StepFunc[*Project](steps.PushRepo),
		},
		{
			Name:     StageCreateWebhook,
			From:     StateRepoPushed,
			To:       StateWebhookCreated,
			Requires: []string{ParamAccessToken},
			Step:     pipeline.StepFunc[*Project](steps.CreateWebhook),
		},
		{
			Name: StageCreateSettings,
			From: StateWebhookCreated,
			To:   StateSettingsCreated,
			Step: pipeline.StepFunc[*Project](steps.CreateSettings),
		},
		{
			Name: StageCreateDB,
			From: StateSettingsCreated,
			To:   StateDBCreated,
			Step: pipeline.StepFunc[*Project](steps.CreateDB),
		},
		{
			Name: StageInitDB,
			From: StateDBCreated,
			To:   StateDBInitialized,
			Step: pipeline.StepFunc[*Project](steps.InitDB),
		},
		{
			Name: StageReloadWeb,
			From: StateDBInitialized,
			To:   StateWebReloaded,
			Step: pipeline.StepFunc[*Project](steps.ReloadWeb),
		},
		{
			Name: StageCreateApp,
			From: StateWebReloaded,
			To:   StateAppCreated,
			Step: pipeline.StepFunc[*Project](steps.CreateApp),
		},
		{
			Name: StageFinish,
			From: StateAppCreated,
			To:   StateDone,
			Step: pipeline.StepFunc[*Project](steps.Finish),
		},
	})
}
