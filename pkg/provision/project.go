// Package provision implements the project provisioning pipeline: the
// ordered sequence of capability steps that takes a project from nothing to
// a running, orchestrator-registered site instance.
package provision

import (
	"strings"
	"time"

	"github.com/siteforge/siteforge/pkg/pipeline"
)

// Project is the entity driven through the provisioning pipeline. It is
// created once, before any stage runs, by an external caller; the pipeline
// engine owns its state field from then on.
type Project struct {
	// ID is the stable project identifier.
	ID string `json:"id"`

	// Name is the human-readable project name.
	Name string `json:"name"`

	// AppType is the application type code, e.g. "ffl".
	AppType string `json:"app_type"`

	// Country is the ISO country code the site serves, e.g. "ZA".
	Country string `json:"country"`

	// BaseRepoURL is the upstream content repository merged into the
	// project's own repository.
	BaseRepoURL string `json:"base_repo_url"`

	// RepoURL is the clone URL of the hosted project repository. Recorded
	// by the create_repo stage.
	RepoURL string `json:"repo_url,omitempty"`

	// RepoFullName is the hosting API name ("owner/repo") of the project
	// repository. Recorded by the create_repo stage.
	RepoFullName string `json:"repo_full_name,omitempty"`

	// CreatedAt is when the project was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the project was last updated.
	UpdatedAt time.Time `json:"updated_at"`

	state pipeline.State
}

// EntityID implements pipeline.Entity.
func (p *Project) EntityID() string { return p.ID }

// State implements pipeline.Entity.
func (p *Project) State() pipeline.State { return p.state }

// SetState implements pipeline.Entity.
func (p *Project) SetState(s pipeline.State) { p.state = s }

// Slug returns the identifier used for the working copy, the hosted
// repository name, and the orchestrator application, e.g. "ffl-za".
func (p *Project) Slug() string {
	return strings.ToLower(p.AppType + "-" + p.Country)
}

// SettingsName returns the slug in settings-module form, e.g. "ffl_za".
func (p *Project) SettingsName() string {
	return strings.ReplaceAll(p.Slug(), "-", "_")
}
