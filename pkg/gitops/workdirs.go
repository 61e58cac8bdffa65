// Package gitops manages the local git working copies the provisioning
// pipeline operates on. Each project owns one working copy keyed by its
// slug, so independent projects never contend on the filesystem.
//
// Operations are written to be safely re-invoked: a clone that already
// happened and a remote that already exists are not failures, because the
// engine may retry a stage whose success was never recorded.
package gitops

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	git "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"

	"github.com/siteforge/siteforge/pkg/pipeline"
	"github.com/siteforge/siteforge/pkg/telemetry"
)

// UpstreamRemote is the remote name for the base content repository.
const UpstreamRemote = "upstream"

// OriginRemote is the remote name for the hosted project repository.
const OriginRemote = "origin"

// Workdirs manages working copies under a single root directory.
type Workdirs struct {
	root string
	log  *telemetry.Logger
}

// New creates a Workdirs rooted at root.
func New(root string, log *telemetry.Logger) *Workdirs {
	return &Workdirs{
		root: root,
		log:  log.NewComponentLogger("gitops"),
	}
}

// Path returns the working copy directory for the given slug.
func (w *Workdirs) Path(slug string) string {
	return filepath.Join(w.root, slug)
}

// Clone clones url into the slug's working copy. A working copy that
// already exists is left untouched.
func (w *Workdirs) Clone(ctx context.Context, slug, url string) error {
	path := w.Path(slug)

	_, err := git.PlainCloneContext(ctx, path, false, &git.CloneOptions{URL: url})
	if errors.Is(err, git.ErrRepositoryAlreadyExists) {
		w.log.WithField("path", path).Debug("working copy already cloned")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to clone %s: %w", url, err)
	}

	w.log.WithField("path", path).Info("repository cloned")
	return nil
}

// AddUpstream registers url as the upstream remote of the slug's working
// copy. An upstream remote that already exists is left untouched.
func (w *Workdirs) AddUpstream(slug, url string) error {
	repo, err := git.PlainOpen(w.Path(slug))
	if err != nil {
		return fmt.Errorf("failed to open working copy: %w", err)
	}

	_, err = repo.CreateRemote(&gitconfig.RemoteConfig{
		Name: UpstreamRemote,
		URLs: []string{url},
	})
	if errors.Is(err, git.ErrRemoteExists) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to create upstream remote: %w", err)
	}
	return nil
}

// MergeUpstream pulls the upstream remote's history into the working copy.
// Only fast-forward merges are performed; a divergent history surfaces as a
// merge conflict and is never auto-resolved.
func (w *Workdirs) MergeUpstream(ctx context.Context, slug string) error {
	repo, err := git.PlainOpen(w.Path(slug))
	if err != nil {
		return fmt.Errorf("failed to open working copy: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to open worktree: %w", err)
	}

	err = worktree.PullContext(ctx, &git.PullOptions{RemoteName: UpstreamRemote})
	switch {
	case err == nil, errors.Is(err, git.NoErrAlreadyUpToDate):
		w.log.WithField("slug", slug).Info("upstream merged")
		return nil
	case errors.Is(err, git.ErrNonFastForwardUpdate):
		return pipeline.NewMergeConflict("upstream history has diverged from the working copy", err)
	default:
		return fmt.Errorf("failed to pull upstream: %w", err)
	}
}

// Push pushes the working copy's history to the origin remote.
func (w *Workdirs) Push(ctx context.Context, slug string) error {
	repo, err := git.PlainOpen(w.Path(slug))
	if err != nil {
		return fmt.Errorf("failed to open working copy: %w", err)
	}

	err = repo.PushContext(ctx, &git.PushOptions{RemoteName: OriginRemote})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("failed to push to origin: %w", err)
	}

	w.log.WithField("slug", slug).Info("repository pushed")
	return nil
}
