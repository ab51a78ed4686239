package extractor

import (
	"context"
	"errors"

	gogit "github.com/go-git/go-git/v5"
)

// GitSyncer keeps working copies up to date with go-git.
type GitSyncer struct{}

// Clone creates a new working copy of url in dir.
func (g *GitSyncer) Clone(ctx context.Context, dir, url string) error {
	_, err := gogit.PlainCloneContext(ctx, dir, false, &gogit.CloneOptions{URL: url})
	return err
}

// Pull fetches origin and fast-forwards the checked out branch. A branch that
// cannot be fast-forwarded is reported as an error and left untouched.
func (g *GitSyncer) Pull(ctx context.Context, dir string) error {
	repo, err := gogit.PlainOpen(dir)
	if err != nil {
		return err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return err
	}
	err = wt.PullContext(ctx, &gogit.PullOptions{RemoteName: gogit.DefaultRemoteName})
	if err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return err
	}
	return nil
}
