package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/colonyops/mend/internal/core/session"
	"github.com/colonyops/mend/internal/merge"
)

// repoFor returns the worktree root containing dir, or the current
// directory when dir is empty.
func repoFor(ctx context.Context, app *merge.App, dir string) (string, error) {
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("determine working directory: %w", err)
		}
		dir = wd
	}

	root, err := app.Git.Toplevel(ctx, dir)
	if err != nil {
		return "", fmt.Errorf("find repository: %w", err)
	}
	return root, nil
}

// relPath makes path relative to repo. Relative paths are resolved against
// the working directory first.
func relPath(repo, path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	// Toplevel resolves symlinks; do the same so Rel agrees.
	if resolved, err := filepath.EvalSymlinks(filepath.Dir(abs)); err == nil {
		abs = filepath.Join(resolved, filepath.Base(abs))
	}

	rel, err := filepath.Rel(repo, abs)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside the repository %s", path, repo)
	}
	return filepath.ToSlash(rel), nil
}

// resolveSession accepts a session ID or the path of a file with an open
// session.
func resolveSession(ctx context.Context, app *merge.App, ref string) (*session.Session, error) {
	sess, err := app.Sessions.Lookup(ctx, ref)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, session.ErrNotFound) {
		return nil, err
	}

	repo, repoErr := repoFor(ctx, app, "")
	if repoErr != nil {
		return nil, err
	}
	rel, relErr := relPath(repo, ref)
	if relErr != nil {
		return nil, err
	}

	sess, findErr := app.Sessions.Find(ctx, repo, rel)
	if findErr != nil {
		return nil, fmt.Errorf("no session for %q: %w", ref, findErr)
	}
	return sess, nil
}
