package merge

import (
	"context"

	"github.com/colonyops/mend/internal/core/git"
	"github.com/colonyops/mend/internal/core/mergeset"
	"github.com/colonyops/mend/internal/core/session"
)

// Repository is the version-control storage a merge reads from and writes to.
// RepositoryIDs are opaque to the merge package.
type Repository interface {
	ConflictedBlob(ctx context.Context, repoID, path string) (string, session.Fingerprint, error)
	CurrentFingerprint(ctx context.Context, repoID, path string) (session.Fingerprint, error)
	WriteBlob(ctx context.Context, repoID, path, text string) (string, error)
	StageBlob(ctx context.Context, repoID, path, blobID string) error
	CreateMergeCommit(ctx context.Context, repoID string, parents mergeset.Parents, staged []mergeset.File, message string) (string, error)
	ConflictedFiles(ctx context.Context, repoID string) ([]string, error)
	IndexBlob(ctx context.Context, repoID, path string) (string, error)
	// MergeParents returns git.ErrNoMerge when no merge is in progress.
	MergeParents(ctx context.Context, repoID string) (mergeset.Parents, error)
	MergeMessage(ctx context.Context, repoID string) (string, error)
}

var _ Repository = (git.Git)(nil)

// Authorizer answers permission checks.
type Authorizer interface {
	HasPermission(ctx context.Context, userID, permission string) (bool, error)
}
