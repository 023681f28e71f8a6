// Package git provides the repository operations mend needs during a merge:
// reading conflicted files, writing and staging resolved blobs, and creating
// the merge commit. The repository ID is the worktree's top-level directory.
package git

import (
	"context"
	"errors"

	"github.com/colonyops/mend/internal/core/mergeset"
	"github.com/colonyops/mend/internal/core/session"
)

var (
	// ErrNoMerge is returned when the repository has no merge in progress.
	ErrNoMerge = errors.New("no merge in progress")
	// ErrUnsafePath is returned for paths that are absolute or escape the worktree.
	ErrUnsafePath = errors.New("path escapes the repository")
	// ErrIndexMismatch is returned when a staged blob is not what the index holds.
	ErrIndexMismatch = errors.New("index does not match staged blob")
)

// Git defines git operations needed by mend.
type Git interface {
	// Toplevel returns the worktree root containing dir.
	Toplevel(ctx context.Context, dir string) (string, error)
	// ConflictedBlob returns the working-tree content of path and its fingerprint.
	ConflictedBlob(ctx context.Context, repoID, path string) (string, session.Fingerprint, error)
	// CurrentFingerprint fingerprints path as it is now. A missing file has
	// an empty fingerprint.
	CurrentFingerprint(ctx context.Context, repoID, path string) (session.Fingerprint, error)
	// WriteBlob writes text to path and stores it in the object database.
	WriteBlob(ctx context.Context, repoID, path, text string) (string, error)
	// StageBlob records blobID as the resolved index entry for path.
	StageBlob(ctx context.Context, repoID, path, blobID string) error
	// ConflictedFiles lists paths with unmerged index entries.
	ConflictedFiles(ctx context.Context, repoID string) ([]string, error)
	// IndexBlob returns the stage-0 blob of path. It returns "" when the path
	// has no index entry, i.e. the conflict was resolved by deleting it.
	IndexBlob(ctx context.Context, repoID, path string) (string, error)
	// MergeParents returns HEAD and MERGE_HEAD. Returns ErrNoMerge when no
	// merge is in progress.
	MergeParents(ctx context.Context, repoID string) (mergeset.Parents, error)
	// MergeMessage returns the prepared merge message without comment lines.
	MergeMessage(ctx context.Context, repoID string) (string, error)
	// CreateMergeCommit commits the index with both parents and advances HEAD.
	CreateMergeCommit(ctx context.Context, repoID string, parents mergeset.Parents, staged []mergeset.File, message string) (string, error)
	// StagedStats summarizes the staged changes against HEAD.
	StagedStats(ctx context.Context, repoID string) ([]FileStat, error)
}
