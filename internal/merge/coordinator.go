package merge

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/colonyops/mend/internal/core/audit"
	"github.com/colonyops/mend/internal/core/authz"
	"github.com/colonyops/mend/internal/core/config"
	"github.com/colonyops/mend/internal/core/conflict"
	"github.com/colonyops/mend/internal/core/eventbus"
	"github.com/colonyops/mend/internal/core/git"
	"github.com/colonyops/mend/internal/core/mergeset"
)

// CommitResult reports what a commit wrote.
type CommitResult struct {
	BlobID   string   `json:"blob_id"`
	CommitID string   `json:"commit_id,omitempty"` // empty while other files are pending
	Pending  []string `json:"pending,omitempty"`
}

// Coordinator writes resolved files to the repository and creates the merge
// commit once every conflicted file of the merge is staged.
type Coordinator struct {
	repo  Repository
	authz Authorizer
	sets  mergeset.Store
	cfg   *config.Config
	audit audit.Logger
	bus   *eventbus.EventBus
	log   zerolog.Logger
}

// NewCoordinator creates a commit coordinator. A nil audit logger discards
// entries and a nil bus publishes nothing.
func NewCoordinator(
	repo Repository,
	authorizer Authorizer,
	sets mergeset.Store,
	cfg *config.Config,
	auditLog audit.Logger,
	bus *eventbus.EventBus,
	log zerolog.Logger,
) *Coordinator {
	if auditLog == nil {
		auditLog = audit.Nop{}
	}
	return &Coordinator{
		repo:  repo,
		authz: authorizer,
		sets:  sets,
		cfg:   cfg,
		audit: auditLog,
		bus:   bus,
		log:   log.With().Str("cmp", "coordinator").Logger(),
	}
}

// Track records the conflicted files of the repository's in-progress merge.
// It returns mergeset.ErrNotFound when no merge is in progress.
func (c *Coordinator) Track(ctx context.Context, repoID string) (mergeset.MergeSet, error) {
	parents, err := c.repo.MergeParents(ctx, repoID)
	if errors.Is(err, git.ErrNoMerge) {
		return mergeset.MergeSet{}, mergeset.ErrNotFound
	}
	if err != nil {
		return mergeset.MergeSet{}, fmt.Errorf("merge parents: %w", err)
	}

	set, err := c.ensureSet(ctx, repoID, parents)
	if err != nil {
		return mergeset.MergeSet{}, err
	}

	files, err := c.repo.ConflictedFiles(ctx, repoID)
	if err != nil {
		return mergeset.MergeSet{}, fmt.Errorf("conflicted files: %w", err)
	}

	for _, path := range files {
		if _, ok := set.File(path); ok {
			continue
		}
		if err := c.sets.AddFile(ctx, set.ID, path); err != nil {
			return mergeset.MergeSet{}, fmt.Errorf("track %s: %w", path, err)
		}
	}

	set, err = c.sets.GetOpen(ctx, repoID)
	if err != nil {
		return mergeset.MergeSet{}, err
	}
	return c.reconcile(ctx, set)
}

// Status returns the open merge set of the repository.
func (c *Coordinator) Status(ctx context.Context, repoID string) (mergeset.MergeSet, error) {
	return c.sets.GetOpen(ctx, repoID)
}

// Commit writes file to path and stages it. When this was the last pending
// file of the merge, the merge commit is created as well. Without a merge in
// progress (zero parents) the file is only staged.
//
// The permission is checked on every call. Nothing is written if ctx is
// done before the blob write.
func (c *Coordinator) Commit(
	ctx context.Context,
	userID string,
	file conflict.ResolvedFile,
	repoID, path string,
	parents mergeset.Parents,
) (CommitResult, error) {
	if err := c.authorize(ctx, userID); err != nil {
		return CommitResult{}, err
	}

	merging := parents.Incoming != ""

	var set mergeset.MergeSet
	if merging {
		var err error
		set, err = c.ensureSet(ctx, repoID, parents)
		if err != nil {
			return CommitResult{}, storageFailure(err)
		}
		if _, ok := set.File(path); !ok {
			if err := c.sets.AddFile(ctx, set.ID, path); err != nil {
				return CommitResult{}, storageFailure(err)
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return CommitResult{}, storageFailure(err)
	}

	blobID, err := c.repo.WriteBlob(ctx, repoID, path, file.Text)
	if err != nil {
		return CommitResult{}, storageFailure(fmt.Errorf("write %s: %w", path, err))
	}

	if err := c.repo.StageBlob(ctx, repoID, path, blobID); err != nil {
		return CommitResult{}, storageFailure(fmt.Errorf("stage %s: %w", path, err))
	}

	c.log.Info().
		Str("repo", repoID).
		Str("path", path).
		Str("blob", blobID).
		Str("user_id", userID).
		Msg("resolved file staged")

	result := CommitResult{BlobID: blobID}
	if !merging {
		return result, nil
	}

	if err := c.sets.MarkStaged(ctx, set.ID, path, blobID); err != nil {
		return result, storageFailure(err)
	}

	set, err = c.sets.GetOpen(ctx, repoID)
	if err != nil {
		return result, storageFailure(err)
	}
	set, err = c.reconcile(ctx, set)
	if err != nil {
		return result, storageFailure(err)
	}

	if !set.Complete() {
		result.Pending = set.Pending()
		return result, nil
	}

	commitID, err := c.createCommit(ctx, userID, set)
	if err != nil {
		return result, err
	}
	result.CommitID = commitID
	return result, nil
}

// Finalize creates the merge commit for the repository's open merge set. It
// fails with ErrIncompleteMergeSet while files are pending. Use it to retry
// after the merge commit itself failed, or after a file was staged but its
// bookkeeping was not.
func (c *Coordinator) Finalize(ctx context.Context, userID, repoID string) (CommitResult, error) {
	if err := c.authorize(ctx, userID); err != nil {
		return CommitResult{}, err
	}

	set, err := c.sets.GetOpen(ctx, repoID)
	if errors.Is(err, mergeset.ErrNotFound) {
		return CommitResult{}, &CommitError{Reason: ErrIncompleteMergeSet, Err: err}
	}
	if err != nil {
		return CommitResult{}, storageFailure(err)
	}

	set, err = c.reconcile(ctx, set)
	if err != nil {
		return CommitResult{}, storageFailure(err)
	}

	if !set.Complete() {
		pending := set.Pending()
		return CommitResult{Pending: pending}, &CommitError{
			Reason: ErrIncompleteMergeSet,
			Err:    fmt.Errorf("%d file(s) pending: %s", len(pending), strings.Join(pending, ", ")),
		}
	}

	commitID, err := c.createCommit(ctx, userID, set)
	if err != nil {
		return CommitResult{}, err
	}
	return CommitResult{CommitID: commitID}, nil
}

// reconcile marks pending files that git no longer reports as conflicted as
// staged, using their stage-0 index blob. This covers files resolved outside
// mend and files whose MarkStaged failed after the blob was staged.
func (c *Coordinator) reconcile(ctx context.Context, set mergeset.MergeSet) (mergeset.MergeSet, error) {
	pending := set.Pending()
	if len(pending) == 0 {
		return set, nil
	}

	conflicted, err := c.repo.ConflictedFiles(ctx, set.RepositoryID)
	if err != nil {
		return set, fmt.Errorf("conflicted files: %w", err)
	}
	unmerged := make(map[string]bool, len(conflicted))
	for _, path := range conflicted {
		unmerged[path] = true
	}

	changed := false
	for _, path := range pending {
		if unmerged[path] {
			continue
		}
		blobID, err := c.repo.IndexBlob(ctx, set.RepositoryID, path)
		if err != nil {
			c.log.Debug().Err(err).Str("path", path).Msg("index entry not settled")
			continue
		}
		if err := c.sets.MarkStaged(ctx, set.ID, path, blobID); err != nil {
			return set, fmt.Errorf("mark %s staged: %w", path, err)
		}
		c.log.Info().
			Str("repo", set.RepositoryID).
			Str("path", path).
			Str("blob", blobID).
			Msg("recorded file staged outside mend")
		changed = true
	}

	if !changed {
		return set, nil
	}
	return c.sets.GetOpen(ctx, set.RepositoryID)
}

func (c *Coordinator) authorize(ctx context.Context, userID string) error {
	if c.authz == nil {
		return permissionDenied(fmt.Errorf("no authorizer configured"))
	}
	ok, err := c.authz.HasPermission(ctx, userID, authz.PermissionCommitCode)
	if err != nil {
		return permissionDenied(err)
	}
	if !ok {
		return permissionDenied(fmt.Errorf("user %q lacks %s", userID, authz.PermissionCommitCode))
	}
	return nil
}

// ensureSet returns the open merge set for parents, creating it from the
// currently conflicted files if needed. An open set for other parents belongs
// to an aborted merge and is abandoned.
func (c *Coordinator) ensureSet(ctx context.Context, repoID string, parents mergeset.Parents) (mergeset.MergeSet, error) {
	set, err := c.sets.GetOpen(ctx, repoID)
	switch {
	case err == nil && set.Parents == parents:
		return set, nil
	case err == nil:
		c.log.Warn().
			Str("repo", repoID).
			Str("merge_set", set.ID).
			Msg("abandoning merge set of a previous merge")
		if err := c.sets.Abandon(ctx, set.ID); err != nil {
			return mergeset.MergeSet{}, fmt.Errorf("abandon merge set: %w", err)
		}
	case !errors.Is(err, mergeset.ErrNotFound):
		return mergeset.MergeSet{}, fmt.Errorf("get merge set: %w", err)
	}

	files, err := c.repo.ConflictedFiles(ctx, repoID)
	if err != nil {
		return mergeset.MergeSet{}, fmt.Errorf("conflicted files: %w", err)
	}

	msg, err := c.repo.MergeMessage(ctx, repoID)
	if err != nil {
		c.log.Debug().Err(err).Str("repo", repoID).Msg("no prepared merge message")
		msg = ""
	}

	set = mergeset.MergeSet{
		RepositoryID: repoID,
		Parents:      parents,
		Message:      msg,
	}
	for _, path := range files {
		set.Files = append(set.Files, mergeset.File{Path: path})
	}
	if err := c.sets.Create(ctx, &set); err != nil {
		return mergeset.MergeSet{}, fmt.Errorf("create merge set: %w", err)
	}
	return set, nil
}

func (c *Coordinator) createCommit(ctx context.Context, userID string, set mergeset.MergeSet) (string, error) {
	staged := set.Staged()
	paths := make([]string, 0, len(staged))
	for _, f := range staged {
		paths = append(paths, f.Path)
	}

	msg, err := c.cfg.RenderCommitMessage(config.CommitMessageData{
		Message:  set.Message,
		Current:  set.Parents.Current,
		Incoming: set.Parents.Incoming,
		Files:    paths,
		UserID:   userID,
	})
	if err != nil {
		return "", storageFailure(fmt.Errorf("render commit message: %w", err))
	}

	if err := ctx.Err(); err != nil {
		return "", storageFailure(err)
	}

	commitID, err := c.repo.CreateMergeCommit(ctx, set.RepositoryID, set.Parents, staged, msg)
	if err != nil {
		return "", storageFailure(fmt.Errorf("create merge commit: %w", err))
	}

	if err := c.sets.MarkCommitted(ctx, set.ID, commitID); err != nil {
		// the commit exists; only the bookkeeping is behind
		c.log.Error().Err(err).Str("merge_set", set.ID).Str("commit", commitID).Msg("failed to close merge set")
	}

	c.log.Info().
		Str("repo", set.RepositoryID).
		Str("commit", commitID).
		Int("files", len(paths)).
		Msg("merge commit created")

	c.audit.LogAction(audit.ActionMergeCommitted,
		fmt.Sprintf("created merge commit %s", commitID),
		map[string]string{
			"repository": set.RepositoryID,
			"commit":     commitID,
			"current":    set.Parents.Current,
			"incoming":   set.Parents.Incoming,
			"files":      strings.Join(paths, ","),
		},
		userID,
	)

	if c.bus != nil {
		c.bus.PublishMergeCommitted(eventbus.MergeCommittedPayload{
			RepositoryID: set.RepositoryID,
			CommitID:     commitID,
			Files:        paths,
		})
	}

	return commitID, nil
}
