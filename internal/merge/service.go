// Package merge drives conflict sessions from opening a conflicted file to
// committing the resolved result.
package merge

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/colonyops/mend/internal/core/audit"
	"github.com/colonyops/mend/internal/core/config"
	"github.com/colonyops/mend/internal/core/conflict"
	"github.com/colonyops/mend/internal/core/eventbus"
	"github.com/colonyops/mend/internal/core/git"
	"github.com/colonyops/mend/internal/core/logging"
	"github.com/colonyops/mend/internal/core/mergeset"
	"github.com/colonyops/mend/internal/core/session"
)

// Service orchestrates conflict sessions. Mutations of one session are
// serialized; different sessions proceed independently.
type Service struct {
	sessions session.Store
	repo     Repository
	coord    *Coordinator
	cfg      *config.Config
	audit    audit.Logger
	bus      *eventbus.EventBus
	log      zerolog.Logger
	now      func() time.Time

	locks keyedMutex
}

// NewService creates a merge service. A nil audit logger discards entries and
// a nil bus publishes nothing.
func NewService(
	sessions session.Store,
	repo Repository,
	coord *Coordinator,
	cfg *config.Config,
	auditLog audit.Logger,
	bus *eventbus.EventBus,
	log zerolog.Logger,
) *Service {
	if auditLog == nil {
		auditLog = audit.Nop{}
	}
	return &Service{
		sessions: sessions,
		repo:     repo,
		coord:    coord,
		cfg:      cfg,
		audit:    auditLog,
		bus:      bus,
		log:      log.With().Str("cmp", "merge").Logger(),
		now:      time.Now,
	}
}

// Coordinator returns the commit coordinator.
func (s *Service) Coordinator() *Coordinator {
	return s.coord
}

// OpenSession starts resolving path. An open session for the same file is
// returned when the file has not changed since; otherwise it is invalidated
// and the file is parsed again.
func (s *Service) OpenSession(ctx context.Context, repoID, path string) (*session.Session, error) {
	unlock := s.locks.Lock(fileKey(repoID, path))
	defer unlock()

	raw, fp, err := s.repo.ConflictedBlob(ctx, repoID, path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	existing, err := s.sessions.FindOpen(ctx, repoID, path)
	switch {
	case err == nil:
		reused, err := s.reopen(ctx, existing.ID, fp)
		if err != nil {
			return nil, err
		}
		if reused != nil {
			return reused, nil
		}
	case !errors.Is(err, session.ErrNotFound):
		return nil, fmt.Errorf("find session: %w", err)
	}

	if conflict.IsBinary(raw) {
		return nil, fmt.Errorf("open %s: %w", path, conflict.ErrBinary)
	}

	opts := []conflict.ParseOption{conflict.WithMarkerSize(s.cfg.Merge.MarkerSize)}
	if s.cfg.ExpectConflicts() {
		opts = append(opts, conflict.ExpectConflicts())
	}

	sess, err := session.New(repoID, path, raw, fp, s.now(), opts...)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	if _, err := s.coord.Track(ctx, repoID); err != nil && !errors.Is(err, mergeset.ErrNotFound) {
		s.log.Warn().Err(err).Str("repo", repoID).Msg("failed to track merge set")
	}

	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	s.log.Info().
		Str("session_id", sess.ID).
		Str("path", path).
		Int("regions", sess.Count()).
		Msg("session opened")

	s.audit.LogAction(audit.ActionSessionOpened,
		fmt.Sprintf("opened %s with %d conflict(s)", path, sess.Count()),
		map[string]string{
			"session_id": sess.ID,
			"repository": repoID,
			"path":       path,
			"regions":    strconv.Itoa(sess.Count()),
		},
		logging.GetUserID(ctx),
	)

	if s.bus != nil {
		s.bus.PublishSessionOpened(eventbus.SessionOpenedPayload{Session: sess})
	}

	return sess, nil
}

// reopen returns the session if fp still matches; otherwise the session is
// invalidated and nil is returned.
func (s *Service) reopen(ctx context.Context, id string, fp session.Fingerprint) (*session.Session, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	sess, err := s.sessions.Get(ctx, id)
	if errors.Is(err, session.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	if sess.State.Terminal() {
		return nil, nil
	}

	if sess.Fingerprint == fp {
		s.log.Debug().Str("session_id", sess.ID).Msg("session reopened")
		if s.bus != nil {
			s.bus.PublishSessionOpened(eventbus.SessionOpenedPayload{Session: sess, Reopened: true})
		}
		return sess, nil
	}

	if err := s.invalidate(ctx, sess, "file changed since the session was opened"); err != nil {
		return nil, err
	}
	return nil, nil
}

// GetRegionView returns the three-way view of one region.
func (s *Service) GetRegionView(ctx context.Context, sessionID string, index int) (conflict.RegionView, error) {
	sess, err := s.load(ctx, sessionID)
	if err != nil {
		return conflict.RegionView{}, err
	}
	return sess.View(index)
}

// ApplyResolution resolves one region. Validation failures leave the session
// untouched. An assembly failure keeps the resolution and is returned.
func (s *Service) ApplyResolution(ctx context.Context, sessionID string, index int, r conflict.Resolution) (session.State, error) {
	return s.mutate(ctx, sessionID, func(sess *session.Session) (session.State, error) {
		return sess.Apply(index, r, s.now())
	}, func(sess *session.Session) {
		s.audit.LogAction(audit.ActionResolutionApplied,
			fmt.Sprintf("resolved region %d of %s with %s", index, sess.FilePath, r.Kind()),
			map[string]string{
				"session_id": sess.ID,
				"path":       sess.FilePath,
				"index":      strconv.Itoa(index),
				"kind":       string(r.Kind()),
			},
			logging.GetUserID(ctx),
		)
	})
}

// ApplyAll applies r to every unresolved region.
func (s *Service) ApplyAll(ctx context.Context, sessionID string, r conflict.Resolution) (session.State, error) {
	return s.mutate(ctx, sessionID, func(sess *session.Session) (session.State, error) {
		return sess.ApplyAll(r, s.now())
	}, func(sess *session.Session) {
		s.audit.LogAction(audit.ActionResolutionApplied,
			fmt.Sprintf("resolved all regions of %s with %s", sess.FilePath, r.Kind()),
			map[string]string{
				"session_id": sess.ID,
				"path":       sess.FilePath,
				"index":      "*",
				"kind":       string(r.Kind()),
			},
			logging.GetUserID(ctx),
		)
	})
}

// Clear removes the resolution of one region.
func (s *Service) Clear(ctx context.Context, sessionID string, index int) (session.State, error) {
	return s.mutate(ctx, sessionID, func(sess *session.Session) (session.State, error) {
		return sess.Clear(index, s.now())
	}, func(sess *session.Session) {
		s.audit.LogAction(audit.ActionResolutionCleared,
			fmt.Sprintf("cleared region %d of %s", index, sess.FilePath),
			map[string]string{
				"session_id": sess.ID,
				"path":       sess.FilePath,
				"index":      strconv.Itoa(index),
			},
			logging.GetUserID(ctx),
		)
	})
}

// mutate runs fn on the locked session and persists the result. Errors other
// than assembly failures mean fn left the session unchanged, so nothing is
// saved.
func (s *Service) mutate(
	ctx context.Context,
	sessionID string,
	fn func(*session.Session) (session.State, error),
	onApplied func(*session.Session),
) (session.State, error) {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	sess, err := s.load(ctx, sessionID)
	if err != nil {
		return "", err
	}
	prev := sess.State

	state, err := fn(sess)
	var asmErr *conflict.AssemblyError
	if err != nil && !errors.As(err, &asmErr) {
		return state, err
	}

	if saveErr := s.sessions.Save(ctx, sess); saveErr != nil {
		return prev, fmt.Errorf("save session: %w", saveErr)
	}

	onApplied(sess)

	if err != nil {
		s.log.Warn().Err(err).Str("session_id", sess.ID).Msg("assembly failed")
		return state, err
	}

	if state == session.StateResolved && prev != session.StateResolved && s.bus != nil {
		s.bus.PublishSessionResolved(eventbus.SessionResolvedPayload{Session: sess})
	}

	return state, nil
}

// CommitSession writes and stages the resolved file. The file's fingerprint
// is checked first; if it changed the session is discarded, nothing is
// written, and ErrStale is returned.
//
// Once the file is staged the session is done, even if the merge commit
// that follows fails. That failure is returned and can be retried with
// Coordinator.Finalize.
func (s *Service) CommitSession(ctx context.Context, sessionID, userID string) (CommitResult, error) {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	ctx = logging.WithSessionID(logging.WithUserID(ctx, userID), sessionID)

	sess, err := s.load(ctx, sessionID)
	if err != nil {
		return CommitResult{}, err
	}

	switch sess.State {
	case session.StateStale:
		return CommitResult{}, ErrStale
	case session.StateResolved:
	default:
		return CommitResult{}, fmt.Errorf("%w: %d of %d regions resolved", ErrNotResolved, sess.ResolvedCount(), sess.Count())
	}

	file, ok := sess.Output()
	if !ok {
		return CommitResult{}, fmt.Errorf("%w: no assembled output", ErrNotResolved)
	}

	fp, err := s.repo.CurrentFingerprint(ctx, sess.RepositoryID, sess.FilePath)
	if err != nil {
		return CommitResult{}, storageFailure(fmt.Errorf("fingerprint %s: %w", sess.FilePath, err))
	}
	if fp != sess.Fingerprint {
		if err := s.invalidate(ctx, sess, "file changed before commit"); err != nil {
			return CommitResult{}, err
		}
		return CommitResult{}, fmt.Errorf("%s: %w", sess.FilePath, ErrStale)
	}

	parents, err := s.repo.MergeParents(ctx, sess.RepositoryID)
	if errors.Is(err, git.ErrNoMerge) {
		parents = mergeset.Parents{}
	} else if err != nil {
		return CommitResult{}, storageFailure(fmt.Errorf("merge parents: %w", err))
	}

	result, err := s.coord.Commit(ctx, userID, file, sess.RepositoryID, sess.FilePath, parents)
	if err != nil {
		s.auditCommitFailed(sess, userID, err)
		if result.BlobID == "" {
			return result, err
		}
	}

	if markErr := sess.MarkCommitted(s.now()); markErr != nil {
		return result, errors.Join(err, markErr)
	}
	if delErr := s.sessions.Delete(ctx, sess.ID); delErr != nil {
		s.log.Warn().Err(delErr).Str("session_id", sess.ID).Msg("failed to remove committed session")
	}

	s.log.Info().
		Str("session_id", sess.ID).
		Str("path", sess.FilePath).
		Str("blob", result.BlobID).
		Str("commit", result.CommitID).
		Int("pending", len(result.Pending)).
		Msg("session committed")

	s.audit.LogAction(audit.ActionCommitSucceeded,
		fmt.Sprintf("committed %s", sess.FilePath),
		map[string]string{
			"session_id": sess.ID,
			"repository": sess.RepositoryID,
			"path":       sess.FilePath,
			"blob":       result.BlobID,
			"commit":     result.CommitID,
		},
		userID,
	)

	if s.bus != nil {
		s.bus.PublishSessionCommitted(eventbus.SessionCommittedPayload{
			Session:  sess,
			BlobID:   result.BlobID,
			CommitID: result.CommitID,
		})
	}

	return result, err
}

// Finalize creates the merge commit once every file is staged.
func (s *Service) Finalize(ctx context.Context, userID, repoID string) (CommitResult, error) {
	result, err := s.coord.Finalize(logging.WithUserID(ctx, userID), userID, repoID)
	if err != nil {
		s.audit.LogAction(audit.ActionCommitFailed,
			fmt.Sprintf("merge commit failed: %v", err),
			map[string]string{"repository": repoID, "reason": reasonOf(err)},
			userID,
		)
	}
	return result, err
}

// DiscardSession abandons a session without touching the repository.
func (s *Service) DiscardSession(ctx context.Context, sessionID string) error {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	sess, err := s.load(ctx, sessionID)
	if err != nil {
		return err
	}

	if err := s.sessions.Delete(ctx, sess.ID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	s.log.Info().Str("session_id", sess.ID).Str("path", sess.FilePath).Msg("session discarded")

	s.audit.LogAction(audit.ActionSessionDiscarded,
		fmt.Sprintf("discarded session for %s", sess.FilePath),
		map[string]string{"session_id": sess.ID, "path": sess.FilePath},
		logging.GetUserID(ctx),
	)

	if s.bus != nil {
		s.bus.PublishSessionDiscarded(eventbus.SessionDiscardedPayload{SessionID: sess.ID, FilePath: sess.FilePath})
	}

	return nil
}

// CheckStale compares the file on disk with the session and invalidates the
// session when it changed. It reports whether the session went stale.
func (s *Service) CheckStale(ctx context.Context, sessionID string) (bool, error) {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	sess, err := s.load(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if sess.State.Terminal() {
		return sess.State == session.StateStale, nil
	}

	fp, err := s.repo.CurrentFingerprint(ctx, sess.RepositoryID, sess.FilePath)
	if err != nil {
		return false, fmt.Errorf("fingerprint %s: %w", sess.FilePath, err)
	}
	if fp == sess.Fingerprint {
		return false, nil
	}

	// the resolved output on disk means a commit of this session is in flight
	if out, ok := sess.Output(); ok && fp == git.BlobFingerprint([]byte(out.Text)) {
		s.log.Debug().
			Str("session_id", sess.ID).
			Str("path", sess.FilePath).
			Msg("file matches resolved output, commit in progress")
		return false, nil
	}

	if err := s.invalidate(ctx, sess, "file changed on disk"); err != nil {
		return false, err
	}
	return true, nil
}

// Lookup returns a session by ID.
func (s *Service) Lookup(ctx context.Context, sessionID string) (*session.Session, error) {
	return s.load(ctx, sessionID)
}

// Find returns the open session for a file.
func (s *Service) Find(ctx context.Context, repoID, path string) (*session.Session, error) {
	return s.sessions.FindOpen(ctx, repoID, path)
}

// List returns sessions matching filter.
func (s *Service) List(ctx context.Context, filter session.ListFilter) ([]*session.Session, error) {
	return s.sessions.List(ctx, filter)
}

// Status returns the open merge set of a repository.
func (s *Service) Status(ctx context.Context, repoID string) (mergeset.MergeSet, error) {
	return s.coord.Status(ctx, repoID)
}

func (s *Service) load(ctx context.Context, sessionID string) (*session.Session, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, err)
	}
	return sess, nil
}

// invalidate marks sess stale and removes it. Callers hold the session lock.
func (s *Service) invalidate(ctx context.Context, sess *session.Session, reason string) error {
	if err := sess.MarkStale(s.now()); err != nil {
		return err
	}
	if err := s.sessions.Delete(ctx, sess.ID); err != nil && !errors.Is(err, session.ErrNotFound) {
		return fmt.Errorf("delete stale session: %w", err)
	}

	s.log.Info().Str("session_id", sess.ID).Str("path", sess.FilePath).Str("reason", reason).Msg("session stale")

	s.audit.LogAction(audit.ActionSessionStale,
		fmt.Sprintf("%s: %s", sess.FilePath, reason),
		map[string]string{"session_id": sess.ID, "path": sess.FilePath},
		logging.GetUserID(ctx),
	)

	if s.bus != nil {
		s.bus.PublishSessionStale(eventbus.SessionStalePayload{Session: sess})
	}
	return nil
}

func (s *Service) auditCommitFailed(sess *session.Session, userID string, err error) {
	s.log.Warn().Err(err).Str("session_id", sess.ID).Str("path", sess.FilePath).Msg("commit failed")

	s.audit.LogAction(audit.ActionCommitFailed,
		fmt.Sprintf("commit of %s failed: %v", sess.FilePath, err),
		map[string]string{
			"session_id": sess.ID,
			"path":       sess.FilePath,
			"reason":     reasonOf(err),
		},
		userID,
	)
}

func reasonOf(err error) string {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, ErrIncompleteMergeSet):
		return "incomplete_merge_set"
	case errors.Is(err, ErrStorageFailure):
		return "storage_failure"
	default:
		return "unknown"
	}
}

func fileKey(repoID, path string) string {
	return "file:" + repoID + "\x00" + path
}
