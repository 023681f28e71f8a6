package merge

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/colonyops/mend/internal/core/session"
)

// resyncInterval bounds how long a newly opened session goes unwatched.
const resyncInterval = 2 * time.Second

// Watcher marks a repository's open sessions stale as soon as their files
// change on disk, instead of waiting for the check at commit time. The
// repository ID must be the worktree directory.
type Watcher struct {
	svc         *Service
	repoID      string
	debounceDur time.Duration
	log         zerolog.Logger

	// tracked maps absolute file paths to the sessions resolving them.
	tracked map[string][]string
	dirs    map[string]bool
}

// NewWatcher creates a watcher for repoID.
func NewWatcher(svc *Service, repoID string, debounce time.Duration, log zerolog.Logger) *Watcher {
	return &Watcher{
		svc:         svc,
		repoID:      repoID,
		debounceDur: debounce,
		log:         log.With().Str("cmp", "watcher").Logger(),
		tracked:     map[string][]string{},
		dirs:        map[string]bool{},
	}
}

// Run watches until ctx is done. Each debounced burst of events calls
// onStale with the sessions it invalidated; onStale may be nil.
func (w *Watcher) Run(ctx context.Context, onStale func(sessionIDs []string)) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = fsw.Close() }()

	if err := w.resync(ctx, fsw); err != nil {
		return err
	}

	resync := time.NewTicker(resyncInterval)
	defer resync.Stop()

	debounce := time.NewTimer(w.debounceDur)
	if !debounce.Stop() {
		<-debounce.C
	}
	pending := map[string]bool{}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if _, watched := w.tracked[event.Name]; !watched {
				continue
			}

			w.log.Debug().
				Str("path", event.Name).
				Str("op", event.Op.String()).
				Msg("file system event")

			pending[event.Name] = true
			debounce.Reset(w.debounceDur)

		case <-debounce.C:
			stale := w.flush(ctx, pending)
			pending = map[string]bool{}
			if len(stale) > 0 && onStale != nil {
				onStale(stale)
			}

		case <-resync.C:
			if err := w.resync(ctx, fsw); err != nil {
				w.log.Warn().Err(err).Msg("resync failed")
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Error().Err(err).Msg("watcher error")
		}
	}
}

// flush re-checks every session of the changed files.
func (w *Watcher) flush(ctx context.Context, changed map[string]bool) []string {
	var stale []string
	for path := range changed {
		for _, id := range w.tracked[path] {
			isStale, err := w.svc.CheckStale(ctx, id)
			if err != nil {
				w.log.Debug().Err(err).Str("session_id", id).Msg("stale check failed")
				continue
			}
			if isStale {
				stale = append(stale, id)
			}
		}
	}
	return stale
}

// resync watches the directories of the repository's open sessions. Parent
// directories are watched because editors often replace files by rename.
func (w *Watcher) resync(ctx context.Context, fsw *fsnotify.Watcher) error {
	sessions, err := w.svc.List(ctx, session.ListFilter{RepositoryID: w.repoID})
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}

	tracked := make(map[string][]string, len(sessions))
	for _, sess := range sessions {
		if sess.State.Terminal() {
			continue
		}
		abs := filepath.Join(w.repoID, filepath.FromSlash(sess.FilePath))
		tracked[abs] = append(tracked[abs], sess.ID)

		dir := filepath.Dir(abs)
		if w.dirs[dir] {
			continue
		}
		if err := fsw.Add(dir); err != nil {
			w.log.Debug().Err(err).Str("dir", dir).Msg("skipping directory")
			continue
		}
		w.dirs[dir] = true
	}
	w.tracked = tracked

	return nil
}
