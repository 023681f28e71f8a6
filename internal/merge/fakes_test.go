package merge

import (
	"context"
	"fmt"
	"os"
	"slices"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/colonyops/mend/internal/core/config"
	"github.com/colonyops/mend/internal/core/eventbus"
	"github.com/colonyops/mend/internal/core/eventbus/testbus"
	"github.com/colonyops/mend/internal/core/git"
	"github.com/colonyops/mend/internal/core/mergeset"
	"github.com/colonyops/mend/internal/core/session"
)

// fakeRepo implements Repository in memory.
type fakeRepo struct {
	mu         sync.Mutex
	files      map[string]string
	staged     map[string]string
	conflicted []string
	parents    mergeset.Parents
	noMerge    bool
	message    string
	commits    []fakeCommit
	writes     int

	writeErr  error
	stageErr  error
	commitErr error
}

type fakeCommit struct {
	Parents mergeset.Parents
	Staged  []mergeset.File
	Message string
}

var _ Repository = (*fakeRepo)(nil)

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		files:   map[string]string{},
		staged:  map[string]string{},
		parents: mergeset.Parents{Current: "1111111111111111111111111111111111111111", Incoming: "2222222222222222222222222222222222222222"},
	}
}

// conflict adds a conflicted file.
func (r *fakeRepo) conflict(path, content string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files[path] = content
	r.conflicted = append(r.conflicted, path)
}

// write simulates another actor changing the file.
func (r *fakeRepo) write(path, content string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files[path] = content
}

func (r *fakeRepo) file(path string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.files[path]
}

func (r *fakeRepo) writeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes
}

func (r *fakeRepo) ConflictedBlob(_ context.Context, _, path string) (string, session.Fingerprint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	content, ok := r.files[path]
	if !ok {
		return "", "", fmt.Errorf("read %s: %w", path, os.ErrNotExist)
	}
	return content, git.BlobFingerprint([]byte(content)), nil
}

func (r *fakeRepo) CurrentFingerprint(_ context.Context, _, path string) (session.Fingerprint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	content, ok := r.files[path]
	if !ok {
		return "", nil
	}
	return git.BlobFingerprint([]byte(content)), nil
}

func (r *fakeRepo) WriteBlob(ctx context.Context, _, path, text string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if r.writeErr != nil {
		return "", r.writeErr
	}
	r.writes++
	r.files[path] = text
	return string(git.BlobFingerprint([]byte(text))), nil
}

func (r *fakeRepo) StageBlob(_ context.Context, _, path, blobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stageErr != nil {
		return r.stageErr
	}
	r.staged[path] = blobID
	for i, p := range r.conflicted {
		if p == path {
			r.conflicted = append(r.conflicted[:i], r.conflicted[i+1:]...)
			break
		}
	}
	return nil
}

func (r *fakeRepo) IndexBlob(_ context.Context, _, path string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if slices.Contains(r.conflicted, path) {
		return "", fmt.Errorf("%s is still unmerged", path)
	}
	if blob, ok := r.staged[path]; ok {
		return blob, nil
	}
	if content, ok := r.files[path]; ok {
		return string(git.BlobFingerprint([]byte(content))), nil
	}
	return "", nil
}

// resolveOutside simulates the user running git add (or git rm when content
// is empty) on a conflicted file without going through a session.
func (r *fakeRepo) resolveOutside(path, content string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if content == "" {
		delete(r.files, path)
	} else {
		r.files[path] = content
		r.staged[path] = string(git.BlobFingerprint([]byte(content)))
	}
	r.conflicted = slices.DeleteFunc(r.conflicted, func(p string) bool { return p == path })
}

func (r *fakeRepo) CreateMergeCommit(_ context.Context, _ string, parents mergeset.Parents, staged []mergeset.File, message string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.commitErr != nil {
		return "", r.commitErr
	}
	r.commits = append(r.commits, fakeCommit{Parents: parents, Staged: staged, Message: message})
	return fmt.Sprintf("commit-%d", len(r.commits)), nil
}

func (r *fakeRepo) ConflictedFiles(context.Context, string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.conflicted...), nil
}

func (r *fakeRepo) MergeParents(context.Context, string) (mergeset.Parents, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.noMerge {
		return mergeset.Parents{}, git.ErrNoMerge
	}
	return r.parents, nil
}

func (r *fakeRepo) MergeMessage(context.Context, string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.message, nil
}

// fakeAuthz grants commit_code to a fixed set of users.
type fakeAuthz struct {
	mu      sync.Mutex
	allowed map[string]bool
	err     error
	calls   int
}

func (a *fakeAuthz) HasPermission(_ context.Context, userID, _ string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if a.err != nil {
		return false, a.err
	}
	return a.allowed[userID], nil
}

func (a *fakeAuthz) set(userID string, allowed bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.allowed[userID] = allowed
}

// memSessions implements session.Store by keeping snapshots, so every Get
// returns a fresh session like a real store does.
type memSessions struct {
	mu    sync.Mutex
	snaps map[string]session.Snapshot
}

var _ session.Store = (*memSessions)(nil)

func newMemSessions() *memSessions {
	return &memSessions{snaps: map[string]session.Snapshot{}}
}

func (m *memSessions) Save(_ context.Context, s *session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[s.ID] = s.Snapshot()
	return nil
}

func (m *memSessions) Get(_ context.Context, id string) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.snaps[id]
	if !ok {
		return nil, session.ErrNotFound
	}
	return session.Restore(snap)
}

func (m *memSessions) FindOpen(_ context.Context, repoID, path string) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, snap := range m.snaps {
		if snap.RepositoryID == repoID && snap.FilePath == path && !snap.State.Terminal() {
			return session.Restore(snap)
		}
	}
	return nil, session.ErrNotFound
}

func (m *memSessions) List(_ context.Context, filter session.ListFilter) ([]*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*session.Session
	for _, snap := range m.snaps {
		if filter.RepositoryID != "" && snap.RepositoryID != filter.RepositoryID {
			continue
		}
		if filter.State != "" && snap.State != filter.State {
			continue
		}
		s, err := session.Restore(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memSessions) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.snaps[id]; !ok {
		return session.ErrNotFound
	}
	delete(m.snaps, id)
	return nil
}

func (m *memSessions) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.snaps)
}

// memSets implements mergeset.Store in memory.
type memSets struct {
	mu      sync.Mutex
	sets    map[string]*mergeset.MergeSet
	seq     int
	markErr error
}

var _ mergeset.Store = (*memSets)(nil)

func newMemSets() *memSets {
	return &memSets{sets: map[string]*mergeset.MergeSet{}}
}

func (m *memSets) Create(_ context.Context, set *mergeset.MergeSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sets {
		if s.RepositoryID == set.RepositoryID && s.State == mergeset.StateOpen {
			return fmt.Errorf("open merge set exists for %s", set.RepositoryID)
		}
	}
	m.seq++
	set.ID = fmt.Sprintf("set-%d", m.seq)
	set.State = mergeset.StateOpen
	cp := *set
	cp.Files = append([]mergeset.File(nil), set.Files...)
	m.sets[set.ID] = &cp
	return nil
}

func (m *memSets) GetOpen(_ context.Context, repoID string) (mergeset.MergeSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sets {
		if s.RepositoryID == repoID && s.State == mergeset.StateOpen {
			cp := *s
			cp.Files = append([]mergeset.File(nil), s.Files...)
			return cp, nil
		}
	}
	return mergeset.MergeSet{}, mergeset.ErrNotFound
}

func (m *memSets) AddFile(_ context.Context, id, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sets[id]
	if !ok {
		return mergeset.ErrNotFound
	}
	if _, exists := s.File(path); !exists {
		s.Files = append(s.Files, mergeset.File{Path: path})
	}
	return nil
}

func (m *memSets) MarkStaged(_ context.Context, id, path, blobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.markErr != nil {
		return m.markErr
	}
	s, ok := m.sets[id]
	if !ok {
		return mergeset.ErrNotFound
	}
	for i := range s.Files {
		if s.Files[i].Path == path {
			s.Files[i].Staged = true
			s.Files[i].BlobID = blobID
			return nil
		}
	}
	return mergeset.ErrUnknownFile
}

func (m *memSets) MarkCommitted(_ context.Context, id, commitID string) error {
	return m.close(id, mergeset.StateCommitted, commitID)
}

func (m *memSets) Abandon(_ context.Context, id string) error {
	return m.close(id, mergeset.StateAbandoned, "")
}

func (m *memSets) close(id string, state mergeset.State, commitID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sets[id]
	if !ok || s.State != mergeset.StateOpen {
		return mergeset.ErrNotFound
	}
	s.State = state
	s.CommitID = commitID
	return nil
}

func (m *memSets) failMarks(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markErr = err
}

func (m *memSets) byState(state mergeset.State) []mergeset.MergeSet {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []mergeset.MergeSet
	for _, s := range m.sets {
		if s.State == state {
			out = append(out, *s)
		}
	}
	return out
}

const testRepo = "/work/repo"

type harness struct {
	svc      *Service
	repo     *fakeRepo
	authz    *fakeAuthz
	sessions *memSessions
	sets     *memSets
	bus      *testbus.Bus
	cfg      *config.Config
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()

	h := &harness{
		repo:     newFakeRepo(),
		authz:    &fakeAuthz{allowed: map[string]bool{"alice": true}},
		sessions: newMemSessions(),
		sets:     newMemSets(),
		bus:      testbus.New(t),
		cfg:      &cfg,
	}

	log := zerolog.Nop()
	auditLog := eventbus.NewAuditLogger(h.bus.EventBus)
	coord := NewCoordinator(h.repo, h.authz, h.sets, h.cfg, auditLog, h.bus.EventBus, log)
	h.svc = NewService(h.sessions, h.repo, coord, h.cfg, auditLog, h.bus.EventBus, log)

	clock := time.Unix(1_700_000_000, 0)
	var mu sync.Mutex
	h.svc.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Second)
		return clock
	}

	return h
}

func (h *harness) open(t *testing.T, path string) *session.Session {
	t.Helper()
	sess, err := h.svc.OpenSession(context.Background(), testRepo, path)
	require.NoError(t, err)
	return sess
}
