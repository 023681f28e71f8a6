package merge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colonyops/mend/internal/core/audit"
	"github.com/colonyops/mend/internal/core/conflict"
	"github.com/colonyops/mend/internal/core/eventbus"
	"github.com/colonyops/mend/internal/core/eventbus/testbus"
	"github.com/colonyops/mend/internal/core/logging"
	"github.com/colonyops/mend/internal/core/session"
)

const oneRegion = "int main() {\n" +
	"<<<<<<< HEAD\n" +
	"int x = 1;\n" +
	"=======\n" +
	"int x = 2;\n" +
	">>>>>>> feature\n" +
	"return x;\n" +
	"}\n"

const twoRegions = "package main\n" +
	"<<<<<<< HEAD\n" +
	"int x = 1;\n" +
	"=======\n" +
	"int x = 2;\n" +
	">>>>>>> feature\n" +
	"between\n" +
	"<<<<<<< HEAD\n" +
	"c\n" +
	"=======\n" +
	"d\n" +
	">>>>>>> feature\n" +
	"tail\n"

func regions(n int) string {
	var sb strings.Builder
	for i := range n {
		fmt.Fprintf(&sb, "line %d\n<<<<<<< HEAD\nours %d\n=======\ntheirs %d\n>>>>>>> feature\n", i, i, i)
	}
	sb.WriteString("end\n")
	return sb.String()
}

// auditActions waits for n audit entries and returns their actions in order.
func auditActions(t *testing.T, h *harness, n int) []audit.Action {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.bus.Count(eventbus.EventAuditLogged) >= n
	}, time.Second, 5*time.Millisecond)

	var out []audit.Action
	for _, e := range h.bus.Events() {
		if p, ok := e.Payload.(eventbus.AuditLoggedPayload); ok {
			out = append(out, p.Entry.Action)
		}
	}
	return out
}

func TestScenario_SingleRegionAcceptCurrent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.repo.conflict("main.c", oneRegion)

	sess := h.open(t, "main.c")
	assert.Equal(t, session.StateUnresolved, sess.State)
	assert.Equal(t, 1, sess.Count())

	state, err := h.svc.ApplyResolution(ctx, sess.ID, 0, conflict.AcceptCurrent)
	require.NoError(t, err)
	assert.Equal(t, session.StateResolved, state)

	result, err := h.svc.CommitSession(ctx, sess.ID, "alice")
	require.NoError(t, err)
	assert.NotEmpty(t, result.BlobID)
	assert.Equal(t, "commit-1", result.CommitID, "only conflicted file, so the merge commit follows")
	assert.Empty(t, result.Pending)

	written := h.repo.file("main.c")
	assert.Equal(t, "int main() {\nint x = 1;\nreturn x;\n}\n", written)
	assert.NotContains(t, written, "int x = 2;")

	require.Len(t, h.repo.commits, 1)
	assert.Equal(t, h.repo.parents, h.repo.commits[0].Parents)
	assert.Equal(t, "Merge commit 222222222222 into 111111111111", h.repo.commits[0].Message)

	_, err = h.svc.Lookup(ctx, sess.ID)
	require.ErrorIs(t, err, session.ErrNotFound, "committed sessions are removed")

	h.bus.AssertPublished(t, eventbus.EventSessionResolved)
	h.bus.AssertPublished(t, eventbus.EventSessionCommitted)
	merged := testbus.FindPayload[eventbus.MergeCommittedPayload](h.bus, t, eventbus.EventMergeCommitted)
	assert.Equal(t, []string{"main.c"}, merged.Files)
}

func TestScenario_TwoRegionsCustomAndIncoming(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.repo.conflict("main.go", twoRegions)

	sess := h.open(t, "main.go")

	state, err := h.svc.ApplyResolution(ctx, sess.ID, 0, conflict.Custom{Text: "int x = 3;"})
	require.NoError(t, err)
	assert.Equal(t, session.StatePartiallyResolved, state)

	state, err = h.svc.ApplyResolution(ctx, sess.ID, 1, conflict.AcceptIncoming)
	require.NoError(t, err)
	assert.Equal(t, session.StateResolved, state)

	_, err = h.svc.CommitSession(ctx, sess.ID, "alice")
	require.NoError(t, err)

	assert.Equal(t, "package main\nint x = 3;\nbetween\nd\ntail\n", h.repo.file("main.go"))
}

func TestScenario_RegionViewOutOfRange(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.repo.conflict("main.go", twoRegions)
	sess := h.open(t, "main.go")

	_, err := h.svc.GetRegionView(ctx, sess.ID, 5)
	require.ErrorIs(t, err, conflict.ErrIndexOutOfRange)

	var idxErr *conflict.IndexError
	require.ErrorAs(t, err, &idxErr)
	assert.Equal(t, 5, idxErr.Index)
	assert.Equal(t, 2, idxErr.Count)

	view, err := h.svc.GetRegionView(ctx, sess.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, view.Current)
	assert.Equal(t, []string{"d"}, view.Incoming)
	assert.Equal(t, 2, view.Count)
}

func TestScenario_CustomWithMarkerRejected(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.repo.conflict("main.go", twoRegions)
	sess := h.open(t, "main.go")

	_, err := h.svc.ApplyResolution(ctx, sess.ID, 0, conflict.AcceptCurrent)
	require.NoError(t, err)

	state, err := h.svc.ApplyResolution(ctx, sess.ID, 1, conflict.Custom{Text: "<<<<<<< broken"})
	require.ErrorIs(t, err, conflict.ErrContainsConflictMarker)

	var valErr *conflict.ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, session.StatePartiallyResolved, state)

	got, err := h.svc.Lookup(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StatePartiallyResolved, got.State, "prior state kept")
	assert.Equal(t, 1, got.ResolvedCount())
	_, resolved := got.Resolution(1)
	assert.False(t, resolved)
}

func TestScenario_StaleSessionDiscarded(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.repo.conflict("main.go", twoRegions)
	sess := h.open(t, "main.go")

	_, err := h.svc.ApplyAll(ctx, sess.ID, conflict.AcceptIncoming)
	require.NoError(t, err)

	changed := strings.Replace(twoRegions, "int x = 2;", "int x = 42;", 1)
	h.repo.write("main.go", changed)

	_, err = h.svc.CommitSession(ctx, sess.ID, "alice")
	require.ErrorIs(t, err, ErrStale)
	assert.Zero(t, h.repo.writeCount(), "stale commit must not write")
	assert.Equal(t, changed, h.repo.file("main.go"))

	_, err = h.svc.Lookup(ctx, sess.ID)
	require.ErrorIs(t, err, session.ErrNotFound, "stale session is discarded")
	h.bus.AssertPublished(t, eventbus.EventSessionStale)

	reopened := h.open(t, "main.go")
	assert.NotEqual(t, sess.ID, reopened.ID)
	view, err := h.svc.GetRegionView(ctx, reopened.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"int x = 42;"}, view.Incoming)
}

func TestOpenSession(t *testing.T) {
	ctx := context.Background()

	t.Run("reopen returns the existing session", func(t *testing.T) {
		h := newHarness(t)
		h.repo.conflict("main.go", twoRegions)
		first := h.open(t, "main.go")
		_, err := h.svc.ApplyResolution(ctx, first.ID, 0, conflict.AcceptBoth)
		require.NoError(t, err)

		second := h.open(t, "main.go")
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, session.StatePartiallyResolved, second.State)

		opened := testbus.FindPayload[eventbus.SessionOpenedPayload](h.bus, t, eventbus.EventSessionOpened)
		assert.True(t, opened.Reopened)
	})

	t.Run("reopen after change starts over", func(t *testing.T) {
		h := newHarness(t)
		h.repo.conflict("main.go", twoRegions)
		first := h.open(t, "main.go")

		h.repo.write("main.go", oneRegion)
		second := h.open(t, "main.go")

		assert.NotEqual(t, first.ID, second.ID)
		assert.Equal(t, 1, second.Count())
		assert.Equal(t, 1, h.sessions.count())
		h.bus.AssertPublished(t, eventbus.EventSessionStale)
	})

	t.Run("binary content", func(t *testing.T) {
		h := newHarness(t)
		h.repo.conflict("logo.png", "\x89PNG\x00\x00<<<<<<< HEAD\n")

		_, err := h.svc.OpenSession(ctx, testRepo, "logo.png")
		require.ErrorIs(t, err, conflict.ErrBinary)
		assert.Zero(t, h.sessions.count())
	})

	t.Run("malformed markers", func(t *testing.T) {
		h := newHarness(t)
		h.repo.conflict("main.go", "a\n<<<<<<< HEAD\nb\n=======\nc\n")

		_, err := h.svc.OpenSession(ctx, testRepo, "main.go")
		require.ErrorIs(t, err, conflict.ErrMalformed)

		var parseErr *conflict.ParseError
		require.ErrorAs(t, err, &parseErr)
	})

	t.Run("no conflicts when conflicts are expected", func(t *testing.T) {
		h := newHarness(t)
		h.repo.conflict("main.go", "package main\n")

		_, err := h.svc.OpenSession(ctx, testRepo, "main.go")
		require.ErrorIs(t, err, conflict.ErrEmpty)
	})

	t.Run("no conflicts allowed by config", func(t *testing.T) {
		h := newHarness(t)
		expect := false
		h.cfg.Merge.ExpectConflicts = &expect
		h.repo.conflict("main.go", "package main\n")

		sess := h.open(t, "main.go")
		assert.Equal(t, session.StateResolved, sess.State)
	})

	t.Run("missing file", func(t *testing.T) {
		h := newHarness(t)

		_, err := h.svc.OpenSession(ctx, testRepo, "missing.go")
		require.Error(t, err)
	})

	t.Run("tracks the merge set", func(t *testing.T) {
		h := newHarness(t)
		h.repo.conflict("a.go", oneRegion)
		h.repo.conflict("b.go", oneRegion)
		h.open(t, "a.go")

		set, err := h.svc.Status(ctx, testRepo)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"a.go", "b.go"}, set.Pending())
	})

	t.Run("audits the user from context", func(t *testing.T) {
		h := newHarness(t)
		h.repo.conflict("main.go", oneRegion)

		_, err := h.svc.OpenSession(logging.WithUserID(ctx, "alice"), testRepo, "main.go")
		require.NoError(t, err)

		entry := testbus.FindPayload[eventbus.AuditLoggedPayload](h.bus, t, eventbus.EventAuditLogged)
		assert.Equal(t, audit.ActionSessionOpened, entry.Entry.Action)
		assert.Equal(t, "alice", entry.Entry.UserID)
		assert.Equal(t, "main.go", entry.Entry.Data["path"])
	})
}

func TestApplyResolution(t *testing.T) {
	ctx := context.Background()

	t.Run("idempotent", func(t *testing.T) {
		h := newHarness(t)
		h.repo.conflict("main.go", twoRegions)
		sess := h.open(t, "main.go")

		for range 2 {
			state, err := h.svc.ApplyResolution(ctx, sess.ID, 0, conflict.AcceptBoth)
			require.NoError(t, err)
			assert.Equal(t, session.StatePartiallyResolved, state)
		}

		got, err := h.svc.Lookup(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, got.ResolvedCount())
	})

	t.Run("index out of range", func(t *testing.T) {
		h := newHarness(t)
		h.repo.conflict("main.go", twoRegions)
		sess := h.open(t, "main.go")

		_, err := h.svc.ApplyResolution(ctx, sess.ID, 2, conflict.AcceptCurrent)
		require.ErrorIs(t, err, conflict.ErrIndexOutOfRange)
	})

	t.Run("nil resolution", func(t *testing.T) {
		h := newHarness(t)
		h.repo.conflict("main.go", twoRegions)
		sess := h.open(t, "main.go")

		_, err := h.svc.ApplyResolution(ctx, sess.ID, 0, nil)
		require.ErrorIs(t, err, conflict.ErrNoResolution)
	})

	t.Run("unknown session", func(t *testing.T) {
		h := newHarness(t)

		_, err := h.svc.ApplyResolution(ctx, "missing", 0, conflict.AcceptCurrent)
		require.ErrorIs(t, err, session.ErrNotFound)
	})

	t.Run("re-resolving a resolved session reassembles", func(t *testing.T) {
		h := newHarness(t)
		h.repo.conflict("main.c", oneRegion)
		sess := h.open(t, "main.c")

		_, err := h.svc.ApplyResolution(ctx, sess.ID, 0, conflict.AcceptCurrent)
		require.NoError(t, err)
		state, err := h.svc.ApplyResolution(ctx, sess.ID, 0, conflict.AcceptIncoming)
		require.NoError(t, err)
		assert.Equal(t, session.StateResolved, state)

		got, err := h.svc.Lookup(ctx, sess.ID)
		require.NoError(t, err)
		out, ok := got.Output()
		require.True(t, ok)
		assert.Contains(t, out.Text, "int x = 2;")
	})

	t.Run("clear", func(t *testing.T) {
		h := newHarness(t)
		h.repo.conflict("main.c", oneRegion)
		sess := h.open(t, "main.c")

		_, err := h.svc.ApplyResolution(ctx, sess.ID, 0, conflict.AcceptCurrent)
		require.NoError(t, err)

		state, err := h.svc.Clear(ctx, sess.ID, 0)
		require.NoError(t, err)
		assert.Equal(t, session.StateUnresolved, state)

		actions := auditActions(t, h, 3)
		assert.Equal(t, []audit.Action{
			audit.ActionSessionOpened,
			audit.ActionResolutionApplied,
			audit.ActionResolutionCleared,
		}, actions)
	})

	t.Run("apply all refuses custom text", func(t *testing.T) {
		h := newHarness(t)
		h.repo.conflict("main.go", twoRegions)
		sess := h.open(t, "main.go")

		_, err := h.svc.ApplyAll(ctx, sess.ID, conflict.Custom{Text: "x"})
		require.Error(t, err)

		got, err := h.svc.Lookup(ctx, sess.ID)
		require.NoError(t, err)
		assert.Zero(t, got.ResolvedCount())
	})

	t.Run("concurrent applies are serialized", func(t *testing.T) {
		const n = 16
		h := newHarness(t)
		h.repo.conflict("big.go", regions(n))
		sess := h.open(t, "big.go")

		var wg sync.WaitGroup
		for i := range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := h.svc.ApplyResolution(ctx, sess.ID, i, conflict.AcceptCurrent)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		got, err := h.svc.Lookup(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, n, got.ResolvedCount(), "no resolution was lost")
		assert.Equal(t, session.StateResolved, got.State)
	})
}

func TestCommitSession(t *testing.T) {
	ctx := context.Background()

	resolved := func(t *testing.T, h *harness, path string) *session.Session {
		t.Helper()
		sess := h.open(t, path)
		_, err := h.svc.ApplyAll(ctx, sess.ID, conflict.AcceptCurrent)
		require.NoError(t, err)
		return sess
	}

	t.Run("not resolved", func(t *testing.T) {
		h := newHarness(t)
		h.repo.conflict("main.go", twoRegions)
		sess := h.open(t, "main.go")

		_, err := h.svc.CommitSession(ctx, sess.ID, "alice")
		require.ErrorIs(t, err, ErrNotResolved)
		assert.Zero(t, h.repo.writeCount())
	})

	t.Run("permission denied", func(t *testing.T) {
		h := newHarness(t)
		h.repo.conflict("main.go", twoRegions)
		sess := resolved(t, h, "main.go")

		_, err := h.svc.CommitSession(ctx, sess.ID, "mallory")
		require.ErrorIs(t, err, ErrPermissionDenied)

		var commitErr *CommitError
		require.ErrorAs(t, err, &commitErr)
		assert.False(t, commitErr.Retryable())
		assert.Zero(t, h.repo.writeCount())

		got, err := h.svc.Lookup(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, session.StateResolved, got.State, "failed commit keeps the session resolved")

		actions := auditActions(t, h, 3)
		assert.Equal(t, audit.ActionCommitFailed, actions[len(actions)-1])
	})

	t.Run("permission is checked at every call", func(t *testing.T) {
		h := newHarness(t)
		h.repo.conflict("main.go", twoRegions)
		sess := resolved(t, h, "main.go")

		h.authz.set("alice", false)
		_, err := h.svc.CommitSession(ctx, sess.ID, "alice")
		require.ErrorIs(t, err, ErrPermissionDenied)

		h.authz.set("alice", true)
		_, err = h.svc.CommitSession(ctx, sess.ID, "alice")
		require.NoError(t, err)
	})

	t.Run("authorizer error fails closed", func(t *testing.T) {
		h := newHarness(t)
		h.repo.conflict("main.go", twoRegions)
		sess := resolved(t, h, "main.go")
		h.authz.err = errors.New("directory unavailable")

		_, err := h.svc.CommitSession(ctx, sess.ID, "alice")
		require.ErrorIs(t, err, ErrPermissionDenied)
		assert.Zero(t, h.repo.writeCount())
	})

	t.Run("storage failure is retryable", func(t *testing.T) {
		h := newHarness(t)
		h.repo.conflict("main.go", twoRegions)
		sess := resolved(t, h, "main.go")
		h.repo.writeErr = errors.New("disk full")

		_, err := h.svc.CommitSession(ctx, sess.ID, "alice")
		require.ErrorIs(t, err, ErrStorageFailure)

		var commitErr *CommitError
		require.ErrorAs(t, err, &commitErr)
		assert.True(t, commitErr.Retryable())

		h.repo.writeErr = nil
		result, err := h.svc.CommitSession(ctx, sess.ID, "alice")
		require.NoError(t, err)
		assert.NotEmpty(t, result.CommitID)
	})

	t.Run("cancelled context writes nothing", func(t *testing.T) {
		h := newHarness(t)
		h.repo.conflict("main.go", twoRegions)
		sess := resolved(t, h, "main.go")

		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, err := h.svc.CommitSession(cctx, sess.ID, "alice")
		require.ErrorIs(t, err, context.Canceled)
		assert.Zero(t, h.repo.writeCount())

		got, err := h.svc.Lookup(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, session.StateResolved, got.State)
	})

	t.Run("merge commit waits for every file", func(t *testing.T) {
		h := newHarness(t)
		h.repo.message = "Merge branch 'feature'"
		h.repo.conflict("a.go", oneRegion)
		h.repo.conflict("b.go", twoRegions)

		a := resolved(t, h, "a.go")
		b := resolved(t, h, "b.go")

		first, err := h.svc.CommitSession(ctx, a.ID, "alice")
		require.NoError(t, err)
		assert.Empty(t, first.CommitID)
		assert.Equal(t, []string{"b.go"}, first.Pending)
		assert.Empty(t, h.repo.commits)

		_, err = h.svc.Finalize(ctx, "alice", testRepo)
		require.ErrorIs(t, err, ErrIncompleteMergeSet)

		second, err := h.svc.CommitSession(ctx, b.ID, "alice")
		require.NoError(t, err)
		assert.Equal(t, "commit-1", second.CommitID)

		require.Len(t, h.repo.commits, 1)
		commit := h.repo.commits[0]
		assert.Equal(t, "Merge branch 'feature'", commit.Message)
		require.Len(t, commit.Staged, 2)
		for _, f := range commit.Staged {
			assert.True(t, f.Staged)
			assert.NotEmpty(t, f.BlobID)
		}
	})

	t.Run("failed merge commit is finalized later", func(t *testing.T) {
		h := newHarness(t)
		h.repo.conflict("main.go", twoRegions)
		sess := resolved(t, h, "main.go")
		h.repo.commitErr = errors.New("index.lock exists")

		result, err := h.svc.CommitSession(ctx, sess.ID, "alice")
		require.ErrorIs(t, err, ErrStorageFailure)
		assert.NotEmpty(t, result.BlobID, "file was staged")

		_, err = h.svc.Lookup(ctx, sess.ID)
		require.ErrorIs(t, err, session.ErrNotFound, "staged file finishes the session")

		h.repo.commitErr = nil
		final, err := h.svc.Finalize(ctx, "alice", testRepo)
		require.NoError(t, err)
		assert.Equal(t, "commit-1", final.CommitID)
	})

	t.Run("without a merge in progress the file is only staged", func(t *testing.T) {
		h := newHarness(t)
		h.repo.noMerge = true
		h.repo.conflict("main.go", twoRegions)
		sess := resolved(t, h, "main.go")

		result, err := h.svc.CommitSession(ctx, sess.ID, "alice")
		require.NoError(t, err)
		assert.NotEmpty(t, result.BlobID)
		assert.Empty(t, result.CommitID)
		assert.Empty(t, h.repo.commits)
	})

	t.Run("stale session", func(t *testing.T) {
		h := newHarness(t)
		h.repo.conflict("main.go", twoRegions)
		sess := resolved(t, h, "main.go")

		h.repo.write("main.go", "rewritten\n")
		stale, err := h.svc.CheckStale(ctx, sess.ID)
		require.NoError(t, err)
		assert.True(t, stale)

		_, err = h.svc.CommitSession(ctx, sess.ID, "alice")
		require.ErrorIs(t, err, session.ErrNotFound)
	})
}

func TestDiscardSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.repo.conflict("main.go", twoRegions)
	sess := h.open(t, "main.go")

	require.NoError(t, h.svc.DiscardSession(ctx, sess.ID))
	assert.Zero(t, h.sessions.count())
	assert.Zero(t, h.repo.writeCount())

	discarded := testbus.FindPayload[eventbus.SessionDiscardedPayload](h.bus, t, eventbus.EventSessionDiscarded)
	assert.Equal(t, sess.ID, discarded.SessionID)

	require.ErrorIs(t, h.svc.DiscardSession(ctx, sess.ID), session.ErrNotFound)
}

func TestCheckStale_Unchanged(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.repo.conflict("main.go", twoRegions)
	sess := h.open(t, "main.go")

	stale, err := h.svc.CheckStale(ctx, sess.ID)
	require.NoError(t, err)
	assert.False(t, stale)
	assert.Equal(t, 1, h.sessions.count())
}

func TestCheckStale_CommitInFlight(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.repo.conflict("main.go", oneRegion)
	sess := h.open(t, "main.go")

	_, err := h.svc.ApplyResolution(ctx, sess.ID, 0, conflict.AcceptCurrent)
	require.NoError(t, err)

	// another process wrote the resolved output but has not staged it yet
	h.repo.write("main.go", "int main() {\nint x = 1;\nreturn x;\n}\n")

	stale, err := h.svc.CheckStale(ctx, sess.ID)
	require.NoError(t, err)
	assert.False(t, stale)

	kept, err := h.svc.Lookup(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StateResolved, kept.State)
}

func TestCheckStale_UnrelatedChange(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.repo.conflict("main.go", oneRegion)
	sess := h.open(t, "main.go")

	_, err := h.svc.ApplyResolution(ctx, sess.ID, 0, conflict.AcceptCurrent)
	require.NoError(t, err)

	h.repo.write("main.go", "int main() {\nint x = 3;\nreturn x;\n}\n")

	stale, err := h.svc.CheckStale(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, stale)
	h.bus.AssertPublished(t, eventbus.EventSessionStale)
}

func TestList(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.repo.conflict("a.go", oneRegion)
	h.repo.conflict("b.go", twoRegions)
	h.open(t, "a.go")
	b := h.open(t, "b.go")
	_, err := h.svc.ApplyResolution(ctx, b.ID, 0, conflict.AcceptCurrent)
	require.NoError(t, err)

	all, err := h.svc.List(ctx, session.ListFilter{RepositoryID: testRepo})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	partial, err := h.svc.List(ctx, session.ListFilter{State: session.StatePartiallyResolved})
	require.NoError(t, err)
	require.Len(t, partial, 1)
	assert.Equal(t, "b.go", partial[0].FilePath)

	found, err := h.svc.Find(ctx, testRepo, "a.go")
	require.NoError(t, err)
	assert.Equal(t, "a.go", found.FilePath)
}
