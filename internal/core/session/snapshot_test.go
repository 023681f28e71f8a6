package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colonyops/mend/internal/core/conflict"
)

func TestSnapshotRestore(t *testing.T) {
	s := newTwo(t)
	_, err := s.Apply(1, conflict.Custom{Text: "merged\n"}, t1)
	require.NoError(t, err)

	snap := s.Snapshot()
	assert.Equal(t, StatePartiallyResolved, snap.State)
	assert.Equal(t, conflict.DefaultMarkerSize, snap.MarkerSize)
	require.Equal(t, []StoredResolution{{Index: 1, Kind: conflict.KindCustom, Text: "merged\n"}}, snap.Resolutions)

	restored, err := Restore(snap)
	require.NoError(t, err)
	assert.Equal(t, s.ID, restored.ID)
	assert.Equal(t, s.State, restored.State)
	assert.Equal(t, []int{0}, restored.Unresolved())

	state, err := restored.Apply(0, conflict.AcceptCurrent, t1)
	require.NoError(t, err)
	assert.Equal(t, StateResolved, state)

	out, ok := restored.Output()
	require.True(t, ok)
	assert.Equal(t, "top\nint x = 1;\nmiddle\nmerged\nbottom\n", out.Text)
}

func TestRestore_ResolvedRebuildsOutput(t *testing.T) {
	s := newTwo(t)
	_, err := s.ApplyAll(conflict.AcceptIncoming, t1)
	require.NoError(t, err)

	restored, err := Restore(s.Snapshot())
	require.NoError(t, err)
	assert.Equal(t, StateResolved, restored.State)

	want, _ := s.Output()
	got, ok := restored.Output()
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestRestore_StaleCarriedOver(t *testing.T) {
	s := newTwo(t)
	require.NoError(t, s.MarkStale(t1))

	restored, err := Restore(s.Snapshot())
	require.NoError(t, err)
	assert.Equal(t, StateStale, restored.State)
}

func TestRestore_Rejects(t *testing.T) {
	base := newTwo(t).Snapshot()

	tests := []struct {
		name   string
		mutate func(*Snapshot)
	}{
		{"unparseable raw", func(s *Snapshot) { s.Raw = "<<<<<<< HEAD\n" }},
		{"region out of range", func(s *Snapshot) {
			s.Resolutions = []StoredResolution{{Index: 5, Kind: conflict.KindAcceptBoth}}
		}},
		{"unknown kind", func(s *Snapshot) {
			s.Resolutions = []StoredResolution{{Index: 0, Kind: "pick_one"}}
		}},
		{"state mismatch", func(s *Snapshot) { s.State = StateResolved }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := base
			tt.mutate(&snap)
			_, err := Restore(snap)
			assert.Error(t, err)
		})
	}
}
