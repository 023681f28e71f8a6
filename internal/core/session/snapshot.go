package session

import (
	"fmt"
	"time"

	"github.com/colonyops/mend/internal/core/conflict"
)

// StoredResolution is the persisted form of one region's resolution.
type StoredResolution struct {
	Index int           `json:"index"`
	Kind  conflict.Kind `json:"kind"`
	Text  string        `json:"text,omitempty"`
}

// Snapshot is everything needed to rebuild a session. The parsed document is
// not stored; Restore re-parses Raw.
type Snapshot struct {
	ID           string             `json:"id"`
	RepositoryID string             `json:"repository_id"`
	FilePath     string             `json:"file_path"`
	Fingerprint  Fingerprint        `json:"fingerprint"`
	State        State              `json:"state"`
	Raw          string             `json:"raw"`
	MarkerSize   int                `json:"marker_size"`
	Resolutions  []StoredResolution `json:"resolutions,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// Snapshot captures the session for persistence.
func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{
		ID:           s.ID,
		RepositoryID: s.RepositoryID,
		FilePath:     s.FilePath,
		Fingerprint:  s.Fingerprint,
		State:        s.State,
		Raw:          s.raw,
		MarkerSize:   s.doc.MarkerSize,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}

	for _, idx := range s.resolvedIndices() {
		r := s.resolved[idx].Resolution
		snap.Resolutions = append(snap.Resolutions, StoredResolution{
			Index: idx,
			Kind:  r.Kind(),
			Text:  conflict.TextOf(r),
		})
	}

	return snap
}

// Restore rebuilds a session from a snapshot. Resolutions are re-applied
// through the resolution engine, so a snapshot whose stored state disagrees
// with its resolutions is rejected.
func Restore(snap Snapshot) (*Session, error) {
	doc, err := conflict.Parse(snap.Raw, conflict.WithMarkerSize(snap.MarkerSize))
	if err != nil {
		return nil, fmt.Errorf("restore session %s: %w", snap.ID, err)
	}

	s := &Session{
		ID:           snap.ID,
		RepositoryID: snap.RepositoryID,
		FilePath:     snap.FilePath,
		Fingerprint:  snap.Fingerprint,
		CreatedAt:    snap.CreatedAt,
		UpdatedAt:    snap.UpdatedAt,
		raw:          snap.Raw,
		doc:          doc,
		resolved:     make(map[int]conflict.ResolvedSegment, len(snap.Resolutions)),
	}

	for _, sr := range snap.Resolutions {
		r, err := conflict.ParseResolution(sr.Kind, sr.Text)
		if err != nil {
			return nil, fmt.Errorf("restore session %s: region %d: %w", snap.ID, sr.Index, err)
		}
		region, err := doc.Region(sr.Index)
		if err != nil {
			return nil, fmt.Errorf("restore session %s: %w", snap.ID, err)
		}
		seg, err := conflict.Resolve(region, r)
		if err != nil {
			return nil, fmt.Errorf("restore session %s: region %d: %w", snap.ID, sr.Index, err)
		}
		s.resolved[sr.Index] = seg
	}

	// settle derives the live state from the resolutions; terminal states
	// are carried over as stored.
	if _, err := s.settle(snap.UpdatedAt); err != nil && snap.State == StateResolved {
		return nil, fmt.Errorf("restore session %s: %w", snap.ID, err)
	}
	if snap.State.Terminal() {
		s.State = snap.State
	} else if s.State != snap.State {
		return nil, fmt.Errorf("restore session %s: stored state %s does not match resolutions (%s)", snap.ID, snap.State, s.State)
	}

	return s, nil
}
