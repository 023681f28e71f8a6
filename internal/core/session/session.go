// Package session defines the conflict session domain: one file's parsed
// regions, the resolutions applied to them, and the lifecycle that gates
// commit.
package session

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/colonyops/mend/internal/core/conflict"
)

// State represents the lifecycle state of a session.
type State string

const (
	StateUnresolved        State = "unresolved"
	StatePartiallyResolved State = "partially_resolved"
	StateResolved          State = "resolved"
	StateCommitted         State = "committed"
	StateStale             State = "stale"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateCommitted || s == StateStale
}

// ParseState validates a stored state string.
func ParseState(s string) (State, error) {
	switch st := State(s); st {
	case StateUnresolved, StatePartiallyResolved, StateResolved, StateCommitted, StateStale:
		return st, nil
	default:
		return "", fmt.Errorf("unknown session state %q", s)
	}
}

// Fingerprint identifies the exact content of a blob. Any change to the blob
// changes its fingerprint.
type Fingerprint string

var (
	// ErrNotFound is returned when a session does not exist.
	ErrNotFound = errors.New("session not found")
	// ErrInvalidTransition is returned when an operation is not allowed in
	// the session's current state.
	ErrInvalidTransition = errors.New("invalid session transition")
	// ErrStale is returned when the underlying blob changed after the session
	// was opened. Stale sessions are never repaired.
	ErrStale = errors.New("session is stale")
)

// TransitionError describes a rejected operation.
type TransitionError struct {
	From State
	Op   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: cannot %s a %s session", ErrInvalidTransition, e.Op, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// Session tracks the resolution of a single conflicted file.
//
// A Session is not safe for concurrent mutation. Readers that only call View
// may run concurrently with each other.
type Session struct {
	ID           string      `json:"id"`
	RepositoryID string      `json:"repository_id"`
	FilePath     string      `json:"file_path"`
	Fingerprint  Fingerprint `json:"fingerprint"`
	State        State       `json:"state"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`

	raw      string
	doc      conflict.Document
	resolved map[int]conflict.ResolvedSegment
	output   *conflict.ResolvedFile
}

// New parses raw and returns an unresolved session. A file without regions
// (only possible when the caller did not ask for ExpectConflicts) starts out
// resolved since its assembled output is the input.
func New(repoID, path, raw string, fp Fingerprint, now time.Time, opts ...conflict.ParseOption) (*Session, error) {
	doc, err := conflict.Parse(raw, opts...)
	if err != nil {
		return nil, err
	}

	s := &Session{
		ID:           uuid.NewString(),
		RepositoryID: repoID,
		FilePath:     path,
		Fingerprint:  fp,
		State:        StateUnresolved,
		CreatedAt:    now,
		UpdatedAt:    now,
		raw:          raw,
		doc:          doc,
		resolved:     make(map[int]conflict.ResolvedSegment),
	}

	if doc.ConflictCount() == 0 {
		if _, err := s.settle(now); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Count returns the number of conflict regions.
func (s *Session) Count() int {
	return s.doc.ConflictCount()
}

// Document returns the parsed document.
func (s *Session) Document() conflict.Document {
	return s.doc
}

// Raw returns the conflicted text the session was opened from.
func (s *Session) Raw() string {
	return s.raw
}

// View returns the three-way view of the region at index.
func (s *Session) View(index int) (conflict.RegionView, error) {
	if s.State == StateStale {
		return conflict.RegionView{}, ErrStale
	}
	return s.doc.View(index)
}

// Resolution returns the resolution applied to the region at index.
func (s *Session) Resolution(index int) (conflict.Resolution, bool) {
	seg, ok := s.resolved[index]
	if !ok {
		return nil, false
	}
	return seg.Resolution, true
}

// ResolvedCount returns how many regions have a resolution.
func (s *Session) ResolvedCount() int {
	return len(s.resolved)
}

// Unresolved returns the indices of regions without a resolution, ascending.
func (s *Session) Unresolved() []int {
	var out []int
	for i := range s.Count() {
		if _, ok := s.resolved[i]; !ok {
			out = append(out, i)
		}
	}
	return out
}

// Output returns the assembled file. It is only available once the session
// is resolved.
func (s *Session) Output() (conflict.ResolvedFile, bool) {
	if s.output == nil || (s.State != StateResolved && s.State != StateCommitted) {
		return conflict.ResolvedFile{}, false
	}
	return *s.output, true
}

// Apply resolves the region at index. Applying to an already resolved region
// overwrites it. When the last region is resolved the file is assembled; an
// assembly failure keeps the session partially resolved and is returned.
// Validation failures leave the session untouched.
func (s *Session) Apply(index int, r conflict.Resolution, now time.Time) (State, error) {
	if s.State.Terminal() {
		return s.State, s.transitionErr("apply")
	}

	region, err := s.doc.Region(index)
	if err != nil {
		return s.State, err
	}

	seg, err := conflict.Resolve(region, r)
	if err != nil {
		return s.State, err
	}

	s.resolved[index] = seg
	return s.settle(now)
}

// ApplyAll applies r to every unresolved region. Custom text is refused since
// a single replacement rarely fits more than one region.
func (s *Session) ApplyAll(r conflict.Resolution, now time.Time) (State, error) {
	if s.State.Terminal() {
		return s.State, s.transitionErr("apply")
	}
	if r == nil {
		return s.State, conflict.ErrNoResolution
	}
	if r.Kind() == conflict.KindCustom {
		return s.State, fmt.Errorf("custom resolutions must be applied per region")
	}

	segs := make(map[int]conflict.ResolvedSegment)
	for _, idx := range s.Unresolved() {
		region, err := s.doc.Region(idx)
		if err != nil {
			return s.State, err
		}
		seg, err := conflict.Resolve(region, r)
		if err != nil {
			return s.State, err
		}
		segs[idx] = seg
	}

	for idx, seg := range segs {
		s.resolved[idx] = seg
	}
	return s.settle(now)
}

// Clear removes the resolution of the region at index.
func (s *Session) Clear(index int, now time.Time) (State, error) {
	if s.State.Terminal() {
		return s.State, s.transitionErr("clear")
	}
	if _, err := s.doc.Region(index); err != nil {
		return s.State, err
	}

	delete(s.resolved, index)
	return s.settle(now)
}

// MarkStale invalidates the session. Only non-terminal sessions can go stale.
func (s *Session) MarkStale(now time.Time) error {
	if s.State.Terminal() {
		return s.transitionErr("invalidate")
	}
	s.State = StateStale
	s.UpdatedAt = now
	return nil
}

// MarkCommitted records a successful commit. Only resolved sessions can be
// committed.
func (s *Session) MarkCommitted(now time.Time) error {
	if s.State != StateResolved || s.output == nil {
		return s.transitionErr("commit")
	}
	s.State = StateCommitted
	s.UpdatedAt = now
	return nil
}

// settle recomputes the state after the set of resolutions changed.
func (s *Session) settle(now time.Time) (State, error) {
	s.UpdatedAt = now
	s.output = nil

	switch {
	case s.Count() > 0 && len(s.resolved) == 0:
		s.State = StateUnresolved
		return s.State, nil
	case len(s.resolved) < s.Count():
		s.State = StatePartiallyResolved
		return s.State, nil
	}

	if err := s.assemble(); err != nil {
		s.State = StatePartiallyResolved
		return s.State, err
	}
	return s.State, nil
}

func (s *Session) assemble() error {
	file, err := conflict.NewResolvedFile(s.doc, s.resolved)
	if err != nil {
		return err
	}
	s.output = &file
	s.State = StateResolved
	return nil
}

func (s *Session) transitionErr(op string) error {
	if s.State == StateStale {
		return fmt.Errorf("%w: %w", ErrStale, &TransitionError{From: s.State, Op: op})
	}
	return &TransitionError{From: s.State, Op: op}
}

// resolvedIndices returns the resolved region indices, ascending.
func (s *Session) resolvedIndices() []int {
	out := make([]int, 0, len(s.resolved))
	for idx := range s.resolved {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}
