package conflict

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMalformed is returned when conflict markers are unbalanced, nested,
	// out of order, or a region is missing its terminator.
	ErrMalformed = errors.New("malformed conflict markers")
	// ErrEmpty is returned when the caller expected conflicts but none were found.
	ErrEmpty = errors.New("no conflicts found")
	// ErrBinary is returned for content that looks like a binary file.
	ErrBinary = errors.New("binary content cannot be resolved")
	// ErrIndexOutOfRange is returned when a region index is outside [0, count).
	ErrIndexOutOfRange = errors.New("region index out of range")
	// ErrContainsConflictMarker is returned when custom text contains a marker line.
	ErrContainsConflictMarker = errors.New("resolution contains conflict marker")
	// ErrNoResolution is returned when a nil resolution is applied.
	ErrNoResolution = errors.New("no resolution given")
	// ErrIncompleteResolution is returned when assembling with unresolved regions.
	ErrIncompleteResolution = errors.New("incomplete resolution")
	// ErrResidualMarkers is returned when assembled output still contains markers.
	ErrResidualMarkers = errors.New("residual conflict markers in output")
)

// ParseError describes where parsing stopped. It matches ErrMalformed or
// ErrEmpty with errors.Is.
type ParseError struct {
	Line   int // 1-based, 0 when not tied to a line
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s: line %d: %s", e.Err, e.Line, e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Err, e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }

// IndexError reports a region index outside the valid range.
type IndexError struct {
	Index int
	Count int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("region %d out of range [0, %d)", e.Index, e.Count)
}

func (e *IndexError) Unwrap() error { return ErrIndexOutOfRange }

// ValidationError reports custom resolution text that was rejected.
type ValidationError struct {
	Line   int // 1-based line within the custom text
	Marker string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: line %d starts with %q", ErrContainsConflictMarker, e.Line, e.Marker)
}

func (e *ValidationError) Unwrap() error { return ErrContainsConflictMarker }

// AssemblyError blocks a file from being produced. Missing lists unresolved
// region indices; Residual lists 1-based output lines that still hold markers.
type AssemblyError struct {
	Missing  []int
	Residual []int
}

func (e *AssemblyError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("%s: regions %s have no resolution", ErrIncompleteResolution, joinInts(e.Missing))
	}
	return fmt.Sprintf("%s: lines %s", ErrResidualMarkers, joinInts(e.Residual))
}

func (e *AssemblyError) Unwrap() error {
	if len(e.Missing) > 0 {
		return ErrIncompleteResolution
	}
	return ErrResidualMarkers
}

func joinInts(ints []int) string {
	parts := make([]string, len(ints))
	for i, n := range ints {
		parts[i] = fmt.Sprint(n)
	}
	return strings.Join(parts, ", ")
}
