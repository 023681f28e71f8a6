// Package conflict parses conflict-marked text into regions, resolves regions,
// and assembles resolved files.
//
// Lines are stored without their "\n" terminator. A trailing "\r" stays part
// of the line so CRLF files reassemble byte for byte.
package conflict

// Region is one conflicted span of a file. Regions are never mutated after
// parsing.
type Region struct {
	Index    int
	Base     []string // nil unless the markers were diff3-style
	Current  []string
	Incoming []string

	// Preceding and Following are the unchanged lines bordering the region.
	Preceding []string
	Following []string

	CurrentLabel  string // text after <<<<<<<, usually HEAD
	BaseLabel     string // text after |||||||
	IncomingLabel string // text after >>>>>>>, the incoming ref
	HasBase       bool
	StartLine     int // 1-based line of the start marker
	MarkerSize    int // marker length the region was parsed with
}

// Segment is either a ContextSegment or a ConflictSegment.
type Segment interface {
	isSegment()
}

// ContextSegment holds unchanged lines.
type ContextSegment struct {
	Lines []string
}

// ConflictSegment holds a conflict region.
type ConflictSegment struct {
	Region Region
}

func (ContextSegment) isSegment()  {}
func (ConflictSegment) isSegment() {}

// Document is the ordered result of parsing one file.
type Document struct {
	Segments        []Segment
	TrailingNewline bool
	MarkerSize      int
}

// ConflictCount returns the number of conflict regions.
func (d Document) ConflictCount() int {
	n := 0
	for _, seg := range d.Segments {
		if _, ok := seg.(ConflictSegment); ok {
			n++
		}
	}
	return n
}

// Regions returns the conflict regions in index order.
func (d Document) Regions() []Region {
	regions := make([]Region, 0, len(d.Segments))
	for _, seg := range d.Segments {
		if c, ok := seg.(ConflictSegment); ok {
			regions = append(regions, c.Region)
		}
	}
	return regions
}

// Region returns the region at index.
func (d Document) Region(index int) (Region, error) {
	for _, seg := range d.Segments {
		if c, ok := seg.(ConflictSegment); ok && c.Region.Index == index {
			return c.Region, nil
		}
	}
	return Region{}, &IndexError{Index: index, Count: d.ConflictCount()}
}
