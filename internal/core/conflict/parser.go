package conflict

import (
	"fmt"
	"strings"
)

// DefaultMarkerSize is the marker length git writes unless the
// conflict-marker-size attribute says otherwise.
const DefaultMarkerSize = 7

// binarySniffLen matches git's heuristic: a NUL in the first 8000 bytes
// marks the content as binary.
const binarySniffLen = 8000

type parseOptions struct {
	markerSize      int
	expectConflicts bool
}

// ParseOption configures Parse.
type ParseOption func(*parseOptions)

// WithMarkerSize sets the marker length. Values below 1 keep the default.
func WithMarkerSize(n int) ParseOption {
	return func(o *parseOptions) {
		if n > 0 {
			o.markerSize = n
		}
	}
}

// ExpectConflicts makes Parse fail with ErrEmpty when no region is found.
func ExpectConflicts() ParseOption {
	return func(o *parseOptions) {
		o.expectConflicts = true
	}
}

type markerKind int

const (
	markerNone markerKind = iota
	markerStart
	markerBase
	markerMid
	markerEnd
)

func (k markerKind) String() string {
	switch k {
	case markerStart:
		return "start"
	case markerBase:
		return "base"
	case markerMid:
		return "separator"
	case markerEnd:
		return "terminator"
	default:
		return "none"
	}
}

type markerSet struct {
	start string
	base  string
	mid   string
	end   string
}

func newMarkerSet(size int) markerSet {
	return markerSet{
		start: strings.Repeat("<", size),
		base:  strings.Repeat("|", size),
		mid:   strings.Repeat("=", size),
		end:   strings.Repeat(">", size),
	}
}

// classify reports which marker a line is, if any, and the label after it.
// Markers sit at column 0 and are either the bare token or the token
// followed by a space and a label. The separator never carries a label.
func (m markerSet) classify(line string) (markerKind, string) {
	l := strings.TrimSuffix(line, "\r")
	if l == m.mid {
		return markerMid, ""
	}

	for _, tok := range []struct {
		kind  markerKind
		token string
	}{
		{markerStart, m.start},
		{markerBase, m.base},
		{markerEnd, m.end},
	} {
		if l == tok.token {
			return tok.kind, ""
		}
		if strings.HasPrefix(l, tok.token+" ") {
			return tok.kind, strings.TrimSpace(l[len(tok.token)+1:])
		}
	}

	return markerNone, ""
}

type parseState int

const (
	inContext parseState = iota
	inCurrent
	inBase
	inIncoming
)

// Parse splits conflict-marked text into context and conflict segments,
// preserving order. Text without markers parses to a single context segment
// unless ExpectConflicts is given.
func Parse(raw string, opts ...ParseOption) (Document, error) {
	o := parseOptions{markerSize: DefaultMarkerSize}
	for _, opt := range opts {
		opt(&o)
	}

	markers := newMarkerSet(o.markerSize)
	lines, trailing := splitLines(raw)

	doc := Document{
		TrailingNewline: trailing,
		MarkerSize:      o.markerSize,
	}

	var (
		state   = inContext
		context []string
		cur     Region
		count   int
	)

	flush := func() {
		if len(context) > 0 {
			doc.Segments = append(doc.Segments, ContextSegment{Lines: context})
			context = nil
		}
	}

	for i, line := range lines {
		lineNo := i + 1
		kind, label := markers.classify(line)

		switch state {
		case inContext:
			switch kind {
			case markerNone:
				context = append(context, line)
			case markerStart:
				flush()
				cur = Region{
					Index:        count,
					Current:      []string{},
					Incoming:     []string{},
					CurrentLabel: label,
					StartLine:    lineNo,
					MarkerSize:   o.markerSize,
				}
				state = inCurrent
			default:
				return Document{}, malformed(lineNo, "%s marker outside a conflict", kind)
			}

		case inCurrent:
			switch kind {
			case markerNone:
				cur.Current = append(cur.Current, line)
			case markerBase:
				cur.HasBase = true
				cur.BaseLabel = label
				cur.Base = []string{}
				state = inBase
			case markerMid:
				state = inIncoming
			case markerStart:
				return Document{}, malformed(lineNo, "nested conflict inside region starting at line %d", cur.StartLine)
			default:
				return Document{}, malformed(lineNo, "terminator before separator")
			}

		case inBase:
			switch kind {
			case markerNone:
				cur.Base = append(cur.Base, line)
			case markerMid:
				state = inIncoming
			case markerStart:
				return Document{}, malformed(lineNo, "nested conflict inside region starting at line %d", cur.StartLine)
			case markerBase:
				return Document{}, malformed(lineNo, "duplicate base marker")
			default:
				return Document{}, malformed(lineNo, "terminator before separator")
			}

		case inIncoming:
			switch kind {
			case markerNone:
				cur.Incoming = append(cur.Incoming, line)
			case markerEnd:
				cur.IncomingLabel = label
				doc.Segments = append(doc.Segments, ConflictSegment{Region: cur})
				count++
				state = inContext
			case markerStart:
				return Document{}, malformed(lineNo, "nested conflict inside region starting at line %d", cur.StartLine)
			case markerBase:
				return Document{}, malformed(lineNo, "base marker after separator")
			default:
				return Document{}, malformed(lineNo, "duplicate separator")
			}
		}
	}

	if state != inContext {
		return Document{}, malformed(cur.StartLine, "conflict has no terminator")
	}
	flush()

	if count == 0 && o.expectConflicts {
		return Document{}, &ParseError{Reason: "file has no conflict markers", Err: ErrEmpty}
	}

	linkContext(doc.Segments)

	return doc, nil
}

// linkContext fills each region's bordering context from its neighbours.
func linkContext(segments []Segment) {
	for i, seg := range segments {
		c, ok := seg.(ConflictSegment)
		if !ok {
			continue
		}
		if i > 0 {
			if prev, ok := segments[i-1].(ContextSegment); ok {
				c.Region.Preceding = prev.Lines
			}
		}
		if i+1 < len(segments) {
			if next, ok := segments[i+1].(ContextSegment); ok {
				c.Region.Following = next.Lines
			}
		}
		segments[i] = c
	}
}

func malformed(line int, format string, args ...any) error {
	return &ParseError{Line: line, Reason: fmt.Sprintf(format, args...), Err: ErrMalformed}
}

// IsBinary reports whether content looks binary.
func IsBinary(content string) bool {
	n := len(content)
	if n > binarySniffLen {
		n = binarySniffLen
	}
	return strings.IndexByte(content[:n], 0) >= 0
}

// splitLines splits on "\n" and reports whether text ended with one.
func splitLines(text string) ([]string, bool) {
	if text == "" {
		return nil, false
	}
	trailing := strings.HasSuffix(text, "\n")
	if trailing {
		text = text[:len(text)-1]
	}
	return strings.Split(text, "\n"), trailing
}

// joinLines is the inverse of splitLines.
func joinLines(lines []string, trailing bool) string {
	if len(lines) == 0 {
		return ""
	}
	out := strings.Join(lines, "\n")
	if trailing {
		out += "\n"
	}
	return out
}
