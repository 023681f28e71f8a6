package conflict

import (
	"fmt"
	"strings"
)

// Kind names a resolution variant. It is the stored and wire form.
type Kind string

const (
	KindAcceptCurrent  Kind = "accept_current"
	KindAcceptIncoming Kind = "accept_incoming"
	KindAcceptBoth     Kind = "accept_both"
	KindCustom         Kind = "custom"
)

// Resolution is the choice applied to one region. The set of variants is
// closed: AcceptCurrent, AcceptIncoming, AcceptBoth, and Custom.
type Resolution interface {
	Kind() Kind
	isResolution()
}

type acceptCurrent struct{}

type acceptIncoming struct{}

type acceptBoth struct{}

// Custom replaces the region with caller-supplied text. A single trailing
// newline is ignored; an empty Text deletes the region.
type Custom struct {
	Text string
}

var (
	// AcceptCurrent keeps the current (ours) side.
	AcceptCurrent Resolution = acceptCurrent{}
	// AcceptIncoming keeps the incoming (theirs) side.
	AcceptIncoming Resolution = acceptIncoming{}
	// AcceptBoth keeps current followed by incoming. Base is dropped.
	AcceptBoth Resolution = acceptBoth{}
)

func (acceptCurrent) Kind() Kind  { return KindAcceptCurrent }
func (acceptIncoming) Kind() Kind { return KindAcceptIncoming }
func (acceptBoth) Kind() Kind     { return KindAcceptBoth }
func (Custom) Kind() Kind         { return KindCustom }

func (acceptCurrent) isResolution()  {}
func (acceptIncoming) isResolution() {}
func (acceptBoth) isResolution()     {}
func (Custom) isResolution()         {}

// ParseResolution builds a Resolution from its stored form. Text is only
// valid for KindCustom.
func ParseResolution(kind Kind, text string) (Resolution, error) {
	switch kind {
	case KindAcceptCurrent, KindAcceptIncoming, KindAcceptBoth:
		if text != "" {
			return nil, fmt.Errorf("resolution %s does not take text", kind)
		}
	}

	switch kind {
	case KindAcceptCurrent:
		return AcceptCurrent, nil
	case KindAcceptIncoming:
		return AcceptIncoming, nil
	case KindAcceptBoth:
		return AcceptBoth, nil
	case KindCustom:
		return Custom{Text: text}, nil
	default:
		return nil, fmt.Errorf("unknown resolution kind %q", kind)
	}
}

// ParseKind maps CLI shorthands (current, ours, incoming, theirs, both,
// custom) and stored kinds to a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "current", "ours", string(KindAcceptCurrent):
		return KindAcceptCurrent, nil
	case "incoming", "theirs", string(KindAcceptIncoming):
		return KindAcceptIncoming, nil
	case "both", string(KindAcceptBoth):
		return KindAcceptBoth, nil
	case string(KindCustom):
		return KindCustom, nil
	default:
		return "", fmt.Errorf("unknown resolution %q (want current, incoming, both, or custom)", s)
	}
}

// TextOf returns the custom text of r, or "" for payload-free variants.
func TextOf(r Resolution) string {
	if c, ok := r.(Custom); ok {
		return c.Text
	}
	return ""
}

// ResolvedSegment is the output of resolving one region.
type ResolvedSegment struct {
	Index      int
	Resolution Resolution
	Lines      []string
}

// Resolve applies r to region. It does not modify region.
func Resolve(region Region, r Resolution) (ResolvedSegment, error) {
	var lines []string

	switch v := r.(type) {
	case nil:
		return ResolvedSegment{}, ErrNoResolution
	case acceptCurrent:
		lines = cloneLines(region.Current)
	case acceptIncoming:
		lines = cloneLines(region.Incoming)
	case acceptBoth:
		lines = make([]string, 0, len(region.Current)+len(region.Incoming))
		lines = append(lines, region.Current...)
		lines = append(lines, region.Incoming...)
	case Custom:
		if err := ValidateCustom(v.Text, region.MarkerSize); err != nil {
			return ResolvedSegment{}, err
		}
		lines, _ = splitLines(v.Text)
	default:
		return ResolvedSegment{}, fmt.Errorf("unsupported resolution %T", r)
	}

	if lines == nil {
		lines = []string{}
	}

	return ResolvedSegment{
		Index:      region.Index,
		Resolution: r,
		Lines:      lines,
	}, nil
}

// markerTokens returns the line prefixes that custom text may not contain:
// the default-size tokens plus, when it differs, the configured size.
func markerTokens(markerSize int) []string {
	sizes := []int{DefaultMarkerSize}
	if markerSize > 0 && markerSize != DefaultMarkerSize {
		sizes = append(sizes, markerSize)
	}

	var tokens []string
	for _, n := range sizes {
		m := newMarkerSet(n)
		tokens = append(tokens, m.start, m.mid, m.end, m.base)
	}
	return tokens
}

// ValidateCustom rejects text with a line that begins with a conflict marker
// of the default size or of markerSize. Values below 1 check only the default.
func ValidateCustom(text string, markerSize int) error {
	tokens := markerTokens(markerSize)
	lines, _ := splitLines(text)
	for i, line := range lines {
		if tok := markerPrefix(line, tokens); tok != "" {
			return &ValidationError{Line: i + 1, Marker: tok}
		}
	}
	return nil
}

func markerPrefix(line string, tokens []string) string {
	for _, tok := range tokens {
		if strings.HasPrefix(line, tok) {
			return tok
		}
	}
	return ""
}
