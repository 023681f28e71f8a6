package conflict

import "fmt"

// Assemble walks the document in order, emitting context unchanged and each
// region's resolved lines in its place. It never returns partial text: any
// region without an entry in resolved fails the whole assembly.
//
// After splicing, lines that came from custom text are rescanned for marker
// prefixes of the default and the document's marker size. Context lines and
// lines taken from a region's sides are exempt since the parser already
// classified them as content.
func Assemble(doc Document, resolved map[int]ResolvedSegment) (string, error) {
	var missing []int
	for _, r := range doc.Regions() {
		if _, ok := resolved[r.Index]; !ok {
			missing = append(missing, r.Index)
		}
	}
	if len(missing) > 0 {
		return "", &AssemblyError{Missing: missing}
	}

	var (
		lines    []string
		residual []int
		tokens   = markerTokens(doc.MarkerSize)
	)
	for _, seg := range doc.Segments {
		switch s := seg.(type) {
		case ContextSegment:
			lines = append(lines, s.Lines...)
		case ConflictSegment:
			rs := resolved[s.Region.Index]
			rescan := rs.Resolution == nil || rs.Resolution.Kind() == KindCustom
			for _, line := range rs.Lines {
				lines = append(lines, line)
				if rescan && markerPrefix(line, tokens) != "" {
					residual = append(residual, len(lines))
				}
			}
		default:
			return "", fmt.Errorf("unknown segment %T", seg)
		}
	}

	if len(residual) > 0 {
		return "", &AssemblyError{Residual: residual}
	}

	return joinLines(lines, doc.TrailingNewline), nil
}

// ResolvedFile is an assembled file and the per-region resolutions, in
// region order, that produced it.
type ResolvedFile struct {
	Text        string
	Resolutions []Resolution
}

// NewResolvedFile assembles doc and captures the resolutions used.
func NewResolvedFile(doc Document, resolved map[int]ResolvedSegment) (ResolvedFile, error) {
	text, err := Assemble(doc, resolved)
	if err != nil {
		return ResolvedFile{}, err
	}

	resolutions := make([]Resolution, doc.ConflictCount())
	for i := range resolutions {
		resolutions[i] = resolved[i].Resolution
	}

	return ResolvedFile{Text: text, Resolutions: resolutions}, nil
}
