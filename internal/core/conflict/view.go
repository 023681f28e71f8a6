package conflict

// RegionView is the read-only three-way projection of one region.
type RegionView struct {
	Index         int      `json:"index"`
	Count         int      `json:"count"`
	Base          []string `json:"base"`
	Current       []string `json:"current"`
	Incoming      []string `json:"incoming"`
	Preceding     []string `json:"preceding,omitempty"`
	Following     []string `json:"following,omitempty"`
	CurrentLabel  string   `json:"current_label,omitempty"`
	BaseLabel     string   `json:"base_label,omitempty"`
	IncomingLabel string   `json:"incoming_label,omitempty"`
	HasBase       bool     `json:"has_base"`
	StartLine     int      `json:"start_line"`
}

// View returns the three slices of the region at index for display.
// The returned slices are copies; callers cannot alter the document.
func (d Document) View(index int) (RegionView, error) {
	count := d.ConflictCount()
	if index < 0 || index >= count {
		return RegionView{}, &IndexError{Index: index, Count: count}
	}

	r, err := d.Region(index)
	if err != nil {
		return RegionView{}, err
	}

	return RegionView{
		Index:         r.Index,
		Count:         count,
		Base:          cloneLines(r.Base),
		Current:       cloneLines(r.Current),
		Incoming:      cloneLines(r.Incoming),
		Preceding:     cloneLines(r.Preceding),
		Following:     cloneLines(r.Following),
		CurrentLabel:  r.CurrentLabel,
		BaseLabel:     r.BaseLabel,
		IncomingLabel: r.IncomingLabel,
		HasBase:       r.HasBase,
		StartLine:     r.StartLine,
	}, nil
}

func cloneLines(lines []string) []string {
	if lines == nil {
		return nil
	}
	out := make([]string, len(lines))
	copy(out, lines)
	return out
}
