package git

import (
	"context"
	"fmt"
	"strings"

	"github.com/bluekeyes/go-gitdiff/gitdiff"
)

// FileStat is the line summary of one staged file.
type FileStat struct {
	Path      string `json:"path"`
	Added     int64  `json:"added"`
	Deleted   int64  `json:"deleted"`
	Binary    bool   `json:"binary,omitempty"`
	IsNew     bool   `json:"is_new,omitempty"`
	IsDeleted bool   `json:"is_deleted,omitempty"`
}

// StagedStats retrieves the staged diff against HEAD and summarizes it per
// file. Unmerged paths are not part of the staged diff.
func (e *Executor) StagedStats(ctx context.Context, repoID string) ([]FileStat, error) {
	out, err := e.git(ctx, repoID, "diff", "--cached", "--no-color", "--no-ext-diff", "HEAD")
	if err != nil {
		return nil, err
	}
	return ParseStats(out)
}

// ParseStats summarizes a unified git diff.
func ParseStats(diff string) ([]FileStat, error) {
	if strings.TrimSpace(diff) == "" {
		return nil, nil
	}

	files, _, err := gitdiff.Parse(strings.NewReader(diff))
	if err != nil {
		return nil, fmt.Errorf("parse diff: %w", err)
	}

	stats := make([]FileStat, 0, len(files))
	for _, f := range files {
		st := FileStat{
			Path:      f.NewName,
			Binary:    f.IsBinary,
			IsNew:     f.IsNew,
			IsDeleted: f.IsDelete,
		}
		if f.IsDelete {
			st.Path = f.OldName
		}
		for _, frag := range f.TextFragments {
			st.Added += frag.LinesAdded
			st.Deleted += frag.LinesDeleted
		}
		stats = append(stats, st)
	}
	return stats, nil
}
