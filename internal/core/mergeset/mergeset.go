// Package mergeset tracks the conflicted files of one in-progress merge so the
// merge commit is only created once every file has been resolved and staged.
package mergeset

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no merge set exists.
	ErrNotFound = errors.New("merge set not found")
	// ErrUnknownFile is returned when a path is not part of the merge set.
	ErrUnknownFile = errors.New("file is not part of the merge set")
)

// State represents the lifecycle state of a merge set.
type State string

const (
	StateOpen      State = "open"
	StateCommitted State = "committed"
	StateAbandoned State = "abandoned"
)

// Parents are the two tips joined by the merge commit.
type Parents struct {
	Current  string `json:"current"`
	Incoming string `json:"incoming"`
}

// File is one conflicted path in the merge set.
type File struct {
	Path   string `json:"path"`
	BlobID string `json:"blob_id,omitempty"`
	Staged bool   `json:"staged"`
}

// MergeSet is the set of files that must all be resolved before the merge
// commit is created.
type MergeSet struct {
	ID           string    `json:"id"`
	RepositoryID string    `json:"repository_id"`
	Parents      Parents   `json:"parents"`
	Message      string    `json:"message,omitempty"`
	Files        []File    `json:"files"`
	CommitID     string    `json:"commit_id,omitempty"`
	State        State     `json:"state"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// File returns the entry for path.
func (m *MergeSet) File(path string) (File, bool) {
	for _, f := range m.Files {
		if f.Path == path {
			return f, true
		}
	}
	return File{}, false
}

// Pending returns the paths that are not staged yet, in set order.
func (m *MergeSet) Pending() []string {
	var out []string
	for _, f := range m.Files {
		if !f.Staged {
			out = append(out, f.Path)
		}
	}
	return out
}

// Complete reports whether every file is staged.
func (m *MergeSet) Complete() bool {
	return len(m.Files) > 0 && len(m.Pending()) == 0
}

// Staged returns the staged files in set order.
func (m *MergeSet) Staged() []File {
	var out []File
	for _, f := range m.Files {
		if f.Staged {
			out = append(out, f)
		}
	}
	return out
}

// Store defines the interface for merge set persistence.
type Store interface {
	// Create persists a new open merge set.
	// The store populates ID, State, CreatedAt, and UpdatedAt if not already set.
	Create(ctx context.Context, m *MergeSet) error

	// GetOpen returns the open merge set of a repository.
	// Returns ErrNotFound if there is none.
	GetOpen(ctx context.Context, repoID string) (MergeSet, error)

	// AddFile adds an unstaged path to a merge set. Adding a path twice is a no-op.
	AddFile(ctx context.Context, id, path string) error

	// MarkStaged records the blob staged for path.
	// Returns ErrUnknownFile if path is not in the set.
	MarkStaged(ctx context.Context, id, path, blobID string) error

	// MarkCommitted closes the merge set with the merge commit ID.
	MarkCommitted(ctx context.Context, id, commitID string) error

	// Abandon closes a merge set whose merge was aborted or replaced.
	Abandon(ctx context.Context, id string) error
}
