package session

import "context"

// ListFilter controls which sessions are returned by List.
type ListFilter struct {
	RepositoryID string // empty means all repositories
	State        State  // empty means all states
}

// Store defines the interface for session persistence.
type Store interface {
	// Save creates or replaces the session.
	Save(ctx context.Context, s *Session) error

	// Get returns a session by ID.
	// Returns ErrNotFound if the session does not exist.
	Get(ctx context.Context, id string) (*Session, error)

	// FindOpen returns the non-terminal session for a file, if any.
	// Returns ErrNotFound if there is none.
	FindOpen(ctx context.Context, repoID, path string) (*Session, error)

	// List returns sessions matching the filter, ordered by created_at DESC.
	List(ctx context.Context, filter ListFilter) ([]*Session, error)

	// Delete removes a session and its resolutions.
	// Returns ErrNotFound if the session does not exist.
	Delete(ctx context.Context, id string) error
}
