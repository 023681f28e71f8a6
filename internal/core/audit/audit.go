// Package audit defines the audit trail: actions taken on conflict sessions
// and merges, who took them, and where they are recorded.
package audit

import (
	"context"
	"time"
)

// Action classifies an audit entry.
type Action string

const (
	ActionSessionOpened     Action = "session.opened"
	ActionSessionDiscarded  Action = "session.discarded"
	ActionSessionStale      Action = "session.stale"
	ActionResolutionApplied Action = "resolution.applied"
	ActionResolutionCleared Action = "resolution.cleared"
	ActionCommitSucceeded   Action = "commit.succeeded"
	ActionCommitFailed      Action = "commit.failed"
	ActionMergeCommitted    Action = "merge.committed"
)

// Entry is a single recorded action.
type Entry struct {
	ID          int64             `json:"id"`
	Action      Action            `json:"action"`
	Description string            `json:"description"`
	Data        map[string]string `json:"data,omitempty"`
	UserID      string            `json:"user_id,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Logger records actions. Implementations must not block the caller and
// never report failure; a lost audit entry must not fail a merge.
type Logger interface {
	LogAction(action Action, description string, data map[string]string, userID string)
}

// Nop is a Logger that discards everything.
type Nop struct{}

func (Nop) LogAction(Action, string, map[string]string, string) {}

// ListFilter controls which entries are returned by List.
type ListFilter struct {
	Action Action // empty means all actions
	UserID string // empty means all users
	Limit  int    // 0 means no limit
}

// Store persists audit entries.
type Store interface {
	// Append saves an entry and returns its ID. CreatedAt is set by the store
	// when zero.
	Append(ctx context.Context, e Entry) (int64, error)

	// List returns entries matching the filter, newest first.
	List(ctx context.Context, filter ListFilter) ([]Entry, error)
}
