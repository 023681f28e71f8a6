// Package eventbus provides a typed publish/subscribe event bus for
// cross-component communication within mend.
package eventbus

import (
	"github.com/colonyops/mend/internal/core/audit"
	"github.com/colonyops/mend/internal/core/session"
)

// Event names a bus event.
type Event string

// Keep list sorted A-Z.
const (
	EventAuditLogged      Event = "audit.logged"
	EventMergeCommitted   Event = "merge.committed"
	EventSessionCommitted Event = "session.committed"
	EventSessionDiscarded Event = "session.discarded"
	EventSessionOpened    Event = "session.opened"
	EventSessionResolved  Event = "session.resolved"
	EventSessionStale     Event = "session.stale"
)

// AuditLoggedPayload is emitted for every audit entry.
type AuditLoggedPayload struct {
	Entry audit.Entry
}

// MergeCommittedPayload is emitted when the two-parent merge commit is created.
type MergeCommittedPayload struct {
	RepositoryID string
	CommitID     string
	Files        []string
}

// SessionCommittedPayload is emitted when a session's resolved file is
// written and staged.
type SessionCommittedPayload struct {
	Session  *session.Session
	BlobID   string
	CommitID string // empty while other files of the merge are pending
}

// SessionDiscardedPayload is emitted when a session is abandoned.
type SessionDiscardedPayload struct {
	SessionID string
	FilePath  string
}

// SessionOpenedPayload is emitted when a session is created or reopened.
type SessionOpenedPayload struct {
	Session  *session.Session
	Reopened bool
}

// SessionResolvedPayload is emitted when the last region of a session is
// resolved and the file assembled.
type SessionResolvedPayload struct {
	Session *session.Session
}

// SessionStalePayload is emitted when a session is invalidated because its
// file changed.
type SessionStalePayload struct {
	Session *session.Session
}
