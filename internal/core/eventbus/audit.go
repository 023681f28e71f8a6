package eventbus

import (
	"time"

	"github.com/colonyops/mend/internal/core/audit"
)

// AuditLogger is an audit.Logger that publishes entries on the bus. Entries
// are persisted by whatever subscribes to audit.logged.
type AuditLogger struct {
	bus *EventBus
	now func() time.Time
}

var _ audit.Logger = (*AuditLogger)(nil)

// NewAuditLogger constructs a bus-backed audit logger.
func NewAuditLogger(bus *EventBus) *AuditLogger {
	return &AuditLogger{bus: bus, now: time.Now}
}

// LogAction publishes the entry. It never blocks; a full bus drops it.
func (l *AuditLogger) LogAction(action audit.Action, description string, data map[string]string, userID string) {
	if l == nil || l.bus == nil {
		return
	}

	var copied map[string]string
	if len(data) > 0 {
		copied = make(map[string]string, len(data))
		for k, v := range data {
			copied[k] = v
		}
	}

	l.bus.PublishAuditLogged(AuditLoggedPayload{Entry: audit.Entry{
		Action:      action,
		Description: description,
		Data:        copied,
		UserID:      userID,
		CreatedAt:   l.now().UTC(),
	}})
}
