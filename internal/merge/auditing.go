package merge

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/colonyops/mend/internal/core/audit"
	"github.com/colonyops/mend/internal/core/eventbus"
)

const auditWriteTimeout = 5 * time.Second

// PersistAudit stores every audit.logged event in store. Failures are logged
// and never reach the code that produced the entry.
func PersistAudit(bus *eventbus.EventBus, store audit.Store, log zerolog.Logger) {
	log = log.With().Str("cmp", "audit").Logger()

	bus.SubscribeAuditLogged(func(p eventbus.AuditLoggedPayload) {
		ctx, cancel := context.WithTimeout(context.Background(), auditWriteTimeout)
		defer cancel()

		if _, err := store.Append(ctx, p.Entry); err != nil {
			log.Error().
				Err(err).
				Str("action", string(p.Entry.Action)).
				Msg("failed to persist audit entry")
		}
	})
}
