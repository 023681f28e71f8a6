package eventbus_test

import (
	"testing"

	"github.com/colonyops/mend/internal/core/eventbus"
	"github.com/colonyops/mend/internal/core/eventbus/testbus"
	"github.com/colonyops/mend/internal/core/session"
	"github.com/rs/zerolog"
)

func TestRegisterDebugLogger(t *testing.T) {
	tb := testbus.New(t)

	// Register with a nop logger; must not panic.
	eventbus.RegisterDebugLogger(tb.EventBus, zerolog.Nop())

	// Publish a few events to exercise all subscriber paths.
	tb.PublishSessionOpened(eventbus.SessionOpenedPayload{
		Session: &session.Session{ID: "test", FilePath: "main.go"},
	})
	tb.PublishSessionDiscarded(eventbus.SessionDiscardedPayload{SessionID: "test"})
	tb.PublishMergeCommitted(eventbus.MergeCommittedPayload{CommitID: "abc"})

	// Wait for last event to confirm all dispatched without panic.
	tb.AssertPublished(t, eventbus.EventMergeCommitted)
}
