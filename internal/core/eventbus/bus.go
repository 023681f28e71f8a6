package eventbus

import (
	"context"
	"sync"
)

type envelope struct {
	event   Event
	payload any
}

// EventBus delivers events to subscribers on a single dispatch goroutine.
// Publishing never blocks: when the buffer is full the event is dropped and
// the OnDrop hooks fire.
type EventBus struct {
	ch    chan envelope
	hooks hooks

	mu   sync.RWMutex
	subs map[Event][]func(any)
}

// New creates a bus with the given buffer size.
func New(size int) *EventBus {
	if size < 1 {
		size = 1
	}
	return &EventBus{
		ch:   make(chan envelope, size),
		subs: make(map[Event][]func(any)),
	}
}

// Start dispatches events until ctx is cancelled. Events already buffered when
// ctx is cancelled are still delivered before Start returns.
func (bus *EventBus) Start(ctx context.Context) {
	for {
		select {
		case env := <-bus.ch:
			bus.dispatch(env)
		case <-ctx.Done():
			for {
				select {
				case env := <-bus.ch:
					bus.dispatch(env)
				default:
					return
				}
			}
		}
	}
}

func (bus *EventBus) subscribe(event Event, fn func(any)) {
	bus.mu.Lock()
	bus.subs[event] = append(bus.subs[event], fn)
	bus.mu.Unlock()

	bus.hooks.mu.RLock()
	hooks := make([]func(Event), len(bus.hooks.onSubscribe))
	copy(hooks, bus.hooks.onSubscribe)
	bus.hooks.mu.RUnlock()
	for _, h := range hooks {
		h(event)
	}
}

func (bus *EventBus) dispatch(env envelope) {
	bus.mu.RLock()
	subs := make([]func(any), len(bus.subs[env.event]))
	copy(subs, bus.subs[env.event])
	bus.mu.RUnlock()

	for _, fn := range subs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					bus.runOnPanic(env.event, env.payload, r)
				}
			}()
			fn(env.payload)
		}()
	}
}

// PublishAuditLogged publishes an audit.logged event.
func (bus *EventBus) PublishAuditLogged(p AuditLoggedPayload) {
	bus.send(EventAuditLogged, p)
}

// SubscribeAuditLogged registers fn for audit.logged events.
func (bus *EventBus) SubscribeAuditLogged(fn func(AuditLoggedPayload)) {
	bus.subscribe(EventAuditLogged, func(p any) { fn(p.(AuditLoggedPayload)) })
}

// PublishMergeCommitted publishes a merge.committed event.
func (bus *EventBus) PublishMergeCommitted(p MergeCommittedPayload) {
	bus.send(EventMergeCommitted, p)
}

// SubscribeMergeCommitted registers fn for merge.committed events.
func (bus *EventBus) SubscribeMergeCommitted(fn func(MergeCommittedPayload)) {
	bus.subscribe(EventMergeCommitted, func(p any) { fn(p.(MergeCommittedPayload)) })
}

// PublishSessionCommitted publishes a session.committed event.
func (bus *EventBus) PublishSessionCommitted(p SessionCommittedPayload) {
	bus.send(EventSessionCommitted, p)
}

// SubscribeSessionCommitted registers fn for session.committed events.
func (bus *EventBus) SubscribeSessionCommitted(fn func(SessionCommittedPayload)) {
	bus.subscribe(EventSessionCommitted, func(p any) { fn(p.(SessionCommittedPayload)) })
}

// PublishSessionDiscarded publishes a session.discarded event.
func (bus *EventBus) PublishSessionDiscarded(p SessionDiscardedPayload) {
	bus.send(EventSessionDiscarded, p)
}

// SubscribeSessionDiscarded registers fn for session.discarded events.
func (bus *EventBus) SubscribeSessionDiscarded(fn func(SessionDiscardedPayload)) {
	bus.subscribe(EventSessionDiscarded, func(p any) { fn(p.(SessionDiscardedPayload)) })
}

// PublishSessionOpened publishes a session.opened event.
func (bus *EventBus) PublishSessionOpened(p SessionOpenedPayload) {
	bus.send(EventSessionOpened, p)
}

// SubscribeSessionOpened registers fn for session.opened events.
func (bus *EventBus) SubscribeSessionOpened(fn func(SessionOpenedPayload)) {
	bus.subscribe(EventSessionOpened, func(p any) { fn(p.(SessionOpenedPayload)) })
}

// PublishSessionResolved publishes a session.resolved event.
func (bus *EventBus) PublishSessionResolved(p SessionResolvedPayload) {
	bus.send(EventSessionResolved, p)
}

// SubscribeSessionResolved registers fn for session.resolved events.
func (bus *EventBus) SubscribeSessionResolved(fn func(SessionResolvedPayload)) {
	bus.subscribe(EventSessionResolved, func(p any) { fn(p.(SessionResolvedPayload)) })
}

// PublishSessionStale publishes a session.stale event.
func (bus *EventBus) PublishSessionStale(p SessionStalePayload) {
	bus.send(EventSessionStale, p)
}

// SubscribeSessionStale registers fn for session.stale events.
func (bus *EventBus) SubscribeSessionStale(fn func(SessionStalePayload)) {
	bus.subscribe(EventSessionStale, func(p any) { fn(p.(SessionStalePayload)) })
}
