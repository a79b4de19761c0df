package sync

import (
	stdsync "sync"
	"time"

	"github.com/syncboard/syncboard/pkg/logger"
)

// Handler processes a dispatched sync event. Handlers should be idempotent:
// debounce suppresses rapid duplicates but retried deliveries spaced wider
// than the window will be seen again.
type Handler func(Event)

// Predicate filters which events a subscriber receives. A nil predicate
// matches everything.
type Predicate func(Event) bool

// DispatchOptions backfill event fields the classifier could not know.
type DispatchOptions struct {
	Source      string
	TrackingID  string
	SessionID   string
	TriggeredAt time.Time
}

type subscription struct {
	handler Handler
	pred    Predicate
}

// Bus is the synchronous sync-event fan-out. Dispatch broadcasts
// immediately to every current subscriber; there is no queue and no
// delivery to subscribers registered afterward. Dedup/debounce state lives
// in an injected DedupStore.
type Bus struct {
	store *DedupStore

	mu     stdsync.RWMutex
	subs   map[int]subscription
	nextID int

	// now is swappable for tests.
	now func() time.Time
}

// NewBus creates a bus backed by the given dedup store. A nil store gets a
// default one (500ms window, 10s retention).
func NewBus(store *DedupStore) *Bus {
	if store == nil {
		store = NewDedupStore(0, 0)
	}
	return &Bus{
		store: store,
		subs:  make(map[int]subscription),
		now:   time.Now,
	}
}

// Subscribe registers a handler, optionally filtered by a predicate, and
// returns an unsubscribe function. Unsubscribe is safe to call more than
// once.
func (b *Bus) Subscribe(handler Handler, pred Predicate) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = subscription{handler: handler, pred: pred}
	b.mu.Unlock()

	var once stdsync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Dispatch broadcasts an event to all current subscribers. It never fails:
// rapid duplicates are dropped by the dedup store, and a panicking
// subscriber is logged and isolated from the rest.
func (b *Bus) Dispatch(event Event, opts DispatchOptions) {
	now := b.now()

	if event.TriggeredAt.IsZero() {
		if !opts.TriggeredAt.IsZero() {
			event.TriggeredAt = opts.TriggeredAt
		} else {
			event.TriggeredAt = now
		}
	}
	if event.TrackingID == "" {
		event.TrackingID = opts.TrackingID
	}
	if event.SessionID == "" {
		event.SessionID = opts.SessionID
	}
	if event.Source == "" {
		event.Source = opts.Source
	}

	key := event.DedupKey()
	if !b.store.Admit(key, now) {
		logger.DebugCF("bus", "Suppressed duplicate dispatch", map[string]interface{}{
			"key": key,
		})
		return
	}

	b.mu.RLock()
	targets := make([]subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		targets = append(targets, sub)
	}
	b.mu.RUnlock()

	for _, sub := range targets {
		if sub.pred != nil && !sub.pred(event) {
			continue
		}
		b.notify(sub.handler, event)
	}
}

// notify isolates subscriber panics so one bad handler cannot take down the
// dispatcher or starve its siblings.
func (b *Bus) notify(handler Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCF("bus", "Subscriber panicked", map[string]interface{}{
				"event": string(event.Type),
				"panic": r,
			})
		}
	}()
	handler(event)
}

// SubscriberCount reports the number of live subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
