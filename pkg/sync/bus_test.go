package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock drives the bus's time without sleeping.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBus() (*Bus, *fakeClock) {
	clock := newFakeClock()
	bus := NewBus(NewDedupStore(DefaultDebounceWindow, DefaultDedupRetention))
	bus.now = clock.now
	return bus, clock
}

func collect(bus *Bus) *[]Event {
	var got []Event
	bus.Subscribe(func(ev Event) { got = append(got, ev) }, nil)
	return &got
}

func TestDispatchDebouncesRapidDuplicates(t *testing.T) {
	bus, clock := newTestBus()
	got := collect(bus)

	ev := Event{Type: EventTaskChanged, PlanID: planID(4), TrackingID: "turn-1"}
	bus.Dispatch(ev, DispatchOptions{})
	clock.advance(100 * time.Millisecond)
	bus.Dispatch(ev, DispatchOptions{})

	assert.Len(t, *got, 1, "duplicate inside the debounce window must be dropped")
}

func TestDispatchAllowsSpacedRepeats(t *testing.T) {
	bus, clock := newTestBus()
	got := collect(bus)

	ev := Event{Type: EventTaskChanged, PlanID: planID(4), TrackingID: "turn-1"}
	bus.Dispatch(ev, DispatchOptions{})
	clock.advance(600 * time.Millisecond)
	bus.Dispatch(ev, DispatchOptions{})

	assert.Len(t, *got, 2, "repeats spaced past the window are both observed")
}

func TestDispatchDistinctKeysNotSuppressed(t *testing.T) {
	bus, clock := newTestBus()
	got := collect(bus)

	bus.Dispatch(Event{Type: EventTaskChanged, PlanID: planID(4)}, DispatchOptions{})
	clock.advance(10 * time.Millisecond)
	bus.Dispatch(Event{Type: EventTaskChanged, PlanID: planID(5)}, DispatchOptions{})
	clock.advance(10 * time.Millisecond)
	bus.Dispatch(Event{Type: EventPlanUpdated, PlanID: planID(4)}, DispatchOptions{})

	assert.Len(t, *got, 3)
}

func TestDispatchBackfillsFromOptions(t *testing.T) {
	bus, clock := newTestBus()
	got := collect(bus)

	at := time.Date(2026, 8, 1, 11, 0, 0, 0, time.UTC)
	bus.Dispatch(Event{Type: EventPlanCreated, PlanID: planID(1)}, DispatchOptions{
		Source:      "chat",
		TrackingID:  "turn-9",
		SessionID:   "sess-3",
		TriggeredAt: at,
	})

	require.Len(t, *got, 1)
	ev := (*got)[0]
	assert.Equal(t, "chat", ev.Source)
	assert.Equal(t, "turn-9", ev.TrackingID)
	assert.Equal(t, "sess-3", ev.SessionID)
	assert.Equal(t, at, ev.TriggeredAt)

	// Without options, TriggeredAt still gets stamped.
	bus.Dispatch(Event{Type: EventPlanDeleted, PlanID: planID(1)}, DispatchOptions{})
	require.Len(t, *got, 2)
	assert.Equal(t, clock.now(), (*got)[1].TriggeredAt)
}

func TestDispatchIsolatesPanickingSubscriber(t *testing.T) {
	bus, _ := newTestBus()

	var before, after []Event
	bus.Subscribe(func(ev Event) { before = append(before, ev) }, nil)
	bus.Subscribe(func(Event) { panic("subscriber bug") }, nil)
	bus.Subscribe(func(ev Event) { after = append(after, ev) }, nil)

	require.NotPanics(t, func() {
		bus.Dispatch(Event{Type: EventTaskChanged, PlanID: planID(1)}, DispatchOptions{})
	})
	assert.Len(t, before, 1)
	assert.Len(t, after, 1, "subscribers after the panicking one must still be notified")
}

func TestSubscribePredicate(t *testing.T) {
	bus, clock := newTestBus()

	var planEvents []Event
	bus.Subscribe(func(ev Event) { planEvents = append(planEvents, ev) }, func(ev Event) bool {
		return ev.Type == EventPlanCreated
	})

	bus.Dispatch(Event{Type: EventPlanCreated, PlanID: planID(1)}, DispatchOptions{})
	clock.advance(time.Second)
	bus.Dispatch(Event{Type: EventTaskChanged, PlanID: planID(1)}, DispatchOptions{})

	require.Len(t, planEvents, 1)
	assert.Equal(t, EventPlanCreated, planEvents[0].Type)
}

func TestUnsubscribe(t *testing.T) {
	bus, clock := newTestBus()
	got := collect(bus)

	var extra []Event
	unsub := bus.Subscribe(func(ev Event) { extra = append(extra, ev) }, nil)

	bus.Dispatch(Event{Type: EventPlanCreated, PlanID: planID(1)}, DispatchOptions{})
	unsub()
	unsub() // second call is a no-op
	clock.advance(time.Second)
	bus.Dispatch(Event{Type: EventPlanCreated, PlanID: planID(1)}, DispatchOptions{})

	assert.Len(t, *got, 2)
	assert.Len(t, extra, 1)
	assert.Equal(t, 1, bus.SubscriberCount())
}

func TestDedupStoreRetentionGC(t *testing.T) {
	store := NewDedupStore(500*time.Millisecond, 10*time.Second)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	require.True(t, store.Admit("a", base))
	require.True(t, store.Admit("b", base.Add(time.Second)))
	assert.Equal(t, 2, store.Len())

	// 11s later "a" is past retention and gets collected on the next call.
	require.True(t, store.Admit("c", base.Add(11*time.Second)))
	assert.Equal(t, 2, store.Len(), "entry a should have been garbage-collected")
}

func TestDedupKeyShape(t *testing.T) {
	withPlan := Event{Type: EventTaskChanged, PlanID: planID(12), TrackingID: "t1"}
	assert.Equal(t, "task_changed|12|t1", withPlan.DedupKey())

	sessionScoped := Event{Type: EventSessionDeleted, SessionID: "s9"}
	assert.Equal(t, "session_deleted|null|", sessionScoped.DedupKey())
}
