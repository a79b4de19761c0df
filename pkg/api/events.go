// Event bridge — wires the sync event bus into the WebSocket hub so every
// classified sync event reaches connected dashboard clients in real time.
package api

import (
	"github.com/syncboard/syncboard/pkg/logger"
	"github.com/syncboard/syncboard/pkg/sync"
)

// EventBridge forwards sync events from the bus to the WebSocket hub.
type EventBridge struct {
	bus   *sync.Bus
	hub   *WSHub
	unsub func()
}

// NewEventBridge creates a bridge between the sync bus and the hub.
func NewEventBridge(bus *sync.Bus, hub *WSHub) *EventBridge {
	return &EventBridge{bus: bus, hub: hub}
}

// Start subscribes the bridge to the bus. Events dispatched before Start
// are not replayed — the hub's initial_state covers reconnect gaps.
func (eb *EventBridge) Start() {
	eb.unsub = eb.bus.Subscribe(func(ev sync.Event) {
		eb.hub.Broadcast(string(ev.Type), ev)
	}, nil)
	logger.InfoC("events", "Event bridge started — forwarding sync events to WebSocket")
}

// Stop detaches the bridge from the bus.
func (eb *EventBridge) Stop() {
	if eb.unsub != nil {
		eb.unsub()
		eb.unsub = nil
	}
}
