package peer

import "github.com/duskwave/ripnet/wire"

// EventType identifies the kind of upward notification a peer publishes
// to application code: the connection lifecycle plus notify-message
// fate reports.
type EventType int

const (
	EventConnected EventType = iota
	EventConnectionFailed
	EventDisconnected
	// EventDataReceived fires for an inbound application message whose ID
	// has no registered handler: MessageID carries the ID and Data the
	// *message.Message, still positioned just past the ID. Messages with a
	// registered handler go to that handler instead, never to the bus.
	EventDataReceived
	EventNotifyDelivered
	EventNotifyLost
)

func (t EventType) String() string {
	switch t {
	case EventConnected:
		return "connected"
	case EventConnectionFailed:
		return "connection-failed"
	case EventDisconnected:
		return "disconnected"
	case EventDataReceived:
		return "data-received"
	case EventNotifyDelivered:
		return "notify-delivered"
	case EventNotifyLost:
		return "notify-lost"
	default:
		return "unknown-event"
	}
}

// ConnectFailure is the Data payload of an EventConnectionFailed event
// raised by the protocol layer: the reject reason (RejectNoConnection
// when connection attempts were exhausted without any reply) plus any
// custom payload the remote attached. Transport-level connect failures
// carry their error as Data instead.
type ConnectFailure struct {
	Reason  wire.RejectReason
	Payload []byte
}

// Event is a single notification delivered to a Handler.
type Event struct {
	Type         EventType
	ConnectionID uint32
	MessageID    uint32
	Data         interface{}
}

// Handler reacts to an Event.
type Handler func(Event)

// EventBus is a minimal publish/subscribe registry: multiple handlers can
// subscribe to the same EventType, and Publish fans an Event out to all of
// them in registration order.
type EventBus struct {
	handlers map[EventType][]Handler
}

// NewEventBus returns an empty EventBus.
func NewEventBus() *EventBus {
	return &EventBus{handlers: make(map[EventType][]Handler)}
}

// Subscribe registers handler to run whenever an Event of type t is
// published.
func (b *EventBus) Subscribe(t EventType, handler Handler) {
	b.handlers[t] = append(b.handlers[t], handler)
}

// Publish runs every handler subscribed to e.Type, in registration order.
func (b *EventBus) Publish(e Event) {
	for _, h := range b.handlers[e.Type] {
		h(e)
	}
}
