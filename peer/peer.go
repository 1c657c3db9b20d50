// Package peer holds the machinery shared by both server and client
// roles: the message pool, the connection table, the delayed-event
// scheduler, and the event bus application code subscribes to. server.Server
// and client.Client each embed a Base and add the role-specific handshake
// and dispatch logic that differ enough between the two
// roles.
package peer

import (
	"sync"
	"time"

	"github.com/duskwave/ripnet/message"
	"github.com/duskwave/ripnet/metrics"
	"github.com/duskwave/ripnet/netconn"
	"github.com/duskwave/ripnet/pkg/config"
	"github.com/duskwave/ripnet/pkg/rlog"
	"github.com/duskwave/ripnet/scheduler"
)

// EventHeartbeat, EventResend and EventTimeout are the scheduler.Event.Kind
// values server/client ticking logic enqueues on the shared heap. DrainDue
// recognizes only these three; an event of any other kind on the heap is
// popped and dropped.
const (
	EventHeartbeat = "peer.heartbeat"
	EventResend    = "peer.resend"
	EventTimeout   = "peer.timeout"
)

// Base is the shared core of a server or client peer: a message pool sized
// once at construction, a connection table, a single scheduler heap
// driving heartbeats/resends/timeouts, and an event bus for upward
// notifications.
type Base struct {
	Opts  config.Options
	Pool  *message.Pool
	Heap  *scheduler.Heap
	Bus   *EventBus
	Log   *rlog.Logger

	mu          sync.RWMutex
	connections map[uint32]*netconn.Connection
	nextConnID  uint32
}

// NewBase constructs the shared peer state for opts. logPrefix names the
// component in log output ("server" or "client").
func NewBase(opts config.Options, logPrefix string) *Base {
	return &Base{
		Opts:        opts,
		Pool:        message.NewPool(opts.MaxPayloadSize, opts.InstancesPerPeer),
		Heap:        scheduler.New(),
		Bus:         NewEventBus(),
		Log:         rlog.New(logPrefix),
		connections: make(map[uint32]*netconn.Connection),
	}
}

// AddConnection registers a new Connection under id and schedules its
// first heartbeat and timeout checks.
func (b *Base) AddConnection(c *netconn.Connection, now time.Time) {
	b.mu.Lock()
	b.connections[c.ID()] = c
	b.mu.Unlock()

	b.Heap.Push(now.Add(b.Opts.HeartbeatInterval), EventHeartbeat, c.ID())
	b.Heap.Push(now.Add(b.Opts.TimeoutTime), EventTimeout, c.ID())
}

// RemoveConnection drops a connection from the table. Events already
// queued for it are left in the heap and become no-ops when handled,
// since Connection lookups fail silently after removal.
func (b *Base) RemoveConnection(id uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.connections, id)
}

// Connection looks up a connection by ID.
func (b *Base) Connection(id uint32) (*netconn.Connection, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	c, ok := b.connections[id]
	return c, ok
}

// Connections returns a snapshot slice of every live connection.
func (b *Base) Connections() []*netconn.Connection {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*netconn.Connection, 0, len(b.connections))
	for _, c := range b.connections {
		out = append(out, c)
	}
	return out
}

// NextConnectionID hands out sequential connection-table slots.
func (b *Base) NextConnectionID() uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextConnID
	b.nextConnID++
	return id
}

// ScheduleResend re-queues a resend check for a pending message's retry
// delay from now.
func (b *Base) ScheduleResend(connID uint32, seq interface{}, now time.Time, delay time.Duration) {
	b.Heap.Push(now.Add(delay), EventResend, resendEvent{ConnID: connID, SeqID: seq})
}

type resendEvent struct {
	ConnID uint32
	SeqID  interface{}
}

// DrainDue pops every event due by now and partitions them by kind into
// heartbeats, resends and timeouts, so role-specific Update loops can act
// on each without re-sorting.
func (b *Base) DrainDue(now time.Time) (heartbeats []uint32, resends []resendEvent, timeouts []uint32) {
	for _, e := range b.Heap.DrainDue(now) {
		switch e.Kind {
		case EventHeartbeat:
			heartbeats = append(heartbeats, e.Data.(uint32))
		case EventResend:
			resends = append(resends, e.Data.(resendEvent))
		case EventTimeout:
			timeouts = append(timeouts, e.Data.(uint32))
		}
	}
	return heartbeats, resends, timeouts
}

// Snapshot implements metrics.Source over the live connection table.
func (b *Base) Snapshot() []metrics.Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]metrics.Snapshot, 0, len(b.connections))
	for id, c := range b.connections {
		sent, received, resent, acked := c.Stats()
		out = append(out, metrics.Snapshot{
			Labels:     []string{connLabel(id)},
			Sent:       sent,
			Received:   received,
			Resent:     resent,
			Acked:      acked,
			RTTSeconds: c.SmoothedRTT().Seconds(),
			LossRate:   c.NotifyEngine().LossRate(),
		})
	}
	return out
}

func connLabel(id uint32) string {
	return "conn-" + itoa(id)
}

func itoa(id uint32) string {
	if id == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for id > 0 {
		i--
		buf[i] = byte('0' + id%10)
		id /= 10
	}
	return string(buf[i:])
}

var _ metrics.Source = (*Base)(nil)
