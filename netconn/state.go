// Package netconn implements per-connection state: the handshake state
// machine, RTT tracking, and the reliable/notify reliability engines,
// built around wraparound sequence IDs and sliding bitfield windows.
package netconn

import (
	"net"
	"sync"
	"time"

	"github.com/duskwave/ripnet/wire"
)

// State is a connection's position in the handshake state machine
// transitions.
type State int

const (
	NotConnected State = iota
	Connecting
	Pending
	Connected
)

func (s State) String() string {
	switch s {
	case NotConnected:
		return "not-connected"
	case Connecting:
		return "connecting"
	case Pending:
		return "pending"
	case Connected:
		return "connected"
	default:
		return "unknown-state"
	}
}

// Connection tracks everything needed to exchange reliable and notify
// traffic with a single remote peer, plus the handshake/heartbeat
// timestamps that drive the scheduler's delayed events for it.
type Connection struct {
	mu sync.RWMutex

	id   uint32
	addr *net.UDPAddr

	state             State
	connectAttempts   int
	lastReceiveTime   time.Time
	lastSendTime      time.Time

	rttSmoothed   time.Duration
	lastPingSent  time.Time
	lastPingID    uint8
	nextPingID    uint8

	reliability Reliability
	notify      Notify

	sentCount     map[string]uint64
	receivedCount map[string]uint64
	resentCount   uint64
	ackedCount    uint64

	disconnectReason wire.DisconnectReason
}

// NewConnection creates a Connection in the NotConnected state for the
// given remote address. id is assigned by the owning peer (server slot
// index or a client's single connection ID).
func NewConnection(id uint32, addr *net.UDPAddr) *Connection {
	c := &Connection{
		id:            id,
		addr:          addr,
		state:         NotConnected,
		sentCount:     make(map[string]uint64),
		receivedCount: make(map[string]uint64),
	}
	c.reliability.init()
	c.notify.init()
	return c
}

func (c *Connection) ID() uint32          { return c.id }
func (c *Connection) Addr() *net.UDPAddr  { return c.addr }

func (c *Connection) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Connection) SetState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

func (c *Connection) IsConnected() bool { return c.State() == Connected }

func (c *Connection) ConnectAttempts() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connectAttempts
}

func (c *Connection) IncConnectAttempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectAttempts++
	return c.connectAttempts
}

func (c *Connection) Touch(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastReceiveTime = now
}

func (c *Connection) LastReceiveTime() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastReceiveTime
}

func (c *Connection) TouchSend(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastSendTime = now
}

func (c *Connection) LastSendTime() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSendTime
}

// NextPingID returns the next 8-bit ping identifier to stamp on an
// outbound Heartbeat, wrapping modulo 256.
func (c *Connection) NextPingID() uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextPingID
	c.nextPingID++
	return id
}

// BeginPing records that a heartbeat ping carrying id was just sent, for
// RTT measurement when the matching echo arrives.
func (c *Connection) BeginPing(now time.Time, id uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastPingSent = now
	c.lastPingID = id
}

// ResolvePing reports whether an inbound Heartbeat echoing id matches the
// most recently sent outbound ping, returning the elapsed RTT if so.
func (c *Connection) ResolvePing(id uint8, now time.Time) (time.Duration, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if id != c.lastPingID || c.lastPingSent.IsZero() {
		return 0, false
	}
	return now.Sub(c.lastPingSent), true
}

// ObserveRTT folds a freshly measured round trip into the smoothed RTT
// estimate: smooth_rtt = 0.7*smooth_rtt + 0.3*rtt, seeded directly by the
// first sample.
func (c *Connection) ObserveRTT(sample time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rttSmoothed == 0 {
		c.rttSmoothed = sample
		return
	}
	c.rttSmoothed = time.Duration(float64(c.rttSmoothed)*0.7 + float64(sample)*0.3)
}

func (c *Connection) SmoothedRTT() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rttSmoothed
}

// RetryDelay is the reliable-resend backoff: max(10ms, smooth_rtt*1.2),
// falling back to a 50ms default before any RTT sample exists.
func (c *Connection) RetryDelay() time.Duration {
	rtt := c.SmoothedRTT()
	if rtt == 0 {
		return 50 * time.Millisecond
	}
	d := time.Duration(float64(rtt) * 1.2)
	if d < 10*time.Millisecond {
		return 10 * time.Millisecond
	}
	return d
}

func (c *Connection) SetDisconnectReason(r wire.DisconnectReason) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectReason = r
}

func (c *Connection) DisconnectReason() wire.DisconnectReason {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.disconnectReason
}

// CountSent records an outbound application message for the metrics
// collector, keyed by send mode.
func (c *Connection) CountSent(mode wire.SendMode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sentCount[mode.String()]++
}

// CountReceived records an inbound application message for the metrics
// collector, keyed by send mode.
func (c *Connection) CountReceived(mode wire.SendMode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.receivedCount[mode.String()]++
}

// CountResent records one reliable retransmission.
func (c *Connection) CountResent() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resentCount++
}

func (c *Connection) addAcked(n int) {
	if n <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ackedCount += uint64(n)
}

// Stats copies the connection's message counters out for a metrics
// scrape.
func (c *Connection) Stats() (sent, received map[string]float64, resent, acked float64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sent = make(map[string]float64, len(c.sentCount))
	for mode, v := range c.sentCount {
		sent[mode] = float64(v)
	}
	received = make(map[string]float64, len(c.receivedCount))
	for mode, v := range c.receivedCount {
		received[mode] = float64(v)
	}
	return sent, received, float64(c.resentCount), float64(c.ackedCount)
}

// Reliability returns the reliable-send-mode engine for this connection.
func (c *Connection) Reliability() *Reliability { return &c.reliability }

// NotifyEngine returns the notify-send-mode engine for this connection.
func (c *Connection) NotifyEngine() *Notify { return &c.notify }
