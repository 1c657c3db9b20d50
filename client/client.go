// Package client implements the client side of the handshake and
// dispatch: Connect initiation, reconnection attempts, heartbeats, and
// application message sends/receives. It mirrors
// server's shape closely since both wrap the same peer.Base machinery;
// the two stay separate packages because their handshake roles and wire
// framing differ enough that merging them would need role-switches
// throughout instead of two small, readable files.
package client

import (
	"fmt"
	"net"
	"time"

	"github.com/duskwave/ripnet/message"
	"github.com/duskwave/ripnet/metrics"
	"github.com/duskwave/ripnet/netconn"
	"github.com/duskwave/ripnet/peer"
	"github.com/duskwave/ripnet/pkg/config"
	"github.com/duskwave/ripnet/transport"
	"github.com/duskwave/ripnet/wire"
)

// Handler reacts to an inbound application message.
type Handler func(msg *message.Message)

// Options configures a Client on top of the shared peer Options.
type Options struct {
	config.Options

	// ConnectPayload is sent with the initial (and every retried) Connect
	// datagram; nil for none.
	ConnectPayload []byte
}

const connID uint32 = 0

// Client is the client side of the protocol: it owns exactly one
// Connection to a single server.
type Client struct {
	*peer.Base

	opts      Options
	transport transport.Client

	conn       *netconn.Connection
	serverAddr *net.UDPAddr

	handlers map[uint32]Handler
}

// New constructs a Client. tr is the concrete datagram transport (e.g.
// udpsock.NewClient() or a transport.Loopback for tests).
func New(opts Options, tr transport.Client) *Client {
	return &Client{
		Base:      peer.NewBase(opts.Options, "client"),
		opts:      opts,
		transport: tr,
		handlers:  make(map[uint32]Handler),
	}
}

// RegisterHandler binds fn to run for every inbound application message
// carrying messageID.
func (c *Client) RegisterHandler(messageID uint32, fn Handler) {
	c.handlers[messageID] = fn
}

// Connection returns the client's single Connection, or nil before the
// first Connect call.
func (c *Client) Connection() *netconn.Connection { return c.conn }

// IsConnected reports whether the handshake has completed.
func (c *Client) IsConnected() bool { return c.conn != nil && c.conn.IsConnected() }

// Connect begins the handshake against addr: dial the transport, create
// the connection in state Connecting, and send the first Connect
// datagram. Retries and eventual give-up are driven from Update via the
// heartbeat/timeout delayed events.
func (c *Client) Connect(addr *net.UDPAddr) error {
	if err := c.transport.Connect(addr); err != nil {
		c.Bus.Publish(peer.Event{Type: peer.EventConnectionFailed, Data: err})
		return fmt.Errorf("client: connect: %w", err)
	}
	now := time.Now()
	conn := netconn.NewConnection(connID, addr)
	conn.SetState(netconn.Connecting)
	conn.Touch(now)
	c.conn = conn
	c.serverAddr = addr
	c.AddConnection(conn, now)
	c.sendConnect()
	return nil
}

// Disconnect tears the connection down locally, from any state, and makes
// a single best-effort attempt to notify the server.
func (c *Client) Disconnect() {
	if c.conn == nil {
		return
	}
	m, err := c.Pool.CreateProtocol(wire.HeaderDisconnect)
	if err == nil {
		m.AddUInt8(uint8(wire.DisconnectDisconnected))
		c.sendRaw(m)
	}
	c.teardown(wire.DisconnectDisconnected)
}

// Shutdown disconnects (if connected) and releases the transport.
func (c *Client) Shutdown() error {
	c.Disconnect()
	return c.transport.Close()
}

// Update runs one scheduler tick: due delayed events, then a transport
// poll, then dispatch of everything received.
func (c *Client) Update() {
	now := time.Now()

	heartbeats, resends, timeouts := c.DrainDue(now)
	for range heartbeats {
		c.tickHeartbeat(now)
	}
	for _, r := range resends {
		c.tickResend(r.SeqID, now)
	}
	for range timeouts {
		c.tickTimeout(now)
	}

	events, err := c.transport.Poll()
	if err != nil {
		c.Log.Errorf("transport poll: %v", err)
		return
	}
	for _, ev := range events {
		c.handleTransportEvent(ev, now)
	}
}

func (c *Client) handleTransportEvent(ev transport.Event, now time.Time) {
	switch ev.Kind {
	case transport.DataReceived:
		c.handleDatagram(ev.Data, now)
	case transport.ConnectionFailed:
		c.Bus.Publish(peer.Event{Type: peer.EventConnectionFailed, Data: ev.Err})
	case transport.Disconnected:
		c.teardown(wire.DisconnectTransportError)
	}
}

func (c *Client) handleDatagram(raw []byte, now time.Time) {
	if c.conn == nil {
		return
	}
	msg, err := c.Pool.FromBytes(raw)
	if err != nil {
		c.Log.Warnf("discarding unreadable datagram: %v", err)
		return
	}
	defer msg.Release()
	c.conn.Touch(now)

	switch msg.HeaderKind() {
	case wire.HeaderUnreliable, wire.HeaderReliable, wire.HeaderNotify:
		c.conn.CountReceived(msg.Mode())
	}

	switch msg.HeaderKind() {
	case wire.HeaderConnect:
		// The server's ack of our Connect; the Welcome follows separately.
		if c.conn.State() == netconn.Connecting {
			c.conn.SetState(netconn.Pending)
		}
	case wire.HeaderReject:
		c.handleReject(msg)
	case wire.HeaderWelcome:
		c.handleWelcome(msg, now)
	case wire.HeaderHeartbeat:
		c.handleHeartbeat(msg, now)
	case wire.HeaderAck:
		base, bits, acked := netconn.ReadAck(msg, false)
		c.conn.ApplyAck(base, bits, acked)
	case wire.HeaderAckExtra:
		base, bits, acked := netconn.ReadAck(msg, true)
		c.conn.ApplyAck(base, bits, acked)
	case wire.HeaderDisconnect:
		reason := wire.DisconnectReason(msg.GetUInt8())
		c.teardown(reason)
	case wire.HeaderReliable:
		c.handleReliable(msg)
	case wire.HeaderNotify:
		c.handleNotify(msg)
	case wire.HeaderUnreliable:
		c.dispatchApplication(msg)
	case wire.HeaderClientConnected, wire.HeaderClientDisconnected:
		// Informational only for this client's own connection; no local
		// state to update for other clients' IDs.
	default:
		c.Log.Warnf("unexpected header %s from server", msg.HeaderKind())
	}
}

func (c *Client) dispatchApplication(msg *message.Message) {
	msgID := uint32(msg.GetVarUint())
	if h, ok := c.handlers[msgID]; ok {
		h(msg)
		return
	}
	// No registered handler: hand the message to the generic event sink.
	c.Bus.Publish(peer.Event{Type: peer.EventDataReceived, MessageID: msgID, Data: msg})
}

func (c *Client) sendRaw(msg *message.Message) {
	defer msg.Release()
	if c.conn != nil {
		switch msg.HeaderKind() {
		case wire.HeaderUnreliable, wire.HeaderReliable, wire.HeaderNotify:
			c.conn.CountSent(msg.Mode())
		}
	}
	if err := c.transport.Send(msg.Bytes()); err != nil {
		c.Log.Warnf("send failed: %v", err)
	}
	if c.conn != nil {
		c.conn.TouchSend(time.Now())
	}
}

// SendUnreliable sends an unreliable application message to the server.
func (c *Client) SendUnreliable(messageID uint32, fill func(*message.Message) error) error {
	if !c.IsConnected() {
		return fmt.Errorf("client: not connected")
	}
	m, err := c.conn.BuildUnreliable(c.Pool, messageID, fill)
	if err != nil {
		return err
	}
	c.sendRaw(m)
	return nil
}

// SendReliable sends a reliable application message to the server,
// tracking it for retransmission until acked.
func (c *Client) SendReliable(messageID uint32, fill func(*message.Message) error) error {
	if !c.IsConnected() {
		return fmt.Errorf("client: not connected")
	}
	now := time.Now()
	m, seq, err := c.conn.BuildReliable(c.Pool, messageID, fill, now)
	if err != nil {
		return err
	}
	c.Base.ScheduleResend(c.conn.ID(), seq, now, c.conn.RetryDelay())
	c.sendRaw(m)
	return nil
}

// SendNotify sends a notify-mode application message to the server.
func (c *Client) SendNotify(messageID uint32, fill func(*message.Message) error) error {
	if !c.IsConnected() {
		return fmt.Errorf("client: not connected")
	}
	m, _, err := c.conn.BuildNotify(c.Pool, messageID, fill)
	if err != nil {
		return err
	}
	c.sendRaw(m)
	return nil
}

var _ metrics.Source = (*Client)(nil)
