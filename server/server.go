// Package server implements the server side of the handshake and
// dispatch: client-ID allocation, the connect/welcome/reject exchange,
// broadcast, and the optional relay filter. It wraps a peer.Base around
// an abstract transport.Server, rather than owning a raw *net.UDPConn
// directly, so the socket layer stays swappable.
package server

import (
	"fmt"
	"net"
	"time"

	"github.com/duskwave/ripnet/message"
	"github.com/duskwave/ripnet/metrics"
	"github.com/duskwave/ripnet/netconn"
	"github.com/duskwave/ripnet/peer"
	"github.com/duskwave/ripnet/pkg/config"
	"github.com/duskwave/ripnet/seqid"
	"github.com/duskwave/ripnet/transport"
	"github.com/duskwave/ripnet/wire"
	"github.com/rs/xid"
)

// AcceptFunc decides whether to accept a Connect from addr carrying
// payload. token uniquely identifies this handshake attempt so an
// application that defers its decision (e.g. to an external auth check)
// can correlate a later out-of-band accept/reject with the right Connect
// retry, even across retransmits of the same Connect datagram. Returning
// false rejects with reason (ignored if accept is true). A nil AcceptFunc
// accepts every Connect up to MaxClientCount.
type AcceptFunc func(addr *net.UDPAddr, payload []byte, token xid.ID) (accept bool, reason wire.RejectReason)

// Handler reacts to an application message from a connected client.
type Handler func(fromClientID uint32, msg *message.Message)

// Options configures a Server on top of the shared peer Options.
type Options struct {
	config.Options

	// Accept gates the handshake's accept/reject decision. See AcceptFunc.
	Accept AcceptFunc

	// RelayMessageIDs is the set of application message IDs the server
	// auto-broadcasts to every other client instead of invoking a local
	// Handler for them.
	RelayMessageIDs map[uint32]bool
}

const rejectRetries = 3

// Server is the server side of the protocol: it accepts up to
// Options.MaxClientCount clients, assigns each a compact ID in
// [1, MaxClientCount], and dispatches inbound application messages to
// registered Handlers.
type Server struct {
	*peer.Base

	opts      Options
	transport transport.Server
	addr      *net.UDPAddr

	availableIDs []uint32
	addrToID     map[string]uint32
	addrToToken  map[string]xid.ID

	handlers map[uint32]Handler
}

// New constructs a Server. transport is the concrete datagram transport
// (e.g. udpsock.NewServer() or a transport.Loopback for tests).
func New(opts Options, tr transport.Server) *Server {
	if opts.MaxClientCount <= 0 || opts.MaxClientCount > 0xfffe {
		opts.MaxClientCount = 0xfffe
	}
	available := make([]uint32, 0, opts.MaxClientCount)
	for i := 1; i <= opts.MaxClientCount; i++ {
		available = append(available, uint32(i))
	}
	s := &Server{
		Base:         peer.NewBase(opts.Options, "server"),
		opts:         opts,
		transport:    tr,
		availableIDs: available,
		addrToID:     make(map[string]uint32),
		addrToToken:  make(map[string]xid.ID),
		handlers:     make(map[uint32]Handler),
	}
	return s
}

// RegisterHandler binds fn to run for every inbound application message
// carrying messageID. Registering the same ID twice overwrites the prior
// handler; duplicate/invalid registration policing is left to the
// application layer generating this map.
func (s *Server) RegisterHandler(messageID uint32, fn Handler) {
	s.handlers[messageID] = fn
}

// Start begins listening on addr.
func (s *Server) Start(addr *net.UDPAddr) error {
	if err := s.transport.Start(addr); err != nil {
		return fmt.Errorf("server: start: %w", err)
	}
	s.addr = addr
	s.Log.Infof("server listening on %s (capacity %d)", addr, s.opts.MaxClientCount)
	return nil
}

// Shutdown tears down every connection and stops the transport.
func (s *Server) Shutdown() error {
	for _, c := range s.Connections() {
		s.disconnect(c, wire.DisconnectServerStopped)
	}
	return s.transport.Shutdown()
}

// Update runs one scheduler tick: due delayed events, then a transport
// poll, then dispatch of everything received.
func (s *Server) Update() {
	now := time.Now()

	heartbeats, resends, timeouts := s.DrainDue(now)
	for _, id := range heartbeats {
		s.tickHeartbeat(id, now)
	}
	for _, r := range resends {
		s.tickResend(r.ConnID, r.SeqID, now)
	}
	for _, id := range timeouts {
		s.tickTimeout(id, now)
	}

	events, err := s.transport.Poll()
	if err != nil {
		s.Log.Errorf("transport poll: %v", err)
		return
	}
	for _, ev := range events {
		s.handleTransportEvent(ev, now)
	}
}

func (s *Server) handleTransportEvent(ev transport.Event, now time.Time) {
	switch ev.Kind {
	case transport.DataReceived:
		s.handleDatagram(ev.Addr, ev.Data, now)
	case transport.ConnectionFailed:
		s.Log.Warnf("transport error: %v", ev.Err)
	}
}

func (s *Server) handleDatagram(addr *net.UDPAddr, raw []byte, now time.Time) {
	msg, err := s.Pool.FromBytes(raw)
	if err != nil {
		s.Log.Warnf("discarding unreadable datagram from %s: %v", addr, err)
		return
	}
	defer msg.Release()

	if msg.HeaderKind() == wire.HeaderConnect {
		payload := msg.GetBytes()
		s.handleConnect(addr, payload, now)
		return
	}

	id, ok := s.addrToID[addr.String()]
	if !ok {
		return // unknown sender outside a fresh Connect: ignore silently
	}
	conn, ok := s.Connection(id)
	if !ok {
		return
	}
	conn.Touch(now)

	switch msg.HeaderKind() {
	case wire.HeaderUnreliable, wire.HeaderReliable, wire.HeaderNotify:
		conn.CountReceived(msg.Mode())
	}

	switch msg.HeaderKind() {
	case wire.HeaderWelcome:
		s.handleWelcomeAck(conn, msg, now)
	case wire.HeaderHeartbeat:
		s.handleHeartbeat(conn, msg, now)
	case wire.HeaderAck:
		base, bits, acked := netconn.ReadAck(msg, false)
		conn.ApplyAck(base, bits, acked)
	case wire.HeaderAckExtra:
		base, bits, acked := netconn.ReadAck(msg, true)
		conn.ApplyAck(base, bits, acked)
	case wire.HeaderDisconnect:
		reason := wire.DisconnectReason(msg.GetUInt8())
		s.teardown(conn, reason)
	case wire.HeaderReliable:
		s.handleReliable(conn, msg, now)
	case wire.HeaderNotify:
		s.handleNotify(conn, msg)
	case wire.HeaderUnreliable:
		s.dispatchApplication(conn, msg)
	default:
		s.Log.Warnf("unexpected header %s from client %d", msg.HeaderKind(), id)
	}
}

func (s *Server) dispatchApplication(conn *netconn.Connection, msg *message.Message) {
	msgID := uint32(msg.GetVarUint())
	if s.opts.RelayMessageIDs[msgID] {
		s.relay(conn.ID(), msgID, msg)
		return
	}
	if h, ok := s.handlers[msgID]; ok {
		h(conn.ID(), msg)
		return
	}
	// No registered handler: hand the message to the generic event sink.
	s.Bus.Publish(peer.Event{Type: peer.EventDataReceived, ConnectionID: conn.ID(), MessageID: msgID, Data: msg})
}

// relay forwards an inbound application message's remaining payload to
// every other connected client, preserving the original send mode and
// message ID. The sender itself is always excluded, in addition to
// whatever Options.RelayFilter excludes.
func (s *Server) relay(fromID, msgID uint32, msg *message.Message) {
	rest := msg.UnreadBits()
	start := msg.ReadBit()
	now := time.Now()
	fill := func(m *message.Message) error {
		return m.AddMessage(msg, rest, start)
	}
	for _, c := range s.Connections() {
		if c.ID() == fromID || !c.IsConnected() {
			continue
		}
		if s.opts.RelayFilter != nil && !s.opts.RelayFilter(fromID, c.ID()) {
			continue
		}
		var out *message.Message
		var err error
		switch msg.Mode() {
		case wire.Reliable:
			var seq seqid.ID
			out, seq, err = c.BuildReliable(s.Pool, msgID, fill, now)
			if err == nil {
				s.Base.ScheduleResend(c.ID(), seq, now, c.RetryDelay())
			}
		case wire.Notify:
			out, _, err = c.BuildNotify(s.Pool, msgID, fill)
		default:
			out, err = c.BuildUnreliable(s.Pool, msgID, fill)
		}
		if err != nil {
			s.Log.Warnf("relay build failed for client %d: %v", c.ID(), err)
			continue
		}
		s.sendRaw(c, out)
	}
}

func (s *Server) sendRaw(conn *netconn.Connection, msg *message.Message) {
	defer msg.Release()
	switch msg.HeaderKind() {
	case wire.HeaderUnreliable, wire.HeaderReliable, wire.HeaderNotify:
		conn.CountSent(msg.Mode())
	}
	if err := s.transport.Send(conn.Addr(), msg.Bytes()); err != nil {
		s.Log.Warnf("send to client %d failed: %v", conn.ID(), err)
	}
	conn.TouchSend(time.Now())
}

// SendUnreliable sends an unreliable application message to one client.
func (s *Server) SendUnreliable(clientID, messageID uint32, fill func(*message.Message) error) error {
	conn, ok := s.Connection(clientID)
	if !ok {
		return fmt.Errorf("server: unknown client %d", clientID)
	}
	m, err := conn.BuildUnreliable(s.Pool, messageID, fill)
	if err != nil {
		return err
	}
	s.sendRaw(conn, m)
	return nil
}

// SendReliable sends a reliable application message to one client,
// tracking it for retransmission until acked.
func (s *Server) SendReliable(clientID, messageID uint32, fill func(*message.Message) error) error {
	conn, ok := s.Connection(clientID)
	if !ok {
		return fmt.Errorf("server: unknown client %d", clientID)
	}
	now := time.Now()
	m, seq, err := conn.BuildReliable(s.Pool, messageID, fill, now)
	if err != nil {
		return err
	}
	s.Base.ScheduleResend(conn.ID(), seq, now, conn.RetryDelay())
	s.sendRaw(conn, m)
	return nil
}

// SendNotify sends a notify-mode application message to one client.
func (s *Server) SendNotify(clientID, messageID uint32, fill func(*message.Message) error) error {
	conn, ok := s.Connection(clientID)
	if !ok {
		return fmt.Errorf("server: unknown client %d", clientID)
	}
	m, _, err := conn.BuildNotify(s.Pool, messageID, fill)
	if err != nil {
		return err
	}
	s.sendRaw(conn, m)
	return nil
}

// Broadcast serializes the outbound datagram once per recipient (the
// sequence ID differs per connection for reliable sends) and hands it to
// every connected client. If Options.RelayFilter is set it additionally
// gates which connections receive the broadcast (0 as the "from" ID
// marks a server-originated broadcast rather than a relayed client
// message).
func (s *Server) Broadcast(mode wire.SendMode, messageID uint32, fill func(*message.Message) error) {
	s.broadcastFrom(0, mode, messageID, fill)
}

func (s *Server) broadcastFrom(fromID uint32, mode wire.SendMode, messageID uint32, fill func(*message.Message) error) {
	now := time.Now()
	for _, c := range s.Connections() {
		if !c.IsConnected() {
			continue
		}
		if s.opts.RelayFilter != nil && !s.opts.RelayFilter(fromID, c.ID()) {
			continue
		}
		switch mode {
		case wire.Reliable:
			m, seq, err := c.BuildReliable(s.Pool, messageID, fill, now)
			if err != nil {
				s.Log.Warnf("broadcast build failed for client %d: %v", c.ID(), err)
				continue
			}
			s.Base.ScheduleResend(c.ID(), seq, now, c.RetryDelay())
			s.sendRaw(c, m)
		case wire.Notify:
			m, _, err := c.BuildNotify(s.Pool, messageID, fill)
			if err != nil {
				s.Log.Warnf("broadcast build failed for client %d: %v", c.ID(), err)
				continue
			}
			s.sendRaw(c, m)
		default:
			m, err := c.BuildUnreliable(s.Pool, messageID, fill)
			if err != nil {
				s.Log.Warnf("broadcast build failed for client %d: %v", c.ID(), err)
				continue
			}
			s.sendRaw(c, m)
		}
	}
}

// Kick disconnects clientID with reason Kicked.
func (s *Server) Kick(clientID uint32) {
	if conn, ok := s.Connection(clientID); ok {
		s.disconnect(conn, wire.DisconnectKicked)
	}
}

func (s *Server) disconnect(conn *netconn.Connection, reason wire.DisconnectReason) {
	m, err := s.Pool.CreateProtocol(wire.HeaderDisconnect)
	if err == nil {
		m.AddUInt8(uint8(reason))
		s.sendRaw(conn, m)
	}
	s.teardown(conn, reason)
}

func (s *Server) teardown(conn *netconn.Connection, reason wire.DisconnectReason) {
	wasConnected := conn.IsConnected()
	conn.SetDisconnectReason(reason)
	conn.SetState(netconn.NotConnected)
	// Flag every pending record so an already-queued resend event for
	// this connection no-ops, even if the numeric ID is recycled to a new
	// connection before the event fires.
	for _, pm := range conn.Reliability().Pending() {
		pm.WasCleared = true
	}
	delete(s.addrToID, conn.Addr().String())
	delete(s.addrToToken, conn.Addr().String())
	s.RemoveConnection(conn.ID())
	s.availableIDs = append(s.availableIDs, conn.ID())

	s.Bus.Publish(peer.Event{Type: peer.EventDisconnected, ConnectionID: conn.ID(), Data: reason})
	if wasConnected {
		s.broadcastProtocol(wire.HeaderClientDisconnected, conn.ID())
	}
}

// broadcastProtocol sends a protocol-kind datagram (ClientConnected or
// ClientDisconnected) carrying clientID to every connected client.
func (s *Server) broadcastProtocol(kind wire.HeaderKind, clientID uint32) {
	for _, c := range s.Connections() {
		if !c.IsConnected() {
			continue
		}
		m, err := s.Pool.CreateProtocol(kind)
		if err != nil {
			continue
		}
		m.AddUInt16(uint16(clientID))
		s.sendRaw(c, m)
	}
}

var _ metrics.Source = (*Server)(nil)
