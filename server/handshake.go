package server

import (
	"net"
	"time"

	"github.com/duskwave/ripnet/message"
	"github.com/duskwave/ripnet/netconn"
	"github.com/duskwave/ripnet/peer"
	"github.com/duskwave/ripnet/seqid"
	"github.com/duskwave/ripnet/wire"
	"github.com/rs/xid"
)

// handleConnect processes an inbound Connect datagram: an already-known
// address resends its in-flight handshake state, a new address is run
// through the (optional) Accept callback and, if accepted, allocated a
// client ID before a Welcome is sent.
func (s *Server) handleConnect(addr *net.UDPAddr, payload []byte, now time.Time) {
	if id, ok := s.addrToID[addr.String()]; ok {
		conn, ok := s.Connection(id)
		if !ok {
			delete(s.addrToID, addr.String())
		} else {
			switch conn.State() {
			case netconn.Connected:
				if s.opts.SuppressAlreadyConnectedReject {
					s.sendWelcome(conn)
				} else {
					s.sendReject(addr, wire.RejectAlreadyConnected)
				}
			case netconn.Pending:
				s.sendWelcome(conn)
			}
			return
		}
	}

	if len(s.availableIDs) == 0 {
		s.sendReject(addr, wire.RejectServerFull)
		return
	}

	token, ok := s.addrToToken[addr.String()]
	if !ok {
		token = xid.New()
		s.addrToToken[addr.String()] = token
	}

	accept, reason := true, wire.RejectRejected
	if s.opts.Accept != nil {
		accept, reason = s.opts.Accept(addr, payload, token)
	}
	if !accept {
		delete(s.addrToToken, addr.String())
		s.sendReject(addr, reason)
		return
	}

	id := s.availableIDs[0]
	s.availableIDs = s.availableIDs[1:]

	conn := netconn.NewConnection(id, addr)
	conn.SetState(netconn.Pending)
	conn.Touch(now)
	s.addrToID[addr.String()] = id
	s.AddConnection(conn, now)

	// Ack the Connect itself first so the client can move to Pending even
	// if the Welcome right behind it is lost.
	if ack, err := s.Pool.CreateProtocol(wire.HeaderConnect); err == nil {
		s.sendRaw(conn, ack)
	}
	s.sendWelcome(conn)
}

func (s *Server) sendWelcome(conn *netconn.Connection) {
	m, err := s.Pool.CreateProtocol(wire.HeaderWelcome)
	if err != nil {
		return
	}
	m.AddUInt16(uint16(conn.ID()))
	s.sendRaw(conn, m)
}

func (s *Server) sendReject(addr *net.UDPAddr, reason wire.RejectReason) {
	for i := 0; i < rejectRetries; i++ {
		m, err := s.Pool.CreateProtocol(wire.HeaderReject)
		if err != nil {
			return
		}
		m.AddUInt8(uint8(reason))
		raw := m.Bytes()
		m.Release()
		if err := s.transport.Send(addr, raw); err != nil {
			s.Log.Warnf("reject send to %s failed: %v", addr, err)
			return
		}
	}
}

// handleWelcomeAck is the final handshake step: the client echoes its
// assigned ID back, completing the connection and triggering the
// ClientConnected broadcast to the rest of the server's clients.
func (s *Server) handleWelcomeAck(conn *netconn.Connection, msg *message.Message, now time.Time) {
	if conn.State() != netconn.Pending {
		return // already connected or stale retransmit: ignore
	}
	echoedID := msg.GetUInt16()
	if uint32(echoedID) != conn.ID() {
		s.Log.Warnf("welcome ack from %s echoed wrong id %d (want %d)", conn.Addr(), echoedID, conn.ID())
		return
	}
	// Announce before marking Connected: broadcastProtocol skips connections
	// that are not yet Connected, so the new client itself is left out.
	s.broadcastProtocol(wire.HeaderClientConnected, conn.ID())
	conn.SetState(netconn.Connected)
	s.Bus.Publish(peer.Event{Type: peer.EventConnected, ConnectionID: conn.ID()})
}

func (s *Server) handleHeartbeat(conn *netconn.Connection, msg *message.Message, now time.Time) {
	pingID := msg.GetUInt8()
	_ = msg.GetUInt16() // remote's last_rtt, informational only

	if rtt, ok := conn.ResolvePing(pingID, now); ok {
		conn.ObserveRTT(rtt)
	}

	reply, err := s.Pool.CreateProtocol(wire.HeaderHeartbeat)
	if err != nil {
		return
	}
	reply.AddUInt8(pingID)
	reply.AddUInt16(uint16(conn.SmoothedRTT().Milliseconds()))
	s.sendRaw(conn, reply)
}

func (s *Server) handleReliable(conn *netconn.Connection, msg *message.Message, now time.Time) {
	seq := netconn.ReadReliableHeader(msg)
	duplicate := conn.Reliability().ReceiveInbound(seq)

	ack, err := conn.BuildAckFor(s.Pool, seq)
	if err == nil {
		s.sendRaw(conn, ack)
	}
	if duplicate {
		return
	}
	s.dispatchApplication(conn, msg)
}

func (s *Server) handleNotify(conn *netconn.Connection, msg *message.Message) {
	ackBase, ackBits, seq := netconn.ReadNotifyHeader(msg)

	delivered, lost := conn.NotifyEngine().ResolveAcked(ackBase, ackBits)
	for _, id := range delivered {
		s.Bus.Publish(peer.Event{Type: peer.EventNotifyDelivered, ConnectionID: conn.ID(), MessageID: uint32(id)})
	}
	for _, id := range lost {
		s.Bus.Publish(peer.Event{Type: peer.EventNotifyLost, ConnectionID: conn.ID(), MessageID: uint32(id)})
	}

	if conn.NotifyEngine().ReceiveInbound(seq) {
		s.dispatchApplication(conn, msg)
	}
}

func (s *Server) tickHeartbeat(connID uint32, now time.Time) {
	conn, ok := s.Connection(connID)
	if !ok {
		return
	}
	if !conn.IsConnected() {
		// Still handshaking; check again next interval so heartbeats start
		// once the welcome ack lands.
		s.Base.Heap.Push(now.Add(s.opts.HeartbeatInterval), peer.EventHeartbeat, connID)
		return
	}
	pingID := conn.NextPingID()
	m, err := s.Pool.CreateProtocol(wire.HeaderHeartbeat)
	if err == nil {
		m.AddUInt8(pingID)
		m.AddUInt16(uint16(conn.SmoothedRTT().Milliseconds()))
		conn.BeginPing(now, pingID)
		s.sendRaw(conn, m)
	}
	s.Base.Heap.Push(now.Add(s.opts.HeartbeatInterval), peer.EventHeartbeat, connID)
}

// tickResend re-sends a still-pending reliable message, unless it has
// already been acked (removed from the connection's pending set) or the
// connection no longer exists. Exceeding MaxSendAttempts optionally tears
// the connection down with DisconnectPoorConnection.
func (s *Server) tickResend(connID uint32, seqIface interface{}, now time.Time) {
	conn, ok := s.Connection(connID)
	if !ok {
		return
	}
	seq, ok := seqIface.(seqid.ID)
	if !ok {
		return
	}
	pm, ok := conn.Reliability().Pending()[seq]
	if !ok || pm.WasCleared {
		return
	}
	if now.Sub(pm.LastSendTime) < conn.SmoothedRTT()/2 {
		s.Base.ScheduleResend(connID, seq, now, conn.RetryDelay())
		return
	}
	pm.SendAttempts++
	if pm.SendAttempts > s.opts.MaxSendAttempts {
		if s.opts.DisconnectOnPoorConnection {
			s.teardown(conn, wire.DisconnectPoorConnection)
		} else {
			s.Log.Warnf("client %d: reliable seq %d exceeded %d send attempts", connID, seq, s.opts.MaxSendAttempts)
		}
		return
	}
	pm.LastSendTime = now
	conn.CountResent()
	if err := s.transport.Send(conn.Addr(), pm.Payload); err != nil {
		s.Log.Warnf("resend to client %d failed: %v", connID, err)
	}
	s.Base.ScheduleResend(connID, seq, now, conn.RetryDelay())
}

func (s *Server) tickTimeout(connID uint32, now time.Time) {
	conn, ok := s.Connection(connID)
	if !ok {
		return
	}
	if now.Sub(conn.LastReceiveTime()) >= s.opts.TimeoutTime {
		s.teardown(conn, wire.DisconnectTimedOut)
		return
	}
	s.Base.Heap.Push(now.Add(s.opts.TimeoutTime), peer.EventTimeout, connID)
}
