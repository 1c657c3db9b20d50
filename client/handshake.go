package client

import (
	"time"

	"github.com/duskwave/ripnet/message"
	"github.com/duskwave/ripnet/netconn"
	"github.com/duskwave/ripnet/peer"
	"github.com/duskwave/ripnet/seqid"
	"github.com/duskwave/ripnet/wire"
)

func (c *Client) sendConnect() {
	m, err := c.Pool.CreateProtocol(wire.HeaderConnect)
	if err != nil {
		return
	}
	m.AddBytes(c.opts.ConnectPayload)
	c.sendRaw(m)
}

// handleReject processes a server Reject: Pending moves the client into
// the Pending state to await a Welcome (tickHeartbeat keeps resending
// Connect there until MaxConnectionAttempts is used up); any other reason
// fails the connection attempt outright.
func (c *Client) handleReject(msg *message.Message) {
	if c.conn == nil || c.conn.State() == netconn.Connected {
		return
	}
	reason := wire.RejectReason(msg.GetUInt8())
	var payload []byte
	if reason == wire.RejectCustom {
		payload = msg.GetBytes()
	}

	if reason == wire.RejectPending {
		c.conn.SetState(netconn.Pending)
		return
	}

	c.Bus.Publish(peer.Event{Type: peer.EventConnectionFailed, Data: peer.ConnectFailure{Reason: reason, Payload: payload}})
	c.teardown(wire.DisconnectConnectionRejected)
}

// handleWelcome completes the handshake: echo the assigned ID back so
// the server can finish its own side, then mark Connected locally.
func (c *Client) handleWelcome(msg *message.Message, now time.Time) {
	if c.conn == nil || c.conn.State() == netconn.Connected {
		return
	}
	assignedID := msg.GetUInt16()
	c.conn.SetState(netconn.Connected)

	ack, err := c.Pool.CreateProtocol(wire.HeaderWelcome)
	if err == nil {
		ack.AddUInt16(assignedID)
		if c.opts.ConnectPayload != nil {
			ack.AddBytes(c.opts.ConnectPayload)
		}
		c.sendRaw(ack)
	}
	c.Base.Heap.Push(now.Add(c.opts.TimeoutTime), peer.EventTimeout, connID)
	c.Bus.Publish(peer.Event{Type: peer.EventConnected, ConnectionID: c.conn.ID()})
}

func (c *Client) handleHeartbeat(msg *message.Message, now time.Time) {
	pingID := msg.GetUInt8()
	_ = msg.GetUInt16()

	if rtt, ok := c.conn.ResolvePing(pingID, now); ok {
		c.conn.ObserveRTT(rtt)
	}

	reply, err := c.Pool.CreateProtocol(wire.HeaderHeartbeat)
	if err != nil {
		return
	}
	reply.AddUInt8(pingID)
	reply.AddUInt16(uint16(c.conn.SmoothedRTT().Milliseconds()))
	c.sendRaw(reply)
}

func (c *Client) handleReliable(msg *message.Message) {
	seq := netconn.ReadReliableHeader(msg)
	duplicate := c.conn.Reliability().ReceiveInbound(seq)

	ack, err := c.conn.BuildAckFor(c.Pool, seq)
	if err == nil {
		c.sendRaw(ack)
	}
	if duplicate {
		return
	}
	c.dispatchApplication(msg)
}

func (c *Client) handleNotify(msg *message.Message) {
	ackBase, ackBits, seq := netconn.ReadNotifyHeader(msg)

	delivered, lost := c.conn.NotifyEngine().ResolveAcked(ackBase, ackBits)
	for _, id := range delivered {
		c.Bus.Publish(peer.Event{Type: peer.EventNotifyDelivered, MessageID: uint32(id)})
	}
	for _, id := range lost {
		c.Bus.Publish(peer.Event{Type: peer.EventNotifyLost, MessageID: uint32(id)})
	}

	if c.conn.NotifyEngine().ReceiveInbound(seq) {
		c.dispatchApplication(msg)
	}
}

// tickHeartbeat is the shared heartbeat/retry driver: while Connected it
// sends a real heartbeat ping; while Connecting or Pending it resends the
// handshake's Connect datagram, counting attempts toward
// MaxConnectionAttempts.
func (c *Client) tickHeartbeat(now time.Time) {
	if c.conn == nil {
		return
	}
	switch c.conn.State() {
	case netconn.Connected:
		pingID := c.conn.NextPingID()
		m, err := c.Pool.CreateProtocol(wire.HeaderHeartbeat)
		if err == nil {
			m.AddUInt8(pingID)
			m.AddUInt16(uint16(c.conn.SmoothedRTT().Milliseconds()))
			c.conn.BeginPing(now, pingID)
			c.sendRaw(m)
		}
		c.Base.Heap.Push(now.Add(c.opts.HeartbeatInterval), peer.EventHeartbeat, connID)
	case netconn.Connecting, netconn.Pending:
		attempts := c.conn.IncConnectAttempts()
		if attempts > c.opts.MaxConnectionAttempts {
			reason := wire.DisconnectNeverConnected
			if c.conn.State() == netconn.Pending {
				reason = wire.DisconnectTimedOut
			}
			// Exhausted attempts without ever hearing a Reject; the
			// failure reason the application sees is "no connection".
			c.Bus.Publish(peer.Event{Type: peer.EventConnectionFailed, Data: peer.ConnectFailure{Reason: wire.RejectNoConnection}})
			c.teardown(reason)
			return
		}
		c.sendConnect()
		c.Base.Heap.Push(now.Add(c.opts.HeartbeatInterval), peer.EventHeartbeat, connID)
	}
}

// tickResend re-sends a still-pending reliable message. See
// server.(*Server).tickResend for the shared policy this mirrors.
func (c *Client) tickResend(seqIface interface{}, now time.Time) {
	if c.conn == nil {
		return
	}
	seq, ok := seqIface.(seqid.ID)
	if !ok {
		return
	}
	pm, ok := c.conn.Reliability().Pending()[seq]
	if !ok || pm.WasCleared {
		return
	}
	if now.Sub(pm.LastSendTime) < c.conn.SmoothedRTT()/2 {
		c.Base.ScheduleResend(c.conn.ID(), seq, now, c.conn.RetryDelay())
		return
	}
	pm.SendAttempts++
	if pm.SendAttempts > c.opts.MaxSendAttempts {
		if c.opts.DisconnectOnPoorConnection {
			c.teardown(wire.DisconnectPoorConnection)
		} else {
			c.Log.Warnf("reliable seq %d exceeded %d send attempts", seq, c.opts.MaxSendAttempts)
		}
		return
	}
	pm.LastSendTime = now
	c.conn.CountResent()
	if err := c.transport.Send(pm.Payload); err != nil {
		c.Log.Warnf("resend failed: %v", err)
	}
	c.Base.ScheduleResend(c.conn.ID(), seq, now, c.conn.RetryDelay())
}

// tickTimeout enforces the heartbeat timeout while Connected; while still
// handshaking it is a no-op, since tickHeartbeat's attempt counter governs
// give-up for Connecting/Pending.
func (c *Client) tickTimeout(now time.Time) {
	if c.conn == nil || c.conn.State() != netconn.Connected {
		return
	}
	if now.Sub(c.conn.LastReceiveTime()) >= c.opts.TimeoutTime {
		c.teardown(wire.DisconnectTimedOut)
		return
	}
	c.Base.Heap.Push(now.Add(c.opts.TimeoutTime), peer.EventTimeout, connID)
}

func (c *Client) teardown(reason wire.DisconnectReason) {
	if c.conn == nil {
		return
	}
	c.conn.SetDisconnectReason(reason)
	c.conn.SetState(netconn.NotConnected)
	// Flag every pending record so an already-queued resend event no-ops
	// after the connection is gone (or replaced by a later Connect).
	for _, pm := range c.conn.Reliability().Pending() {
		pm.WasCleared = true
	}
	c.RemoveConnection(c.conn.ID())
	c.Bus.Publish(peer.Event{Type: peer.EventDisconnected, Data: reason})
	c.conn = nil
}
