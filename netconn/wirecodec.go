package netconn

import (
	"time"

	"github.com/duskwave/ripnet/message"
	"github.com/duskwave/ripnet/seqid"
	"github.com/duskwave/ripnet/wire"
)

// BuildUnreliable assembles a ready-to-send Unreliable message for
// messageID. fill appends the application payload; it may be nil for a
// bare message carrying only the ID.
func (c *Connection) BuildUnreliable(pool *message.Pool, messageID uint32, fill func(*message.Message) error) (*message.Message, error) {
	m, err := pool.CreateForSend(wire.Unreliable, messageID)
	if err != nil {
		return nil, err
	}
	if fill != nil {
		if err := fill(m); err != nil {
			m.Release()
			return nil, err
		}
	}
	return m, nil
}

// BuildReliable assembles a Reliable message, stamps it with this
// connection's next outbound sequence ID, and registers it as pending so
// the scheduler retransmits it until acked.
func (c *Connection) BuildReliable(pool *message.Pool, messageID uint32, fill func(*message.Message) error, now time.Time) (*message.Message, seqid.ID, error) {
	m, err := pool.CreateForSend(wire.Reliable, messageID)
	if err != nil {
		return nil, 0, err
	}
	if fill != nil {
		if err := fill(m); err != nil {
			m.Release()
			return nil, 0, err
		}
	}
	seq := c.reliability.NextOutgoingSeqID()
	if err := m.SetBits(uint64(seq), 16, wire.HeaderBits); err != nil {
		m.Release()
		return nil, 0, err
	}
	payload := append([]byte(nil), m.Bytes()...)
	c.reliability.TrackPending(seq, payload, now)
	return m, seq, nil
}

// BuildNotify assembles a Notify message: the 24-bit ack field (this
// connection's current notify receive state) followed by the 16-bit
// outbound sequence ID.
func (c *Connection) BuildNotify(pool *message.Pool, messageID uint32, fill func(*message.Message) error) (*message.Message, seqid.ID, error) {
	m, err := pool.CreateForSend(wire.Notify, messageID)
	if err != nil {
		return nil, 0, err
	}
	if fill != nil {
		if err := fill(m); err != nil {
			m.Release()
			return nil, 0, err
		}
	}
	seq := c.notify.NextOutgoingSeqID()
	ackField := c.notify.AckWireField()
	if err := m.SetBits(uint64(ackField), 24, wire.HeaderBits); err != nil {
		m.Release()
		return nil, 0, err
	}
	if err := m.SetBits(uint64(seq), 16, wire.HeaderBits+24); err != nil {
		m.Release()
		return nil, 0, err
	}
	return m, seq, nil
}

// ReadReliableHeader reads the 16-bit sequence ID immediately following
// the 4-bit header kind of an inbound Reliable message. The caller is
// expected to have already consumed the header kind via Pool.FromBytes.
func ReadReliableHeader(msg *message.Message) seqid.ID {
	return seqid.ID(msg.GetBits(16))
}

// ReadNotifyHeader reads the 24-bit ack field and 16-bit sequence ID of
// an inbound Notify message, returning the decoded ack base/bitfield pair
// alongside the message's own fresh sequence ID.
func ReadNotifyHeader(msg *message.Message) (ackBase seqid.ID, ackBits uint64, seq seqid.ID) {
	field := uint32(msg.GetBits(24))
	ackBase, ackBits = DecodeAckWireField(field)
	seq = seqid.ID(msg.GetBits(16))
	return ackBase, ackBits, seq
}

// BuildAckFor returns the ack datagram for a just-received reliable
// sequence ID seq: a plain Ack if seq is the newest ID we've seen, or an
// AckExtra carrying seq explicitly otherwise.
func (c *Connection) BuildAckFor(pool *message.Pool, seq seqid.ID) (*message.Message, error) {
	base, bits := c.reliability.AckSnapshot()
	if seq == base {
		m, err := pool.CreateProtocol(wire.HeaderAck)
		if err != nil {
			return nil, err
		}
		if err := m.AddBits(uint64(base), 16); err != nil {
			m.Release()
			return nil, err
		}
		if err := m.AddBits(uint64(bits), 16); err != nil {
			m.Release()
			return nil, err
		}
		return m, nil
	}

	m, err := pool.CreateProtocol(wire.HeaderAckExtra)
	if err != nil {
		return nil, err
	}
	if err := m.AddBits(uint64(base), 16); err != nil {
		m.Release()
		return nil, err
	}
	if err := m.AddBits(uint64(bits), 16); err != nil {
		m.Release()
		return nil, err
	}
	if err := m.AddBits(uint64(seq), 16); err != nil {
		m.Release()
		return nil, err
	}
	return m, nil
}

// ReadAck reads an Ack or AckExtra payload: base sequence ID, the 16-bit
// ack bitfield, and (AckExtra only) the explicitly-acked sequence ID.
func ReadAck(msg *message.Message, extra bool) (base seqid.ID, bits uint16, acked seqid.ID) {
	base = seqid.ID(msg.GetBits(16))
	bits = uint16(msg.GetBits(16))
	acked = base
	if extra {
		acked = seqid.ID(msg.GetBits(16))
	}
	return base, bits, acked
}

// ApplyAck folds a received Ack/AckExtra into this connection's
// reliability state: base (the remote's newest received ID) and the
// explicitly-acked ID (equal to base for a plain Ack) are acked directly,
// and every bit set in bits acks a pending message in the window below
// base.
func (c *Connection) ApplyAck(base seqid.ID, bits uint16, acked seqid.ID) {
	before := len(c.reliability.pendingMessages)
	c.reliability.Ack(acked)
	c.reliability.Ack(base)
	c.reliability.AckRange(base, uint64(bits), 16)
	c.addAcked(before - len(c.reliability.pendingMessages))
}
