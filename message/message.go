// Package message implements the bit-packed datagram codec: a
// fixed-capacity bit buffer that application code and the reliability
// engine both read from and write to without per-call allocation.
//
// A Message is always obtained from a Pool and returned to it with
// Release. The maximum payload size is a construction parameter of the
// Pool (and, transitively, of the peer that owns the pool) rather than a
// process-wide mutable knob, so it's simply immutable for the lifetime
// of a Pool and every peer built on it.
package message

import (
	"github.com/duskwave/ripnet/pkg/rlog"
	"github.com/duskwave/ripnet/wire"
)

// Message is a fixed-capacity, word-backed bit buffer.
type Message struct {
	mode     wire.SendMode
	kind     wire.HeaderKind
	readBit  uint
	writeBit uint
	maxBits  uint
	data     []uint64

	pool     *Pool
	released bool
}

// newMessage allocates a Message sized for maxBits. Only called by Pool.
func newMessage(maxBits uint) *Message {
	words := int((maxBits + 63) / 64)
	if words == 0 {
		words = 1
	}
	return &Message{
		data:    make([]uint64, words),
		maxBits: maxBits,
	}
}

func (m *Message) reset() {
	for i := range m.data {
		m.data[i] = 0
	}
	m.readBit = 0
	m.writeBit = 0
	m.mode = wire.Unreliable
	m.kind = wire.HeaderUnreliable
}

// Mode returns the send mode derived from the message's header kind.
func (m *Message) Mode() wire.SendMode { return m.mode }

// HeaderKind returns the header kind installed at creation.
func (m *Message) HeaderKind() wire.HeaderKind { return m.kind }

// ReadBit returns the current read cursor, in bits.
func (m *Message) ReadBit() uint { return m.readBit }

// WriteBit returns the current write cursor, in bits (always the next
// free bit).
func (m *Message) WriteBit() uint { return m.writeBit }

// MaxBits returns the fixed capacity of the message, in bits.
func (m *Message) MaxBits() uint { return m.maxBits }

// UnwrittenBits returns how many more bits can be written.
func (m *Message) UnwrittenBits() uint { return m.maxBits - m.writeBit }

// UnreadBits returns how many unread bits remain between the read cursor
// and the write cursor.
func (m *Message) UnreadBits() uint { return m.writeBit - m.readBit }

// BytesWritten returns the number of whole bytes needed to hold everything
// written so far (i.e. ceil(writeBit/8)).
func (m *Message) BytesWritten() int {
	return int((m.writeBit + 7) / 8)
}

// Release returns the message to its owning pool. Calling Release twice on
// the same instance within a reuse cycle is a no-op on the second call.
func (m *Message) Release() {
	if m.released || m.pool == nil {
		return
	}
	m.released = true
	m.pool.put(m)
}

func mask(n uint) uint64 {
	if n == 0 {
		return 0
	}
	if n >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << n) - 1
}

// setBitsAt writes the low n bits of value into data starting at bit
// offset start. n must be in [0, 64].
func setBitsAt(data []uint64, start, n uint, value uint64) {
	if n == 0 {
		return
	}
	value &= mask(n)
	wordIdx := start / 64
	bitOff := start % 64
	data[wordIdx] |= value << bitOff
	if bitOff+n > 64 {
		data[wordIdx+1] |= value >> (64 - bitOff)
	}
}

// getBitsAt reads n bits from data starting at bit offset start.
func getBitsAt(data []uint64, start, n uint) uint64 {
	if n == 0 {
		return 0
	}
	wordIdx := start / 64
	bitOff := start % 64
	v := data[wordIdx] >> bitOff
	if bitOff+n > 64 && wordIdx+1 < uint(len(data)) {
		v |= data[wordIdx+1] << (64 - bitOff)
	}
	return v & mask(n)
}

// AddBits writes the low n bits of value (1 <= n <= 64) and advances the
// write cursor by n.
func (m *Message) AddBits(value uint64, n uint) error {
	if n == 0 || n > 64 {
		return newInsufficientCapacity("bits", n, m.UnwrittenBits())
	}
	if n > m.UnwrittenBits() {
		return newInsufficientCapacity("bits", n, m.UnwrittenBits())
	}
	setBitsAt(m.data, m.writeBit, n, value)
	m.writeBit += n
	return nil
}

// GetBits reads n bits (1 <= n <= 64) and advances the read cursor by n.
// Reading past the write cursor is non-fatal: it logs and returns 0.
func (m *Message) GetBits(n uint) uint64 {
	if n == 0 || n > 64 || n > m.UnreadBits() {
		rlog.Default().Warnf("message: bit underflow reading %d bits (unread=%d)", n, m.UnreadBits())
		return 0
	}
	v := getBitsAt(m.data, m.readBit, n)
	m.readBit += n
	return v
}

// PeekBits reads n bits starting at startBit without moving any cursor.
func (m *Message) PeekBits(n, startBit uint) uint64 {
	if n == 0 || n > 64 || startBit+n > m.writeBit {
		rlog.Default().Warnf("message: peek underflow at bit %d for %d bits", startBit, n)
		return 0
	}
	return getBitsAt(m.data, startBit, n)
}

// ReserveBits advances the write cursor by n bits without writing any
// value, returning the bit offset of the reserved slot so it can be
// filled in later via SetBits. Used by the reliability engine to punch
// the sequence-ID field before the sequence ID is actually known.
func (m *Message) ReserveBits(n uint) (uint, error) {
	if n > m.UnwrittenBits() {
		return 0, newInsufficientCapacity("reserved-bits", n, m.UnwrittenBits())
	}
	start := m.writeBit
	m.writeBit += n
	return start, nil
}

// SetBits writes the low n bits of value at startBit without touching the
// write cursor. startBit+n must not exceed the current write cursor.
func (m *Message) SetBits(value uint64, n, startBit uint) error {
	if startBit+n > m.writeBit {
		return newInsufficientCapacity("set-bits", n, m.writeBit-startBit)
	}
	// Clear the target bits first so repeated SetBits calls don't OR stale data together.
	clearBitsAt(m.data, startBit, n)
	setBitsAt(m.data, startBit, n, value)
	return nil
}

func clearBitsAt(data []uint64, start, n uint) {
	if n == 0 {
		return
	}
	wordIdx := start / 64
	bitOff := start % 64
	data[wordIdx] &^= mask(n) << bitOff
	if bitOff+n > 64 {
		data[wordIdx+1] &^= mask(n) >> (64 - bitOff)
	}
}

// AddMessage copies amount bits from other, starting at other's bit
// startBit, into m at the current write cursor. The three cases called
// out (source/destination bit offsets aligned, dest
// ahead, dest behind) all reduce to the same word-level shift-and-OR once
// reads and writes are expressed in terms of getBitsAt/setBitsAt, which
// already tolerate arbitrary bit alignment; the final partial word is
// masked to amount's bit count by setBitsAt itself, so no separate
// last-word fixup is needed here.
func (m *Message) AddMessage(other *Message, amount, startBit uint) error {
	if amount == 0 {
		return nil
	}
	if amount > m.UnwrittenBits() {
		return newInsufficientCapacity("sub-message", amount, m.UnwrittenBits())
	}
	if startBit+amount > other.writeBit {
		rlog.Default().Warnf("message: AddMessage source underflow: start=%d amount=%d write=%d", startBit, amount, other.writeBit)
	}

	remaining := amount
	d, s := m.writeBit, startBit
	for remaining > 0 {
		n := remaining
		if n > 64 {
			n = 64
		}
		v := getBitsAt(other.data, s, n)
		setBitsAt(m.data, d, n, v)
		d += n
		s += n
		remaining -= n
	}

	m.writeBit += amount
	return nil
}
