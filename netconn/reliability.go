package netconn

import (
	"time"

	"github.com/duskwave/ripnet/pkg/rlog"
	"github.com/duskwave/ripnet/seqid"
)

// The receive window remembers the newest inbound sequence ID plus the 80
// IDs immediately before it: the 16-bit acksBitfield covers IDs 1-16 back
// (and rides on every outbound Ack datagram), the 64-bit duplicate filter
// covers IDs 17-80 back. Reordering past warnWindow is unusual enough to
// log; past fullWindow the filter can no longer suppress duplicates.
const (
	ackBitfieldBits = 16
	dupFilterBits   = 64
	fullWindow      = ackBitfieldBits + dupFilterBits
	warnWindow      = 64
)

// PendingMessage is a reliable message sent but not yet acknowledged. It
// is retransmitted on a delay-based schedule until acked or given up on.
type PendingMessage struct {
	SeqID        seqid.ID
	Payload      []byte
	LastSendTime time.Time
	SendAttempts int
	WasCleared   bool
}

// Reliability implements the reliable send-mode engine: outbound sequence
// assignment plus ack/retransmission bookkeeping, and inbound duplicate
// suppression via the two sliding bitfield windows above.
type Reliability struct {
	nextOutSeqID seqid.ID

	lastReceivedSeqID   seqid.ID
	haveReceivedAny     bool
	acksBitfield        uint16 // bit i set => lastReceivedSeqID-1-i was seen
	duplicateFilterBits uint64 // bit i set => lastReceivedSeqID-17-i was seen

	pendingMessages map[seqid.ID]*PendingMessage
}

func (r *Reliability) init() {
	r.pendingMessages = make(map[seqid.ID]*PendingMessage)
}

// NextOutgoingSeqID returns the sequence ID to stamp on the next reliable
// message and advances the counter.
func (r *Reliability) NextOutgoingSeqID() seqid.ID {
	id := r.nextOutSeqID
	r.nextOutSeqID = r.nextOutSeqID.Next()
	return id
}

// TrackPending registers a just-sent reliable message so it can be
// retransmitted until acked.
func (r *Reliability) TrackPending(id seqid.ID, payload []byte, now time.Time) {
	r.pendingMessages[id] = &PendingMessage{
		SeqID:        id,
		Payload:      payload,
		LastSendTime: now,
		SendAttempts: 1,
	}
}

// Pending returns every message still awaiting acknowledgement, for the
// scheduler's resend pass.
func (r *Reliability) Pending() map[seqid.ID]*PendingMessage {
	return r.pendingMessages
}

// Ack removes a message from the pending set once its ack has been
// received. Acking an ID that isn't pending (already removed, or never
// sent) is a no-op.
func (r *Reliability) Ack(id seqid.ID) {
	delete(r.pendingMessages, id)
}

// AckRange acks the IDs prior to base per the bits set in bitfield: bit i
// acks base-1-i. base itself is acked separately by the caller, since it
// is named explicitly in the Ack datagram rather than carried as a bit.
func (r *Reliability) AckRange(base seqid.ID, bitfield uint64, width uint) {
	for i := uint(0); i < width; i++ {
		if bitfield&(1<<i) == 0 {
			continue
		}
		r.Ack(base - 1 - seqid.ID(i))
	}
}

// ReceiveInbound records an inbound reliable sequence ID, reporting
// whether it is a duplicate the caller should drop. A newer-than-anything
// ID slides both windows forward, spilling ack bits into the duplicate
// filter; an older ID is checked against (and marked in) whichever window
// covers it. The caller always sends an ack regardless of the result.
func (r *Reliability) ReceiveInbound(id seqid.ID) (duplicate bool) {
	if !r.haveReceivedAny {
		r.haveReceivedAny = true
		r.lastReceivedSeqID = id
		r.acksBitfield = 0
		r.duplicateFilterBits = 0
		return false
	}

	gap := seqid.SignedGap(id, r.lastReceivedSeqID)
	switch {
	case gap == 0:
		return true
	case gap < 0:
		back := uint(-gap)
		switch {
		case back <= ackBitfieldBits:
			bit := uint16(1) << (back - 1)
			if r.acksBitfield&bit != 0 {
				return true
			}
			r.acksBitfield |= bit
		case back <= fullWindow:
			if back > warnWindow {
				rlog.Default().Warnf("netconn: reliable sequence %d is %d behind the newest; near the edge of the duplicate window", id, back)
			}
			bit := uint64(1) << (back - 1 - ackBitfieldBits)
			if r.duplicateFilterBits&bit != 0 {
				return true
			}
			r.duplicateFilterBits |= bit
		default:
			rlog.Default().Warnf("netconn: reliable sequence %d is %d behind the newest; past the duplicate window, accepting", id, back)
		}
		return false
	default:
		if gap > warnWindow {
			rlog.Default().Warnf("netconn: reliable sequence jumped ahead by %d; duplicate window slipping", gap)
		}
		r.slideWindows(uint(gap))
		r.lastReceivedSeqID = id
		return false
	}
}

// slideWindows moves the combined 80-bit receive window forward by shift
// IDs. The window is laid out as one logical bit vector with index 0 at
// the newest ID: lo holds indices 0..63 (bit 0 = the newest ID itself,
// bits 1..16 = acksBitfield, the rest the front of the duplicate filter),
// hi holds indices 64..80.
func (r *Reliability) slideWindows(shift uint) {
	lo := uint64(1) | uint64(r.acksBitfield)<<1 | r.duplicateFilterBits<<(1+ackBitfieldBits)
	hi := r.duplicateFilterBits >> (63 - ackBitfieldBits)
	switch {
	case shift >= 128:
		lo, hi = 0, 0
	case shift >= 64:
		hi = lo << (shift - 64)
		lo = 0
	default:
		hi = hi<<shift | lo>>(64-shift)
		lo <<= shift
	}
	lo |= 1
	r.acksBitfield = uint16(lo >> 1)
	r.duplicateFilterBits = lo>>(1+ackBitfieldBits) | hi<<(63-ackBitfieldBits)
}

// AckSnapshot returns the base sequence ID and 16-bit bitfield to send
// back as an Ack datagram for everything received so far.
func (r *Reliability) AckSnapshot() (seqid.ID, uint16) {
	return r.lastReceivedSeqID, r.acksBitfield
}
