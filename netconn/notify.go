package netconn

import "github.com/duskwave/ripnet/seqid"

// notifyWindow bounds the rolling loss-rate tracker to the 64 most recent
// notify sends (a rolling 64-message loss rate window).
const notifyWindow = 64

// Notify implements the notify send-mode engine: ordered-but-lossy
// delivery with delivered/lost callbacks and a rolling loss-rate
// estimate. Unlike Reliability it never retransmits: an unacked notify
// message is simply reported lost.
type Notify struct {
	nextOutSeqID seqid.ID

	// outstanding tracks sent-but-not-yet-resolved notify sequence IDs so
	// ResolveAcked reports each send as delivered or lost exactly once.
	outstanding map[seqid.ID]struct{}

	lastReceivedSeq seqid.ID
	haveReceivedAny bool
	receivedBits    uint64 // bit i set => lastReceivedSeq-i was received

	lossWindow   uint64 // bit i set => the ith-from-newest send was lost
	lossCount    int
	totalTracked int
}

func (n *Notify) init() {
	n.outstanding = make(map[seqid.ID]struct{})
}

// NextOutgoingSeqID returns the sequence ID for the next notify send,
// recording it as outstanding until a later ack resolves it.
func (n *Notify) NextOutgoingSeqID() seqid.ID {
	id := n.nextOutSeqID
	n.nextOutSeqID = n.nextOutSeqID.Next()
	n.outstanding[id] = struct{}{}
	return id
}

// ReceiveInbound records an inbound notify sequence ID and reports
// whether the caller should deliver it. Only IDs strictly newer than
// anything seen before are delivered, so delivery is in-order by
// construction; an older or duplicate ID is dropped without marking the
// received bitfield, leaving it to resolve as lost on the sender.
func (n *Notify) ReceiveInbound(id seqid.ID) (deliver bool) {
	if !n.haveReceivedAny {
		n.haveReceivedAny = true
		n.lastReceivedSeq = id
		n.receivedBits = 1
		return true
	}
	gap := seqid.SignedGap(id, n.lastReceivedSeq)
	if gap <= 0 {
		return false
	}
	shift := uint(gap)
	if shift >= 64 {
		n.receivedBits = 1
	} else {
		n.receivedBits = (n.receivedBits << shift) | 1
	}
	n.lastReceivedSeq = id
	return true
}

// LastReceived and ReceivedBits expose the internal (non-wire) notify
// receive state.
func (n *Notify) LastReceived() (seqid.ID, bool) { return n.lastReceivedSeq, n.haveReceivedAny }
func (n *Notify) ReceivedBits() uint64           { return n.receivedBits }

// AckWireField packs the internal receive state into the wire-level
// 24-bit ack field carried on every outbound Notify datagram: the full
// 16-bit last-received sequence ID plus an 8-bit snapshot of the
// received bitfield for the 8 IDs immediately prior to it.
func (n *Notify) AckWireField() uint32 {
	base := uint32(n.lastReceivedSeq) & 0xffff
	window := uint32(n.receivedBits>>1) & 0xff
	return base | window<<16
}

// DecodeAckWireField reverses AckWireField, splitting a received 24-bit
// ack field back into the base sequence ID and its trailing bitfield.
func DecodeAckWireField(field uint32) (seqid.ID, uint64) {
	base := seqid.ID(field & 0xffff)
	bits := uint64(field>>16) & 0xff
	return base, bits<<1 | 1
}

// ResolveAcked marks every outstanding notify send at or before base
// (within notifyWindow) as either delivered or lost, according to
// bitfield, and returns the two resulting ID lists. Any outstanding ID
// older than the window that wasn't acked is also resolved as lost.
func (n *Notify) ResolveAcked(base seqid.ID, bitfield uint64) (delivered, lost []seqid.ID) {
	for id := range n.outstanding {
		gap := seqid.SignedGap(base, id)
		if gap < 0 {
			continue // ack doesn't cover this ID yet
		}
		if gap >= notifyWindow {
			lost = append(lost, id)
			n.recordOutcome(false)
			delete(n.outstanding, id)
			continue
		}
		if bitfield&(1<<uint(gap)) != 0 {
			delivered = append(delivered, id)
			n.recordOutcome(true)
		} else {
			lost = append(lost, id)
			n.recordOutcome(false)
		}
		delete(n.outstanding, id)
	}
	return delivered, lost
}

func (n *Notify) recordOutcome(delivered bool) {
	// The bit sliding out of the 64-wide window stops counting toward
	// lossCount once the window is full.
	if n.totalTracked >= notifyWindow && n.lossWindow&(1<<(notifyWindow-1)) != 0 {
		n.lossCount--
	}
	n.totalTracked++
	n.lossWindow <<= 1
	if !delivered {
		n.lossWindow |= 1
		n.lossCount++
	}
}

// LossRate returns the fraction of the most recent (up to notifyWindow)
// resolved notify sends that were lost.
func (n *Notify) LossRate() float64 {
	tracked := n.totalTracked
	if tracked > notifyWindow {
		tracked = notifyWindow
	}
	if tracked == 0 {
		return 0
	}
	return float64(n.lossCount) / float64(tracked)
}
