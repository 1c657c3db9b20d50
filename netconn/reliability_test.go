package netconn

import (
	"testing"
	"time"

	"github.com/duskwave/ripnet/seqid"
	"github.com/stretchr/testify/require"
)

func TestReliabilityDuplicateInboundIsSuppressed(t *testing.T) {
	var r Reliability
	r.init()

	dup := r.ReceiveInbound(1)
	require.False(t, dup, "first delivery of 1 must not be a duplicate")

	dup = r.ReceiveInbound(1)
	require.True(t, dup, "re-delivery of 1 must be flagged as a duplicate")
}

func TestReliabilityOutOfOrderStillAccepted(t *testing.T) {
	var r Reliability
	r.init()

	require.False(t, r.ReceiveInbound(5))
	require.False(t, r.ReceiveInbound(3), "an older, not-yet-seen ID must be accepted once")
	require.True(t, r.ReceiveInbound(3), "the same older ID again must now be a duplicate")
}

func TestReliabilityOutOfOrderThenFill(t *testing.T) {
	var r Reliability
	r.init()

	for _, seq := range []seqid.ID{3, 5, 4, 6} {
		require.False(t, r.ReceiveInbound(seq), "seq %d must be delivered", seq)
	}

	base, bits := r.AckSnapshot()
	require.EqualValues(t, 6, base)
	// bit0 = 5, bit1 = 4, bit2 = 3: all three prior IDs were received.
	require.EqualValues(t, 0b111, bits&0b111)
}

func TestReliabilityDuplicateBeyondAckWindow(t *testing.T) {
	var r Reliability
	r.init()

	require.False(t, r.ReceiveInbound(30))
	require.False(t, r.ReceiveInbound(100), "jump ahead by 70 keeps 30 inside the duplicate filter")
	require.True(t, r.ReceiveInbound(30), "30 is 70 back, covered by the duplicate filter")
}

func TestReliabilityBeyondFullWindowIsAccepted(t *testing.T) {
	var r Reliability
	r.init()

	require.False(t, r.ReceiveInbound(10))
	require.False(t, r.ReceiveInbound(200))
	// 10 is now 190 behind: past the 80-ID window, so the filter can no
	// longer tell it apart from a fresh ID and must accept it.
	require.False(t, r.ReceiveInbound(10))
}

func TestReliabilityWindowSlideSpillsAckBitsIntoFilter(t *testing.T) {
	var r Reliability
	r.init()

	require.False(t, r.ReceiveInbound(1))
	require.False(t, r.ReceiveInbound(2))
	// Jump ahead so 1 and 2 slide out of the 16-bit ack window into the
	// duplicate filter; they must still be recognized as duplicates there.
	require.False(t, r.ReceiveInbound(40))
	require.True(t, r.ReceiveInbound(1))
	require.True(t, r.ReceiveInbound(2))

	base, bits := r.AckSnapshot()
	require.EqualValues(t, 40, base)
	require.Zero(t, bits, "IDs 24..39 were never received")
}

func TestReliabilityAckRemovesPending(t *testing.T) {
	var r Reliability
	r.init()

	id := r.NextOutgoingSeqID()
	r.TrackPending(id, []byte("hello"), time.Now())
	require.Len(t, r.Pending(), 1)

	r.Ack(id)
	require.Empty(t, r.Pending())
}

func TestReliabilityAckRangeCoversBitfield(t *testing.T) {
	var r Reliability
	r.init()

	for i := seqid.ID(7); i <= 9; i++ {
		r.TrackPending(i, nil, time.Now())
	}
	// bit0 = 9, bit1 = 8, bit2 = 7 relative to base 10.
	r.AckRange(10, 0b111, 3)
	require.Empty(t, r.Pending())
}

func TestRetryDelayDefaultsBeforeAnyRTTSample(t *testing.T) {
	c := NewConnection(1, nil)
	require.Equal(t, 50*time.Millisecond, c.RetryDelay())
}

func TestRetryDelayFollowsSmoothedRTT(t *testing.T) {
	c := NewConnection(1, nil)
	c.ObserveRTT(100 * time.Millisecond)
	require.Equal(t, 100*time.Millisecond, c.SmoothedRTT())

	c.ObserveRTT(100 * time.Millisecond)
	require.Equal(t, 100*time.Millisecond, c.SmoothedRTT())

	want := time.Duration(float64(100*time.Millisecond) * 1.2)
	require.Equal(t, want, c.RetryDelay())
}

func TestRetryDelayNeverBelowFloor(t *testing.T) {
	c := NewConnection(1, nil)
	c.ObserveRTT(1 * time.Millisecond)
	require.Equal(t, 10*time.Millisecond, c.RetryDelay())
}

func TestApplyAckClearsBaseExplicitAndBitfield(t *testing.T) {
	c := NewConnection(1, nil)
	r := c.Reliability()
	for i := seqid.ID(0); i < 4; i++ {
		r.TrackPending(i, nil, time.Now())
	}

	// Plain ack naming 3 as the newest received, with 2 and 0 set in the
	// bitfield (bit0 = 2, bit2 = 0); 1 stays pending.
	c.ApplyAck(3, 0b101, 3)
	require.Len(t, r.Pending(), 1)
	require.Contains(t, r.Pending(), seqid.ID(1))
}
