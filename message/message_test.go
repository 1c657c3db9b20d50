package message

import (
	"testing"

	"github.com/duskwave/ripnet/wire"
)

func TestBitsRoundTrip(t *testing.T) {
	p := NewPool(1225, 1)
	m := p.Create()
	defer m.Release()

	widths := []uint{1, 3, 7, 8, 13, 32, 63, 64}
	values := []uint64{1, 5, 100, 255, 8191, 0xdeadbeef, 0x7fffffffffffffff, 0xffffffffffffffff}

	for i, w := range widths {
		if err := m.AddBits(values[i]&mask(w), w); err != nil {
			t.Fatalf("AddBits(%d, %d): %v", values[i], w, err)
		}
	}
	for i, w := range widths {
		got := m.GetBits(w)
		want := values[i] & mask(w)
		if got != want {
			t.Errorf("field %d: GetBits(%d) = %#x, want %#x", i, w, got, want)
		}
	}
}

func TestAddBitsInsufficientCapacity(t *testing.T) {
	p := NewPool(1, 1) // tiny payload: a handful of bits of capacity
	m := p.Create()
	defer m.Release()

	// Drain the message's capacity, then expect the next write to fail.
	for m.UnwrittenBits() >= 64 {
		if err := m.AddBits(0, 64); err != nil {
			t.Fatalf("unexpected error draining capacity: %v", err)
		}
	}
	remaining := m.UnwrittenBits()
	if err := m.AddBits(0, remaining+1); err == nil {
		t.Fatalf("expected InsufficientCapacityError, got nil")
	}
}

func TestGetBitsUnderflowIsNonFatal(t *testing.T) {
	p := NewPool(1225, 1)
	m := p.Create()
	defer m.Release()

	if err := m.AddBits(42, 8); err != nil {
		t.Fatalf("AddBits: %v", err)
	}
	_ = m.GetBits(8)

	// Nothing left to read; GetBits must return 0, not panic.
	if got := m.GetBits(8); got != 0 {
		t.Errorf("GetBits past write cursor = %d, want 0", got)
	}
}

func TestPeekBitsDoesNotMoveCursor(t *testing.T) {
	p := NewPool(1225, 1)
	m := p.Create()
	defer m.Release()

	if err := m.AddBits(7, 4); err != nil {
		t.Fatalf("AddBits: %v", err)
	}
	if err := m.AddBits(9, 4); err != nil {
		t.Fatalf("AddBits: %v", err)
	}

	if got := m.PeekBits(4, 4); got != 9 {
		t.Errorf("PeekBits(4, 4) = %d, want 9", got)
	}
	if m.ReadBit() != 0 {
		t.Errorf("PeekBits moved the read cursor to %d, want 0", m.ReadBit())
	}
	if got := m.GetBits(4); got != 7 {
		t.Errorf("GetBits(4) after peek = %d, want 7", got)
	}
}

func TestReserveBitsThenSetBits(t *testing.T) {
	p := NewPool(1225, 1)
	m := p.Create()
	defer m.Release()

	slot, err := m.ReserveBits(16)
	if err != nil {
		t.Fatalf("ReserveBits: %v", err)
	}
	if err := m.AddBits(1, 8); err != nil {
		t.Fatalf("AddBits: %v", err)
	}
	if err := m.SetBits(12345, 16, slot); err != nil {
		t.Fatalf("SetBits: %v", err)
	}

	if got := m.GetBits(16); got != 12345 {
		t.Errorf("reserved field = %d, want 12345", got)
	}
	if got := m.GetBits(8); got != 1 {
		t.Errorf("field written after reserve = %d, want 1", got)
	}
}

func TestSetBitsOverwritesCleanly(t *testing.T) {
	p := NewPool(1225, 1)
	m := p.Create()
	defer m.Release()

	slot, _ := m.ReserveBits(8)
	if err := m.SetBits(0xff, 8, slot); err != nil {
		t.Fatalf("SetBits: %v", err)
	}
	if err := m.SetBits(0x0f, 8, slot); err != nil {
		t.Fatalf("SetBits: %v", err)
	}
	if got := m.GetBits(8); got != 0x0f {
		t.Errorf("overwritten field = %#x, want 0x0f", got)
	}
}

func TestAddMessageCopiesUnalignedRange(t *testing.T) {
	p := NewPool(1225, 1)
	src := p.Create()
	defer src.Release()
	dst := p.Create()
	defer dst.Release()

	// Unaligned 3-bit offset on the source side.
	if err := src.AddBits(0x5, 3); err != nil {
		t.Fatalf("AddBits: %v", err)
	}
	if err := src.AddUInt32(0xcafebabe); err != nil {
		t.Fatalf("AddUInt32: %v", err)
	}

	if err := dst.AddBits(0x3, 2); err != nil { // force dst onto a different bit offset
		t.Fatalf("AddBits: %v", err)
	}
	if err := dst.AddMessage(src, 32, 3); err != nil {
		t.Fatalf("AddMessage: %v", err)
	}

	_ = dst.GetBits(2)
	if got := dst.GetUInt32(); got != 0xcafebabe {
		t.Errorf("AddMessage copy = %#x, want 0xcafebabe", got)
	}
}

func TestVarUintRoundTrip(t *testing.T) {
	p := NewPool(1225, 1)
	cases := []uint64{0, 1, 127, 128, 300, 16384, 1 << 40, 1<<64 - 1}
	for _, want := range cases {
		m := p.Create()
		if err := m.AddVarUint(want); err != nil {
			t.Fatalf("AddVarUint(%d): %v", want, err)
		}
		if got := m.GetVarUint(); got != want {
			t.Errorf("VarUint round trip: got %d, want %d", got, want)
		}
		m.Release()
	}
}

func TestVarIntRoundTrip(t *testing.T) {
	p := NewPool(1225, 1)
	cases := []int64{0, 1, -1, 63, -64, 1000000, -1000000, 1<<62 - 1, -(1 << 62)}
	for _, want := range cases {
		m := p.Create()
		if err := m.AddVarInt(want); err != nil {
			t.Fatalf("AddVarInt(%d): %v", want, err)
		}
		if got := m.GetVarInt(); got != want {
			t.Errorf("VarInt round trip: got %d, want %d", got, want)
		}
		m.Release()
	}
}

func TestStringAndBytesRoundTrip(t *testing.T) {
	p := NewPool(1225, 1)
	m := p.Create()
	defer m.Release()

	if err := m.AddString("hello, ripnet"); err != nil {
		t.Fatalf("AddString: %v", err)
	}
	if err := m.AddBytes([]byte{1, 2, 3, 4, 5}); err != nil {
		t.Fatalf("AddBytes: %v", err)
	}

	if got := m.GetString(); got != "hello, ripnet" {
		t.Errorf("GetString = %q, want %q", got, "hello, ripnet")
	}
	got := m.GetBytes()
	want := []byte{1, 2, 3, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("GetBytes length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("GetBytes[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestArrayRoundTrips(t *testing.T) {
	p := NewPool(1225, 1)
	m := p.Create()
	defer m.Release()

	if err := m.AddUInt16Array([]uint16{1, 500, 65535}); err != nil {
		t.Fatalf("AddUInt16Array: %v", err)
	}
	if err := m.AddStringArray([]string{"a", "", "ripnet"}); err != nil {
		t.Fatalf("AddStringArray: %v", err)
	}
	if err := m.AddBoolArray([]bool{true, false, true}); err != nil {
		t.Fatalf("AddBoolArray: %v", err)
	}

	u16 := m.GetUInt16Array()
	if len(u16) != 3 || u16[1] != 500 || u16[2] != 65535 {
		t.Errorf("GetUInt16Array = %v", u16)
	}
	strs := m.GetStringArray()
	if len(strs) != 3 || strs[2] != "ripnet" {
		t.Errorf("GetStringArray = %v", strs)
	}
	bools := m.GetBoolArray()
	if len(bools) != 3 || !bools[0] || bools[1] {
		t.Errorf("GetBoolArray = %v", bools)
	}
}

func TestPoolReleaseIsIdempotent(t *testing.T) {
	p := NewPool(1225, 1)
	m := p.Create()
	m.Release()
	m.Release() // must not panic or double-free into the pool twice
}

func TestPoolReusedMessageIsClean(t *testing.T) {
	p := NewPool(1225, 1)
	m1 := p.Create()
	if err := m1.AddUInt32(0xffffffff); err != nil {
		t.Fatalf("AddUInt32: %v", err)
	}
	m1.Release()

	m2 := p.Create()
	defer m2.Release()
	if m2.WriteBit() != 0 {
		t.Errorf("reused message write cursor = %d, want 0", m2.WriteBit())
	}
	if got := m2.PeekBits(32, 0); got != 0 {
		t.Errorf("reused message data not cleared: peek = %#x, want 0", got)
	}
}

func TestCreateForSendReservesSequenceField(t *testing.T) {
	p := NewPool(1225, 1)
	m, err := p.CreateForSend(wire.Reliable, 7)
	if err != nil {
		t.Fatalf("CreateForSend: %v", err)
	}
	defer m.Release()

	if m.HeaderKind() != wire.HeaderReliable {
		t.Errorf("header kind = %v, want %v", m.HeaderKind(), wire.HeaderReliable)
	}
	wantBits := wire.HeaderBits + wire.SendModeHeaderBits(wire.Reliable) + 8 // varuint(7) is one byte
	if m.WriteBit() != wantBits {
		t.Errorf("write cursor after CreateForSend = %d, want %d", m.WriteBit(), wantBits)
	}
}

func TestCreateProtocolHasNoMessageID(t *testing.T) {
	p := NewPool(1225, 1)
	m, err := p.CreateProtocol(wire.HeaderHeartbeat)
	if err != nil {
		t.Fatalf("CreateProtocol: %v", err)
	}
	defer m.Release()

	if m.WriteBit() != wire.HeaderBits {
		t.Errorf("write cursor after CreateProtocol = %d, want %d", m.WriteBit(), wire.HeaderBits)
	}
}

func TestFromBytesRejectsInvalidHeaderKind(t *testing.T) {
	p := NewPool(1225, 1)
	_, err := p.FromBytes([]byte{0xff}) // low 4 bits = 0xf, not a valid HeaderKind
	if err == nil {
		t.Fatalf("expected error decoding invalid header kind, got nil")
	}
}

func TestBytesRoundTripsThroughFromBytes(t *testing.T) {
	p := NewPool(1225, 1)
	m, err := p.CreateForSend(wire.Unreliable, 3)
	if err != nil {
		t.Fatalf("CreateForSend: %v", err)
	}
	if err := m.AddUInt32(0x12345678); err != nil {
		t.Fatalf("AddUInt32: %v", err)
	}
	raw := m.Bytes()
	m.Release()

	decoded, err := p.FromBytes(raw)
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}
	defer decoded.Release()

	if decoded.HeaderKind() != wire.HeaderUnreliable {
		t.Errorf("decoded header kind = %v, want %v", decoded.HeaderKind(), wire.HeaderUnreliable)
	}
	if got := decoded.GetVarUint(); got != 3 {
		t.Errorf("decoded message ID = %d, want 3", got)
	}
	if got := decoded.GetUInt32(); got != 0x12345678 {
		t.Errorf("decoded payload = %#x, want 0x12345678", got)
	}
}
