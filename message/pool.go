package message

import (
	"sync"

	"github.com/duskwave/ripnet/wire"
)

// Pool allocates and recycles Messages sized for a single, fixed maximum
// payload. All Messages a Pool hands out are built from the same word
// capacity; there is deliberately no API to change it after construction
// (see the package doc for why).
type Pool struct {
	maxPayloadBits uint
	sync           sync.Pool
}

// NewPool creates a Pool whose Messages can hold up to maxPayloadSize bytes
// of application payload, not counting header overhead. initialPoolSize
// pre-warms the underlying sync.Pool with that many Messages so the first
// burst of traffic after startup doesn't pay allocation cost.
func NewPool(maxPayloadSize, initialPoolSize int) *Pool {
	if maxPayloadSize <= 0 {
		maxPayloadSize = 1225
	}
	// Leave headroom for the largest header (notify: 4 + 24 + 16 bits) plus
	// the payload itself, rounded up to a whole number of bits.
	maxBits := uint(maxPayloadSize)*8 + wire.HeaderBits + wire.SendModeHeaderBits(wire.Notify)

	p := &Pool{maxPayloadBits: maxBits}
	p.sync.New = func() interface{} {
		return newMessage(maxBits)
	}

	warm := make([]*Message, 0, initialPoolSize)
	for i := 0; i < initialPoolSize; i++ {
		warm = append(warm, newMessage(maxBits))
	}
	for _, m := range warm {
		p.sync.Put(m)
	}
	return p
}

// MaxPayloadBits returns the fixed bit capacity every Message from this
// pool is built with.
func (p *Pool) MaxPayloadBits() uint { return p.maxPayloadBits }

func (p *Pool) put(m *Message) {
	m.reset()
	p.sync.Put(m)
}

func (p *Pool) take() *Message {
	m := p.sync.Get().(*Message)
	m.pool = p
	m.released = false
	return m
}

// Create returns a bare Message with no header installed. Used for
// decoding an inbound datagram, where the header kind is read directly off
// the wire rather than installed up front.
func (p *Pool) Create() *Message {
	return p.take()
}

// CreateForSend returns a Message preloaded with the header appropriate
// for mode: the 4-bit header kind, followed by a reserved (but not yet
// filled in) sequence-ID/ack section sized per wire.SendModeHeaderBits,
// followed by the message's varuint-encoded messageID. The reliability
// engine fills the reserved section in later via Message.SetBits once the
// outgoing sequence ID is known.
func (p *Pool) CreateForSend(mode wire.SendMode, messageID uint32) (*Message, error) {
	m := p.take()
	kind := headerKindForSend(mode)
	if err := m.AddBits(uint64(kind), wire.HeaderBits); err != nil {
		m.Release()
		return nil, err
	}
	m.mode = mode
	m.kind = kind
	if n := wire.SendModeHeaderBits(mode); n > 0 {
		if _, err := m.ReserveBits(n); err != nil {
			m.Release()
			return nil, err
		}
	}
	if err := m.AddVarUint(uint64(messageID)); err != nil {
		m.Release()
		return nil, err
	}
	return m, nil
}

// CreateProtocol returns a Message carrying only the 4-bit header for kind
// and nothing else: protocol datagrams (connect, reject, heartbeat,
// disconnect, welcome, client-connected/disconnected, ack) have no
// application message ID. Callers append their own kind-specific fields
// after this call.
func (p *Pool) CreateProtocol(kind wire.HeaderKind) (*Message, error) {
	m := p.take()
	if err := m.AddBits(uint64(kind), wire.HeaderBits); err != nil {
		m.Release()
		return nil, err
	}
	m.kind = kind
	m.mode = sendModeForHeader(kind)
	return m, nil
}

// FromBytes decodes the header kind off the front of a raw inbound
// datagram and returns a Message ready for the caller to GetBits/GetVarUint
// its way through the rest.
func (p *Pool) FromBytes(raw []byte) (*Message, error) {
	m := p.take()
	words := (len(raw) + 7) / 8
	for i := 0; i < words && i < len(m.data); i++ {
		var w uint64
		for b := 0; b < 8; b++ {
			idx := i*8 + b
			if idx >= len(raw) {
				break
			}
			w |= uint64(raw[idx]) << (8 * b)
		}
		m.data[i] = w
	}
	m.writeBit = uint(len(raw)) * 8
	if m.writeBit > m.maxBits {
		m.writeBit = m.maxBits
	}

	kindBits := m.GetBits(wire.HeaderBits)
	kind := wire.HeaderKind(kindBits)
	if !kind.Valid() {
		m.Release()
		return nil, &UnknownHeaderKindError{Kind: uint8(kindBits)}
	}
	m.kind = kind
	m.mode = sendModeForHeader(kind)
	return m, nil
}

// Bytes packs the written portion of m into a freshly allocated byte
// slice, little-endian within each 64-bit word, suitable for handing to a
// transport's Send.
func (m *Message) Bytes() []byte {
	n := m.BytesWritten()
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		word := m.data[i/8]
		shift := uint(i%8) * 8
		out[i] = byte(word >> shift)
	}
	return out
}

func headerKindForSend(mode wire.SendMode) wire.HeaderKind {
	switch mode {
	case wire.Reliable:
		return wire.HeaderReliable
	case wire.Notify:
		return wire.HeaderNotify
	default:
		return wire.HeaderUnreliable
	}
}

func sendModeForHeader(kind wire.HeaderKind) wire.SendMode {
	switch kind {
	case wire.HeaderReliable:
		return wire.Reliable
	case wire.HeaderNotify:
		return wire.Notify
	default:
		return wire.Unreliable
	}
}
