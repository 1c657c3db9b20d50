package transport

import (
	"net"
	"sync"
)

// Loopback is an in-process Server+Client test double: Send on one side
// enqueues a DataReceived event on whatever peer is wired to receive it
// via Pipe. It carries no real socket and never blocks, making it
// suitable for deterministic unit tests of peer/server/client logic
// without a real UDP round trip.
type Loopback struct {
	mu     sync.Mutex
	local  *net.UDPAddr
	queue  []Event
	peerOf map[string]*Loopback
}

// NewLoopback returns a Loopback bound to local for addressing purposes
// only; no socket is opened.
func NewLoopback(local *net.UDPAddr) *Loopback {
	return &Loopback{local: local, peerOf: make(map[string]*Loopback)}
}

var _ Server = (*Loopback)(nil)

// Pipe wires a and b so sends addressed to one appear as
// DataReceived events on the other.
func Pipe(a, b *Loopback) {
	a.peerOf[b.local.String()] = b
	b.peerOf[a.local.String()] = a
}

func (l *Loopback) Start(addr *net.UDPAddr) error {
	l.local = addr
	return nil
}

func (l *Loopback) Connect(addr *net.UDPAddr) error {
	return nil
}

func (l *Loopback) Send(addr *net.UDPAddr, data []byte) error {
	l.mu.Lock()
	peer, ok := l.peerOf[addr.String()]
	l.mu.Unlock()
	if !ok {
		return nil
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	peer.mu.Lock()
	peer.queue = append(peer.queue, Event{Kind: DataReceived, Addr: l.local, Data: cp})
	peer.mu.Unlock()
	return nil
}

func (l *Loopback) Poll() ([]Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.queue
	l.queue = nil
	return out, nil
}

func (l *Loopback) Shutdown() error { return nil }
func (l *Loopback) Close() error    { return nil }

// LoopbackClient adapts a Loopback (whose Send takes an explicit
// destination, matching the Server shape) to the single-peer transport.Client
// contract, by remembering the address passed to Connect.
type LoopbackClient struct {
	l    *Loopback
	dial *net.UDPAddr
}

// NewLoopbackClient returns a client-shaped view of l.
func NewLoopbackClient(l *Loopback) *LoopbackClient {
	return &LoopbackClient{l: l}
}

var _ Client = (*LoopbackClient)(nil)

func (c *LoopbackClient) Connect(addr *net.UDPAddr) error {
	c.dial = addr
	return nil
}

func (c *LoopbackClient) Poll() ([]Event, error) { return c.l.Poll() }

func (c *LoopbackClient) Send(data []byte) error {
	if c.dial == nil {
		return nil
	}
	return c.l.Send(c.dial, data)
}

func (c *LoopbackClient) Close() error { return nil }
