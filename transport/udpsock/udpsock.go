// Package udpsock is the concrete net.UDPConn-backed transport: a
// blocking-read-loop UDP listener (ListenUDP, ReadFromUDP/WriteToUDP, a
// running flag guarding the read loop) reshaped to satisfy the
// transport.Server/transport.Client interfaces.
package udpsock

import (
	"errors"
	"net"
	"sync"

	"github.com/duskwave/ripnet/pkg/rlog"
	"github.com/duskwave/ripnet/transport"
)

const readBufferSize = 2048

// Server is a UDP-backed transport.Server: one socket serving any number
// of remote clients.
type Server struct {
	conn    *net.UDPConn
	log     *rlog.Logger
	mu      sync.Mutex
	events  []transport.Event
	running bool
}

// NewServer returns a Server not yet listening; call Start to bind.
func NewServer() *Server {
	return &Server{log: rlog.New("transport-udp")}
}

var _ transport.Server = (*Server)(nil)

func (s *Server) Start(addr *net.UDPAddr) error {
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return err
	}
	s.conn = conn
	s.running = true
	go s.readLoop()
	s.log.Infof("listening on %s", addr)
	return nil
}

func (s *Server) readLoop() {
	buf := make([]byte, readBufferSize)
	for {
		s.mu.Lock()
		running := s.running
		s.mu.Unlock()
		if !running {
			return
		}

		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if !s.running {
				return
			}
			s.pushEvent(transport.Event{Kind: transport.ConnectionFailed, Err: err})
			continue
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		s.pushEvent(transport.Event{Kind: transport.DataReceived, Addr: addr, Data: data})
	}
}

func (s *Server) pushEvent(e transport.Event) {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
}

func (s *Server) Poll() ([]transport.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.events
	s.events = nil
	return out, nil
}

func (s *Server) Send(addr *net.UDPAddr, data []byte) error {
	if s.conn == nil {
		return errors.New("udpsock: Send before Start")
	}
	_, err := s.conn.WriteToUDP(data, addr)
	return err
}

func (s *Server) Shutdown() error {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// Client is a UDP-backed transport.Client: a socket connected to exactly
// one remote address.
type Client struct {
	conn    *net.UDPConn
	log     *rlog.Logger
	mu      sync.Mutex
	events  []transport.Event
	running bool
}

// NewClient returns a Client not yet connected; call Connect to dial.
func NewClient() *Client {
	return &Client{log: rlog.New("transport-udp")}
}

var _ transport.Client = (*Client)(nil)

func (c *Client) Connect(addr *net.UDPAddr) error {
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		c.pushEvent(transport.Event{Kind: transport.ConnectionFailed, Err: err})
		return err
	}
	c.conn = conn
	c.running = true
	go c.readLoop()
	c.log.Infof("dialed %s", addr)
	return nil
}

func (c *Client) readLoop() {
	buf := make([]byte, readBufferSize)
	for {
		c.mu.Lock()
		running := c.running
		c.mu.Unlock()
		if !running {
			return
		}

		n, err := c.conn.Read(buf)
		if err != nil {
			if !c.running {
				return
			}
			c.pushEvent(transport.Event{Kind: transport.Disconnected, Err: err})
			return
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		c.pushEvent(transport.Event{Kind: transport.DataReceived, Data: data})
	}
}

func (c *Client) pushEvent(e transport.Event) {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
}

func (c *Client) Poll() ([]transport.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.events
	c.events = nil
	return out, nil
}

func (c *Client) Send(data []byte) error {
	if c.conn == nil {
		return errors.New("udpsock: Send before Connect")
	}
	_, err := c.conn.Write(data)
	return err
}

func (c *Client) Close() error {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
