package server

import (
	"net"
	"testing"
	"time"

	"github.com/duskwave/ripnet/client"
	"github.com/duskwave/ripnet/message"
	"github.com/duskwave/ripnet/peer"
	"github.com/duskwave/ripnet/pkg/config"
	"github.com/duskwave/ripnet/transport"
	"github.com/duskwave/ripnet/wire"
	"github.com/stretchr/testify/require"
)

const echoMsgID = uint32(7)

func newLoopbackPair(t *testing.T) (*Server, *client.Client, func()) {
	t.Helper()
	serverAddr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9500}
	clientAddr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9501}

	srvLB := transport.NewLoopback(serverAddr)
	cliLB := transport.NewLoopback(clientAddr)
	transport.Pipe(srvLB, cliLB)

	opts := Options{Options: config.Default()}
	opts.MaxClientCount = 4
	srv := New(opts, srvLB)
	require.NoError(t, srv.Start(serverAddr))

	cl := client.New(client.Options{Options: config.Default()}, transport.NewLoopbackClient(cliLB))

	return srv, cl, func() {
		_ = srv.Shutdown()
	}
}

// pump drives both sides' Update loops until cond reports true or the
// deadline lapses, simulating passage of real time since handshake and
// resend policy are driven by time.Now rather than the test's own clock.
func pump(t *testing.T, srv *Server, cl *client.Client, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		srv.Update()
		cl.Update()
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func TestHandshakeCompletesAndConnects(t *testing.T) {
	srv, cl, cleanup := newLoopbackPair(t)
	defer cleanup()

	serverAddr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9500}
	require.NoError(t, cl.Connect(serverAddr))

	pump(t, srv, cl, func() bool {
		return cl.IsConnected() && len(srv.Connections()) == 1 && srv.Connections()[0].IsConnected()
	})
}

func TestReliableEchoRoundTrips(t *testing.T) {
	srv, cl, cleanup := newLoopbackPair(t)
	defer cleanup()

	var received string
	srv.RegisterHandler(echoMsgID, func(fromClientID uint32, msg *message.Message) {
		received = msg.GetString()
		_ = srv.SendReliable(fromClientID, echoMsgID, func(m *message.Message) error {
			return m.AddString(received)
		})
	})

	var echoed string
	cl.RegisterHandler(echoMsgID, func(msg *message.Message) {
		echoed = msg.GetString()
	})

	serverAddr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9500}
	require.NoError(t, cl.Connect(serverAddr))
	pump(t, srv, cl, func() bool { return cl.IsConnected() })

	require.NoError(t, cl.SendReliable(echoMsgID, func(m *message.Message) error {
		return m.AddString("hello")
	}))

	pump(t, srv, cl, func() bool { return echoed == "hello" })
	require.Equal(t, "hello", received)
}

func TestServerFullRejectsNewConnect(t *testing.T) {
	serverAddr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9510}
	clientAddr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9511}

	srvLB := transport.NewLoopback(serverAddr)
	cliLB := transport.NewLoopback(clientAddr)
	transport.Pipe(srvLB, cliLB)

	opts := Options{Options: config.Default()}
	opts.MaxClientCount = 1
	srv := New(opts, srvLB)
	require.NoError(t, srv.Start(serverAddr))
	srv.availableIDs = nil // simulate the server already at capacity

	cl := client.New(client.Options{Options: config.Default()}, transport.NewLoopbackClient(cliLB))

	var failed bool
	cl.Bus.Subscribe(peer.EventConnectionFailed, func(e peer.Event) { failed = true })
	require.NoError(t, cl.Connect(serverAddr))

	pump(t, srv, cl, func() bool { return failed })
	require.False(t, cl.IsConnected())
}

func TestUnhandledMessageFallsThroughToEventBus(t *testing.T) {
	srv, cl, cleanup := newLoopbackPair(t)
	defer cleanup()

	var gotID uint32
	var gotPayload string
	srv.Bus.Subscribe(peer.EventDataReceived, func(e peer.Event) {
		gotID = e.MessageID
		gotPayload = e.Data.(*message.Message).GetString()
	})

	serverAddr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9500}
	require.NoError(t, cl.Connect(serverAddr))
	pump(t, srv, cl, func() bool { return cl.IsConnected() })

	require.NoError(t, cl.SendUnreliable(42, func(m *message.Message) error {
		return m.AddString("no handler")
	}))

	pump(t, srv, cl, func() bool { return gotID == 42 })
	require.Equal(t, "no handler", gotPayload)
}

func TestRelayFilterRestrictsBroadcast(t *testing.T) {
	serverAddr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9520}
	aAddr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9521}
	bAddr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9522}

	srvLB := transport.NewLoopback(serverAddr)
	aLB := transport.NewLoopback(aAddr)
	bLB := transport.NewLoopback(bAddr)
	transport.Pipe(srvLB, aLB)
	transport.Pipe(srvLB, bLB)

	opts := Options{Options: config.Default()}
	opts.MaxClientCount = 4
	opts.RelayFilter = func(fromClientID, toClientID uint32) bool {
		return toClientID == 1 // only the first-allocated ID ever receives
	}
	srv := New(opts, srvLB)
	require.NoError(t, srv.Start(serverAddr))

	clA := client.New(client.Options{Options: config.Default()}, transport.NewLoopbackClient(aLB))
	clB := client.New(client.Options{Options: config.Default()}, transport.NewLoopbackClient(bLB))

	require.NoError(t, clA.Connect(serverAddr))
	pumpAll(t, srv, clA, clB, func() bool { return clA.IsConnected() })
	require.NoError(t, clB.Connect(serverAddr))
	// Wait until the server has marked both connections Connected, so that
	// only the filter can keep the broadcast away from B.
	pumpAll(t, srv, clA, clB, func() bool {
		conns := srv.Connections()
		return clB.IsConnected() && len(conns) == 2 && conns[0].IsConnected() && conns[1].IsConnected()
	})

	var aGot, bGot bool
	clA.RegisterHandler(echoMsgID, func(msg *message.Message) { aGot = true })
	clB.RegisterHandler(echoMsgID, func(msg *message.Message) { bGot = true })

	srv.Broadcast(wire.Unreliable, echoMsgID, func(m *message.Message) error {
		return m.AddString("hi")
	})

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		srv.Update()
		clA.Update()
		clB.Update()
		time.Sleep(time.Millisecond)
	}

	require.True(t, aGot)
	require.False(t, bGot)
}

func pumpAll(t *testing.T, srv *Server, a, b *client.Client, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		srv.Update()
		a.Update()
		b.Update()
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}
