// Command echoserver is the server half of the library's end-to-end demo:
// it registers one reliable echo handler and one notify handler, exercising
// the full handshake and both long-lived send modes. Game-specific
// application logic is out of scope for this library.
package main

import (
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/duskwave/ripnet/message"
	"github.com/duskwave/ripnet/pkg/config"
	"github.com/duskwave/ripnet/pkg/rlog"
	"github.com/duskwave/ripnet/server"
	"github.com/duskwave/ripnet/transport/udpsock"
	"github.com/duskwave/ripnet/wire"
	"github.com/rs/xid"
)

const (
	version    = "0.1.0"
	echoMsgID  = uint32(1)
	pingMsgID  = uint32(2)
	listenPort = 9412
)

func main() {
	rlog.Banner("echoserver", version)
	log := rlog.New("echoserver")

	opts := server.Options{Options: config.Default()}
	opts.MaxClientCount = 32
	opts.Accept = func(addr *net.UDPAddr, payload []byte, token xid.ID) (bool, wire.RejectReason) {
		log.Infof("accepting connect from %s (token %s, payload %d bytes)", addr, token, len(payload))
		return true, wire.RejectRejected
	}

	srv := server.New(opts, udpsock.NewServer())

	srv.RegisterHandler(echoMsgID, func(fromClientID uint32, msg *message.Message) {
		text := msg.GetString()
		log.Infof("client %d echo: %q", fromClientID, text)
		_ = srv.SendReliable(fromClientID, echoMsgID, func(m *message.Message) error {
			return m.AddString(text)
		})
	})
	srv.RegisterHandler(pingMsgID, func(fromClientID uint32, msg *message.Message) {
		seq := msg.GetUInt32()
		_ = srv.SendNotify(fromClientID, pingMsgID, func(m *message.Message) error {
			return m.AddUInt32(seq)
		})
	})

	addr := &net.UDPAddr{IP: net.IPv4zero, Port: listenPort}
	if err := srv.Start(addr); err != nil {
		log.Fatalf("start: %v", err)
	}
	rlog.Section("listening")
	log.Infof("echoserver up on %s", addr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			srv.Update()
		case <-sigCh:
			log.Infof("shutting down")
			_ = srv.Shutdown()
			return
		}
	}
}
