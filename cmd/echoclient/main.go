// Command echoclient is the client half of the library's end-to-end demo
// (see cmd/echoserver): it connects, sends a reliable echo every second
// and a notify ping every 200ms, and logs delivery/loss outcomes.
package main

import (
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/duskwave/ripnet/client"
	"github.com/duskwave/ripnet/message"
	"github.com/duskwave/ripnet/peer"
	"github.com/duskwave/ripnet/pkg/config"
	"github.com/duskwave/ripnet/pkg/rlog"
	"github.com/duskwave/ripnet/transport/udpsock"
)

const (
	version   = "0.1.0"
	echoMsgID = uint32(1)
	pingMsgID = uint32(2)
)

func main() {
	rlog.Banner("echoclient", version)
	log := rlog.New("echoclient")

	opts := client.Options{Options: config.Default(), ConnectPayload: []byte("hello")}
	cl := client.New(opts, udpsock.NewClient())

	cl.RegisterHandler(echoMsgID, func(msg *message.Message) {
		log.Infof("server echoed: %q", msg.GetString())
	})
	cl.RegisterHandler(pingMsgID, func(msg *message.Message) {
		log.Infof("ping %d acknowledged", msg.GetUInt32())
	})

	cl.Bus.Subscribe(peer.EventConnected, func(e peer.Event) {
		log.Infof("connected")
	})
	cl.Bus.Subscribe(peer.EventDisconnected, func(e peer.Event) {
		log.Warnf("disconnected: %v", e.Data)
	})
	cl.Bus.Subscribe(peer.EventConnectionFailed, func(e peer.Event) {
		log.Errorf("connect failed: %v", e.Data)
	})
	cl.Bus.Subscribe(peer.EventNotifyLost, func(e peer.Event) {
		log.Warnf("notify %d lost", e.MessageID)
	})

	addr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9412}
	if err := cl.Connect(addr); err != nil {
		log.Fatalf("connect: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	echoEvery := time.NewTicker(1 * time.Second)
	defer echoEvery.Stop()
	pingEvery := time.NewTicker(200 * time.Millisecond)
	defer pingEvery.Stop()

	var pingSeq uint32
	for {
		select {
		case <-tick.C:
			cl.Update()
		case <-echoEvery.C:
			if cl.IsConnected() {
				_ = cl.SendReliable(echoMsgID, func(m *message.Message) error {
					return m.AddString("ping")
				})
			}
		case <-pingEvery.C:
			if cl.IsConnected() {
				pingSeq++
				seq := pingSeq
				_ = cl.SendNotify(pingMsgID, func(m *message.Message) error {
					return m.AddUInt32(seq)
				})
			}
		case <-sigCh:
			log.Infof("shutting down")
			_ = cl.Shutdown()
			return
		}
	}
}
