// Command wtfistcpd runs the TUN-backed TCP/IPv4 stack: it brings up
// the TUN device, starts the control plane's local socket, and runs
// the frame ingress loop until terminated. No CLI flags or environment
// variables are read (spec §6) — every address, device name, and
// socket path is a constant.
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/daniel-mccarthy16/wtfistcp/internal/controlplane"
	"github.com/daniel-mccarthy16/wtfistcp/internal/ingress"
	"github.com/daniel-mccarthy16/wtfistcp/internal/netlog"
	"github.com/daniel-mccarthy16/wtfistcp/internal/tundev"
)

func main() {
	netlog.Info("starting up")

	ifce, err := tundev.Open()
	if err != nil {
		netlog.Fatal("tun setup failed: %v", err)
	}
	defer ifce.Close()

	server := controlplane.NewServer()
	if err := server.Listen(); err != nil {
		netlog.Fatal("control plane bind failed: %v", err)
	}
	defer server.Close()

	go func() {
		if err := server.Serve(); err != nil {
			netlog.Warn("control plane stopped: %v", err)
		}
	}()
	netlog.Info("control plane listening on %s", controlplane.SocketPath)

	loop := ingress.NewLoop(ifce, server.Registry(), tundev.MTU)
	go func() {
		if err := loop.Run(); err != nil {
			netlog.Warn("ingress loop stopped: %v", err)
		}
	}()
	netlog.Info("ingress loop running on %s", ifce.Name())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	netlog.Info("shutdown signal received")
}
