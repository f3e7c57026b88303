// Package ingress implements the frame ingress loop (spec §4.5): the
// single-threaded reader that pulls frames off the TUN device, parses
// them, drives the Connection Table, and writes back any response.
// Adapted from the teacher's processPackets in tun.go, generalized
// from print-and-discard to a real state-machine dispatch, and from
// the teacher's 4-byte AF_INET prefix (macOS) to the 4-byte
// flags+ethertype prefix Linux's IFF_TUN actually emits.
package ingress

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/daniel-mccarthy16/wtfistcp/internal/conntrack"
	"github.com/daniel-mccarthy16/wtfistcp/internal/controlplane"
	"github.com/daniel-mccarthy16/wtfistcp/internal/ipv4"
	"github.com/daniel-mccarthy16/wtfistcp/internal/netlog"
	"github.com/daniel-mccarthy16/wtfistcp/internal/stackerr"
	"github.com/daniel-mccarthy16/wtfistcp/internal/tcpseg"
)

// tunPrefixLen is the 4-byte packet-information prefix Linux's
// IFF_TUN device prepends to every frame: bytes 0-1 flags, bytes 2-3
// ethertype (spec §6).
const tunPrefixLen = 4

const ethertypeIPv4 = 0x0800

// Device is the minimal TUN surface the loop needs: blocking
// frame-sized Read/Write. *water.Interface satisfies this.
type Device interface {
	Read(b []byte) (int, error)
	Write(b []byte) (int, error)
}

// Loop owns the Connection Table and drives frames between a Device
// and the control plane's registry. It is not safe for concurrent use
// — spec §4.5/§5 make it the table's sole, single-threaded owner.
type Loop struct {
	dev      Device
	table    *conntrack.Table
	registry *controlplane.Registry
	mtu      int
}

// NewLoop wires a TUN-like device, a fresh Connection Table, and a
// read-only registry handle together.
func NewLoop(dev Device, registry *controlplane.Registry, mtu int) *Loop {
	return &Loop{
		dev:      dev,
		table:    conntrack.NewTable(nil),
		registry: registry,
		mtu:      mtu,
	}
}

// Run reads frames until dev.Read returns an error (e.g. the device
// was closed during shutdown), processing each one per spec §4.5. It
// never returns an error for a single bad frame — every per-frame
// failure is localized and logged.
func (l *Loop) Run() error {
	buf := make([]byte, l.mtu+tunPrefixLen)
	out := make([]byte, l.mtu+tunPrefixLen)

	for {
		n, err := l.dev.Read(buf)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if n == 0 {
			continue
		}
		l.handleFrame(buf[:n], out)
	}
}

func (l *Loop) handleFrame(frame []byte, out []byte) {
	if len(frame) < tunPrefixLen {
		netlog.Debug("ingress: frame shorter than TUN prefix: %d bytes", len(frame))
		return
	}
	ethertype := binary.BigEndian.Uint16(frame[2:4])
	if ethertype != ethertypeIPv4 {
		return
	}

	ipPacket := frame[tunPrefixLen:]
	ipHeader, err := ipv4.Parse(ipPacket)
	if err != nil {
		netlog.Debug("ingress: %v", err)
		return
	}
	if ipHeader.Protocol != ipv4.ProtocolTCP {
		return
	}

	tcpOffset := ipHeader.HeaderLenBytes()
	if tcpOffset > len(ipPacket) {
		netlog.Debug("ingress: %v: ip header claims length beyond frame", stackerr.ErrParse)
		return
	}
	tcpHeader, payload, err := tcpseg.Parse(ipPacket[tcpOffset:])
	if err != nil {
		netlog.Debug("ingress: %v", err)
		return
	}

	if !l.registry.PortIsOpen(uint16(tcpHeader.DstPort)) {
		return
	}

	tuple := conntrack.NewTuple(ipHeader.SrcIP, ipHeader.DstIP, tcpHeader.SrcPort, tcpHeader.DstPort)
	record, ok := l.table.Lookup(tuple)
	if !ok {
		if !tcpHeader.IsSYN() {
			return
		}
		var err error
		record, err = l.table.Insert(tuple)
		if err != nil {
			netlog.Debug("ingress: %v", err)
			return
		}
	}

	n, err := record.ProcessIncoming(ipHeader, tcpHeader, payload, out)
	if err != nil {
		switch {
		case errors.Is(err, stackerr.ErrHandshakeViolation):
			netlog.Warn("ingress: %v", err)
		case errors.Is(err, stackerr.ErrUnimplemented):
			netlog.Debug("ingress: %v", err)
		default:
			netlog.Warn("ingress: %v", err)
		}
		l.table.EvictClosed(tuple)
		return
	}

	l.table.EvictClosed(tuple)

	if n > 0 {
		if _, err := l.dev.Write(out[:n]); err != nil {
			netlog.Warn("ingress: failed writing response frame: %v", err)
		}
	}
}
