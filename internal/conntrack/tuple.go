package conntrack

import (
	"net"

	"github.com/google/gopacket/layers"
)

// Tuple is the 4-tuple (src_ip, dst_ip, src_port, dst_port) that
// uniquely identifies a TCP flow direction and serves as the
// Connection Table's primary key.
type Tuple struct {
	SrcIP   [4]byte
	DstIP   [4]byte
	SrcPort layers.TCPPort
	DstPort layers.TCPPort
}

// NewTuple builds a Tuple from net.IP values and ports. The IPs must
// be (or be convertible to) 4-byte IPv4 addresses.
func NewTuple(srcIP, dstIP net.IP, srcPort, dstPort layers.TCPPort) Tuple {
	var t Tuple
	copy(t.SrcIP[:], srcIP.To4())
	copy(t.DstIP[:], dstIP.To4())
	t.SrcPort = srcPort
	t.DstPort = dstPort
	return t
}
