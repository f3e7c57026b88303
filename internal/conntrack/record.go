package conntrack

import (
	"fmt"
	"net"

	"github.com/google/gopacket/layers"

	"github.com/daniel-mccarthy16/wtfistcp/internal/ipv4"
	"github.com/daniel-mccarthy16/wtfistcp/internal/isn"
	"github.com/daniel-mccarthy16/wtfistcp/internal/stackerr"
	"github.com/daniel-mccarthy16/wtfistcp/internal/tcpseg"
)

// DefaultServerWindow is the window size this stack advertises; it
// never changes in response to buffer pressure since flow control is
// out of scope.
const DefaultServerWindow = 65535

// Record is a single flow's mutable connection state (spec §3
// Connection Record). The ingress loop is its sole owner and mutates
// it without synchronization.
type Record struct {
	State State

	ClientSeq uint32
	ServerSeq uint32
	ClientAck uint32
	ServerAck uint32

	ClientWindow uint16
	ServerWindow uint16

	InboundBuffer  []byte
	OutboundBuffer []byte

	isnGen isn.Generator
}

// NewRecord returns a freshly Uninitialized record with the zero
// values spec.md §3 prescribes. gen is the ISN generator drawn from
// when this flow's first segment arrives; pass nil to use isn.Default.
func NewRecord(gen isn.Generator) *Record {
	if gen == nil {
		gen = isn.Default
	}
	return &Record{
		State:        Uninitialized,
		ServerWindow: DefaultServerWindow,
		isnGen:       gen,
	}
}

// ProcessIncoming consumes one inbound (IPv4, TCP, payload) triple and
// writes at most one outbound frame into out, returning the number of
// bytes written (0 means no response). It implements the transition
// table from spec §4.4; states other than Uninitialized, SynReceived,
// and Established return ErrUnimplemented and leave the record
// unchanged (drop-and-log per the redesign decision in DESIGN.md).
func (r *Record) ProcessIncoming(ip *ipv4.Header, tcp *tcpseg.Header, payload []byte, out []byte) (int, error) {
	switch r.State {
	case Uninitialized:
		return r.handleUninitialized(ip, tcp, out)
	case SynReceived:
		return r.handleSynReceived(ip, tcp)
	case Established:
		// Placeholder per spec.md §4.4: emit nothing, stay Established.
		return 0, nil
	default:
		return 0, fmt.Errorf("%w: state %s", stackerr.ErrUnimplemented, r.State)
	}
}

func (r *Record) handleUninitialized(ip *ipv4.Header, tcp *tcpseg.Header, out []byte) (int, error) {
	r.ClientSeq = tcp.SeqNum
	r.ClientWindow = tcp.Window
	r.ServerAck = r.ClientSeq + 1
	r.ServerSeq = r.isnGen.Generate()

	n, err := r.emitSynAck(ip.DstIP, ip.SrcIP, tcp.DstPort, tcp.SrcPort, out)
	if err != nil {
		return 0, err
	}
	r.State = SynReceived
	return n, nil
}

func (r *Record) handleSynReceived(ip *ipv4.Header, tcp *tcpseg.Header) (int, error) {
	if !tcp.IsACK() {
		return 0, fmt.Errorf("%w: expected client to acknowledge our SYN", stackerr.ErrHandshakeViolation)
	}
	if tcp.AckNum != r.ServerSeq+1 {
		return 0, fmt.Errorf("%w: ack %d does not match server ISN+1 (%d)", stackerr.ErrHandshakeViolation, tcp.AckNum, r.ServerSeq+1)
	}
	if tcp.SeqNum != r.ServerAck {
		return 0, fmt.Errorf("%w: seq %d does not match our acknowledged %d", stackerr.ErrHandshakeViolation, tcp.SeqNum, r.ServerAck)
	}

	r.ClientSeq = tcp.SeqNum
	r.ClientWindow = tcp.Window
	r.ServerAck = r.ClientSeq + 1
	r.ServerSeq++
	r.State = Established
	return 0, nil
}

// emitSynAck builds and serializes the SYN+ACK response described in
// spec §4.4: destination/source swapped from the inbound packet,
// TTL=64, protocol=TCP, IHL=5, data offset=5, total_length=40.
func (r *Record) emitSynAck(srcIP, dstIP net.IP, srcPort, dstPort layers.TCPPort, out []byte) (int, error) {
	tcpHeader := &tcpseg.Header{
		SrcPort: srcPort,
		DstPort: dstPort,
		SeqNum:  r.ServerSeq,
		AckNum:  r.ServerAck,
		Window:  r.ServerWindow,
	}
	tcpHeader.SetSynAckFlags()
	tcpBytes := tcpseg.Emit(tcpHeader)

	pseudo, err := tcpseg.PseudoHeader(srcIP, dstIP, len(tcpBytes))
	if err != nil {
		return 0, err
	}
	tcpseg.WriteChecksum(tcpBytes, tcpseg.Checksum(pseudo, tcpBytes, nil))

	ipHeader := &ipv4.Header{
		TotalLength: uint16(ipv4.HeaderLen + len(tcpBytes)),
		TTL:         64,
		Protocol:    ipv4.ProtocolTCP,
		SrcIP:       srcIP,
		DstIP:       dstIP,
	}
	ipBytes, err := ipv4.Emit(ipHeader)
	if err != nil {
		return 0, err
	}

	total := len(ipBytes) + len(tcpBytes)
	if len(out) < total {
		return 0, fmt.Errorf("conntrack: output buffer too small: need %d, have %d", total, len(out))
	}
	n := copy(out, ipBytes)
	n += copy(out[n:], tcpBytes)
	return n, nil
}
