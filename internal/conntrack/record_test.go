package conntrack

import (
	"net"
	"testing"

	"github.com/google/gopacket/layers"

	"github.com/daniel-mccarthy16/wtfistcp/internal/ipv4"
	"github.com/daniel-mccarthy16/wtfistcp/internal/tcpseg"
)

type fixedISN struct{ value uint32 }

func (f fixedISN) Generate() uint32 { return f.value }

func synPacket(clientSeq uint32, clientWindow uint16) (*ipv4.Header, *tcpseg.Header) {
	ip := &ipv4.Header{
		TotalLength: 40,
		TTL:         64,
		Protocol:    ipv4.ProtocolTCP,
		SrcIP:       net.IPv4(10, 0, 0, 2),
		DstIP:       net.IPv4(10, 0, 0, 1),
	}
	tcp := &tcpseg.Header{
		SrcPort: layers.TCPPort(54321),
		DstPort: layers.TCPPort(80),
		SeqNum:  clientSeq,
		Window:  clientWindow,
	}
	tcp.Flags = tcpseg.FlagSYN
	return ip, tcp
}

func TestUninitializedToSynReceivedOnSYN(t *testing.T) {
	r := NewRecord(fixedISN{value: 1000})
	ip, tcp := synPacket(500, 4096)

	out := make([]byte, 64)
	n, err := r.ProcessIncoming(ip, tcp, nil, out)
	if err != nil {
		t.Fatalf("ProcessIncoming: %v", err)
	}
	if n == 0 {
		t.Fatalf("expected a SYN+ACK response, got 0 bytes")
	}
	if r.State != SynReceived {
		t.Fatalf("state = %s, want SYN_RECEIVED", r.State)
	}
	if r.ServerSeq != 1000 {
		t.Fatalf("ServerSeq = %d, want 1000 (from injected ISN generator)", r.ServerSeq)
	}
	if r.ServerAck != 501 {
		t.Fatalf("ServerAck = %d, want 501 (clientSeq+1)", r.ServerAck)
	}

	respIP, err := ipv4.Parse(out[:n])
	if err != nil {
		t.Fatalf("parsing response IP header: %v", err)
	}
	if respIP.Protocol != ipv4.ProtocolTCP {
		t.Fatalf("response protocol = %d, want TCP", respIP.Protocol)
	}
	respTCP, _, err := tcpseg.Parse(out[respIP.HeaderLenBytes():n])
	if err != nil {
		t.Fatalf("parsing response TCP header: %v", err)
	}
	if !respTCP.IsSYN() || !respTCP.IsACK() {
		t.Fatalf("response flags = %#02x, want SYN|ACK", respTCP.Flags)
	}
	if respTCP.SeqNum != 1000 {
		t.Fatalf("response seq = %d, want 1000", respTCP.SeqNum)
	}
	if respTCP.AckNum != 501 {
		t.Fatalf("response ack = %d, want 501", respTCP.AckNum)
	}
}

func TestSynReceivedToEstablishedOnValidAck(t *testing.T) {
	r := NewRecord(fixedISN{value: 1000})
	ip, tcp := synPacket(500, 4096)
	out := make([]byte, 64)
	if _, err := r.ProcessIncoming(ip, tcp, nil, out); err != nil {
		t.Fatalf("handshake step 1: %v", err)
	}

	ackIP, ackTCP := synPacket(501, 4096)
	ackTCP.Flags = tcpseg.FlagACK
	ackTCP.AckNum = 1001 // ServerSeq (1000) + 1

	n, err := r.ProcessIncoming(ackIP, ackTCP, nil, out)
	if err != nil {
		t.Fatalf("ProcessIncoming: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected no response frame entering ESTABLISHED, got %d bytes", n)
	}
	if r.State != Established {
		t.Fatalf("state = %s, want ESTABLISHED", r.State)
	}
	if r.ServerSeq != 1001 {
		t.Fatalf("ServerSeq = %d, want 1001", r.ServerSeq)
	}
}

func TestSynReceivedRejectsMissingAck(t *testing.T) {
	r := NewRecord(fixedISN{value: 1000})
	ip, tcp := synPacket(500, 4096)
	out := make([]byte, 64)
	if _, err := r.ProcessIncoming(ip, tcp, nil, out); err != nil {
		t.Fatalf("handshake step 1: %v", err)
	}

	bareIP, bareTCP := synPacket(501, 4096)
	bareTCP.Flags = 0 // no ACK set

	if _, err := r.ProcessIncoming(bareIP, bareTCP, nil, out); err == nil {
		t.Fatalf("expected handshake violation for non-ACK segment in SYN_RECEIVED")
	}
	if r.State != SynReceived {
		t.Fatalf("state should remain SYN_RECEIVED after rejected segment, got %s", r.State)
	}
}

func TestSynReceivedRejectsWrongAckNumber(t *testing.T) {
	r := NewRecord(fixedISN{value: 1000})
	ip, tcp := synPacket(500, 4096)
	out := make([]byte, 64)
	if _, err := r.ProcessIncoming(ip, tcp, nil, out); err != nil {
		t.Fatalf("handshake step 1: %v", err)
	}

	wrongIP, wrongTCP := synPacket(501, 4096)
	wrongTCP.Flags = tcpseg.FlagACK
	wrongTCP.AckNum = 9999

	if _, err := r.ProcessIncoming(wrongIP, wrongTCP, nil, out); err == nil {
		t.Fatalf("expected handshake violation for mismatched ack number")
	}
}

func TestEstablishedIsANoOp(t *testing.T) {
	r := NewRecord(fixedISN{value: 1000})
	r.State = Established
	ip, tcp := synPacket(501, 4096)
	out := make([]byte, 64)

	n, err := r.ProcessIncoming(ip, tcp, []byte("payload"), out)
	if err != nil {
		t.Fatalf("ProcessIncoming in ESTABLISHED: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected no response in ESTABLISHED, got %d bytes", n)
	}
	if r.State != Established {
		t.Fatalf("state changed unexpectedly: %s", r.State)
	}
}

func TestUnimplementedStatesReturnError(t *testing.T) {
	for _, s := range []State{FinWait1, FinWait2, CloseWait, Closing, LastAck, TimeWait, Listen, SynSent} {
		r := NewRecord(nil)
		r.State = s
		ip, tcp := synPacket(1, 1)
		out := make([]byte, 64)
		if _, err := r.ProcessIncoming(ip, tcp, nil, out); err == nil {
			t.Fatalf("state %s: expected ErrUnimplemented, got nil", s)
		}
	}
}
