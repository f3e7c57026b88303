// Package tcpseg parses and emits 20-byte TCP headers (RFC 793,
// options unsupported on egress), computing the TCP checksum over the
// pseudo-header + segment following the teacher's TCP codec.
package tcpseg

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/google/gopacket/layers"

	"github.com/daniel-mccarthy16/wtfistcp/internal/checksum"
	"github.com/daniel-mccarthy16/wtfistcp/internal/stackerr"
)

const (
	// HeaderLen is the fixed header length in bytes (DataOffset=5, no options).
	HeaderLen = 20

	// Flag bit positions within the flags byte (spec §3: bit 5 URG, 4
	// ACK, 3 PSH, 2 RST, 1 SYN, 0 FIN).
	FlagFIN = 1 << 0
	FlagSYN = 1 << 1
	FlagRST = 1 << 2
	FlagPSH = 1 << 3
	FlagACK = 1 << 4
	FlagURG = 1 << 5

	// SynAckFlags is the flags byte emitted for a SYN+ACK response.
	SynAckFlags = FlagSYN | FlagACK
)

// Header is a parsed TCP header. Options are not retained: the data
// offset is honored to skip them, but their bytes are dropped.
type Header struct {
	SrcPort    layers.TCPPort
	DstPort    layers.TCPPort
	SeqNum     uint32
	AckNum     uint32
	DataOffset uint8 // header length in 32-bit words
	Flags      uint8
	Window     uint16
	Checksum   uint16
	UrgentPtr  uint16
}

// HeaderLenBytes returns DataOffset*4, the header length in bytes.
func (h *Header) HeaderLenBytes() int { return int(h.DataOffset) * 4 }

func (h *Header) IsURG() bool { return h.Flags&FlagURG != 0 }
func (h *Header) IsACK() bool { return h.Flags&FlagACK != 0 }
func (h *Header) IsPSH() bool { return h.Flags&FlagPSH != 0 }
func (h *Header) IsRST() bool { return h.Flags&FlagRST != 0 }
func (h *Header) IsSYN() bool { return h.Flags&FlagSYN != 0 }
func (h *Header) IsFIN() bool { return h.Flags&FlagFIN != 0 }

// SetSequenceNumber mutates the header's sequence number.
func (h *Header) SetSequenceNumber(n uint32) { h.SeqNum = n }

// SetAcknowledgementNumber mutates the header's acknowledgement number.
func (h *Header) SetAcknowledgementNumber(n uint32) { h.AckNum = n }

// SetWindow mutates the header's advertised window.
func (h *Header) SetWindow(w uint16) { h.Window = w }

// SetSynAckFlags sets the flags byte to SYN|ACK (0b0001_0010).
func (h *Header) SetSynAckFlags() { h.Flags = SynAckFlags }

// Parse parses a 20-byte-or-longer TCP segment from data. It rejects
// inputs shorter than HeaderLen. Options implied by DataOffset > 5 are
// skipped, not retained.
func Parse(data []byte) (*Header, []byte, error) {
	if len(data) < HeaderLen {
		return nil, nil, fmt.Errorf("%w: tcp segment too short: %d bytes", stackerr.ErrParse, len(data))
	}
	dataOffset := data[12] >> 4
	headerLen := int(dataOffset) * 4
	if headerLen < HeaderLen {
		return nil, nil, fmt.Errorf("%w: invalid TCP data offset %d", stackerr.ErrParse, dataOffset)
	}
	if len(data) < headerLen {
		return nil, nil, fmt.Errorf("%w: segment too short for declared data offset: need %d, got %d", stackerr.ErrParse, headerLen, len(data))
	}

	h := &Header{
		SrcPort:    layers.TCPPort(binary.BigEndian.Uint16(data[0:2])),
		DstPort:    layers.TCPPort(binary.BigEndian.Uint16(data[2:4])),
		SeqNum:     binary.BigEndian.Uint32(data[4:8]),
		AckNum:     binary.BigEndian.Uint32(data[8:12]),
		DataOffset: dataOffset,
		Flags:      data[13],
		Window:     binary.BigEndian.Uint16(data[14:16]),
		Checksum:   binary.BigEndian.Uint16(data[16:18]),
		UrgentPtr:  binary.BigEndian.Uint16(data[18:20]),
	}
	return h, data[headerLen:], nil
}

// Emit serializes h into a HeaderLen-byte slice in network byte
// order, with the checksum initially zero. Callers must compute the
// checksum via PseudoHeader + checksum.Sum and write it with
// WriteChecksum before transmitting.
func Emit(h *Header) []byte {
	buf := make([]byte, HeaderLen)
	binary.BigEndian.PutUint16(buf[0:2], uint16(h.SrcPort))
	binary.BigEndian.PutUint16(buf[2:4], uint16(h.DstPort))
	binary.BigEndian.PutUint32(buf[4:8], h.SeqNum)
	binary.BigEndian.PutUint32(buf[8:12], h.AckNum)
	buf[12] = 5 << 4 // DataOffset=5, no options
	buf[13] = h.Flags
	binary.BigEndian.PutUint16(buf[14:16], h.Window)
	// buf[16:18] left zero; filled in by WriteChecksum.
	binary.BigEndian.PutUint16(buf[18:20], h.UrgentPtr)
	return buf
}

// PseudoHeader builds the 12-byte TCP pseudo-header: source IP (4),
// dest IP (4), zero byte, protocol=6, TCP length (header+payload, u16 BE).
func PseudoHeader(srcIP, dstIP net.IP, tcpLen int) ([]byte, error) {
	src := srcIP.To4()
	dst := dstIP.To4()
	if src == nil || dst == nil {
		return nil, fmt.Errorf("tcpseg: source or destination is not a valid IPv4 address")
	}
	buf := make([]byte, 12)
	copy(buf[0:4], src)
	copy(buf[4:8], dst)
	buf[8] = 0
	buf[9] = 6 // TCP
	binary.BigEndian.PutUint16(buf[10:12], uint16(tcpLen))
	return buf, nil
}

// Checksum computes the TCP checksum over pseudoHeader ‖ header ‖
// payload, with the header's own checksum field (bytes 16-17) treated
// as zero.
func Checksum(pseudoHeader, header, payload []byte) uint16 {
	combined := make([]byte, 0, len(pseudoHeader)+len(header)+len(payload))
	combined = append(combined, pseudoHeader...)
	combined = append(combined, header...)
	combined = append(combined, payload...)
	return checksum.SumAt(combined, len(pseudoHeader)+16)
}

// WriteChecksum writes sum into bytes 16-17 of a serialized TCP header.
func WriteChecksum(header []byte, sum uint16) {
	binary.BigEndian.PutUint16(header[16:18], sum)
}
