// Package ipv4 parses and emits 20-byte IPv4 headers (RFC 791,
// options unsupported on egress) following the byte layout and
// checksum discipline from the teacher's IPv4 codec.
package ipv4

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/daniel-mccarthy16/wtfistcp/internal/checksum"
	"github.com/daniel-mccarthy16/wtfistcp/internal/stackerr"
)

const (
	// Version is the only IP version this codec accepts.
	Version = 4

	// HeaderLen is the fixed header length in bytes (IHL=5, no options).
	HeaderLen = 20

	// ProtocolTCP is the IPv4 protocol number for TCP.
	ProtocolTCP = 6

	checksumOffset = 10
)

// Header is a parsed IPv4 header. SrcIP/DstIP are always 4-byte (IPv4)
// net.IP values.
type Header struct {
	Version     uint8
	IHL         uint8 // header length in 32-bit words
	TOS         uint8
	TotalLength uint16
	ID          uint16
	Flags       uint8  // top 3 bits of the flags+fragment field
	FragOffset  uint16 // low 13 bits of the flags+fragment field
	TTL         uint8
	Protocol    uint8
	Checksum    uint16
	SrcIP       net.IP
	DstIP       net.IP
}

// HeaderLenBytes returns IHL*4, the header length in bytes.
func (h *Header) HeaderLenBytes() int {
	return int(h.IHL) * 4
}

// Parse parses a 20-byte-or-longer IPv4 header from data. It rejects
// inputs shorter than HeaderLen, inputs whose version nibble isn't 4,
// and inputs whose stored checksum doesn't match the computed
// checksum over the first IHL*4 bytes (with the checksum field itself
// treated as zero).
func Parse(data []byte) (*Header, error) {
	if len(data) < HeaderLen {
		return nil, fmt.Errorf("%w: ipv4 packet too short: %d bytes", stackerr.ErrParse, len(data))
	}

	versionIHL := data[0]
	version := versionIHL >> 4
	if version != Version {
		return nil, fmt.Errorf("%w: not an ipv4 packet (version %d)", stackerr.ErrParse, version)
	}
	ihl := versionIHL & 0x0F
	if ihl < 5 {
		return nil, fmt.Errorf("%w: invalid IHL %d", stackerr.ErrParse, ihl)
	}
	headerLen := int(ihl) * 4
	if len(data) < headerLen {
		return nil, fmt.Errorf("%w: packet too short for declared IHL: need %d, got %d", stackerr.ErrParse, headerLen, len(data))
	}

	storedChecksum := binary.BigEndian.Uint16(data[10:12])
	computed := checksum.SumAt(data[:headerLen], checksumOffset)
	if computed != storedChecksum {
		return nil, fmt.Errorf("%w: ipv4 checksum mismatch: header says %#04x, computed %#04x", stackerr.ErrParse, storedChecksum, computed)
	}

	flagsAndOffset := binary.BigEndian.Uint16(data[6:8])

	h := &Header{
		Version:     version,
		IHL:         ihl,
		TOS:         data[1],
		TotalLength: binary.BigEndian.Uint16(data[2:4]),
		ID:          binary.BigEndian.Uint16(data[4:6]),
		Flags:       uint8(flagsAndOffset >> 13),
		FragOffset:  flagsAndOffset & 0x1FFF,
		TTL:         data[8],
		Protocol:    data[9],
		Checksum:    storedChecksum,
		SrcIP:       net.IP(append([]byte(nil), data[12:16]...)),
		DstIP:       net.IP(append([]byte(nil), data[16:20]...)),
	}
	return h, nil
}

// Emit serializes h into a HeaderLen-byte slice in network byte
// order. The checksum field is written as zero during serialization,
// then recomputed over the serialized bytes and written into bytes
// 10-11.
func Emit(h *Header) ([]byte, error) {
	src := h.SrcIP.To4()
	dst := h.DstIP.To4()
	if src == nil || dst == nil {
		return nil, fmt.Errorf("ipv4: source or destination is not a valid IPv4 address")
	}

	buf := make([]byte, HeaderLen)
	buf[0] = (Version << 4) | 5
	buf[1] = h.TOS
	binary.BigEndian.PutUint16(buf[2:4], h.TotalLength)
	binary.BigEndian.PutUint16(buf[4:6], h.ID)
	flagsAndOffset := (uint16(h.Flags) << 13) | (h.FragOffset & 0x1FFF)
	binary.BigEndian.PutUint16(buf[6:8], flagsAndOffset)
	buf[8] = h.TTL
	buf[9] = h.Protocol
	// buf[10:12] left zero for the checksum computation below.
	copy(buf[12:16], src)
	copy(buf[16:20], dst)

	sum := checksum.Sum(buf)
	binary.BigEndian.PutUint16(buf[10:12], sum)

	return buf, nil
}
