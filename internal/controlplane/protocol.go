package controlplane

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/daniel-mccarthy16/wtfistcp/internal/stackerr"
)

// MessageType is the 1-byte message type tag in the control-plane wire
// format (spec §4.6).
type MessageType byte

const (
	MsgConnect MessageType = 1
	MsgSend    MessageType = 2
	MsgReceive MessageType = 3
	MsgClose   MessageType = 4
	MsgAccept  MessageType = 5
	MsgListen  MessageType = 6
	MsgBind    MessageType = 7
	MsgSocket  MessageType = 8
)

// headerLen is the 5-byte [type:1 | length:4 BE] message header.
const headerLen = 5

// Message is one parsed control-plane request: a type tag plus its
// payload bytes.
type Message struct {
	Type    MessageType
	Payload []byte
}

// ReadMessage reads one length-delimited message from r per the
// framing in spec §4.6/§6. An error while reading the header (including
// io.EOF on a clean client disconnect) is returned unwrapped so callers
// can distinguish "stream closed" from "malformed message"; an error
// while reading the payload is wrapped with errTruncated.
func ReadMessage(r io.Reader) (*Message, error) {
	var header [headerLen]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(header[1:5])
	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, fmt.Errorf("%w: %v", errTruncated, err)
		}
	}
	return &Message{Type: MessageType(header[0]), Payload: payload}, nil
}

// Sentinel errors refining spec §7's single ControlPlaneError kind
// into the four status codes below, each still matching
// errors.Is(err, stackerr.ErrControlPlane).
var (
	errUnknownDescriptor = fmt.Errorf("%w: unknown descriptor", stackerr.ErrControlPlane)
	errPortCollision     = fmt.Errorf("%w: port collision", stackerr.ErrControlPlane)
	errUnknownMessage    = fmt.Errorf("%w: unknown message type", stackerr.ErrControlPlane)
	errTruncated         = fmt.Errorf("%w: truncated message", stackerr.ErrControlPlane)
)

// Status codes for the reply framing documented in SPEC_FULL.md §4:
// this implementation always replies with a 1-byte status followed,
// on success, by whatever response payload the message type defines.
const (
	StatusOK                byte = 0
	StatusUnknownDescriptor byte = 1
	StatusPortCollision     byte = 2
	StatusUnknownMessage    byte = 3
	StatusTruncated         byte = 4
)

// WriteStatus writes a 1-byte status reply.
func WriteStatus(w io.Writer, status byte) error {
	_, err := w.Write([]byte{status})
	return err
}

// WriteSocketReply writes the SOCKET reply: status OK followed by the
// newly allocated descriptor, 4 bytes BE. Every other implemented
// message type replies with just the status byte — only SOCKET hands
// the client state it could not have supplied itself.
func WriteSocketReply(w io.Writer, descriptor uint32) error {
	buf := make([]byte, 5)
	buf[0] = StatusOK
	binary.BigEndian.PutUint32(buf[1:5], descriptor)
	_, err := w.Write(buf)
	return err
}

// ParseBindPayload parses BIND's payload: descriptor (u32 BE) ‖ port (u16 BE).
func ParseBindPayload(payload []byte) (descriptor uint32, port uint16, err error) {
	if len(payload) != 6 {
		return 0, 0, fmt.Errorf("%w: BIND payload must be 6 bytes, got %d", errTruncated, len(payload))
	}
	descriptor = binary.BigEndian.Uint32(payload[0:4])
	port = binary.BigEndian.Uint16(payload[4:6])
	return descriptor, port, nil
}

// ParseListenPayload parses LISTEN's payload: descriptor (u32 BE).
func ParseListenPayload(payload []byte) (descriptor uint32, err error) {
	if len(payload) != 4 {
		return 0, fmt.Errorf("%w: LISTEN payload must be 4 bytes, got %d", errTruncated, len(payload))
	}
	return binary.BigEndian.Uint32(payload), nil
}
