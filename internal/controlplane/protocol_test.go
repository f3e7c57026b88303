package controlplane

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func encodeMessage(msgType MessageType, payload []byte) []byte {
	buf := make([]byte, headerLen+len(payload))
	buf[0] = byte(msgType)
	binary.BigEndian.PutUint32(buf[1:5], uint32(len(payload)))
	copy(buf[5:], payload)
	return buf
}

func TestReadMessageRoundTrip(t *testing.T) {
	payload := []byte{0, 0, 0, 7, 0x1F, 0x90}
	raw := encodeMessage(MsgBind, payload)

	msg, err := ReadMessage(bytes.NewReader(raw))
	require.NoError(t, err)
	require.Equal(t, MsgBind, msg.Type)
	require.Equal(t, payload, msg.Payload)
}

func TestReadMessageZeroLengthPayload(t *testing.T) {
	raw := encodeMessage(MsgSocket, nil)
	msg, err := ReadMessage(bytes.NewReader(raw))
	require.NoError(t, err)
	require.Equal(t, MsgSocket, msg.Type)
	require.Empty(t, msg.Payload)
}

func TestReadMessageTruncatedPayloadErrors(t *testing.T) {
	raw := encodeMessage(MsgBind, []byte{1, 2, 3, 4, 5, 6})
	truncated := raw[:len(raw)-2] // header claims 6 bytes, only 4 present
	_, err := ReadMessage(bytes.NewReader(truncated))
	require.Error(t, err)
}

func TestReadMessageShortHeaderErrors(t *testing.T) {
	_, err := ReadMessage(bytes.NewReader([]byte{1, 2, 3}))
	require.Error(t, err)
}

func TestParseBindPayload(t *testing.T) {
	payload := make([]byte, 6)
	binary.BigEndian.PutUint32(payload[0:4], 7)
	binary.BigEndian.PutUint16(payload[4:6], 8080)

	descriptor, port, err := ParseBindPayload(payload)
	require.NoError(t, err)
	require.Equal(t, uint32(7), descriptor)
	require.Equal(t, uint16(8080), port)
}

func TestParseBindPayloadWrongLength(t *testing.T) {
	_, _, err := ParseBindPayload([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestParseListenPayload(t *testing.T) {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, 3)

	descriptor, err := ParseListenPayload(payload)
	require.NoError(t, err)
	require.Equal(t, uint32(3), descriptor)
}

func TestParseListenPayloadWrongLength(t *testing.T) {
	_, err := ParseListenPayload([]byte{1, 2})
	require.Error(t, err)
}

func TestWriteSocketReplyFormat(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSocketReply(&buf, 42))

	got := buf.Bytes()
	require.Len(t, got, 5)
	require.Equal(t, StatusOK, got[0])
	require.Equal(t, uint32(42), binary.BigEndian.Uint32(got[1:5]))
}
