// Package stackerr defines the error taxonomy from the design's §7
// error-handling policy: every per-frame failure is localized to one
// of these kinds so callers can apply the right drop/log/abort policy
// with errors.Is instead of string matching.
package stackerr

import "errors"

var (
	// ErrParse covers IPv4/TCP parse failures: short input, wrong
	// version, checksum mismatch. Policy: drop the frame, continue.
	ErrParse = errors.New("parse error")

	// ErrHandshakeViolation covers an inbound segment in SynReceived
	// that lacks ACK, or whose ack/seq number doesn't match what the
	// handshake requires. Policy: log, leave the connection in
	// SynReceived, continue.
	ErrHandshakeViolation = errors.New("handshake violation")

	// ErrUnimplemented covers inbound traffic for a connection in any
	// state other than Uninitialized, SynReceived, or Established.
	// Policy: drop-and-log (promoted from the source's fatal
	// placeholder per the redesign decision in DESIGN.md).
	ErrUnimplemented = errors.New("unimplemented connection state")

	// ErrControlPlane covers an unknown descriptor, a port collision
	// on BIND, an invalid message type byte, or a truncated message.
	// Policy: report to the client, continue the worker loop.
	ErrControlPlane = errors.New("control plane error")

	// ErrFatalStartup covers TUN bind failure or control-socket bind
	// failure. Policy: abort the process with a diagnostic.
	ErrFatalStartup = errors.New("fatal startup error")

	// ErrTableFull indicates the connection table has reached its
	// bound and a new inbound SYN was rejected.
	ErrTableFull = errors.New("connection table full")
)
