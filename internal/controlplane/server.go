package controlplane

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	"golang.org/x/sys/unix"

	"github.com/daniel-mccarthy16/wtfistcp/internal/netlog"
	"github.com/daniel-mccarthy16/wtfistcp/internal/stackerr"
)

// SocketPath is the local rendezvous path for the control plane (spec
// §6). It is hardcoded: the process takes no CLI flags or environment
// variables.
const SocketPath = "/tmp/wtfistcp_unix_socket"

// Server owns the control plane's listener and shared registry. Its
// zero value is not usable; construct with NewServer.
type Server struct {
	registry *Registry
	listener net.Listener
}

// NewServer wires a fresh Registry into a control-plane server.
func NewServer() *Server {
	return &Server{registry: NewRegistry()}
}

// Registry returns the shared endpoint registry, intended to be handed
// to the ingress loop as a read-only capability per spec §5 (the
// ingress loop must only ever call Registry.PortIsOpen on it).
func (s *Server) Registry() *Registry { return s.registry }

// Listen unlinks any stale socket file, binds the local listener at
// SocketPath, and returns. It does not accept connections; call Serve
// for that. A bind failure here is a FatalStartupError per spec §7 —
// callers should abort the process.
func (s *Server) Listen() error {
	if err := unix.Unlink(SocketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		netlog.Warn("control plane: failed to unlink stale socket %s: %v", SocketPath, err)
	}

	lis, err := net.Listen("unix", SocketPath)
	if err != nil {
		return fmt.Errorf("%w: control plane bind failed: %v", stackerr.ErrFatalStartup, err)
	}
	s.listener = lis
	return nil
}

// Serve accepts client connections indefinitely, spawning one worker
// goroutine per accepted client. It returns only when the listener is
// closed.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return err
		}
		go s.worker(conn)
	}
}

// Close closes the listener, unblocking Serve.
func (s *Server) Close() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

// worker reads length-delimited messages from conn in a loop,
// dispatching implemented message types and replying per the framing
// documented in protocol.go. It terminates on I/O error or clean
// disconnect (spec §7: ControlPlaneError is reported to the client and
// the loop continues; a stream I/O error terminates the worker).
func (s *Server) worker(conn net.Conn) {
	defer conn.Close()

	for {
		msg, err := ReadMessage(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				netlog.Debug("control plane: worker stream error: %v", err)
			}
			return
		}

		if err := s.dispatch(conn, msg); err != nil {
			netlog.Warn("control plane: %v", err)
			if writeErr := WriteStatus(conn, statusFor(err)); writeErr != nil {
				netlog.Debug("control plane: failed to write error reply: %v", writeErr)
				return
			}
		}
	}
}

// dispatch handles one message against the shared registry. Only
// SOCKET, BIND, and LISTEN are implemented per spec §4.6; the other
// five message types are accepted on the wire (so a client never gets
// an unknown-message-type error for them) but always fail as
// unimplemented, matching spec.md's explicit list of what this
// repository leaves unimplemented.
func (s *Server) dispatch(conn net.Conn, msg *Message) error {
	switch msg.Type {
	case MsgSocket:
		descriptor := s.registry.Socket(conn)
		return WriteSocketReply(conn, descriptor)

	case MsgBind:
		descriptor, port, err := ParseBindPayload(msg.Payload)
		if err != nil {
			return err
		}
		if err := s.registry.Bind(descriptor, port); err != nil {
			return err
		}
		return WriteStatus(conn, StatusOK)

	case MsgListen:
		descriptor, err := ParseListenPayload(msg.Payload)
		if err != nil {
			return err
		}
		if err := s.registry.Listen(descriptor); err != nil {
			return err
		}
		return WriteStatus(conn, StatusOK)

	case MsgConnect, MsgSend, MsgReceive, MsgClose, MsgAccept:
		return fmt.Errorf("%w: message type %d is not implemented", stackerr.ErrUnimplemented, msg.Type)

	default:
		return fmt.Errorf("%w %d", errUnknownMessage, msg.Type)
	}
}

func statusFor(err error) byte {
	switch {
	case errors.Is(err, errUnknownDescriptor):
		return StatusUnknownDescriptor
	case errors.Is(err, errPortCollision):
		return StatusPortCollision
	case errors.Is(err, errUnknownMessage):
		return StatusUnknownMessage
	case errors.Is(err, errTruncated):
		return StatusTruncated
	default:
		return StatusTruncated
	}
}
