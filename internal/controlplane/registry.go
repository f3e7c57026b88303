package controlplane

import (
	"fmt"
	"net"
	"sync"
)

// SocketState is a client endpoint's position in its lifecycle (spec
// §3 Client Endpoint Record).
type SocketState int

const (
	Created SocketState = iota
	Bound
	Listening
)

func (s SocketState) String() string {
	switch s {
	case Created:
		return "CREATED"
	case Bound:
		return "BOUND"
	case Listening:
		return "LISTENING"
	default:
		return "UNKNOWN"
	}
}

// Endpoint is one control-plane client's record: its descriptor, the
// stream it was allocated on, its lifecycle state, and its bound port
// once BIND has succeeded.
type Endpoint struct {
	Descriptor uint32
	Stream     net.Conn
	State      SocketState
	BoundPort  uint16
	HasPort    bool
}

// Registry is the shared endpoint table described in spec §4.6/§5: a
// monotonic descriptor counter plus a descriptor->Endpoint map, guarded
// by a single mutex shared by every control-plane worker. The ingress
// loop holds a read-only *Registry and may only call PortIsOpen — it
// must never mutate the table. Every access, from the writing workers
// and from the reading ingress loop alike, goes through the one mutex
// (spec §5).
type Registry struct {
	mu      sync.Mutex
	nextID  uint32
	entries map[uint32]*Endpoint
}

// NewRegistry returns an empty registry with descriptor allocation
// starting at 1 (0 is never issued).
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[uint32]*Endpoint),
		nextID:  1,
	}
}

// Socket allocates the next monotonic descriptor, inserts a Created
// endpoint bound to stream, and returns the new descriptor id.
func (r *Registry) Socket(stream net.Conn) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextID
	r.nextID++
	r.entries[id] = &Endpoint{
		Descriptor: id,
		Stream:     stream,
		State:      Created,
	}
	return id
}

// Bind sets descriptor's bound port, failing if the descriptor is
// unknown or if any existing endpoint already holds that port.
func (r *Registry) Bind(descriptor uint32, port uint16) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ep, ok := r.entries[descriptor]
	if !ok {
		return fmt.Errorf("%w %d", errUnknownDescriptor, descriptor)
	}
	for _, other := range r.entries {
		if other.Descriptor != descriptor && other.HasPort && other.BoundPort == port {
			return fmt.Errorf("%w: port %d already bound by descriptor %d", errPortCollision, port, other.Descriptor)
		}
	}
	ep.State = Bound
	ep.BoundPort = port
	ep.HasPort = true
	return nil
}

// Listen transitions descriptor to Listening, failing if the
// descriptor is unknown.
func (r *Registry) Listen(descriptor uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ep, ok := r.entries[descriptor]
	if !ok {
		return fmt.Errorf("%w %d", errUnknownDescriptor, descriptor)
	}
	ep.State = Listening
	return nil
}

// PortIsOpen reports whether some endpoint has bound_port == port and
// state == Listening. This is the sole query the Frame Ingress Loop
// issues against the registry (spec §4.6).
func (r *Registry) PortIsOpen(port uint16) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ep := range r.entries {
		if ep.HasPort && ep.BoundPort == port && ep.State == Listening {
			return true
		}
	}
	return false
}

// Note: a client disconnect intentionally leaves its endpoint records
// in place. The worker that owned the connection simply stops; any
// port it bound stays reserved and unreachable for the lifetime of the
// process. This mirrors a known limitation rather than a bug.
