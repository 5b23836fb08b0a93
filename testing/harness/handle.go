package harness

import (
	"io"
	"sync"
)

// State is the lifecycle state of a Handle.
type State int

// Handle states, in lifecycle order.
const (
	Requested State = iota
	Starting
	Ready
	Stopping
	Closed
)

func (s State) String() string {
	switch s {
	case Requested:
		return "requested"
	case Starting:
		return "starting"
	case Ready:
		return "ready"
	case Stopping:
		return "stopping"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// Handle is an acquired container.
type Handle struct {
	spec Spec

	mu         sync.Mutex
	state      State
	instance   Instance
	endpoints  Endpoints
	dependents []io.Closer
	releasing  bool
}

func newHandle(spec Spec) *Handle {
	return &Handle{
		spec:  spec,
		state: Requested,
	}
}

// State returns the current lifecycle state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// ID returns the control plane identifier, or "" before start.
func (h *Handle) ID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.instance == nil {
		return ""
	}
	return h.instance.ID()
}

// Image returns the image the handle was acquired from.
func (h *Handle) Image() string {
	return h.spec.Image
}

// Endpoint returns where the given container port is reachable from the
// host. It only succeeds while the handle is ready.
func (h *Handle) Endpoint(port int) (Endpoint, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != Ready {
		return Endpoint{}, &InvalidHandleError{Op: "endpoint", State: h.state}
	}
	ep, err := h.endpoints.Get(port)
	if err != nil {
		return Endpoint{}, &InvalidHandleError{Op: "endpoint", State: h.state, Err: err}
	}
	return ep, nil
}

// Endpoints returns a copy of every endpoint while the handle is ready.
func (h *Handle) Endpoints() (Endpoints, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != Ready {
		return nil, &InvalidHandleError{Op: "endpoints", State: h.state}
	}
	eps := make(Endpoints, len(h.endpoints))
	for k, v := range h.endpoints {
		eps[k] = v
	}
	return eps, nil
}

// Attach registers a client of the container. Release closes attached
// clients, in reverse order, before the container is stopped.
func (h *Handle) Attach(c io.Closer) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != Ready {
		return &InvalidHandleError{Op: "attach", State: h.state}
	}
	h.dependents = append(h.dependents, c)
	return nil
}

func (h *Handle) setState(s State) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}

func (h *Handle) finishRelease(s State) {
	h.mu.Lock()
	h.state = s
	h.releasing = false
	h.mu.Unlock()
}
