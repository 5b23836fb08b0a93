package harness

import (
	"context"
	"net"
	"net/url"
	"strconv"

	"github.com/pkg/errors"
)

// ErrInstanceExited is returned by Instance.MappedPort when the container is
// no longer running. Readiness polling stops on it.
var ErrInstanceExited = errors.New("instance exited")

// Provisioner is the container control plane.
type Provisioner interface {
	Start(ctx context.Context, spec Spec) (Instance, error)
}

// Instance is a started container.
type Instance interface {
	ID() string
	Host(ctx context.Context) (string, error)
	MappedPort(ctx context.Context, port int) (int, error)
	Stop(ctx context.Context) error
	Remove(ctx context.Context) error
}

// Probe makes one readiness attempt against the instance endpoints.
type Probe func(ctx context.Context, endpoints Endpoints) error

// Endpoint is a host and an externally reachable port.
type Endpoint struct {
	Host string
	Port int
}

// Address returns host:port.
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// Endpoints maps a declared container port to its endpoint.
type Endpoints map[int]Endpoint

// Get returns the endpoint for a container port.
func (e Endpoints) Get(port int) (Endpoint, error) {
	ep, ok := e[port]
	if !ok {
		return Endpoint{}, errors.Errorf("port %d is not exposed", port)
	}
	return ep, nil
}

// HostFromDockerHost returns the host that published ports are reachable on
// for the given DOCKER_HOST value. Unix sockets and empty values mean the
// daemon is local.
func HostFromDockerHost(dockerHost string) string {
	if dockerHost == "" {
		return "localhost"
	}
	u, err := url.Parse(dockerHost)
	if err != nil {
		return "localhost"
	}
	switch u.Scheme {
	case "tcp", "http", "https":
		if h := u.Hostname(); h != "" {
			return h
		}
	}
	return "localhost"
}
