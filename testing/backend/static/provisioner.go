// Package static points the harness at services that are already running,
// such as compose sidecars in CI. Nothing is started or removed.
package static

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/syncromatics/testkit/testing/harness"
)

// Provisioner resolves container ports to fixed host ports.
type Provisioner struct {
	host  string
	ports map[int]int
}

// New creates a provisioner serving ports on host. A container port missing
// from ports maps to itself.
func New(host string, ports map[int]int) *Provisioner {
	if host == "" {
		host = "localhost"
	}
	copied := make(map[int]int, len(ports))
	for k, v := range ports {
		copied[k] = v
	}
	return &Provisioner{host: host, ports: copied}
}

// Start returns an instance for the already running service.
func (p *Provisioner) Start(ctx context.Context, spec harness.Spec) (harness.Instance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &instance{
		id:    fmt.Sprintf("static:%s", spec.Image),
		host:  p.host,
		ports: p.ports,
	}, nil
}

type instance struct {
	id    string
	host  string
	ports map[int]int
}

func (i *instance) ID() string {
	return i.id
}

func (i *instance) Host(ctx context.Context) (string, error) {
	return i.host, nil
}

func (i *instance) MappedPort(ctx context.Context, port int) (int, error) {
	if mapped, ok := i.ports[port]; ok {
		return mapped, nil
	}
	if port <= 0 {
		return 0, errors.Errorf("invalid port %d", port)
	}
	return port, nil
}

func (i *instance) Stop(ctx context.Context) error {
	return nil
}

func (i *instance) Remove(ctx context.Context) error {
	return nil
}
