// Package testcontainers provisions containers with testcontainers-go
// generic containers.
package testcontainers

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/syncromatics/testkit/testing/harness"
)

// Provisioner starts generic containers.
type Provisioner struct {
	readyTimeout time.Duration
	stopTimeout  time.Duration
}

// New creates a provisioner. The docker connection is made per container by
// testcontainers.
func New(settings harness.Settings) *Provisioner {
	return &Provisioner{
		readyTimeout: settings.ReadyTimeout,
		stopTimeout:  settings.StopTimeout,
	}
}

// Start creates and starts a container and waits for its ports to listen.
func (p *Provisioner) Start(ctx context.Context, spec harness.Spec) (harness.Instance, error) {
	req, err := p.request(spec)
	if err != nil {
		return nil, err
	}

	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if c != nil {
			_ = c.Terminate(context.Background())
		}
		return nil, errors.Wrap(err, "failed starting generic container")
	}

	return &instance{container: c, stopTimeout: p.stopTimeout}, nil
}

func (p *Provisioner) request(spec harness.Spec) (tc.ContainerRequest, error) {
	env, err := envMap(spec.Env)
	if err != nil {
		return tc.ContainerRequest{}, err
	}

	req := tc.ContainerRequest{
		Image:  spec.Image,
		Env:    env,
		Cmd:    spec.Cmd,
		Labels: map[string]string{"testkit": "1"},
	}
	if spec.Name != "" {
		req.Name = fmt.Sprintf("%s_%s", spec.Name, uuid.New().String()[:8])
	}

	var strategies []wait.Strategy
	for _, port := range spec.Ports {
		natPort := nat.Port(fmt.Sprintf("%d/tcp", port))
		req.ExposedPorts = append(req.ExposedPorts, string(natPort))
		strategies = append(strategies, wait.ForListeningPort(natPort).WithStartupTimeout(p.readyTimeout))
	}
	req.WaitingFor = wait.ForAll(strategies...)

	for _, f := range spec.Files {
		content, err := f.Bytes()
		if err != nil {
			return tc.ContainerRequest{}, err
		}
		req.Files = append(req.Files, tc.ContainerFile{
			Reader:            bytes.NewReader(content),
			ContainerFilePath: f.Target,
			FileMode:          f.FileMode(),
		})
	}

	if len(spec.Bindings) > 0 {
		bindings := nat.PortMap{}
		for port, hostPort := range spec.Bindings {
			bindings[nat.Port(fmt.Sprintf("%d/tcp", port))] = []nat.PortBinding{
				{HostPort: strconv.Itoa(hostPort)},
			}
		}
		req.HostConfigModifier = func(hc *container.HostConfig) {
			if hc.PortBindings == nil {
				hc.PortBindings = nat.PortMap{}
			}
			for port, b := range bindings {
				hc.PortBindings[port] = b
			}
		}
	}

	return req, nil
}

func envMap(env []string) (map[string]string, error) {
	m := make(map[string]string, len(env))
	for _, kv := range env {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 || parts[0] == "" {
			return nil, errors.Errorf("environment entry %q is not KEY=VALUE", kv)
		}
		m[parts[0]] = parts[1]
	}
	return m, nil
}

type instance struct {
	container   tc.Container
	stopTimeout time.Duration
}

func (c *instance) ID() string {
	return c.container.GetContainerID()
}

func (c *instance) Host(ctx context.Context) (string, error) {
	return c.container.Host(ctx)
}

func (c *instance) MappedPort(ctx context.Context, port int) (int, error) {
	if !c.container.IsRunning() {
		return 0, errors.Wrap(harness.ErrInstanceExited, "container is not running")
	}

	mapped, err := c.container.MappedPort(ctx, nat.Port(fmt.Sprintf("%d/tcp", port)))
	if err != nil {
		return 0, err
	}
	return mapped.Int(), nil
}

func (c *instance) Stop(ctx context.Context) error {
	timeout := c.stopTimeout
	return c.container.Stop(ctx, &timeout)
}

func (c *instance) Remove(ctx context.Context) error {
	return c.container.Terminate(ctx)
}
