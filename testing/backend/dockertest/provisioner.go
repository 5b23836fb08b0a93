// Package dockertest provisions containers with an ory/dockertest pool.
//
// The pool starts containers as part of creating them, so files are uploaded
// right after start rather than before it.
package dockertest

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	ory "github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/pkg/errors"

	"github.com/syncromatics/testkit/log"
	"github.com/syncromatics/testkit/testing/harness"
)

// Provisioner runs containers through a dockertest pool.
type Provisioner struct {
	pool        *ory.Pool
	stopTimeout time.Duration
}

// New connects to docker. Uses a sensible default on windows (tcp/http) and
// linux/osx (socket).
func New(settings harness.Settings) (*Provisioner, error) {
	pool, err := ory.NewPool("")
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to docker")
	}
	pool.MaxWait = settings.ReadyTimeout

	return &Provisioner{
		pool:        pool,
		stopTimeout: settings.StopTimeout,
	}, nil
}

// Start runs the container and uploads spec files into it.
func (p *Provisioner) Start(ctx context.Context, spec harness.Spec) (harness.Instance, error) {
	repository, tag := splitImage(spec.Image)

	options := &ory.RunOptions{
		Name:         name(spec),
		Repository:   repository,
		Tag:          tag,
		Env:          spec.Env,
		Cmd:          spec.Cmd,
		Labels:       map[string]string{"testkit": "1"},
		PortBindings: make(map[docker.Port][]docker.PortBinding),
	}
	for _, port := range spec.Ports {
		id := fmt.Sprintf("%d/tcp", port)
		options.ExposedPorts = append(options.ExposedPorts, id)
		if hostPort, ok := spec.Bindings[port]; ok {
			options.PortBindings[docker.Port(id)] = []docker.PortBinding{
				{HostPort: strconv.Itoa(hostPort)},
			}
		}
	}

	resource, err := p.pool.RunWithOptions(options, func(config *docker.HostConfig) {
		// Remove deletes the container; the daemon must not.
		config.AutoRemove = false
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create docker container")
	}

	c := &instance{
		pool:        p.pool,
		resource:    resource,
		stopTimeout: p.stopTimeout,
	}

	for _, f := range spec.Files {
		archive, dir, err := f.Archive()
		if err == nil {
			err = p.pool.Client.UploadToContainer(resource.Container.ID, docker.UploadToContainerOptions{
				InputStream: archive,
				Path:        dir,
				Context:     ctx,
			})
		}
		if err != nil {
			if purgeErr := p.pool.Purge(resource); purgeErr != nil {
				log.Warn("failed to purge resource", "id", resource.Container.ID, "err", purgeErr)
			}
			return nil, errors.Wrapf(err, "failed uploading %s", f.Target)
		}
	}

	return c, nil
}

type instance struct {
	pool        *ory.Pool
	resource    *ory.Resource
	stopTimeout time.Duration
}

func (c *instance) ID() string {
	return c.resource.Container.ID
}

func (c *instance) Host(ctx context.Context) (string, error) {
	return harness.HostFromDockerHost(os.Getenv("DOCKER_HOST")), nil
}

func (c *instance) MappedPort(ctx context.Context, port int) (int, error) {
	current, err := c.pool.Client.InspectContainerWithContext(c.ID(), ctx)
	if err != nil {
		return 0, errors.Wrap(err, "failed inspecting container")
	}
	if !current.State.Running {
		return 0, errors.Wrapf(harness.ErrInstanceExited, "exit code %d", current.State.ExitCode)
	}

	// Fetch port dynamically assigned to container
	hostPort := c.resource.GetPort(fmt.Sprintf("%d/tcp", port))
	if hostPort == "" {
		return 0, errors.Errorf("port %d has no host binding", port)
	}
	return strconv.Atoi(hostPort)
}

func (c *instance) Stop(ctx context.Context) error {
	err := c.pool.Client.StopContainerWithContext(c.ID(), uint(c.stopTimeout.Seconds()), ctx)
	if err != nil {
		return errors.Wrap(err, "failed stopping container")
	}
	return nil
}

func (c *instance) Remove(ctx context.Context) error {
	err := c.pool.Client.RemoveContainer(docker.RemoveContainerOptions{
		ID:            c.ID(),
		Force:         true,
		RemoveVolumes: true,
		Context:       ctx,
	})
	var noSuch *docker.NoSuchContainer
	if err != nil && !errors.As(err, &noSuch) {
		return errors.Wrap(err, "failed removing container")
	}
	return nil
}

// splitImage splits "registry:5000/redis:7" into repository and tag.
func splitImage(image string) (string, string) {
	slash := strings.LastIndex(image, "/")
	colon := strings.LastIndex(image, ":")
	if colon > slash {
		return image[:colon], image[colon+1:]
	}
	return image, "latest"
}

func name(spec harness.Spec) string {
	if spec.Name == "" {
		return ""
	}
	return fmt.Sprintf("%s_%s", spec.Name, uuid.New().String()[:8])
}
