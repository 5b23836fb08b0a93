// Package docker provisions containers through the Docker Engine API.
package docker

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"strconv"
	"strings"
	"time"

	client "docker.io/go-docker"
	"docker.io/go-docker/api/types"
	"docker.io/go-docker/api/types/container"
	"docker.io/go-docker/api/types/network"
	"docker.io/go-docker/api/types/strslice"
	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/syncromatics/testkit/log"
	"github.com/syncromatics/testkit/testing/harness"
)

// Label marks every container started by the kit.
const Label = "testkit"

// Provisioner starts containers on the daemon named by the DOCKER_* environment.
type Provisioner struct {
	cli         *client.Client
	stopTimeout time.Duration
}

// New connects to the docker daemon. DOCKER_API_VERSION is set from settings
// when the environment does not pin it.
func New(settings harness.Settings) (*Provisioner, error) {
	if _, ok := os.LookupEnv("DOCKER_API_VERSION"); !ok && settings.DockerAPIVersion != "" {
		os.Setenv("DOCKER_API_VERSION", settings.DockerAPIVersion)
	}

	cli, err := client.NewEnvClient()
	if err != nil {
		return nil, errors.Wrap(err, "failed creating docker client")
	}

	return &Provisioner{
		cli:         cli,
		stopTimeout: settings.StopTimeout,
	}, nil
}

// Start pulls the image if needed, creates the container, copies files into
// it and starts it.
func (p *Provisioner) Start(ctx context.Context, spec harness.Spec) (harness.Instance, error) {
	err := p.ensureImage(ctx, spec.Image)
	if err != nil {
		return nil, err
	}

	config := container.Config{
		Image:        spec.Image,
		Env:          spec.Env,
		ExposedPorts: nat.PortSet{},
		Labels:       map[string]string{Label: "1"},
	}
	if len(spec.Cmd) > 0 {
		config.Cmd = strslice.StrSlice(spec.Cmd)
	}

	hostConfig := container.HostConfig{
		PortBindings: nat.PortMap{},
	}
	for _, port := range spec.Ports {
		natPort := portOf(port)
		config.ExposedPorts[natPort] = struct{}{}

		binding := nat.PortBinding{}
		if hostPort, ok := spec.Bindings[port]; ok {
			binding.HostPort = strconv.Itoa(hostPort)
		}
		hostConfig.PortBindings[natPort] = []nat.PortBinding{binding}
	}

	networkConfig := network.NetworkingConfig{}

	create, err := p.cli.ContainerCreate(ctx, &config, &hostConfig, &networkConfig, containerName(spec))
	if err != nil {
		return nil, errors.Wrap(err, "failed creating container")
	}

	c := &instance{
		cli:         p.cli,
		id:          create.ID,
		stopTimeout: p.stopTimeout,
	}

	for _, f := range spec.Files {
		err = c.copyFile(ctx, f)
		if err != nil {
			c.forceRemove()
			return nil, err
		}
	}

	err = p.cli.ContainerStart(ctx, create.ID, types.ContainerStartOptions{})
	if err != nil {
		c.forceRemove()
		return nil, errors.Wrap(err, "failed starting container")
	}

	log.Debug("started container", "id", create.ID, "image", spec.Image)

	return c, nil
}

func (p *Provisioner) ensureImage(ctx context.Context, image string) error {
	_, _, err := p.cli.ImageInspectWithRaw(ctx, image)
	if err == nil {
		return nil
	}
	if !client.IsErrNotFound(err) {
		return errors.Wrapf(err, "failed inspecting image %s", image)
	}

	log.Info("pulling image", "image", image)

	r, err := p.cli.ImagePull(ctx, image, types.ImagePullOptions{})
	if err != nil {
		return errors.Wrapf(err, "failed pulling image %s", image)
	}
	defer r.Close()

	_, err = io.Copy(ioutil.Discard, r)
	if err != nil {
		return errors.Wrapf(err, "failed reading pull progress for %s", image)
	}

	return nil
}

type instance struct {
	cli         *client.Client
	id          string
	stopTimeout time.Duration
}

func (c *instance) ID() string {
	return c.id
}

func (c *instance) Host(ctx context.Context) (string, error) {
	return harness.HostFromDockerHost(c.cli.DaemonHost()), nil
}

func (c *instance) MappedPort(ctx context.Context, port int) (int, error) {
	inspect, err := c.cli.ContainerInspect(ctx, c.id)
	if err != nil {
		return 0, errors.Wrap(err, "failed inspecting container")
	}

	if inspect.State != nil && !inspect.State.Running {
		return 0, errors.Wrapf(harness.ErrInstanceExited, "status %s, exit code %d", inspect.State.Status, inspect.State.ExitCode)
	}
	if inspect.NetworkSettings == nil {
		return 0, errors.New("no network settings yet")
	}

	for _, binding := range inspect.NetworkSettings.Ports[portOf(port)] {
		if binding.HostPort == "" {
			continue
		}
		mapped, err := strconv.Atoi(binding.HostPort)
		if err != nil {
			return 0, errors.Wrapf(err, "invalid host port %q", binding.HostPort)
		}
		return mapped, nil
	}

	return 0, errors.Errorf("port %d has no host binding yet", port)
}

func (c *instance) Stop(ctx context.Context) error {
	timeout := c.stopTimeout
	err := c.cli.ContainerStop(ctx, c.id, &timeout)
	if err != nil {
		return errors.Wrap(err, "failed stopping container")
	}
	return nil
}

func (c *instance) Remove(ctx context.Context) error {
	err := c.cli.ContainerRemove(ctx, c.id, types.ContainerRemoveOptions{Force: true, RemoveVolumes: true})
	if err != nil && !client.IsErrNotFound(err) {
		return errors.Wrap(err, "failed removing container")
	}
	return nil
}

func (c *instance) copyFile(ctx context.Context, f harness.File) error {
	archive, dir, err := f.Archive()
	if err != nil {
		return err
	}

	err = c.cli.CopyToContainer(ctx, c.id, dir, archive, types.CopyToContainerOptions{})
	if err != nil {
		return errors.Wrapf(err, "failed copying %s into container", f.Target)
	}
	return nil
}

func (c *instance) forceRemove() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.Remove(ctx); err != nil {
		log.Warn("failed removing partially created container", "id", c.id, "err", err)
	}
}

func portOf(port int) nat.Port {
	return nat.Port(fmt.Sprintf("%d/tcp", port))
}

func containerName(spec harness.Spec) string {
	prefix := spec.Name
	if prefix == "" {
		prefix = imageBase(spec.Image)
	}
	return fmt.Sprintf("%s_%s", prefix, uuid.New().String()[:8])
}

// imageBase turns "docker.io/library/redis:7" into "redis".
func imageBase(image string) string {
	if i := strings.LastIndex(image, "/"); i >= 0 {
		image = image[i+1:]
	}
	if i := strings.IndexAny(image, ":@"); i >= 0 {
		image = image[:i]
	}
	return image
}
