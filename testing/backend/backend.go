// Package backend selects the container backend named in harness settings.
package backend

import (
	"github.com/pkg/errors"

	"github.com/syncromatics/testkit/testing/backend/docker"
	"github.com/syncromatics/testkit/testing/backend/dockertest"
	"github.com/syncromatics/testkit/testing/backend/static"
	"github.com/syncromatics/testkit/testing/backend/testcontainers"
	"github.com/syncromatics/testkit/testing/harness"
)

// New creates the provisioner for settings.Provisioner.
func New(settings harness.Settings) (harness.Provisioner, error) {
	switch settings.Provisioner {
	case harness.ProvisionerDocker, "":
		return docker.New(settings)
	case harness.ProvisionerDockertest:
		return dockertest.New(settings)
	case harness.ProvisionerTestcontainers:
		return testcontainers.New(settings), nil
	case harness.ProvisionerStatic:
		return static.New(settings.StaticHost, settings.StaticPorts), nil
	default:
		return nil, errors.Errorf("unknown provisioner %q", settings.Provisioner)
	}
}
