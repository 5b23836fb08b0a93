// Package docker starts preconfigured service containers for integration
// tests: redis, postgres, rabbitmq, kafka, ms sql and etcd.
//
// Every Setup function returns a fixture holding the ready handle and the
// clients for the service. Clients are attached to the handle, so tearing the
// fixture down closes them before the container stops.
package docker

import (
	"context"
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"github.com/syncromatics/testkit/testing/backend"
	"github.com/syncromatics/testkit/testing/harness"
)

// NewHarness creates a harness on the backend selected by the TESTKIT_*
// environment.
func NewHarness() (*harness.Harness, error) {
	settings, err := harness.SettingsFromEnv()
	if err != nil {
		return nil, errors.Wrap(err, "failed reading settings")
	}

	p, err := backend.New(settings)
	if err != nil {
		return nil, err
	}

	return harness.New(p, harness.WithSettings(settings)), nil
}

var invalidNameChars = regexp.MustCompile(`[^a-zA-Z0-9_.-]+`)

// containerName turns a test name such as "TestCache/miss" into a valid
// container name prefix.
func containerName(testName, service string) string {
	name := strings.Trim(invalidNameChars.ReplaceAllString(testName, "_"), "_.-")
	if name == "" {
		return service
	}
	return name + "_" + service
}

// fixture is the part every service fixture shares.
type fixture struct {
	Handle *harness.Handle

	harness *harness.Harness
}

// Teardown closes the fixture's clients and releases its container.
func (f *fixture) Teardown(ctx context.Context) error {
	if f == nil || f.harness == nil {
		return &harness.InvalidHandleError{Op: "teardown", State: harness.Requested}
	}
	return f.harness.Release(ctx, f.Handle)
}

// acquire runs setup against a freshly acquired handle and releases the
// handle again if setup fails.
func acquire(ctx context.Context, h *harness.Harness, spec harness.Spec, setup func(handle *harness.Handle) error) (fixture, error) {
	handle, err := h.Acquire(ctx, spec)
	if err != nil {
		return fixture{}, err
	}

	err = setup(handle)
	if err != nil {
		if releaseErr := h.Release(ctx, handle); releaseErr != nil {
			err = errors.Wrapf(err, "also failed releasing: %v", releaseErr)
		}
		return fixture{}, err
	}

	return fixture{Handle: handle, harness: h}, nil
}
