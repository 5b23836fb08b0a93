// Package harness acquires disposable containers for tests, waits until they
// serve requests and guarantees they are released afterwards.
//
// A handle moves through Requested, Starting, Ready, Stopping and Closed.
// Acquire only ever returns Ready handles; endpoints are only available while
// a handle is Ready. Clients attached to a handle are closed before the
// container is stopped.
package harness

import (
	"context"
	"net"
	"time"

	"github.com/pkg/errors"
	"github.com/sethvargo/go-retry"
	"go.uber.org/multierr"

	"github.com/syncromatics/testkit/log"
)

// Harness acquires and releases containers on a Provisioner.
type Harness struct {
	provisioner Provisioner
	settings    Settings
}

// Option configures a Harness.
type Option func(*Harness)

// WithSettings replaces every setting.
func WithSettings(s Settings) Option {
	return func(h *Harness) { h.settings = s }
}

// WithReadyTimeout bounds how long Acquire waits for readiness.
func WithReadyTimeout(d time.Duration) Option {
	return func(h *Harness) { h.settings.ReadyTimeout = d }
}

// WithPollInterval sets the delay between readiness attempts.
func WithPollInterval(d time.Duration) Option {
	return func(h *Harness) { h.settings.PollInterval = d }
}

// WithStopTimeout bounds teardown when it runs detached from the caller.
func WithStopTimeout(d time.Duration) Option {
	return func(h *Harness) { h.settings.StopTimeout = d }
}

// WithKeep leaves containers running on release.
func WithKeep(keep bool) Option {
	return func(h *Harness) { h.settings.Keep = keep }
}

// New creates a harness on the given provisioner.
func New(p Provisioner, opts ...Option) *Harness {
	h := &Harness{
		provisioner: p,
		settings:    DefaultSettings(),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Settings returns the effective settings.
func (h *Harness) Settings() Settings {
	return h.settings
}

// Acquire starts a container for spec and blocks until it is ready. It returns
// a Ready handle or a *ProvisioningError.
func (h *Harness) Acquire(ctx context.Context, spec Spec) (*Handle, error) {
	spec = spec.clone()
	if err := spec.validate(); err != nil {
		acquisitions.WithLabelValues(spec.Image, "invalid").Inc()
		return nil, &ProvisioningError{Image: spec.Image, Stage: "validate", Err: err}
	}

	handle := newHandle(spec)
	handle.setState(Starting)
	started := time.Now()

	log.Info("starting container", "image", spec.Image, "ports", spec.Ports)

	instance, err := h.provisioner.Start(ctx, spec)
	if err != nil {
		handle.setState(Closed)
		acquisitions.WithLabelValues(spec.Image, "failed").Inc()
		return nil, &ProvisioningError{Image: spec.Image, Stage: "start", Err: err}
	}

	handle.mu.Lock()
	handle.instance = instance
	handle.mu.Unlock()

	endpoints, err := h.waitForReady(ctx, instance, spec)
	if err != nil {
		h.discard(ctx, instance)
		handle.setState(Closed)
		acquisitions.WithLabelValues(spec.Image, "failed").Inc()
		return nil, &ProvisioningError{Image: spec.Image, Stage: "ready", Err: err}
	}

	handle.mu.Lock()
	handle.endpoints = endpoints
	handle.state = Ready
	handle.mu.Unlock()

	elapsed := time.Since(started)
	acquisitions.WithLabelValues(spec.Image, "ready").Inc()
	readyDuration.WithLabelValues(spec.Image).Observe(elapsed.Seconds())
	log.Info("container ready", "image", spec.Image, "id", instance.ID(), "elapsed", elapsed)

	return handle, nil
}

func (h *Harness) waitForReady(ctx context.Context, instance Instance, spec Spec) (Endpoints, error) {
	ctx, cancel := context.WithTimeout(ctx, h.settings.ReadyTimeout)
	defer cancel()

	var (
		endpoints Endpoints
		lastErr   error
	)

	backoff := retry.WithMaxDuration(h.settings.ReadyTimeout, retry.NewConstant(h.settings.PollInterval))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		eps, err := h.attemptReady(ctx, instance, spec)
		if err != nil {
			// an attempt cut short by the deadline only reports the deadline
			if lastErr == nil || ctx.Err() == nil {
				lastErr = err
			}
			log.Debug("container not ready", "id", instance.ID(), "err", err)
			if errors.Is(err, ErrInstanceExited) {
				return err
			}
			return retry.RetryableError(err)
		}
		endpoints = eps
		return nil
	})
	if err != nil {
		if lastErr == nil {
			lastErr = err
		}
		return nil, errors.Wrapf(lastErr, "not ready within %s", h.settings.ReadyTimeout)
	}

	return endpoints, nil
}

func (h *Harness) attemptReady(ctx context.Context, instance Instance, spec Spec) (Endpoints, error) {
	host, err := instance.Host(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed resolving host")
	}

	eps := make(Endpoints, len(spec.Ports))
	for _, port := range spec.Ports {
		mapped, err := instance.MappedPort(ctx, port)
		if err != nil {
			return nil, errors.Wrapf(err, "port %d not mapped", port)
		}
		eps[port] = Endpoint{Host: host, Port: mapped}
	}

	dialer := net.Dialer{Timeout: h.settings.PollInterval}
	for _, port := range spec.Ports {
		conn, err := dialer.DialContext(ctx, "tcp", eps[port].Address())
		if err != nil {
			return nil, errors.Wrapf(err, "port %d not reachable", port)
		}
		conn.Close()
	}

	if spec.Probe != nil {
		if err := spec.Probe(ctx, eps); err != nil {
			return nil, errors.Wrap(err, "readiness probe failed")
		}
	}

	return eps, nil
}

// discard removes an instance that never became ready.
func (h *Harness) discard(ctx context.Context, instance Instance) {
	if h.settings.Keep {
		log.Warn("keeping container that failed to become ready", "id", instance.ID())
		return
	}

	ctx, cancel := teardownContext(ctx, h.settings.StopTimeout)
	defer cancel()

	if err := instance.Remove(ctx); err != nil {
		log.Error("failed removing container that never became ready", "id", instance.ID(), "err", err)
	}
}

// Release stops and removes the container behind handle after closing every
// attached client. Releasing a closed handle is a no-op. A *TeardownError is
// returned only when the container could not be removed; the handle can then
// be released again. A caller that finds another release in flight gets an
// *InvalidHandleError wrapping ErrReleaseInProgress.
func (h *Harness) Release(ctx context.Context, handle *Handle) error {
	if handle == nil {
		return &InvalidHandleError{Op: "release", State: Requested}
	}

	handle.mu.Lock()
	switch handle.state {
	case Closed:
		handle.mu.Unlock()
		return nil
	case Requested, Starting:
		state := handle.state
		handle.mu.Unlock()
		return &InvalidHandleError{Op: "release", State: state}
	case Stopping:
		if handle.releasing {
			handle.mu.Unlock()
			return &InvalidHandleError{Op: "release", State: Stopping, Err: ErrReleaseInProgress}
		}
	}
	handle.state = Stopping
	handle.releasing = true
	dependents := handle.dependents
	handle.dependents = nil
	instance := handle.instance
	handle.mu.Unlock()

	for i := len(dependents) - 1; i >= 0; i-- {
		if err := dependents[i].Close(); err != nil {
			log.Warn("failed closing client before stopping container", "id", instance.ID(), "err", err)
		}
	}

	if h.settings.Keep {
		log.Warn("keeping container", "id", instance.ID(), "image", handle.spec.Image)
		handle.finishRelease(Closed)
		releases.WithLabelValues("kept").Inc()
		return nil
	}

	stopErr := instance.Stop(ctx)
	removeErr := instance.Remove(ctx)
	if removeErr != nil {
		handle.finishRelease(Stopping)
		releases.WithLabelValues("failed").Inc()
		return &TeardownError{ID: instance.ID(), Err: multierr.Combine(stopErr, removeErr)}
	}
	if stopErr != nil {
		log.Warn("stop failed, container was removed by force", "id", instance.ID(), "err", stopErr)
	}

	handle.finishRelease(Closed)
	releases.WithLabelValues("released").Inc()
	log.Info("container released", "id", instance.ID(), "image", handle.spec.Image)

	return nil
}

// teardownContext keeps values from ctx but not its cancellation, so that
// teardown still runs after the caller gave up.
func teardownContext(ctx context.Context, stopTimeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), 2*stopTimeout)
}
