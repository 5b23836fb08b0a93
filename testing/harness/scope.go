package harness

import (
	"context"
	"sync"
	"testing"

	"go.uber.org/multierr"

	"github.com/syncromatics/testkit/cmd"
	"github.com/syncromatics/testkit/log"
)

// Run acquires a container for spec, passes the ready handle to body and
// releases it on every exit path, including panics and t.FailNow. A release
// failure is appended to the body's error.
func (h *Harness) Run(ctx context.Context, spec Spec, body func(ctx context.Context, handle *Handle) error) (err error) {
	handle, err := h.Acquire(ctx, spec)
	if err != nil {
		return err
	}

	defer func() {
		releaseCtx, cancel := teardownContext(ctx, h.settings.StopTimeout)
		defer cancel()

		if releaseErr := h.Release(releaseCtx, handle); releaseErr != nil {
			log.Error("failed releasing container", "image", spec.Image, "err", releaseErr)
			err = multierr.Append(err, releaseErr)
		}
	}()

	return body(ctx, handle)
}

// AcquireT acquires a container for the duration of a test. Provisioning
// failures end the test; release failures are logged but do not fail it.
func (h *Harness) AcquireT(tb testing.TB, spec Spec) *Handle {
	tb.Helper()

	handle, err := h.Acquire(context.Background(), spec)
	if err != nil {
		tb.Fatalf("acquiring %s: %v", spec.Image, err)
	}

	tb.Cleanup(func() {
		ctx, cancel := teardownContext(context.Background(), h.settings.StopTimeout)
		defer cancel()

		if err := h.Release(ctx, handle); err != nil {
			tb.Logf("releasing %s: %v", spec.Image, err)
		}
	})

	return handle
}

// M runs the tests of a package. *testing.M satisfies it.
type M interface {
	Run() int
}

// Main runs a test binary between setup and the teardown setup returns. Use it
// from TestMain:
//
//	func TestMain(m *testing.M) {
//		os.Exit(harness.Main(m, setup))
//	}
//
// A setup failure skips every test and exits with 1. Teardown runs once, after
// the tests or as soon as SIGINT or SIGTERM arrives, in which case Main
// returns 130 without waiting for the tests.
func Main(m M, setup func(ctx context.Context) (func(context.Context) error, error)) int {
	group := cmd.NewProcessGroup(context.Background())

	teardown, err := setup(group.Context())
	if err != nil {
		log.Error("suite setup failed", "err", err)
		return 1
	}

	var once sync.Once
	release := func() error {
		var err error
		once.Do(func() {
			if teardown != nil {
				err = teardown(context.WithoutCancel(group.Context()))
			}
		})
		return err
	}

	group.Start(func(ctx context.Context) error {
		<-ctx.Done()
		return release()
	})

	results := make(chan int, 1)
	go func() {
		results <- m.Run()
		group.Cancel()
	}()

	if err := group.Wait(); err != nil {
		log.Error("suite teardown failed", "err", err)
	}

	if sig := group.Signal(); sig != nil {
		log.Warn("suite interrupted", "signal", sig)
		return 130
	}

	return <-results
}
