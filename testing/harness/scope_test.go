package harness_test

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syncromatics/testkit/testing/harness"
)

type runnerFunc func() int

func (f runnerFunc) Run() int { return f() }

func Test_Main_TearsDownOnceAfterRun(t *testing.T) {
	rec := &recorder{}
	var teardowns int32

	code := harness.Main(runnerFunc(func() int {
		rec.add("run")
		return 3
	}), func(ctx context.Context) (func(context.Context) error, error) {
		rec.add("setup")
		return func(ctx context.Context) error {
			atomic.AddInt32(&teardowns, 1)
			rec.add("teardown")
			return nil
		}, nil
	})

	assert.Equal(t, 3, code)
	assert.Equal(t, int32(1), atomic.LoadInt32(&teardowns))
	assert.Equal(t, []string{"setup", "run", "teardown"}, rec.all())
}

func Test_Main_SetupFailure_SkipsRun(t *testing.T) {
	ran := false

	code := harness.Main(runnerFunc(func() int {
		ran = true
		return 0
	}), func(ctx context.Context) (func(context.Context) error, error) {
		return nil, errors.New("docker not available")
	})

	assert.Equal(t, 1, code)
	assert.False(t, ran)
}

func Test_Main_TeardownError_KeepsRunResult(t *testing.T) {
	code := harness.Main(runnerFunc(func() int {
		return 0
	}), func(ctx context.Context) (func(context.Context) error, error) {
		return func(ctx context.Context) error {
			return errors.New("remove failed")
		}, nil
	})

	assert.Equal(t, 0, code)
}

func Test_Main_SignalTearsDownAndExits130(t *testing.T) {
	// keeps a SIGTERM sent before Main subscribes from killing the test binary
	guard := make(chan os.Signal, 1)
	signal.Notify(guard, syscall.SIGTERM)
	defer signal.Stop(guard)

	tornDown := make(chan struct{})
	var once sync.Once
	var teardowns int32

	code := harness.Main(runnerFunc(func() int {
		for {
			_ = syscall.Kill(syscall.Getpid(), syscall.SIGTERM)
			select {
			case <-tornDown:
				return 0
			case <-time.After(50 * time.Millisecond):
			}
		}
	}), func(ctx context.Context) (func(context.Context) error, error) {
		return func(ctx context.Context) error {
			atomic.AddInt32(&teardowns, 1)
			once.Do(func() { close(tornDown) })
			return nil
		}, nil
	})

	require.Equal(t, 130, code)
	assert.Equal(t, int32(1), atomic.LoadInt32(&teardowns))
}
