package cmd

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/syncromatics/testkit/log"

	"golang.org/x/sync/errgroup"
)

// ProcessGroup is an errgroup that listens for OS process signals
type ProcessGroup struct {
	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	mu     sync.Mutex
	caught os.Signal
}

// NewProcessGroup creates a new ProcessGroup
func NewProcessGroup(outerCtx context.Context) *ProcessGroup {
	ctx, cancel := context.WithCancel(outerCtx)
	group, ctx := errgroup.WithContext(ctx)
	return &ProcessGroup{
		ctx:    ctx,
		cancel: cancel,
		group:  group,
	}
}

// Context returns the context used by the ProcessGroup
func (gw *ProcessGroup) Context() context.Context {
	return gw.ctx
}

// Go calls the given function in a new goroutine.
//
// The first call to return a non-nil error cancels the group; its error will be
// returned by Wait.
func (gw *ProcessGroup) Go(f func() error) {
	gw.group.Go(f)
}

// Start calls the given function in a new goroutine, passing it the group
// context.
func (gw *ProcessGroup) Start(f func(context.Context) error) {
	gw.group.Go(func() error {
		return f(gw.ctx)
	})
}

// Cancel cancels the group context, which releases Wait.
func (gw *ProcessGroup) Cancel() {
	gw.cancel()
}

// Signal returns the signal that stopped the group, or nil.
func (gw *ProcessGroup) Signal() os.Signal {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	return gw.caught
}

// Wait blocks until every function has returned, a SIGINT or SIGTERM arrives
// or the group context is done. It then cancels the group and returns the
// first non-nil error (if any) from the functions started with Go or Start.
func (gw *ProcessGroup) Wait() error {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)

	done := make(chan error, 1)
	go func() {
		done <- gw.group.Wait()
	}()

	log.Debug("waiting on process group")

	select {
	case sig := <-signals:
		log.Info("caught signal", "signal", sig)
		gw.mu.Lock()
		gw.caught = sig
		gw.mu.Unlock()
	case <-gw.ctx.Done():
		log.Debug("cancelled context")
	case err := <-done:
		gw.cancel()
		return err
	}

	gw.cancel()

	return <-done
}
