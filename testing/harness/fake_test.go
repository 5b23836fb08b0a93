package harness_test

import (
	"context"
	"net"
	"sync"
	"testing"

	"github.com/pkg/errors"

	"github.com/syncromatics/testkit/testing/harness"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type fakeProvisioner struct {
	rec      *recorder
	startErr error
	instance *fakeInstance
	starts   int
}

func (p *fakeProvisioner) Start(ctx context.Context, spec harness.Spec) (harness.Instance, error) {
	p.starts++
	p.rec.add("start")
	if p.startErr != nil {
		return nil, p.startErr
	}
	return p.instance, nil
}

type fakeInstance struct {
	rec *recorder

	mu          sync.Mutex
	ports       map[int]int
	unmapped    int
	exited      bool
	stopErr     error
	removeErr   error
	mappedCalls int

	// stopEntered and stopGate hold Stop open when set.
	stopEntered chan struct{}
	stopGate    chan struct{}
}

func (i *fakeInstance) ID() string { return "fake-1" }

func (i *fakeInstance) Host(ctx context.Context) (string, error) {
	return "127.0.0.1", nil
}

func (i *fakeInstance) MappedPort(ctx context.Context, port int) (int, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.mappedCalls++
	if i.exited {
		return 0, errors.Wrap(harness.ErrInstanceExited, "exit code 1")
	}
	if i.unmapped > 0 {
		i.unmapped--
		return 0, errors.New("no binding yet")
	}
	p, ok := i.ports[port]
	if !ok {
		return 0, errors.Errorf("port %d not published", port)
	}
	return p, nil
}

func (i *fakeInstance) Stop(ctx context.Context) error {
	i.rec.add("stop")
	if i.stopGate != nil {
		close(i.stopEntered)
		<-i.stopGate
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.stopErr
}

func (i *fakeInstance) Remove(ctx context.Context) error {
	i.rec.add("remove")
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.removeErr
}

func (i *fakeInstance) setRemoveErr(err error) {
	i.mu.Lock()
	i.removeErr = err
	i.mu.Unlock()
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// listen opens a local listener that accepts and drops connections.
func listen(t *testing.T) int {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listening: %v", err)
	}
	t.Cleanup(func() { l.Close() })

	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	return l.Addr().(*net.TCPAddr).Port
}

func newFake(t *testing.T) (*fakeProvisioner, *fakeInstance, *recorder) {
	t.Helper()

	rec := &recorder{}
	instance := &fakeInstance{
		rec:   rec,
		ports: map[int]int{6379: listen(t)},
	}
	return &fakeProvisioner{rec: rec, instance: instance}, instance, rec
}
