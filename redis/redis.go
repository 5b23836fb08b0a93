package redis

import (
	"context"
	"fmt"
	"sync"

	goredis "github.com/go-redis/redis"
	"github.com/pkg/errors"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("redis: key not found")

// ProtocolError is a failure reported by the server or the connection while
// running a command.
type ProtocolError struct {
	Command string
	Err     error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("redis %s: %v", e.Command, e.Err)
}

// Unwrap returns the underlying client error.
func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// OptionsFor returns client options for a server at addr.
func OptionsFor(addr string) *goredis.Options {
	return &goredis.Options{
		Addr: addr,
		DB:   0,
	}
}

// Ping makes a single PING against the server described by opts.
func Ping(ctx context.Context, opts *goredis.Options) error {
	client := goredis.NewClient(opts)
	defer client.Close()

	_, err := client.WithContext(ctx).Ping().Result()
	return err
}

// Session is a client connection to one redis server. Connection failures are
// not retried.
type Session struct {
	client *goredis.Client

	mu     sync.Mutex
	closed bool
}

// Connect creates a session for the given options.
func Connect(opts *goredis.Options) *Session {
	return &Session{
		client: goredis.NewClient(opts),
	}
}

// Ping checks the server is serving commands and returns its reply.
func (s *Session) Ping(ctx context.Context) (string, error) {
	reply, err := s.client.WithContext(ctx).Ping().Result()
	if err != nil {
		return "", &ProtocolError{Command: "PING", Err: err}
	}
	return reply, nil
}

// Set stores value at key without expiration.
func (s *Session) Set(ctx context.Context, key string, value interface{}) error {
	err := s.client.WithContext(ctx).Set(key, value, 0).Err()
	if err != nil {
		return &ProtocolError{Command: "SET", Err: err}
	}
	return nil
}

// Get returns the value at key, or ErrNotFound.
func (s *Session) Get(ctx context.Context, key string) (string, error) {
	value, err := s.client.WithContext(ctx).Get(key).Result()
	if err == goredis.Nil {
		return "", ErrNotFound
	}
	if err != nil {
		return "", &ProtocolError{Command: "GET", Err: err}
	}
	return value, nil
}

// Quit releases the session. Calling it more than once is a no-op.
func (s *Session) Quit() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	return errors.Wrap(s.client.Close(), "failed closing redis session")
}

// Close is Quit; it lets a session be attached to a container handle.
func (s *Session) Close() error {
	return s.Quit()
}

// Closed reports whether Quit has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
