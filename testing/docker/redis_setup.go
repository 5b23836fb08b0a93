package docker

import (
	"context"
	"testing"

	goredis "github.com/go-redis/redis"
	"github.com/pkg/errors"

	"github.com/syncromatics/testkit/redis"
	"github.com/syncromatics/testkit/testing/harness"
)

var (
	redisImage = "redis:7"
)

// RedisPort is the port redis serves on inside the container.
const RedisPort = 6379

// Redis is a running redis server with an open session.
type Redis struct {
	fixture

	Endpoint harness.Endpoint
	Options  *goredis.Options
	Session  *redis.Session
}

// RedisSpec describes a redis container that is ready once it answers PING.
func RedisSpec(testName string) harness.Spec {
	return harness.Spec{
		Name:  containerName(testName, "redis"),
		Image: redisImage,
		Ports: []int{RedisPort},
		Probe: pingRedis,
	}
}

func pingRedis(ctx context.Context, endpoints harness.Endpoints) error {
	endpoint, err := endpoints.Get(RedisPort)
	if err != nil {
		return err
	}
	return redis.Ping(ctx, redis.OptionsFor(endpoint.Address()))
}

// SetupRedis sets up a redis store
func SetupRedis(ctx context.Context, h *harness.Harness, testName string) (*Redis, error) {
	r := &Redis{}

	f, err := acquire(ctx, h, RedisSpec(testName), r.connect)
	if err != nil {
		return nil, err
	}
	r.fixture = f

	return r, nil
}

// NewRedisT sets up a redis store that is torn down when the test ends.
func NewRedisT(tb testing.TB, h *harness.Harness) *Redis {
	tb.Helper()

	r := &Redis{}
	handle := h.AcquireT(tb, RedisSpec(tb.Name()))

	err := r.connect(handle)
	if err != nil {
		tb.Fatalf("connecting to redis: %v", err)
	}
	r.fixture = fixture{Handle: handle, harness: h}

	return r
}

// TeardownRedis quits the session and tears down the redis store
func TeardownRedis(ctx context.Context, r *Redis) error {
	if r == nil {
		return (*fixture)(nil).Teardown(ctx)
	}
	return r.Teardown(ctx)
}

func (r *Redis) connect(handle *harness.Handle) error {
	endpoint, err := handle.Endpoint(RedisPort)
	if err != nil {
		return errors.Wrap(err, "failed resolving redis endpoint")
	}

	r.Endpoint = endpoint
	r.Options = redis.OptionsFor(endpoint.Address())
	r.Session = redis.Connect(r.Options)

	err = handle.Attach(r.Session)
	if err != nil {
		r.Session.Quit()
		return err
	}
	return nil
}
