package docker

import (
	"context"

	"github.com/syncromatics/testkit/grpc"
	"github.com/syncromatics/testkit/testing/harness"
)

var (
	etcdImage = "quay.io/coreos/etcd:v3.5.13"
)

// EtcdPort is the client port inside the container.
const EtcdPort = 2379

// Etcd is a running single member etcd cluster.
type Etcd struct {
	fixture

	// Endpoint is the host:port to hand to an etcd client.
	Endpoint string
}

// EtcdSpec describes an etcd member that is ready once its gRPC health
// service reports SERVING.
func EtcdSpec(testName string) harness.Spec {
	return harness.Spec{
		Name:  containerName(testName, "etcd_db"),
		Image: etcdImage,
		Ports: []int{EtcdPort},
		Cmd: []string{
			"/usr/local/bin/etcd",
			"-advertise-client-urls",
			"http://0.0.0.0:2379",
			"-listen-client-urls",
			"http://0.0.0.0:2379",
		},
		Probe: checkEtcdHealth,
	}
}

func checkEtcdHealth(ctx context.Context, endpoints harness.Endpoints) error {
	endpoint, err := endpoints.Get(EtcdPort)
	if err != nil {
		return err
	}
	return grpc.HealthCheck(ctx, endpoint.Address(), "")
}

// SetupEtcd sets up a etcd database
func SetupEtcd(ctx context.Context, h *harness.Harness, testName string) (*Etcd, error) {
	e := &Etcd{}

	f, err := acquire(ctx, h, EtcdSpec(testName), func(handle *harness.Handle) error {
		endpoint, err := handle.Endpoint(EtcdPort)
		if err != nil {
			return err
		}
		e.Endpoint = endpoint.Address()
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.fixture = f

	return e, nil
}

// TeardownEtcd tears down the etcd db
func TeardownEtcd(ctx context.Context, e *Etcd) error {
	if e == nil {
		return (*fixture)(nil).Teardown(ctx)
	}
	return e.Teardown(ctx)
}
