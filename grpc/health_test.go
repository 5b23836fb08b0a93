package grpc_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	sut "github.com/syncromatics/testkit/grpc"
)

func serveHealth(t *testing.T) (string, *health.Server) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	server := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(server, hs)

	go server.Serve(l)
	t.Cleanup(server.Stop)

	return l.Addr().String(), hs
}

func Test_HealthCheck_Serving(t *testing.T) {
	target, _ := serveHealth(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	assert.NoError(t, sut.HealthCheck(ctx, target, ""))
}

func Test_HealthCheck_NotServing(t *testing.T) {
	target, hs := serveHealth(t)
	hs.SetServingStatus("etcd", healthpb.HealthCheckResponse_NOT_SERVING)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := sut.HealthCheck(ctx, target, "etcd")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOT_SERVING")
}

func Test_HealthCheck_Unknown_Service(t *testing.T) {
	target, _ := serveHealth(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := sut.HealthCheck(ctx, target, "missing")
	assert.Error(t, err)
}
