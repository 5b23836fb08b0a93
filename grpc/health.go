// Package grpc checks gRPC services through the standard health protocol.
package grpc

import (
	"context"

	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Dial creates a client connection to the given target
func Dial(ctx context.Context, target string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	return grpc.DialContext(ctx, target, opts...)
}

// HealthCheck asks target for the health of service, "" meaning the whole
// server. Anything but SERVING is an error.
func HealthCheck(ctx context.Context, target, service string) error {
	conn, err := Dial(ctx, target)
	if err != nil {
		return errors.Wrap(err, "failed to dial server")
	}
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return errors.Wrap(err, "health check failed")
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return errors.Errorf("service %q is %s", service, resp.GetStatus())
	}
	return nil
}
