package grpc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	gogrpc "google.golang.org/grpc"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	healthInitialInterval = 100 * time.Millisecond
	healthMaxInterval     = time.Second
	healthCallTimeout     = time.Second
)

// WaitForHealth polls the health service with exponential backoff until it
// reports SERVING for service or ctx ends.
func WaitForHealth(ctx context.Context, conn *gogrpc.ClientConn, service string, logf func(string, ...any)) error {
	if conn == nil {
		return errors.New("gRPC connection is not configured")
	}
	client := grpc_health_v1.NewHealthClient(conn)

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = healthInitialInterval
	policy.MaxInterval = healthMaxInterval

	check := func() (struct{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, healthCallTimeout)
		defer cancel()
		resp, err := client.Check(callCtx, &grpc_health_v1.HealthCheckRequest{Service: service})
		if err != nil {
			return struct{}{}, err
		}
		if resp.GetStatus() != grpc_health_v1.HealthCheckResponse_SERVING {
			return struct{}{}, fmt.Errorf("status %s", resp.GetStatus())
		}
		return struct{}{}, nil
	}
	notify := func(err error, wait time.Duration) {
		if logf != nil {
			logf("waiting %s for gRPC health: %v", wait, err)
		}
	}

	if _, err := backoff.Retry(ctx, check, backoff.WithBackOff(policy), backoff.WithNotify(notify)); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("wait for gRPC health: %w", ctx.Err())
		}
		return fmt.Errorf("wait for gRPC health: %w", err)
	}
	return nil
}
