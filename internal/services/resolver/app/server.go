// Package server wires the resolver runtime and gRPC lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	platformgrpc "github.com/louisbranch/fairroll/internal/platform/grpc"
	resolverservice "github.com/louisbranch/fairroll/internal/services/resolver/api/grpc/resolver"
	"github.com/louisbranch/fairroll/internal/services/resolver/domain"
	"github.com/louisbranch/fairroll/internal/services/resolver/domain/address"
	resolversqlite "github.com/louisbranch/fairroll/internal/services/resolver/storage/sqlite"
	"github.com/minio/sha256-simd"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// DefaultProgramID namespaces vault and bet addresses when no program id is
// configured.
var DefaultProgramID = address.Address(sha256.Sum256([]byte("fairroll/resolver/v1")))

// Config describes one resolver deployment.
type Config struct {
	Addr          string
	DBPath        string
	Authority     address.Address
	ProgramID     address.Address
	RefundAfter   time.Duration
	FaucetEnabled bool
}

// Server hosts the resolver gRPC API and ledger lifecycle.
type Server struct {
	listener   net.Listener
	grpcServer *grpc.Server
	health     *health.Server
	store      *resolversqlite.Store
}

// New creates a resolver server listening on cfg.Addr.
func New(cfg Config) (*Server, error) {
	if cfg.Authority.IsZero() {
		return nil, errors.New("authority public key is required")
	}
	if cfg.ProgramID.IsZero() {
		cfg.ProgramID = DefaultProgramID
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = filepath.Join("data", "resolver.db")
	}

	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.Addr, err)
	}
	store, err := openLedger(cfg.DBPath, cfg.ProgramID)
	if err != nil {
		_ = listener.Close()
		return nil, err
	}
	svc, err := domain.NewService(store, domain.Config{
		Authority:     cfg.Authority,
		ProgramID:     cfg.ProgramID,
		RefundAfter:   cfg.RefundAfter,
		FaucetEnabled: cfg.FaucetEnabled,
	})
	if err != nil {
		_ = store.Close()
		_ = listener.Close()
		return nil, err
	}

	grpcServer := grpc.NewServer(platformgrpc.ServerOptions()...)
	healthServer := health.NewServer()
	resolverservice.RegisterResolverServiceServer(grpcServer, resolverservice.NewService(svc))
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(resolverservice.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	log.Printf("resolving for house %s under program %s", cfg.Authority, cfg.ProgramID)
	return &Server{
		listener:   listener,
		grpcServer: grpcServer,
		health:     healthServer,
		store:      store,
	}, nil
}

// Addr returns the listener address for the server.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run creates and serves a resolver until context cancellation.
func Run(ctx context.Context, cfg Config) error {
	server, err := New(cfg)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// Serve runs the gRPC server until ctx is cancelled, then drains in-flight
// calls.
func (s *Server) Serve(ctx context.Context) error {
	if s == nil {
		return errors.New("server is nil")
	}
	defer s.Close()

	log.Printf("resolver listening at %v", s.listener.Addr())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.grpcServer.Serve(s.listener)
	}()

	var err error
	select {
	case <-ctx.Done():
		s.health.Shutdown()
		s.grpcServer.GracefulStop()
		err = <-serveErr
	case err = <-serveErr:
	}
	if err == nil || errors.Is(err, grpc.ErrServerStopped) {
		return nil
	}
	return fmt.Errorf("serve gRPC: %w", err)
}

// Close releases server resources.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.health != nil {
		s.health.Shutdown()
	}
	if s.grpcServer != nil {
		s.grpcServer.Stop()
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Printf("close resolver ledger: %v", err)
		}
	}
}

func openLedger(path string, programID address.Address) (*resolversqlite.Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	store, err := resolversqlite.Open(path, programID)
	if err != nil {
		return nil, fmt.Errorf("open resolver ledger: %w", err)
	}
	return store, nil
}
