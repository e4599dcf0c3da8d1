// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package grpc

import (
	"context"
	cryptotls "crypto/tls"
	"log/slog"
	"net"
	"sync"

	"github.com/samber/oops"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// HealthMethods matches every method of the standard health service.
const HealthMethods = "/grpc.health.v1.Health/*"

// ReflectionMethods matches every method of the server reflection services.
const ReflectionMethods = "/grpc.reflection.*/*"

// DefaultPublicMethods are reachable without a credential.
var DefaultPublicMethods = []string{HealthMethods}

// ServerOption configures a Server.
type ServerOption func(*serverOptions)

type serverOptions struct {
	tls           *cryptotls.Config
	publicMethods []string
	roleRules     []RoleRule
	reflection    bool
	logger        *slog.Logger
}

// WithTLS serves over TLS instead of plaintext.
func WithTLS(cfg *cryptotls.Config) ServerOption {
	return func(o *serverOptions) { o.tls = cfg }
}

// WithPublicMethods replaces DefaultPublicMethods.
func WithPublicMethods(patterns ...string) ServerOption {
	return func(o *serverOptions) { o.publicMethods = patterns }
}

// WithRoleRules restricts unary and streaming methods to roles.
func WithRoleRules(rules ...RoleRule) ServerOption {
	return func(o *serverOptions) { o.roleRules = rules }
}

// WithReflection registers the server reflection service. It is not public
// unless ReflectionMethods is passed to WithPublicMethods.
func WithReflection() ServerOption {
	return func(o *serverOptions) { o.reflection = true }
}

// WithLogger sets the logger used for internal failures.
func WithLogger(l *slog.Logger) ServerOption {
	return func(o *serverOptions) { o.logger = l }
}

// Server is a gRPC server guarded by the auth gate, with the standard health
// service registered.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
	logger *slog.Logger

	mu       sync.Mutex
	listener net.Listener
}

// NewServer builds a Server. Only health and, with WithReflection, reflection
// are registered here; collaborators register their own services on GRPC()
// before calling Start, and every call to them passes the auth interceptors.
func NewServer(gate Authenticator, opts ...ServerOption) (*Server, error) {
	o := serverOptions{publicMethods: DefaultPublicMethods, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	unary, err := UnaryAuthInterceptor(gate, o.logger, o.publicMethods...)
	if err != nil {
		return nil, err
	}
	stream, err := StreamAuthInterceptor(gate, o.logger, o.publicMethods...)
	if err != nil {
		return nil, err
	}
	roles, err := RequireRoles(o.logger, o.roleRules...)
	if err != nil {
		return nil, err
	}
	streamRoles, err := RequireStreamRoles(o.logger, o.roleRules...)
	if err != nil {
		return nil, err
	}

	serverOpts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(unary, roles),
		grpc.ChainStreamInterceptor(stream, streamRoles),
	}
	if o.tls != nil {
		serverOpts = append(serverOpts, grpc.Creds(credentials.NewTLS(o.tls)))
	}

	s := &Server{
		grpc:   grpc.NewServer(serverOpts...),
		health: health.NewServer(),
		logger: o.logger,
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	if o.reflection {
		reflection.Register(s.grpc)
	}
	return s, nil
}

// GRPC returns the underlying server for service registration.
func (s *Server) GRPC() *grpc.Server {
	return s.grpc
}

// Start listens on addr and serves in the background. The returned channel
// receives exactly one value when serving stops.
func (s *Server) Start(addr string) (<-chan error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return nil, oops.In("grpc").Errorf("server is already running")
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, oops.In("grpc").With("addr", addr).Wrapf(err, "listen")
	}
	s.listener = listener
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	errCh := make(chan error, 1)
	go func() {
		err := s.grpc.Serve(listener)
		if err != nil {
			s.logger.Error("gRPC server error", "error", err)
		}
		errCh <- err
	}()
	return errCh, nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop marks the server not serving and drains in-flight calls until ctx is
// done, after which remaining calls are cancelled.
func (s *Server) Stop(ctx context.Context) error {
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.grpc.Stop()
		<-done
		return oops.In("grpc").Wrapf(ctx.Err(), "graceful stop")
	}
}
