// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/trailhead/trailhead/internal/auth"
	"github.com/trailhead/trailhead/internal/auth/postgres"
	"github.com/trailhead/trailhead/internal/config"
	trailgrpc "github.com/trailhead/trailhead/internal/grpc"
	"github.com/trailhead/trailhead/internal/httpapi"
	"github.com/trailhead/trailhead/internal/mail"
	"github.com/trailhead/trailhead/internal/observability"
	"github.com/trailhead/trailhead/internal/store"
	trailtls "github.com/trailhead/trailhead/internal/tls"
)

const defaultShutdownTimeout = 10 * time.Second

type serveOptions struct {
	autoMigrate     bool
	shutdownTimeout time.Duration
}

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serve the account HTTP API, the optional gRPC listener and the metrics
and health endpoints. SIGINT or SIGTERM drains in-flight requests and exits.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}

	addDatabaseFlag(cmd.Flags())
	cmd.Flags().String("http-addr", "", "HTTP API listen address")
	cmd.Flags().String("grpc-addr", "", "gRPC listen address (empty = disabled)")
	cmd.Flags().String("metrics-addr", "", "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().BoolVar(&opts.autoMigrate, "auto-migrate", false, "apply pending migrations before serving")
	cmd.Flags().DurationVar(&opts.shutdownTimeout, "shutdown-timeout", defaultShutdownTimeout, "how long to drain requests on shutdown")

	return cmd
}

func runServe(cmd *cobra.Command, opts *serveOptions) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.RequireDatabase(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.autoMigrate {
		if err := migrateUp(cfg.Database.URL, logger); err != nil {
			return err
		}
	}

	pool, err := connectDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	obs := observability.NewServer(cfg.Metrics.Addr,
		observability.WithReadiness(store.Readiness(pool)),
		observability.WithLogger(logger),
		observability.WithVersion(version),
	)
	reg := obs.Registry()

	sender, err := newMailSender(cfg, logger, mail.NewMetrics(reg))
	if err != nil {
		return err
	}
	users := postgres.NewUserRepository(pool)
	svc, gate, err := newAuth(cfg, users, sender, logger, auth.NewMetrics(reg))
	if err != nil {
		return err
	}

	handler := httpapi.NewRouter(svc, gate,
		httpapi.Config{AllowedOrigins: cfg.HTTP.AllowedOrigins, CookieSecure: cfg.Auth.CookieSecure},
		httpapi.WithLogger(logger),
		httpapi.WithMetrics(httpapi.NewMetrics(reg)),
	)

	s := &servers{logger: logger, errs: make(chan error, 3)}
	defer s.shutdown(opts.shutdownTimeout)

	if cfg.Metrics.Addr != "" {
		obsErr, err := obs.Start()
		if err != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").Wrap(err)
		}
		s.obs = obs
		go s.forward("observability", obsErr)
	}

	if err := s.startHTTP(cfg.HTTP.Addr, handler); err != nil {
		return err
	}

	if cfg.GRPC.Addr != "" {
		if err := s.startGRPC(cfg, gate); err != nil {
			return err
		}
	}

	logger.InfoContext(ctx, "trailhead ready",
		"http_addr", s.httpAddr(),
		"grpc_addr", cfg.GRPC.Addr,
		"metrics_addr", cfg.Metrics.Addr,
	)
	cmd.Println("Trailhead started")

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		return nil
	case err := <-s.errs:
		return err
	}
}

// servers tracks the listeners started by serve so they can be drained in
// reverse order.
type servers struct {
	logger *slog.Logger
	errs   chan error

	http     *http.Server
	listener net.Listener
	grpc     *trailgrpc.Server
	obs      *observability.Server
}

func (s *servers) forward(name string, ch <-chan error) {
	if err, ok := <-ch; ok && err != nil {
		s.errs <- oops.With("server", name).Wrap(err)
	}
}

func (s *servers) startHTTP(addr string, handler http.Handler) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return oops.Code("HTTP_LISTEN_FAILED").With("addr", addr).Wrap(err)
	}
	s.listener = listener
	s.http = &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := s.http.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go s.forward("http", errCh)
	s.logger.Info("HTTP API listening", "addr", listener.Addr().String())
	return nil
}

func (s *servers) httpAddr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// grpcRoleRules limits service discovery to administrators. Health stays
// public for load balancers.
var grpcRoleRules = []trailgrpc.RoleRule{
	{Pattern: trailgrpc.ReflectionMethods, Roles: []auth.Role{auth.RoleAdmin}},
}

func (s *servers) startGRPC(cfg *config.Config, gate trailgrpc.Authenticator) error {
	opts := []trailgrpc.ServerOption{
		trailgrpc.WithLogger(s.logger),
		trailgrpc.WithReflection(),
		trailgrpc.WithRoleRules(grpcRoleRules...),
	}
	if cfg.GRPC.TLSCertFile != "" {
		tlsConfig, err := trailtls.LoadServerTLS(cfg.GRPC.TLSCertFile, cfg.GRPC.TLSKeyFile)
		if err != nil {
			return err
		}
		opts = append(opts, trailgrpc.WithTLS(tlsConfig))
	}

	srv, err := trailgrpc.NewServer(gate, opts...)
	if err != nil {
		return err
	}
	errCh, err := srv.Start(cfg.GRPC.Addr)
	if err != nil {
		return err
	}
	s.grpc = srv
	go s.forward("grpc", errCh)
	s.logger.Info("gRPC server listening", "addr", srv.Addr(), "tls", cfg.GRPC.TLSCertFile != "")
	return nil
}

func (s *servers) shutdown(timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if s.grpc != nil {
		if err := s.grpc.Stop(ctx); err != nil {
			s.logger.Warn("error stopping gRPC server", "error", err)
		}
	}
	if s.http != nil {
		if err := s.http.Shutdown(ctx); err != nil {
			s.logger.Warn("error stopping HTTP server", "error", err)
		}
	}
	if s.obs != nil {
		if err := s.obs.Stop(ctx); err != nil {
			s.logger.Warn("error stopping observability server", "error", err)
		}
	}
	s.logger.Info("shutdown complete")
}
