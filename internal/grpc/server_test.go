// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package grpc

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	reflectionpb "google.golang.org/grpc/reflection/grpc_reflection_v1"
	"google.golang.org/grpc/status"

	"github.com/trailhead/trailhead/internal/auth"
	trailtls "github.com/trailhead/trailhead/internal/tls"
)

func startServer(t *testing.T, opts ...ServerOption) *Server {
	t.Helper()
	srv, err := NewServer(newFakeGate(), opts...)
	require.NoError(t, err)
	errCh, err := srv.Start("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, srv.Stop(ctx))
		assert.NoError(t, <-errCh)
	})
	return srv
}

func checkHealth(t *testing.T, cfg ClientConfig) (*healthpb.HealthCheckResponse, error) {
	t.Helper()
	conn, err := Dial(cfg)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
}

func TestServer_HealthIsPublicByDefault(t *testing.T) {
	srv := startServer(t)

	resp, err := checkHealth(t, ClientConfig{Addr: srv.Addr()})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestServer_ProtectedHealth(t *testing.T) {
	srv := startServer(t, WithPublicMethods())

	_, err := checkHealth(t, ClientConfig{Addr: srv.Addr()})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	resp, err := checkHealth(t, ClientConfig{Addr: srv.Addr(), Token: "guide-token"})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestServer_RoleRules(t *testing.T) {
	srv := startServer(t,
		WithPublicMethods(),
		WithRoleRules(RoleRule{Pattern: HealthMethods, Roles: []auth.Role{auth.RoleAdmin}}),
	)

	_, err := checkHealth(t, ClientConfig{Addr: srv.Addr(), Token: "guide-token"})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	_, err = checkHealth(t, ClientConfig{Addr: srv.Addr(), Token: "admin-token"})
	assert.NoError(t, err)
}

func listServices(t *testing.T, cfg ClientConfig) ([]string, error) {
	t.Helper()
	conn, err := Dial(cfg)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stream, err := reflectionpb.NewServerReflectionClient(conn).ServerReflectionInfo(ctx)
	if err != nil {
		return nil, err
	}
	req := &reflectionpb.ServerReflectionRequest{
		MessageRequest: &reflectionpb.ServerReflectionRequest_ListServices{ListServices: "*"},
	}
	if err := stream.Send(req); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	resp, err := stream.Recv()
	if err != nil {
		return nil, err
	}
	_ = stream.CloseSend()

	var names []string
	for _, svc := range resp.GetListServicesResponse().GetService() {
		names = append(names, svc.GetName())
	}
	return names, nil
}

func TestServer_ReflectionIsGuarded(t *testing.T) {
	srv := startServer(t,
		WithReflection(),
		WithRoleRules(RoleRule{Pattern: ReflectionMethods, Roles: []auth.Role{auth.RoleAdmin}}),
	)

	_, err := listServices(t, ClientConfig{Addr: srv.Addr()})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = listServices(t, ClientConfig{Addr: srv.Addr(), Token: "guide-token"})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	names, err := listServices(t, ClientConfig{Addr: srv.Addr(), Token: "admin-token"})
	require.NoError(t, err)
	assert.Contains(t, names, "grpc.health.v1.Health")

	_, err = checkHealth(t, ClientConfig{Addr: srv.Addr()})
	assert.NoError(t, err, "health stays public")
}

func TestServer_TLS(t *testing.T) {
	dir := t.TempDir()
	ca, err := trailtls.GenerateCA("test")
	require.NoError(t, err)
	cert, err := trailtls.GenerateServerCert(ca)
	require.NoError(t, err)
	require.NoError(t, trailtls.SaveCertificates(dir, ca, cert))

	serverCfg, err := trailtls.LoadServerTLS(filepath.Join(dir, trailtls.ServerCertFile), filepath.Join(dir, trailtls.ServerKeyFile))
	require.NoError(t, err)
	clientCfg, err := trailtls.LoadClientTLS(filepath.Join(dir, trailtls.CACertFile), "localhost")
	require.NoError(t, err)

	srv := startServer(t, WithTLS(serverCfg), WithPublicMethods())

	resp, err := checkHealth(t, ClientConfig{Addr: srv.Addr(), Token: "admin-token", TLS: clientCfg})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestServer_Lifecycle(t *testing.T) {
	srv, err := NewServer(newFakeGate())
	require.NoError(t, err)
	assert.Empty(t, srv.Addr())
	assert.NotNil(t, srv.GRPC())

	errCh, err := srv.Start("127.0.0.1:0")
	require.NoError(t, err)
	_, err = srv.Start("127.0.0.1:0")
	assert.ErrorContains(t, err, "already running")

	require.NoError(t, srv.Stop(context.Background()))
	assert.NoError(t, <-errCh)

	_, err = NewServer(nil)
	assert.Error(t, err)
	_, err = Dial(ClientConfig{})
	assert.ErrorContains(t, err, "address is required")
}
