// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package main

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	reflectionpb "google.golang.org/grpc/reflection/grpc_reflection_v1"
	"google.golang.org/grpc/status"

	"github.com/trailhead/trailhead/internal/auth"
	"github.com/trailhead/trailhead/internal/config"
	trailgrpc "github.com/trailhead/trailhead/internal/grpc"
	"github.com/trailhead/trailhead/pkg/errutil"
)

func TestServe_RequiresDatabase(t *testing.T) {
	isolate(t)

	_, err := execute(t, "", "serve")
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
	errutil.AssertErrorContext(t, err, "field", "database.url")
}

func TestServe_InvalidConfig(t *testing.T) {
	isolate(t)

	_, err := execute(t, "", "serve", "--log-format", "xml")
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
	errutil.AssertErrorContext(t, err, "field", "log.format")
}

func TestServers_ShutdownWithNothingStarted(t *testing.T) {
	s := &servers{logger: slog.Default(), errs: make(chan error, 1)}
	assert.NotPanics(t, func() { s.shutdown(time.Second) })
	assert.Empty(t, s.httpAddr())
}

type tokenGate map[string]auth.Role

func (g tokenGate) Authenticate(_ context.Context, credential string) (*auth.Identity, error) {
	role, ok := g[credential]
	if !ok {
		return nil, oops.Code(auth.CodeUnauthenticated).Errorf("you are not logged in, please log in to get access")
	}
	return &auth.Identity{UserID: ulid.Make(), Role: role}, nil
}

func reflectionCall(t *testing.T, addr, token string) error {
	t.Helper()
	conn, err := trailgrpc.Dial(trailgrpc.ClientConfig{Addr: addr, Token: token})
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stream, err := reflectionpb.NewServerReflectionClient(conn).ServerReflectionInfo(ctx, grpc.WaitForReady(true))
	if err != nil {
		return err
	}
	_ = stream.Send(&reflectionpb.ServerReflectionRequest{
		MessageRequest: &reflectionpb.ServerReflectionRequest_ListServices{ListServices: "*"},
	})
	_, err = stream.Recv()
	return err
}

func TestServers_GRPCReflectionIsAdminOnly(t *testing.T) {
	s := &servers{logger: slog.Default(), errs: make(chan error, 1)}
	cfg := &config.Config{GRPC: config.GRPCConfig{Addr: "127.0.0.1:0"}}
	gate := tokenGate{"admin": auth.RoleAdmin, "guide": auth.RoleGuide}

	require.NoError(t, s.startGRPC(cfg, gate))
	t.Cleanup(func() { s.shutdown(5 * time.Second) })
	addr := s.grpc.Addr()

	assert.Equal(t, codes.Unauthenticated, status.Code(reflectionCall(t, addr, "")))
	assert.Equal(t, codes.PermissionDenied, status.Code(reflectionCall(t, addr, "guide")))
	assert.NoError(t, reflectionCall(t, addr, "admin"))
}
