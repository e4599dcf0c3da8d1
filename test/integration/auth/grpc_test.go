// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

//go:build integration

package auth_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/trailhead/trailhead/internal/auth"
	trailgrpc "github.com/trailhead/trailhead/internal/grpc"
)

var _ = Describe("gRPC gate", func() {
	var srv *trailgrpc.Server

	BeforeEach(func() {
		var err error
		srv, err = trailgrpc.NewServer(env.gate,
			trailgrpc.WithPublicMethods(),
			trailgrpc.WithRoleRules(trailgrpc.RoleRule{
				Pattern: trailgrpc.HealthMethods,
				Roles:   []auth.Role{auth.RoleAdmin},
			}),
		)
		Expect(err).NotTo(HaveOccurred())
		errCh, err := srv.Start("127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())

		DeferCleanup(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			Expect(srv.Stop(ctx)).To(Succeed())
			Eventually(errCh).Should(Receive(BeNil()))
		})
	})

	check := func(token string) error {
		conn, err := trailgrpc.Dial(trailgrpc.ClientConfig{Addr: srv.Addr(), Token: token})
		Expect(err).NotTo(HaveOccurred())
		defer func() { _ = conn.Close() }()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, err = healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
		return err
	}

	It("authenticates bearer metadata against the credential store", func() {
		Expect(status.Code(check(""))).To(Equal(codes.Unauthenticated))

		walker := signup("Walker", uniqueEmail("walker"), "pass1234")
		Expect(status.Code(check(walker))).To(Equal(codes.PermissionDenied))

		adminEmail := uniqueEmail("admin")
		admin := signup("Admin", adminEmail, "pass1234")
		_, err := env.svc.SetRole(env.ctx, adminEmail, auth.RoleAdmin)
		Expect(err).NotTo(HaveOccurred())
		Expect(check(admin)).To(Succeed())
	})
})
