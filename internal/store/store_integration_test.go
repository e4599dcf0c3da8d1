// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

//go:build integration

package store_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/trailhead/trailhead/internal/store"
)

var _ = Describe("Postgres store", Ordered, func() {
	var (
		ctx       context.Context
		container *postgres.PostgresContainer
		connStr   string
	)

	BeforeAll(func() {
		ctx = context.Background()

		var err error
		container, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("trailhead_test"),
			postgres.WithUsername("trailhead"),
			postgres.WithPassword("trailhead"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second),
			),
		)
		Expect(err).NotTo(HaveOccurred())

		connStr, err = container.ConnectionString(ctx, "sslmode=disable")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterAll(func() {
		if container != nil {
			_ = container.Terminate(ctx)
		}
	})

	Describe("Connect", func() {
		It("connects and answers readiness probes", func() {
			pool, err := store.Connect(ctx, store.ConnectConfig{URL: connStr, MaxConns: 4}, nil)
			Expect(err).NotTo(HaveOccurred())
			defer pool.Close()

			Expect(store.Readiness(pool)(ctx)).To(Succeed())
			Expect(pool.Config().MaxConns).To(Equal(int32(4)))
		})
	})

	Describe("Migrator", func() {
		var migrator *store.Migrator

		BeforeEach(func() {
			var err error
			migrator, err = store.NewMigrator(connStr)
			Expect(err).NotTo(HaveOccurred())
		})

		AfterEach(func() {
			Expect(migrator.Down()).To(Succeed())
			Expect(migrator.Close()).To(Succeed())
		})

		It("runs the full up, step and down cycle", func() {
			version, dirty, err := migrator.Version()
			Expect(err).NotTo(HaveOccurred())
			Expect(version).To(BeZero())
			Expect(dirty).To(BeFalse())

			pending, err := migrator.PendingMigrations()
			Expect(err).NotTo(HaveOccurred())
			Expect(pending).To(Equal([]uint{1, 2}))

			Expect(migrator.Up()).To(Succeed())
			version, _, err = migrator.Version()
			Expect(err).NotTo(HaveOccurred())
			Expect(version).To(Equal(uint(2)))

			Expect(migrator.Steps(-1)).To(Succeed())
			version, _, err = migrator.Version()
			Expect(err).NotTo(HaveOccurred())
			Expect(version).To(Equal(uint(1)))

			Expect(migrator.Steps(1)).To(Succeed())
			applied, err := migrator.AppliedMigrations()
			Expect(err).NotTo(HaveOccurred())
			Expect(applied).To(Equal([]uint{1, 2}))
		})

		It("enforces the reset token pair constraint", func() {
			Expect(migrator.Up()).To(Succeed())

			pool, err := store.Connect(ctx, store.ConnectConfig{URL: connStr}, nil)
			Expect(err).NotTo(HaveOccurred())
			defer pool.Close()

			_, err = pool.Exec(ctx, `
				INSERT INTO users (id, name, email, password_hash, reset_token_hash)
				VALUES ('01J0000000000000000000000A', 'Alice', 'alice@example.com', 'h', 'abc')
			`)
			Expect(err).To(HaveOccurred())
		})

		It("forces a version without running migrations", func() {
			Expect(migrator.Up()).To(Succeed())
			Expect(migrator.Force(1)).To(Succeed())

			version, dirty, err := migrator.Version()
			Expect(err).NotTo(HaveOccurred())
			Expect(version).To(Equal(uint(1)))
			Expect(dirty).To(BeFalse())

			Expect(migrator.Force(2)).To(Succeed())
		})
	})
})
