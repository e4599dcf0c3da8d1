// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

//go:build integration

package postgres_test

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/trailhead/trailhead/internal/auth"
	"github.com/trailhead/trailhead/internal/auth/postgres"
	"github.com/trailhead/trailhead/internal/store"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(run(m))
}

func run(m *testing.M) int {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("trailhead_test"),
		tcpostgres.WithUsername("trailhead"),
		tcpostgres.WithPassword("trailhead"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "start postgres: %v\n", err)
		return 1
	}
	defer func() { _ = container.Terminate(ctx) }()

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		fmt.Fprintf(os.Stderr, "connection string: %v\n", err)
		return 1
	}

	migrator, err := store.NewMigrator(connStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "migrator: %v\n", err)
		return 1
	}
	if err := migrator.Up(); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		return 1
	}
	_ = migrator.Close()

	testPool, err = store.Connect(ctx, store.ConnectConfig{URL: connStr}, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		return 1
	}
	defer testPool.Close()

	return m.Run()
}

func createUser(t *testing.T, repo *postgres.UserRepository, email string) *auth.User {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	user, err := auth.NewUser(auth.SignupInput{Name: "Tester", Email: email}, "hash", auth.RoleCustomer, now)
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), user))
	return user
}

func uniqueEmail() string {
	return strings.ToLower(ulid.Make().String()) + "@example.com"
}

func TestUserRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewUserRepository(testPool)
	user := createUser(t, repo, uniqueEmail())

	got, err := repo.GetByEmail(ctx, user.Email)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, auth.RoleCustomer, got.Role)
	assert.Nil(t, got.PasswordChangedAt)

	byID, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.Email, byID.Email)

	dup := *user
	dup.ID = ulid.Make()
	assert.ErrorIs(t, repo.Create(ctx, &dup), auth.ErrEmailTaken)

	_, err = repo.GetByID(ctx, ulid.Make())
	assert.ErrorIs(t, err, auth.ErrNotFound)
}

func TestUserRepository_ResetTokenLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewUserRepository(testPool)
	user := createUser(t, repo, uniqueEmail())
	tokenHash := ulid.Make().String()

	require.NoError(t, repo.SetResetToken(ctx, user.ID, tokenHash, time.Now().Add(10*time.Minute)))

	got, err := repo.GetByResetTokenHash(ctx, tokenHash)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	redeemed, err := repo.ConsumeResetToken(ctx, tokenHash, "newhash")
	require.NoError(t, err)
	assert.Equal(t, "newhash", redeemed.PasswordHash)
	assert.Nil(t, redeemed.ResetTokenHash)
	require.NotNil(t, redeemed.PasswordChangedAt)

	_, err = repo.ConsumeResetToken(ctx, tokenHash, "again")
	assert.ErrorIs(t, err, auth.ErrNotFound, "token is single use")
}

func TestUserRepository_RevokeOnlyMatchingResetToken(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewUserRepository(testPool)
	user := createUser(t, repo, uniqueEmail())
	older, newer := ulid.Make().String(), ulid.Make().String()

	require.NoError(t, repo.SetResetToken(ctx, user.ID, older, time.Now().Add(10*time.Minute)))
	require.NoError(t, repo.SetResetToken(ctx, user.ID, newer, time.Now().Add(10*time.Minute)))

	require.NoError(t, repo.RevokeResetToken(ctx, user.ID, older))
	got, err := repo.GetByResetTokenHash(ctx, newer)
	require.NoError(t, err, "newer token survives")
	assert.Equal(t, user.ID, got.ID)

	require.NoError(t, repo.RevokeResetToken(ctx, user.ID, newer))
	_, err = repo.GetByResetTokenHash(ctx, newer)
	assert.ErrorIs(t, err, auth.ErrNotFound)
}

func TestUserRepository_ExpiredResetTokenIsRejected(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewUserRepository(testPool)
	user := createUser(t, repo, uniqueEmail())
	tokenHash := ulid.Make().String()

	require.NoError(t, repo.SetResetToken(ctx, user.ID, tokenHash, time.Now().Add(-time.Minute)))

	_, err := repo.GetByResetTokenHash(ctx, tokenHash)
	assert.ErrorIs(t, err, auth.ErrNotFound)
	_, err = repo.ConsumeResetToken(ctx, tokenHash, "newhash")
	assert.ErrorIs(t, err, auth.ErrNotFound)
}

func TestUserRepository_ConcurrentRedemptionSucceedsOnce(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewUserRepository(testPool)
	user := createUser(t, repo, uniqueEmail())
	tokenHash := ulid.Make().String()
	require.NoError(t, repo.SetResetToken(ctx, user.ID, tokenHash, time.Now().Add(10*time.Minute)))

	const workers = 8
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
	)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.ConsumeResetToken(ctx, tokenHash, fmt.Sprintf("hash-%d", i)); err == nil {
				successes.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
}

func TestUserRepository_InactiveUserCannotRedeem(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewUserRepository(testPool)
	user := createUser(t, repo, uniqueEmail())
	tokenHash := ulid.Make().String()
	require.NoError(t, repo.SetResetToken(ctx, user.ID, tokenHash, time.Now().Add(10*time.Minute)))
	require.NoError(t, repo.SetActive(ctx, user.ID, false))

	_, err := repo.ConsumeResetToken(ctx, tokenHash, "newhash")
	assert.ErrorIs(t, err, auth.ErrNotFound)
}

func TestUserRepository_ProfileRoleAndList(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewUserRepository(testPool)
	a := createUser(t, repo, uniqueEmail())
	b := createUser(t, repo, uniqueEmail())

	_, err := repo.UpdateProfile(ctx, a.ID, "Renamed", b.Email)
	assert.ErrorIs(t, err, auth.ErrEmailTaken)

	updated, err := repo.UpdateProfile(ctx, a.ID, "Renamed", a.Email)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)

	promoted, err := repo.SetRole(ctx, b.ID, auth.RoleLeadGuide)
	require.NoError(t, err)
	assert.Equal(t, auth.RoleLeadGuide, promoted.Role)

	users, err := repo.List(ctx, auth.ListOptions{Limit: auth.MaxListLimit})
	require.NoError(t, err)
	ids := make([]ulid.ULID, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	assert.Contains(t, ids, a.ID)
	assert.Contains(t, ids, b.ID)
}
