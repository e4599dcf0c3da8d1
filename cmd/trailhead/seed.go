// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/trailhead/trailhead/internal/auth"
)

// Default timeout for seed command.
const defaultSeedTimeout = 30 * time.Second

// seedFile is the YAML document read by seed.
type seedFile struct {
	Users []seedUser `yaml:"users"`
}

// seedUser describes one account. PasswordEnv names an environment variable
// holding the password and takes precedence over Password.
type seedUser struct {
	Name        string `yaml:"name"`
	Email       string `yaml:"email"`
	Role        string `yaml:"role"`
	Password    string `yaml:"password"`
	PasswordEnv string `yaml:"password_env"`
}

func (u seedUser) password() string {
	if u.PasswordEnv != "" {
		return os.Getenv(u.PasswordEnv)
	}
	return u.Password
}

func (u seedUser) input() auth.SignupInput {
	pw := u.password()
	return auth.SignupInput{Name: u.Name, Email: u.Email, Password: pw, PasswordConfirm: pw}.Normalize()
}

func (u seedUser) role() (auth.Role, error) {
	if u.Role == "" {
		return auth.DefaultRole, nil
	}
	return auth.ParseRole(u.Role)
}

type seedOptions struct {
	file     string
	timeout  time.Duration
	validate bool
}

// NewSeedCmd creates the seed subcommand.
func NewSeedCmd() *cobra.Command {
	opts := &seedOptions{}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create users from a YAML seed file",
		Long: `Creates the users listed in a YAML seed file. Users whose email already
exists are skipped, so the command can run repeatedly.

With --validate the file is checked without a database connection, which is
useful in CI pipelines.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSeed(cmd, opts)
		},
	}

	addDatabaseFlag(cmd.Flags())
	cmd.Flags().StringVar(&opts.file, "file", "", "seed file path (required)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", defaultSeedTimeout, "timeout for database operations (e.g., 30s, 1m)")
	cmd.Flags().BoolVar(&opts.validate, "validate", false, "only validate the seed file")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func loadSeedFile(path string) (*seedFile, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return nil, oops.Code("SEED_INVALID").With("path", path).Wrapf(err, "read seed file")
	}
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, oops.Code("SEED_INVALID").With("path", path).Wrapf(err, "parse seed file")
	}
	return &f, nil
}

// validateSeeds checks every entry and reports all problems at once.
func validateSeeds(f *seedFile) error {
	var errs []error
	seen := make(map[string]bool, len(f.Users))
	for i, u := range f.Users {
		in := u.input()
		if err := in.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("users[%d] %s: %w", i, in.Email, err))
			continue
		}
		if _, err := u.role(); err != nil {
			errs = append(errs, fmt.Errorf("users[%d] %s: %w", i, in.Email, err))
			continue
		}
		if seen[in.Email] {
			errs = append(errs, fmt.Errorf("users[%d] %s: duplicate email", i, in.Email))
		}
		seen[in.Email] = true
	}
	if len(errs) > 0 {
		return oops.Code("SEED_INVALID").
			With("invalid", len(errs)).
			Wrapf(errors.Join(errs...), "validation failed: %d of %d seed users invalid", len(errs), len(f.Users))
	}
	return nil
}

func runSeed(cmd *cobra.Command, opts *seedOptions) error {
	f, err := loadSeedFile(opts.file)
	if err != nil {
		return err
	}
	if err := validateSeeds(f); err != nil {
		return err
	}
	if opts.validate {
		cmd.Printf("Seed file valid: %d users\n", len(f.Users))
		return nil
	}

	// cmd.Context() carries SIGINT/SIGTERM cancellation from cobra.
	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()
	cmd.SetContext(ctx)

	svc, closeStore, err := adminService(cmd)
	if err != nil {
		return err
	}
	defer closeStore()

	created, skipped := 0, 0
	for _, u := range f.Users {
		ok, err := seedOne(ctx, svc, u)
		if err != nil {
			return err
		}
		if ok {
			created++
			cmd.Printf("Created %s\n", u.input().Email)
		} else {
			skipped++
			cmd.Printf("Skipped %s (already exists)\n", u.input().Email)
		}
	}

	cmd.Printf("Seeding complete: %d created, %d skipped\n", created, skipped)
	return nil
}

// seedOne creates u unless its email exists. It reports whether it created.
func seedOne(ctx context.Context, svc *auth.Service, u seedUser) (bool, error) {
	in := u.input()
	role, err := u.role()
	if err != nil {
		return false, err
	}

	existing, err := svc.FindByEmail(ctx, in.Email)
	switch {
	case err == nil:
		if existing.Role != role {
			slog.WarnContext(ctx, "seed user role mismatch",
				"email", in.Email,
				"expected", role,
				"actual", existing.Role)
		}
		return false, nil
	case auth.KindOf(err) != auth.KindNotFound:
		return false, err
	}

	if _, err := svc.CreateUser(ctx, in, role); err != nil {
		return false, oops.Code("SEED_FAILED").With("email", in.Email).Wrap(err)
	}
	slog.InfoContext(ctx, "created seed user", "email", in.Email, "role", role)
	return true, nil
}
