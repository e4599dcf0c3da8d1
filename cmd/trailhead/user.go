// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package main

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/trailhead/trailhead/internal/auth"
)

// readPassword prompts on the command's error stream and reads a password
// without echo when stdin is a terminal. Piped input is read a line at a time.
var readPassword = func(cmd *cobra.Command, prompt string) (string, error) {
	cmd.PrintErr(prompt)
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		cmd.PrintErrln()
		if err != nil {
			return "", oops.Wrapf(err, "read password")
		}
		return string(b), nil
	}
	return readLine(cmd.InOrStdin())
}

// piped keeps one buffered reader per input so consecutive prompts do not
// lose lines to a discarded buffer.
var piped struct {
	src io.Reader
	r   *bufio.Reader
}

func readLine(src io.Reader) (string, error) {
	if piped.src != src {
		piped.src = src
		piped.r = bufio.NewReader(src)
	}
	line, err := piped.r.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", oops.Wrapf(err, "read password")
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// NewUserCmd creates the user administration command group.
func NewUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Administer user accounts",
	}
	addDatabaseFlag(cmd.PersistentFlags())
	cmd.AddCommand(newUserCreateCmd(), newUserSetRoleCmd(), newUserDeactivateCmd())
	return cmd
}

type createOptions struct {
	email string
	name  string
	role  string
}

func newUserCreateCmd() *cobra.Command {
	opts := &createOptions{}
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user with any role",
		Long:  `Create a user. The password is prompted for twice and never taken from flags.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runUserCreate(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.email, "email", "", "email address (required)")
	cmd.Flags().StringVar(&opts.name, "name", "", "display name (required)")
	cmd.Flags().StringVar(&opts.role, "role", string(auth.DefaultRole), "role: customer, guide, lead-guide or admin")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func runUserCreate(cmd *cobra.Command, opts *createOptions) error {
	role, err := auth.ParseRole(opts.role)
	if err != nil {
		return err
	}

	password, err := readPassword(cmd, "Password: ")
	if err != nil {
		return err
	}
	confirm, err := readPassword(cmd, "Confirm password: ")
	if err != nil {
		return err
	}

	svc, closeStore, err := adminService(cmd)
	if err != nil {
		return err
	}
	defer closeStore()

	user, err := svc.CreateUser(cmd.Context(), auth.SignupInput{
		Name:            opts.name,
		Email:           opts.email,
		Password:        password,
		PasswordConfirm: confirm,
	}, role)
	if err != nil {
		return err
	}
	cmd.Printf("Created user %s (%s) with role %s\n", user.Email, user.ID, user.Role)
	return nil
}

func newUserSetRoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-role <email> <role>",
		Short: "Change the role of a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := auth.ParseRole(args[1])
			if err != nil {
				return err
			}
			svc, closeStore, err := adminService(cmd)
			if err != nil {
				return err
			}
			defer closeStore()

			user, err := svc.SetRole(cmd.Context(), args[0], role)
			if err != nil {
				return err
			}
			cmd.Printf("User %s now has role %s\n", user.Email, user.Role)
			return nil
		},
	}
}

func newUserDeactivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate <email>",
		Short: "Deactivate a user",
		Long:  `Deactivate a user. They can no longer log in, and their existing tokens stop working.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeStore, err := adminService(cmd)
			if err != nil {
				return err
			}
			defer closeStore()

			user, err := svc.FindByEmail(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			id, err := ulid.Parse(user.ID)
			if err != nil {
				return oops.With("user_id", user.ID).Wrapf(err, "parse user id")
			}
			if err := svc.Deactivate(cmd.Context(), id); err != nil {
				return err
			}
			cmd.Printf("Deactivated user %s\n", user.Email)
			return nil
		},
	}
}
