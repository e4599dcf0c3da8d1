// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the Trailhead CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trailhead",
		Short: "Trailhead - account and access control service",
		Long: `Trailhead manages user accounts: signup, login, password resets and
role-based access to protected routes. It serves a JSON HTTP API and an
optional gRPC listener, and administers users from the command line.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: $XDG_CONFIG_HOME/trailhead/config.yaml)")
	cmd.PersistentFlags().String("log-format", "json", "log format (json or text)")
	cmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewUserCmd())
	cmd.AddCommand(NewSeedCmd())
	cmd.AddCommand(NewSchemaCmd())
	cmd.AddCommand(NewCertsCmd())

	return cmd
}

// addDatabaseFlag registers --database-url for commands that talk to Postgres.
func addDatabaseFlag(fs *pflag.FlagSet) {
	fs.String("database-url", "", "PostgreSQL connection URL")
}
