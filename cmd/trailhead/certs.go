// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package main

import (
	"path/filepath"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	trailtls "github.com/trailhead/trailhead/internal/tls"
	"github.com/trailhead/trailhead/internal/xdg"
)

// NewCertsCmd creates the certs command group.
func NewCertsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "certs",
		Short: "Manage gRPC listener certificates",
	}

	var (
		dir   string
		hosts []string
	)
	generate := &cobra.Command{
		Use:   "generate",
		Short: "Generate a development CA and server certificate",
		Long: `Generate a CA and a server certificate for the gRPC listener. An existing
CA in the directory is reused so clients keep trusting it. Point
grpc.tls_cert_file and grpc.tls_key_file at the written server pair.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dir == "" {
				configDir, err := xdg.ConfigDir()
				if err != nil {
					return err
				}
				dir = filepath.Join(configDir, "certs")
			}
			if err := xdg.EnsureDir(dir); err != nil {
				return err
			}

			ca, err := trailtls.LoadCA(dir)
			if err != nil {
				if ca, err = trailtls.GenerateCA(filepath.Base(dir)); err != nil {
					return err
				}
				cmd.Println("Generated new CA")
			}

			server, err := trailtls.GenerateServerCert(ca, hosts...)
			if err != nil {
				return err
			}
			if err := trailtls.SaveCertificates(dir, ca, server); err != nil {
				return oops.With("dir", dir).Wrap(err)
			}

			cmd.Printf("CA:          %s\n", filepath.Join(dir, trailtls.CACertFile))
			cmd.Printf("Certificate: %s\n", filepath.Join(dir, trailtls.ServerCertFile))
			cmd.Printf("Key:         %s\n", filepath.Join(dir, trailtls.ServerKeyFile))
			return nil
		},
	}
	generate.Flags().StringVar(&dir, "dir", "", "output directory (default: $XDG_CONFIG_HOME/trailhead/certs)")
	generate.Flags().StringSliceVar(&hosts, "host", nil, "extra DNS names or IPs for the server certificate")

	cmd.AddCommand(generate)
	return cmd
}
