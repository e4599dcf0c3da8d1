// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package main

import (
	"os"
	"path/filepath"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/trailhead/trailhead/internal/httpapi"
)

// NewSchemaCmd creates the schema subcommand.
func NewSchemaCmd() *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "schema [name]",
		Short: "Print the JSON Schemas of the HTTP request bodies",
		Long: `Print the JSON Schema of one request body, or of all of them. With --out
each schema is written to <name>.schema.json in that directory instead.`,
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: httpapi.SchemaNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			schemas, err := httpapi.Schemas()
			if err != nil {
				return err
			}

			names := httpapi.SchemaNames()
			if len(args) == 1 {
				if _, ok := schemas[args[0]]; !ok {
					return oops.With("schema", args[0]).Errorf("unknown schema %q, expected one of %v", args[0], names)
				}
				names = args
			}

			if outDir == "" {
				for _, name := range names {
					if len(args) == 0 {
						cmd.Printf("# %s\n", name)
					}
					cmd.Println(string(schemas[name]))
				}
				return nil
			}

			if err := os.MkdirAll(outDir, 0o750); err != nil {
				return oops.With("dir", outDir).Wrapf(err, "create output directory")
			}
			for _, name := range names {
				path := filepath.Join(outDir, name+".schema.json")
				if err := os.WriteFile(path, schemas[name], 0o600); err != nil {
					return oops.With("path", path).Wrapf(err, "write schema")
				}
				cmd.Printf("Generated %s\n", path)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&outDir, "out", "", "directory to write schema files into")
	return cmd
}
