// cmd/service/commands.go
package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "unsafe-stats",
		Short:         "Tracks total and unsafe line counts of Rust repositories",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newMigrateCmd(), newRefreshCmd(), newImportCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and, when REFRESH_INTERVAL is set, the scheduled refresh",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the database schema",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runMigrate(cmd.Context(), true)
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back all migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runMigrate(cmd.Context(), false)
			},
		},
	)
	return cmd
}

func newRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Run the refresh pipeline once for every tracked repository",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRefresh(cmd.Context())
		},
	}
}

func newImportCmd() *cobra.Command {
	var (
		file   string
		query  string
		github bool
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import repositories from the catalog file or a GitHub search",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if github && limit <= 0 {
				return errors.New("--limit must be positive")
			}
			if !github && query != "" {
				return fmt.Errorf("--query requires --github")
			}
			return runImport(cmd.Context(), importOptions{file: file, github: github, query: query, limit: limit})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "catalog file to import (defaults to CATALOG_FILE)")
	cmd.Flags().BoolVar(&github, "github", false, "import from a GitHub repository search instead of a file")
	cmd.Flags().StringVar(&query, "query", "", "GitHub search query; language:rust is added when absent")
	cmd.Flags().IntVar(&limit, "limit", 30, "maximum number of GitHub repositories to import")
	return cmd
}
