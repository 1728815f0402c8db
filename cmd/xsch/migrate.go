package main

import (
	"errors"
	"fmt"

	"xsch-membership-backend/pkg/config"
	"xsch-membership-backend/pkg/database"

	"github.com/spf13/cobra"
)

func newMigrateCmd(cfg func() *config.Config) *cobra.Command {
	var dsn string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the PostgreSQL schema and report table sizes",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dsn == "" {
				dsn = cfg().PostgresDSN
			}
			if dsn == "" {
				return errors.New("POSTGRES_DSN or --dsn is required")
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "🔗 Connecting to database: %s\n", database.MaskDSN(dsn))
			if err := database.Migrate(dsn); err != nil {
				return err
			}
			fmt.Fprintln(out, "✅ Schema applied")

			counts, err := database.TableCounts(dsn)
			for _, table := range database.SchemaTables {
				if n, ok := counts[table]; ok {
					fmt.Fprintf(out, "✅ Table %s: %d records\n", table, n)
				}
			}
			return err
		},
	}

	cmd.Flags().StringVar(&dsn, "dsn", "", "PostgreSQL connection string (defaults to POSTGRES_DSN)")
	return cmd
}
