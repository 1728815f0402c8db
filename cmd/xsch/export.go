package main

import (
	"fmt"
	"os"

	"xsch-membership-backend/pkg/config"
	"xsch-membership-backend/pkg/export"

	"github.com/spf13/cobra"
)

func newExportMembersCmd(cfg func() *config.Config) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export-members",
		Short: "Write every member to an xlsx file",
		RunE: func(cmd *cobra.Command, args []string) error {
			db := openDatabase(cfg())
			defer db.Close()

			members, err := export.AllMembers(db)
			if err != nil {
				return err
			}

			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", out, err)
			}
			if err := export.WriteMembers(f, members); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "📄 %d members written to %s\n", len(members), out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "miembros.xlsx", "output file")
	return cmd
}
