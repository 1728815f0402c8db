package main

import (
	"fmt"
	"os"

	"xsch-membership-backend/pkg/config"
	"xsch-membership-backend/pkg/database"
	"xsch-membership-backend/pkg/logging"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newRootCmd 构建 xsch 命令树
func newRootCmd() *cobra.Command {
	var cfg *config.Config

	root := &cobra.Command{
		Use:           "xsch",
		Short:         "Membership backend: API server and maintenance tasks",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg = config.LoadConfig()
			if err := logging.InitLogger(cfg.IsProduction()); err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logging.Sync()
		},
	}

	current := func() *config.Config { return cfg }
	root.AddCommand(
		newServeCmd(current),
		newMigrateCmd(current),
		newExportMembersCmd(current),
	)
	return root
}

// openDatabase 按配置选择数据库实现
func openDatabase(cfg *config.Config) database.DatabaseInterface {
	return database.NewDatabase(database.DatabaseConfig{
		UseLocalDB:   cfg.UseLocalDB,
		LocalDataDir: cfg.LocalDataDir,
		PostgresDSN:  cfg.PostgresDSN,
		SupabaseURL:  cfg.SupabaseURL,
		SupabaseKey:  cfg.SupabaseKey,
		Debug:        cfg.Debug,
	})
}
