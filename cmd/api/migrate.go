package main

import (
	"fmt"

	"grantsbackend/internal/database"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newMigrateCmd(v *viper.Viper) *cobra.Command {
	var seed bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the schema and seed permissions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := bootstrap(cmd, v)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			db, err := database.NewConnection(cfg.DB, log)
			if err != nil {
				return fmt.Errorf("database connection failed: %w", err)
			}
			if err := database.Migrate(db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			log.Info("schema migrated")

			if seed {
				if err := database.SeedPermissions(db); err != nil {
					return err
				}
				log.Info("permissions seeded")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&seed, "seed", true, "seed default permissions and the admin role")
	return cmd
}
