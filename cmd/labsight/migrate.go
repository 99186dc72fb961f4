package labsight

import (
	"errors"
	"fmt"

	"github.com/kamilpajak/labsight/internal/config"
	"github.com/kamilpajak/labsight/internal/database"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := databaseConfig()
		if err != nil {
			return err
		}
		if err := database.Migrate(cfg.Database.URL); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Migrations complete")
		return nil
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back every migration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := databaseConfig()
		if err != nil {
			return err
		}
		if err := database.MigrateDown(cfg.Database.URL); err != nil {
			return fmt.Errorf("rollback failed: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Rollback complete")
		return nil
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current schema version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := databaseConfig()
		if err != nil {
			return err
		}
		version, dirty, ok, err := database.MigrationVersion(cfg.Database.URL)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		switch {
		case !ok:
			fmt.Fprintln(out, "No migrations applied")
		case dirty:
			fmt.Fprintf(out, "Version %d (dirty)\n", version)
		default:
			fmt.Fprintf(out, "Version %d\n", version)
		}
		return nil
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	migrateCmd.AddCommand(migrateVersionCmd)
}

func databaseConfig() (*config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url (or DATABASE_URL) is required")
	}
	return cfg, nil
}
