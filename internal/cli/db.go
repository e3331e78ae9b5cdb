package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bobsummerwill/strato-fix-all-the-things/internal/db"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the run event database",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the event database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDB()
		if err != nil {
			return err
		}
		defer d.Close()
		if err := d.Migrate(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Schema up to date.")
		return nil
	},
}

var dbResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Drop and recreate all event tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDB()
		if err != nil {
			return err
		}
		defer d.Close()
		if err := d.Reset(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Database reset.")
		return nil
	},
}

func openDB() (*db.DB, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	path, err := db.DefaultPath(cfg.Autofix.RunsDir)
	if err != nil {
		return nil, err
	}
	return db.Open(path)
}

func init() {
	dbCmd.AddCommand(dbMigrateCmd)
	dbCmd.AddCommand(dbResetCmd)
}
