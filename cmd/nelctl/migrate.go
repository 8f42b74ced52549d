package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"nel/api/internal/config"
	"nel/api/internal/store"
)

var migrateDir string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Long: `Apply pending database migrations.

Migrations are embedded in the binary. --dir applies the .sql files of a
directory instead, which is handy while writing a new migration.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := config.Load()
		db, err := store.Open(ctx, cfg.DatabaseURL, "nelctl")
		if err != nil {
			return err
		}
		defer db.Close()

		fsys := store.MigrationsFrom(migrateDir)
		files, err := store.PendingMigrations(fsys)
		if err != nil {
			return err
		}
		if err := store.ApplyMigrations(ctx, db, fsys); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "migrations up to date (%d files)\n", len(files))
		return nil
	},
}

func init() {
	migrateCmd.Flags().StringVar(&migrateDir, "dir", "", "read migrations from this directory")
	rootCmd.AddCommand(migrateCmd)
}
