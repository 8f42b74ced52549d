// Command nelctl runs maintenance against the NEL database: migrations,
// the development admin, cleanup jobs and search reindexing.
//
//	nelctl migrate
//	nelctl create-dev-admin --password secret123
//	nelctl cleanup notifications
//	nelctl jobs run overdue-reminders
//	nelctl reindex
//
// It reads the same environment as the API server.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"nel/api/internal/bootstrap"
	"nel/api/internal/config"
	"nel/api/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:           "nelctl",
	Short:         "NEL administration",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		return logger.InitLogger(logger.LogConfig{
			Level:       cfg.LogLevel,
			Environment: cfg.Env,
			ServiceName: "nelctl",
		})
	},
}

// withDeps opens the database without migrating and closes it afterwards.
func withDeps(ctx context.Context, fn func(*bootstrap.Deps) error) error {
	deps, err := bootstrap.Open(ctx, config.Load(), false)
	if err != nil {
		return err
	}
	defer deps.Close()
	return fn(deps)
}

func main() {
	defer logger.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
