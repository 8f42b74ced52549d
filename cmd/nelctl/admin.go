package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"nel/api/internal/bootstrap"
	"nel/api/internal/jobs"
)

var devAdminPassword string

var createDevAdminCmd = &cobra.Command{
	Use:   "create-dev-admin",
	Short: "Create the development admin account",
	Long: `Create the development admin account if it does not exist.

Refused when APP_ENV is production.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDeps(cmd.Context(), func(deps *bootstrap.Deps) error {
			user, created, err := deps.Service.CreateDevAdmin(cmd.Context(), devAdminPassword)
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s)\n", user.Email, user.ID)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s already exists (%s)\n", user.Email, user.ID)
			}
			return nil
		})
	},
}

// cleanupTargets maps cleanup subjects to scheduler jobs.
var cleanupTargets = map[string]string{
	"notifications": jobs.JobExpireNotifications,
	"emails":        jobs.JobCleanupEmails,
	"email-events":  jobs.JobCleanupEmailEvents,
	"sessions":      jobs.JobPurgeSessions,
}

var cleanupCmd = &cobra.Command{
	Use:       "cleanup notifications|emails|email-events|sessions",
	Short:     "Delete expired rows",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"notifications", "emails", "email-events", "sessions"},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJob(cmd, cleanupTargets[args[0]])
	},
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and run scheduled jobs",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scheduled jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		scheduler := jobs.NewScheduler(nil, nil)
		fmt.Fprintln(cmd.OutOrStdout(), strings.Join(scheduler.Names(), "\n"))
		return nil
	},
}

var jobsRunCmd = &cobra.Command{
	Use:   "run <name>",
	Short: "Run one job now",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJob(cmd, args[0])
	},
}

func runJob(cmd *cobra.Command, name string) error {
	return withDeps(cmd.Context(), func(deps *bootstrap.Deps) error {
		n, err := deps.Scheduler.RunNow(cmd.Context(), name)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d affected\n", name, n)
		return nil
	})
}

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the Meilisearch indexes from Postgres",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDeps(cmd.Context(), func(deps *bootstrap.Deps) error {
			tasks, projects, err := deps.Service.Reindex(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d tasks, %d projects\n", tasks, projects)
			return nil
		})
	},
}

func init() {
	createDevAdminCmd.Flags().StringVar(&devAdminPassword, "password", "", "password for the admin account (required)")
	_ = createDevAdminCmd.MarkFlagRequired("password")

	jobsCmd.AddCommand(jobsListCmd, jobsRunCmd)
	rootCmd.AddCommand(createDevAdminCmd, cleanupCmd, jobsCmd, reindexCmd)
}
