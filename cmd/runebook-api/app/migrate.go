package app

import (
	"bufio"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/runebook/runebook-gateway/database"
	"github.com/runebook/runebook-gateway/internal/config"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration tool",
		Long:  `Manage the schema of the PostgreSQL snapshot store. Use with 'up' or 'down' subcommands.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Usage()
		},
	}

	cmd.PersistentFlags().BoolP("yes", "y", false, "Answer yes to all questions")
	cmd.PersistentFlags().String("config", "", "Path to configuration file (required)")
	if err := cmd.MarkPersistentFlagRequired("config"); err != nil {
		panic(err)
	}

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back database migrations",
		Long:  `Roll back the given number of migrations (--num-steps), or all of them when zero.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			steps, err := cmd.Flags().GetUint("num-steps")
			if err != nil {
				return fmt.Errorf("failed to get num-steps flag: %w", err)
			}
			return runMigrate(cmd, "roll back", func(connString string) error {
				return database.MigrateDown(connString, int(steps))
			})
		},
	}
	down.Flags().UintP("num-steps", "n", 0, "Number of steps to roll back (0 = all)")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending database migrations",
		Long:  `Apply all pending migrations of the snapshot store schema.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrate(cmd, "apply", database.MigrateUp)
		},
	})
	cmd.AddCommand(down)

	return cmd
}

func runMigrate(cmd *cobra.Command, action string, migrate func(string) error) error {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return fmt.Errorf("failed to get config flag: %w", err)
	}
	yes, err := cmd.Flags().GetBool("yes")
	if err != nil {
		return fmt.Errorf("failed to get yes flag: %w", err)
	}

	cfg, err := config.LoadConfig(config.WithConfigPath(configPath))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	dbCfg := cfg.Storage.Database
	if dbCfg == nil {
		return fmt.Errorf("database configuration is required")
	}

	connString, err := dbCfg.GetConnectionString()
	if err != nil {
		return fmt.Errorf("failed to get connection string: %w", err)
	}

	if !yes {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "About to %s migrations on %s@%s:%d/%s. Continue? (yes/no): ",
			action, dbCfg.User, dbCfg.Host, dbCfg.Port, dbCfg.Database)
		response, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		switch strings.ToLower(strings.TrimSpace(response)) {
		case "yes", "y":
		default:
			slog.Info("Migration cancelled by user")
			return nil
		}
	}

	if err := migrate(connString); err != nil {
		return fmt.Errorf("failed to %s migrations: %w", action, err)
	}
	return nil
}
