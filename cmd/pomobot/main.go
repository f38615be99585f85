package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"pomodoro/bot/internal/config"
	"pomodoro/bot/internal/db"
	"pomodoro/bot/internal/logging"
	"pomodoro/bot/internal/repository"
	"pomodoro/bot/internal/service"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type globalFlags struct {
	envFile    string
	configFile string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "pomobot",
		Short:         "Pomodoro timer bot for Telegram and MAX",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	root.PersistentFlags().StringVar(&flags.configFile, "config", os.Getenv("CONFIG_FILE"), "optional YAML file with pomodoro and reset settings")

	root.AddCommand(newServeCmd(flags))
	root.AddCommand(newMigrateCmd(flags))
	root.AddCommand(newSweepCmd(flags))
	root.AddCommand(newHashPasswordCmd())
	return root
}

func loadConfig(flags *globalFlags) (config.Config, error) {
	if err := config.LoadDotEnv(flags.envFile); err != nil {
		return config.Config{}, fmt.Errorf("load %s: %w", flags.envFile, err)
	}
	cfg := config.Load()
	if flags.configFile != "" {
		if err := config.LoadFile(flags.configFile, &cfg); err != nil {
			return config.Config{}, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func openDatabase(ctx context.Context, cfg config.Config) (*sql.DB, []string, error) {
	database, err := db.OpenSQLite(cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	applied, err := db.RunMigrations(ctx, database, cfg.MigrationsDir)
	if err != nil {
		_ = database.Close()
		return nil, nil, fmt.Errorf("run migrations: %w", err)
	}
	return database, applied, nil
}

func newMigrateCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			database, applied, err := openDatabase(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer database.Close()

			if len(applied) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "database is up to date")
				return nil
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", strings.Join(applied, ", "))
			return nil
		},
	}
}

func newSweepCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Close sessions left open from earlier days",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			database, _, err := openDatabase(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer database.Close()

			loc, err := cfg.Location()
			if err != nil {
				return err
			}
			schedule, err := cfg.ResetSchedule()
			if err != nil {
				return err
			}
			job, err := service.NewResetJob(repository.NewSessionRepository(database), schedule, loc, nil, logging.New(cfg.Debug))
			if err != nil {
				return err
			}
			closed, err := job.RunNow(cmd.Context())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "closed %d sessions\n", closed)
			return nil
		},
	}
}

func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password <password>",
		Short: "Print a bcrypt hash for ADMIN_PASSWORD_HASH",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := service.HashPassword(args[0])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
