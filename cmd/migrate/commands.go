package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/Olprog59/go-microservice/internal/config"
	"github.com/Olprog59/go-microservice/internal/logging"
	"github.com/Olprog59/go-microservice/internal/repository/db"
	"github.com/Olprog59/go-microservice/migrations"
	"github.com/spf13/cobra"
)

// session holds an open pool and its migrator for the duration of one command.
type session struct {
	logger   *slog.Logger
	database *db.Database
	migrator *db.Migrator
	closeLog func() error
}

func (s *session) Close() error {
	return errors.Join(s.database.Close(), s.closeLog())
}

// openSession loads the configuration from dir and connects to the database.
func openSession(ctx context.Context, cmd *cobra.Command, dir string) (*session, error) {
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, err
	}

	logger, closeLog := logging.Setup(cfg.Logging, cfg.IsProduction(), cmd.ErrOrStderr())

	dbConfig, err := db.NewDatabaseConfig(cfg.Database)
	if err != nil {
		_ = closeLog()
		return nil, err
	}

	database, err := db.Initialize(ctx, dbConfig, logger)
	if err != nil {
		_ = closeLog()
		return nil, fmt.Errorf("database init: %w", err)
	}

	migrator, err := db.NewMigrator(database, db.MigrationSource{
		FS:   migrations.FS,
		Path: cfg.Database.MigrationsPath,
	}, logger)
	if err != nil {
		_ = database.Close()
		_ = closeLog()
		return nil, fmt.Errorf("migrator init: %w", err)
	}

	return &session{logger: logger, database: database, migrator: migrator, closeLog: closeLog}, nil
}

// newRootCmd builds the migrate command tree / Construit l'arbre de commandes
func newRootCmd() *cobra.Command {
	var configDir string

	rootCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database schema migration tool",
		Long: `migrate applies the SQL migrations embedded in the service binary.
The connection settings come from config.yaml, .env and APP_* environment
variables, exactly as for the server.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", ".", "directory holding config.yaml and .env")

	// withSession wraps a command body with session setup and teardown
	withSession := func(fn func(cmd *cobra.Command, s *session, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) (err error) {
			s, err := openSession(cmd.Context(), cmd, configDir)
			if err != nil {
				return err
			}
			defer func() {
				err = errors.Join(err, s.Close())
			}()
			if err := fn(cmd, s, args); err != nil {
				return err
			}
			return printVersion(cmd, s)
		}
	}

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply every pending migration",
			Args:  cobra.NoArgs,
			RunE: withSession(func(cmd *cobra.Command, s *session, _ []string) error {
				return s.migrator.Up(cmd.Context())
			}),
		},
		&cobra.Command{
			Use:   "down [steps]",
			Short: "Revert the last migrations, one by default",
			Args:  cobra.MaximumNArgs(1),
			RunE: withSession(func(cmd *cobra.Command, s *session, args []string) error {
				steps := 1
				if len(args) == 1 {
					n, err := strconv.Atoi(args[0])
					if err != nil {
						return fmt.Errorf("invalid steps %q: %w", args[0], err)
					}
					steps = n
				}
				return s.migrator.Down(cmd.Context(), steps)
			}),
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the applied schema version",
			Args:  cobra.NoArgs,
			RunE: withSession(func(*cobra.Command, *session, []string) error {
				return nil
			}),
		},
		&cobra.Command{
			Use:   "force <version>",
			Short: "Set the schema version without running migrations and clear the dirty flag",
			Args:  cobra.ExactArgs(1),
			RunE: withSession(func(cmd *cobra.Command, s *session, args []string) error {
				v, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid version %q: %w", args[0], err)
				}
				s.logger.Warn("⚠️  Forcing schema version", "version", v)
				return s.migrator.Force(cmd.Context(), v)
			}),
		},
	)

	return rootCmd
}

func printVersion(cmd *cobra.Command, s *session) error {
	version, dirty, err := s.migrator.Version(cmd.Context())
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "version: %d\ndirty: %t\n", version, dirty)
	return err
}
