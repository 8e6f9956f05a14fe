package db

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// MigrationObserver is told the schema version after every migration command.
type MigrationObserver interface {
	SetSchemaVersion(version uint, dirty bool)
}

// MigrationSource locates the SQL migration files. Path, when set, is a
// directory on disk holding the files for the configured dialect; otherwise
// FS must contain one directory per dialect (postgres, mysql, sqlite).
type MigrationSource struct {
	FS   fs.FS
	Path string
}

// Migrator applies schema migrations on the shared pool.
type Migrator struct {
	db       *Database
	factory  MigrationDriverFactory
	source   MigrationSource
	logger   *slog.Logger
	observer MigrationObserver
}

// NewMigrator creates a migrator for the database dialect.
func NewMigrator(database *Database, source MigrationSource, logger *slog.Logger) (*Migrator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if source.Path == "" && source.FS == nil {
		return nil, errors.New("no migration source configured")
	}

	factory, err := NewMigrationDriverRegistry().GetFactory(database.Type)
	if err != nil {
		return nil, err
	}

	return &Migrator{
		db:      database,
		factory: factory,
		source:  source,
		logger:  logger.With("component", "migrations"),
	}, nil
}

// SetObserver registers the schema version observer.
func (m *Migrator) SetObserver(o MigrationObserver) {
	m.observer = o
}

// Up applies all pending migrations. An already current schema is not an error.
func (m *Migrator) Up(ctx context.Context) error {
	err := m.run(ctx, func(mg *migrate.Migrate) error { return mg.Up() })
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		m.logger.Error("Failed to run database migrations", "error", err, "source", m.describeSource())
		return fmt.Errorf("run migrations: %w", err)
	}

	version, dirty, verr := m.Version(ctx)
	if verr != nil {
		return verr
	}
	m.logger.Info("Database migrations completed successfully",
		"version", version,
		"dirty", dirty,
		"changed", err == nil,
		"source", m.describeSource(),
	)
	return nil
}

// Down reverts the last steps migrations.
func (m *Migrator) Down(ctx context.Context, steps int) error {
	if steps <= 0 {
		return fmt.Errorf("down steps must be positive, got %d", steps)
	}
	return m.Steps(ctx, -steps)
}

// Steps migrates n versions up (n > 0) or down (n < 0).
func (m *Migrator) Steps(ctx context.Context, n int) error {
	if err := m.run(ctx, func(mg *migrate.Migrate) error { return mg.Steps(n) }); err != nil {
		return fmt.Errorf("migrate %d steps: %w", n, err)
	}
	m.logger.Info("migration steps applied", "steps", n)
	return nil
}

// Force records version as applied and clears the dirty flag without running anything.
func (m *Migrator) Force(ctx context.Context, version int) error {
	if err := m.run(ctx, func(mg *migrate.Migrate) error { return mg.Force(version) }); err != nil {
		return fmt.Errorf("force version %d: %w", version, err)
	}
	m.logger.Warn("migration version forced", "version", version)
	return nil
}

// Version returns the applied schema version; 0 means no migration has run.
func (m *Migrator) Version(ctx context.Context) (uint, bool, error) {
	var (
		version uint
		dirty   bool
	)
	err := m.run(ctx, func(mg *migrate.Migrate) error {
		var err error
		version, dirty, err = mg.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			return nil
		}
		return err
	})
	if err != nil {
		return 0, false, fmt.Errorf("read schema version: %w", err)
	}
	return version, dirty, nil
}

func (m *Migrator) run(ctx context.Context, op func(*migrate.Migrate) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	mg, release, err := m.instance(ctx)
	if err != nil {
		return err
	}
	defer release()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			select {
			case mg.GracefulStop <- true:
			default:
			}
		case <-done:
		}
	}()

	opErr := op(mg)

	if m.observer != nil {
		if version, dirty, err := mg.Version(); err == nil {
			m.observer.SetSchemaVersion(version, dirty)
		} else if errors.Is(err, migrate.ErrNilVersion) {
			m.observer.SetSchemaVersion(0, false)
		}
	}

	return opErr
}

func (m *Migrator) instance(ctx context.Context) (*migrate.Migrate, func(), error) {
	driver, err := m.factory.CreateDriver(ctx, m.db.SQL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create migration driver: %w", err)
	}

	var mg *migrate.Migrate
	if m.source.Path != "" {
		mg, err = migrate.NewWithDatabaseInstance("file://"+m.source.Path, m.factory.DriverName(), driver)
	} else {
		src, serr := iofs.New(m.source.FS, string(m.db.Type))
		if serr != nil {
			err = fmt.Errorf("open embedded migrations: %w", serr)
		} else {
			mg, err = migrate.NewWithInstance("iofs", src, m.factory.DriverName(), driver)
		}
	}
	if err != nil {
		if !m.factory.ClosesPool() {
			driver.Close()
		}
		return nil, nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	mg.Log = &migrateLogger{logger: m.logger}

	release := func() {
		// The sqlite driver closes the pool it wraps
		if m.factory.ClosesPool() {
			return
		}
		if srcErr, dbErr := mg.Close(); srcErr != nil || dbErr != nil {
			m.logger.Warn("failed to release migration instance", "source_error", srcErr, "db_error", dbErr)
		}
	}
	return mg, release, nil
}

func (m *Migrator) describeSource() string {
	if m.source.Path != "" {
		return "file://" + m.source.Path
	}
	return "embedded:" + string(m.db.Type)
}

// migrateLogger adapts slog to migrate.Logger.
type migrateLogger struct {
	logger *slog.Logger
}

func (l *migrateLogger) Printf(format string, v ...any) {
	l.logger.Info(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l *migrateLogger) Verbose() bool {
	return false
}
