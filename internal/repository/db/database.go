// Package db bootstraps the relational database: connection pool, ORM
// session, schema migrations and the context-bound transaction helper.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
)

// Database bundles the pooled connection and the ORM session built on top of it.
type Database struct {
	SQL  *sql.DB
	ORM  *gorm.DB
	Type DatabaseType

	isolation sql.IsolationLevel
	observer  TxObserver
	logger    *slog.Logger
}

// Initialize opens the pool, verifies it within the connect timeout and
// attaches the ORM. The returned Database owns the pool.
func Initialize(ctx context.Context, config DatabaseConfig, logger *slog.Logger) (*Database, error) {
	if logger == nil {
		logger = slog.Default()
	}

	initializer, err := NewDatabaseInitializer(config.Type)
	if err != nil {
		return nil, err
	}

	sqlDB, err := initializer.Initialize(ctx, config)
	if err != nil {
		return nil, err
	}

	database, err := Open(sqlDB, initializer, config, logger)
	if err != nil {
		sqlDB.Close()
		return nil, err
	}

	version, err := initializer.Version(ctx, sqlDB)
	if err != nil {
		logger.Warn("could not read database server version", "error", err)
	}

	stats := sqlDB.Stats()
	logger.Info("Database initialized successfully",
		"type", config.Type,
		"server_version", version,
		"max_open_conns", stats.MaxOpenConnections,
		"idle_conns", config.MaxIdleConns,
		"isolation", config.Isolation.String(),
	)

	return database, nil
}

// Open attaches the ORM to an already configured pool.
func Open(sqlDB *sql.DB, initializer DatabaseInitializer, config DatabaseConfig, logger *slog.Logger) (*Database, error) {
	if logger == nil {
		logger = slog.Default()
	}

	orm, err := gorm.Open(initializer.Dialector(sqlDB), &gorm.Config{
		// Writes are grouped explicitly through Transaction when auto-commit is off
		SkipDefaultTransaction: !config.AutoCommit,
		PrepareStmt:            config.PrepareStmt,
		Logger:                 newGormLogger(logger, gormLogLevel(logger)),
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open orm session: %w", err)
	}

	isolation := config.Isolation
	if initializer.Type() == SQLite {
		// SQLite transactions are always serializable
		isolation = sql.LevelDefault
	}

	return &Database{
		SQL:       sqlDB,
		ORM:       orm,
		Type:      initializer.Type(),
		isolation: isolation,
		logger:    logger,
	}, nil
}

// SetObserver registers the transaction observer, typically the metrics collector.
func (d *Database) SetObserver(o TxObserver) {
	d.observer = o
}

// PingContext checks that a connection can be obtained from the pool.
func (d *Database) PingContext(ctx context.Context) error {
	return d.SQL.PingContext(ctx)
}

// CheckHealth pings the pool then runs SELECT 1 on a pooled connection.
func (d *Database) CheckHealth(ctx context.Context) error {
	if err := d.SQL.PingContext(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	var one int
	if err := d.SQL.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("select 1: %w", err)
	}
	return nil
}

// Stats returns the pool statistics.
func (d *Database) Stats() sql.DBStats {
	return d.SQL.Stats()
}

// Shutdown closes the database when the dependency injector shuts down.
func (d *Database) Shutdown() error {
	return d.Close()
}

// Close releases the ORM prepared statements and the pool.
func (d *Database) Close() error {
	if d == nil || d.SQL == nil {
		return nil
	}
	if stmtDB, ok := d.ORM.ConnPool.(*gorm.PreparedStmtDB); ok {
		stmtDB.Close()
	}
	return d.SQL.Close()
}
