package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
)

// MigrationsTable records the applied schema version.
const MigrationsTable = "schema_migrations"

// DriverConfig holds driver metadata / Contient les métadonnées du driver
type DriverConfig[T any] struct {
	Name       string
	DBType     DatabaseType
	CreateFunc func(context.Context, *sql.DB, T) (database.Driver, error)
	NewConfig  func() T
	// ClosesPool is set when the driver's Close also closes the *sql.DB it wraps.
	// Drivers built on a dedicated *sql.Conn leave it false.
	ClosesPool bool
}

// MigrationDriver creates migration driver using generics / Crée un driver de migration avec génériques
type MigrationDriver[T any] struct {
	config DriverConfig[T]
}

// NewMigrationDriver creates migration driver / Crée un driver de migration
func NewMigrationDriver[T any](config DriverConfig[T]) *MigrationDriver[T] {
	return &MigrationDriver[T]{config: config}
}

// CreateDriver wraps the pool with a fresh driver config, drivers mutate it.
func (d *MigrationDriver[T]) CreateDriver(ctx context.Context, db *sql.DB) (database.Driver, error) {
	return d.config.CreateFunc(ctx, db, d.config.NewConfig())
}

// DriverName returns driver name / Retourne le nom du driver
func (d *MigrationDriver[T]) DriverName() string {
	return d.config.Name
}

// Type returns database type / Retourne le type de base de données
func (d *MigrationDriver[T]) Type() DatabaseType {
	return d.config.DBType
}

// ClosesPool reports whether closing the driver closes the shared pool.
func (d *MigrationDriver[T]) ClosesPool() bool {
	return d.config.ClosesPool
}

// MigrationDriverFactory creates migration drivers / Crée les drivers de migration
type MigrationDriverFactory interface {
	CreateDriver(ctx context.Context, db *sql.DB) (database.Driver, error)
	DriverName() string
	Type() DatabaseType
	ClosesPool() bool
}

// MigrationDriverRegistry manages migration drivers / Gère les drivers de migration
type MigrationDriverRegistry struct {
	factories map[DatabaseType]MigrationDriverFactory
}

// NewMigrationDriverRegistry creates registry / Crée le registre
func NewMigrationDriverRegistry() *MigrationDriverRegistry {
	registry := &MigrationDriverRegistry{
		factories: make(map[DatabaseType]MigrationDriverFactory),
	}

	registry.Register(SQLite, NewMigrationDriver(DriverConfig[*sqlite.Config]{
		Name:   "sqlite",
		DBType: SQLite,
		CreateFunc: func(_ context.Context, db *sql.DB, cfg *sqlite.Config) (database.Driver, error) {
			return sqlite.WithInstance(db, cfg)
		},
		NewConfig:  func() *sqlite.Config { return &sqlite.Config{MigrationsTable: MigrationsTable} },
		ClosesPool: true,
	}))

	registry.Register(MySQL, NewMigrationDriver(DriverConfig[*mysql.Config]{
		Name:   "mysql",
		DBType: MySQL,
		CreateFunc: onDedicatedConn(func(ctx context.Context, conn *sql.Conn, cfg *mysql.Config) (database.Driver, error) {
			return mysql.WithConnection(ctx, conn, cfg)
		}),
		NewConfig: func() *mysql.Config { return &mysql.Config{MigrationsTable: MigrationsTable} },
	}))

	registry.Register(PostgreSQL, NewMigrationDriver(DriverConfig[*postgres.Config]{
		Name:   "postgres",
		DBType: PostgreSQL,
		CreateFunc: onDedicatedConn(func(ctx context.Context, conn *sql.Conn, cfg *postgres.Config) (database.Driver, error) {
			return postgres.WithConnection(ctx, conn, cfg)
		}),
		NewConfig: func() *postgres.Config { return &postgres.Config{MigrationsTable: MigrationsTable} },
	}))

	return registry
}

// onDedicatedConn checks a connection out of the pool for the driver.
// Closing the driver returns the connection and leaves the pool open.
func onDedicatedConn[T any](open func(context.Context, *sql.Conn, T) (database.Driver, error)) func(context.Context, *sql.DB, T) (database.Driver, error) {
	return func(ctx context.Context, db *sql.DB, cfg T) (database.Driver, error) {
		conn, err := db.Conn(ctx)
		if err != nil {
			return nil, err
		}
		driver, err := open(ctx, conn, cfg)
		if err != nil {
			conn.Close()
			return nil, err
		}
		return driver, nil
	}
}

// Register adds migration driver factory / Ajoute une factory de migration
func (r *MigrationDriverRegistry) Register(dbType DatabaseType, factory MigrationDriverFactory) {
	r.factories[dbType] = factory
}

// GetFactory retrieves migration driver factory / Récupère la factory de migration
func (r *MigrationDriverRegistry) GetFactory(dbType DatabaseType) (MigrationDriverFactory, error) {
	factory, exists := r.factories[dbType]
	if !exists {
		return nil, fmt.Errorf("unsupported database type for migrations: %s", dbType)
	}
	return factory, nil
}
