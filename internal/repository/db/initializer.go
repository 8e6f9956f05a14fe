package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	_ "modernc.org/sqlite"
)

const (
	defaultMaxOpenConns   = 10
	defaultConnectTimeout = 30 * time.Second
)

// DatabaseInitializer opens and checks connections for one dialect / Initialise les connexions BD
type DatabaseInitializer interface {
	Initialize(ctx context.Context, config DatabaseConfig) (*sql.DB, error)
	Version(ctx context.Context, db *sql.DB) (string, error)
	Dialector(db *sql.DB) gorm.Dialector
	Type() DatabaseType
}

// InitializerRegistry manages database initializers / Gère les initialiseurs de BD
type InitializerRegistry[T DatabaseInitializer] struct {
	factories map[DatabaseType]func() T
}

// NewInitializerRegistry creates registry / Crée le registre
func NewInitializerRegistry[T DatabaseInitializer]() *InitializerRegistry[T] {
	return &InitializerRegistry[T]{
		factories: make(map[DatabaseType]func() T),
	}
}

// Register registers initializer factory / Enregistre une factory d'initialiseur
func (r *InitializerRegistry[T]) Register(dbType DatabaseType, factory func() T) {
	r.factories[dbType] = factory
}

// Get retrieves initializer / Récupère l'initialiseur
func (r *InitializerRegistry[T]) Get(dbType DatabaseType) (T, bool) {
	factory, exists := r.factories[dbType]
	if !exists {
		var zero T
		return zero, false
	}
	return factory(), true
}

var initializerRegistry = func() *InitializerRegistry[DatabaseInitializer] {
	registry := NewInitializerRegistry[DatabaseInitializer]()
	registry.Register(MySQL, func() DatabaseInitializer { return &mysqlInitializer{} })
	registry.Register(PostgreSQL, func() DatabaseInitializer { return &postgresInitializer{} })
	registry.Register(SQLite, func() DatabaseInitializer { return &sqliteInitializer{} })
	return registry
}()

// NewDatabaseInitializer creates initializer for database type / Crée l'initialiseur pour le type de BD
func NewDatabaseInitializer(dbType DatabaseType) (DatabaseInitializer, error) {
	initializer, ok := initializerRegistry.Get(dbType)
	if !ok {
		return nil, fmt.Errorf("unsupported database type: %q", dbType)
	}
	return initializer, nil
}

// ConfigurePool applies the pool limits. Idle connections never exceed the
// open limit and a zero duration leaves connections open indefinitely.
func ConfigurePool(db *sql.DB, config DatabaseConfig) {
	maxOpen := config.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = defaultMaxOpenConns
	}
	maxIdle := config.MaxIdleConns
	if maxIdle <= 0 || maxIdle > maxOpen {
		maxIdle = maxOpen
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
}

// baseInitializer provides common functionality / Fournit les fonctionnalités communes
type baseInitializer struct{}

func (b *baseInitializer) open(ctx context.Context, driver, dsn string, config DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", config.Type, err)
	}

	ConfigurePool(db, config)

	timeout := config.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s within %s: %w", config.Type, timeout, err)
	}

	return db, nil
}

func queryVersion(ctx context.Context, db *sql.DB, query string) (string, error) {
	var version string
	if err := db.QueryRowContext(ctx, query).Scan(&version); err != nil {
		return "", err
	}
	return version, nil
}

// MySQL initializer / Initialiseur MySQL
type mysqlInitializer struct {
	baseInitializer
}

func (i *mysqlInitializer) Initialize(ctx context.Context, config DatabaseConfig) (*sql.DB, error) {
	dsn, err := BuildDSN(config)
	if err != nil {
		return nil, err
	}
	return i.open(ctx, "mysql", dsn, config)
}

func (i *mysqlInitializer) Version(ctx context.Context, db *sql.DB) (string, error) {
	return queryVersion(ctx, db, "SELECT VERSION()")
}

func (i *mysqlInitializer) Dialector(db *sql.DB) gorm.Dialector {
	return mysql.New(mysql.Config{Conn: db})
}

func (i *mysqlInitializer) Type() DatabaseType {
	return MySQL
}

// PostgreSQL initializer / Initialiseur PostgreSQL
type postgresInitializer struct {
	baseInitializer
}

func (i *postgresInitializer) Initialize(ctx context.Context, config DatabaseConfig) (*sql.DB, error) {
	dsn, err := BuildDSN(config)
	if err != nil {
		return nil, err
	}
	return i.open(ctx, "postgres", dsn, config)
}

func (i *postgresInitializer) Version(ctx context.Context, db *sql.DB) (string, error) {
	return queryVersion(ctx, db, "SHOW server_version")
}

func (i *postgresInitializer) Dialector(db *sql.DB) gorm.Dialector {
	return postgres.New(postgres.Config{Conn: db})
}

func (i *postgresInitializer) Type() DatabaseType {
	return PostgreSQL
}

// SQLite initializer / Initialiseur SQLite
type sqliteInitializer struct {
	baseInitializer
}

func (i *sqliteInitializer) Initialize(ctx context.Context, config DatabaseConfig) (*sql.DB, error) {
	dsn, err := BuildDSN(config)
	if err != nil {
		return nil, err
	}

	if IsInMemorySQLite(dsn) {
		// Each connection would otherwise see its own empty database
		config.MaxOpenConns = 1
		config.MaxIdleConns = 1
		config.ConnMaxIdleTime = 0
		config.ConnMaxLifetime = 0
		slog.Warn("in-memory sqlite database, pool limited to one connection")
	}

	return i.open(ctx, "sqlite", dsn, config)
}

func (i *sqliteInitializer) Version(ctx context.Context, db *sql.DB) (string, error) {
	return queryVersion(ctx, db, "SELECT sqlite_version()")
}

func (i *sqliteInitializer) Dialector(db *sql.DB) gorm.Dialector {
	return &sqlite.Dialector{DriverName: "sqlite", Conn: db}
}

func (i *sqliteInitializer) Type() DatabaseType {
	return SQLite
}
