package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/Olprog59/go-microservice/internal/config"
)

// DatabaseConfig holds database connection config / Contient la config de connexion BD
type DatabaseConfig struct {
	Type            DatabaseType
	URL             string
	User            string
	Password        string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
	Isolation       sql.IsolationLevel
	AutoCommit      bool
	PrepareStmt     bool
}

// NewDatabaseConfig converts the application settings into connection settings.
func NewDatabaseConfig(c config.DatabaseConfig) (DatabaseConfig, error) {
	dbType, err := ParseDatabaseType(c.Type)
	if err != nil {
		return DatabaseConfig{}, err
	}

	isolation, err := ParseIsolation(c.IsolationLevel)
	if err != nil {
		return DatabaseConfig{}, err
	}

	return DatabaseConfig{
		Type:            dbType,
		URL:             c.URL,
		User:            c.User,
		Password:        c.Password,
		MaxOpenConns:    c.MaxPoolSize,
		MaxIdleConns:    c.IdleConns(),
		ConnMaxIdleTime: c.IdleTimeout,
		ConnMaxLifetime: c.MaxLifetime,
		ConnectTimeout:  c.ConnectionTimeout,
		Isolation:       isolation,
		AutoCommit:      c.AutoCommit,
		PrepareStmt:     c.CachePreparedStatements,
	}, nil
}

// ParseIsolation maps REPEATABLE_READ style names, with or without the
// TRANSACTION_ prefix, onto database/sql isolation levels.
func ParseIsolation(name string) (sql.IsolationLevel, error) {
	switch config.NormalizeIsolation(name) {
	case "", "DEFAULT":
		return sql.LevelDefault, nil
	case "READ_UNCOMMITTED":
		return sql.LevelReadUncommitted, nil
	case "READ_COMMITTED":
		return sql.LevelReadCommitted, nil
	case "REPEATABLE_READ":
		return sql.LevelRepeatableRead, nil
	case "SERIALIZABLE":
		return sql.LevelSerializable, nil
	default:
		return sql.LevelDefault, fmt.Errorf("unsupported isolation level: %q", name)
	}
}
