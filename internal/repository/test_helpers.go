package repository

import (
	"context"
	"log/slog"
	"time"

	"github.com/Olprog59/go-microservice/internal/repository/db"
	"github.com/Olprog59/go-microservice/migrations"
)

// OpenSQLite opens a SQLite file at path with the embedded schema applied.
// Tests across packages use it to get a ready database / Utilisé par les tests
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*db.Database, error) {
	database, err := db.Initialize(ctx, db.DatabaseConfig{
		Type:           db.SQLite,
		URL:            path,
		MaxOpenConns:   4,
		ConnectTimeout: 5 * time.Second,
	}, logger)
	if err != nil {
		return nil, err
	}

	migrator, err := db.NewMigrator(database, db.MigrationSource{FS: migrations.FS}, logger)
	if err != nil {
		database.Close()
		return nil, err
	}
	if err := migrator.Up(ctx); err != nil {
		database.Close()
		return nil, err
	}
	return database, nil
}
