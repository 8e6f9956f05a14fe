package app

import (
	"context"
	"log/slog"

	"github.com/Olprog59/go-microservice/internal/config"
	"github.com/Olprog59/go-microservice/internal/metrics"
	"github.com/Olprog59/go-microservice/internal/ports"
	"github.com/Olprog59/go-microservice/internal/repository"
	"github.com/Olprog59/go-microservice/internal/repository/db"
	"github.com/Olprog59/go-microservice/internal/service/auth"
	"github.com/Olprog59/go-microservice/migrations"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/do/v2"
)

// bootContext bounds blocking work done by providers (connect, ping)
type bootContext struct {
	context.Context
}

// Package registers every lazy service provider / Enregistre les fournisseurs de services
var Package = do.Package(
	do.Lazy(provideMetrics),
	do.Lazy(provideDatabase),
	do.Lazy(provideMigrator),
	do.Lazy(provideMetadataRepository),
	do.Lazy(provideVerifier),
	do.Lazy(provideBackupScheduler),
)

func newInjector(ctx context.Context, cfg *config.Config, opts Options) *do.RootScope {
	injector := do.New(Package)
	do.ProvideValue(injector, bootContext{ctx})
	do.ProvideValue(injector, cfg)
	do.ProvideValue(injector, opts.Logger)
	do.ProvideValue(injector, opts.Registry)
	return injector
}

func provideMetrics(i do.Injector) (*metrics.Metrics, error) {
	reg := do.MustInvoke[*prometheus.Registry](i)
	return metrics.NewMetrics(reg), nil
}

func provideDatabase(i do.Injector) (*db.Database, error) {
	ctx := do.MustInvoke[bootContext](i)
	cfg := do.MustInvoke[*config.Config](i)
	logger := do.MustInvoke[*slog.Logger](i)
	m := do.MustInvoke[*metrics.Metrics](i)

	dbConfig, err := db.NewDatabaseConfig(cfg.Database)
	if err != nil {
		return nil, err
	}

	database, err := db.Initialize(ctx, dbConfig, logger)
	if err != nil {
		return nil, err
	}
	database.SetObserver(m)

	if err := m.RegisterDBStats(database.SQL, string(database.Type)); err != nil {
		database.Close()
		return nil, err
	}
	return database, nil
}

func provideMigrator(i do.Injector) (*db.Migrator, error) {
	cfg := do.MustInvoke[*config.Config](i)
	logger := do.MustInvoke[*slog.Logger](i)
	database, err := do.Invoke[*db.Database](i)
	if err != nil {
		return nil, err
	}

	migrator, err := db.NewMigrator(database, db.MigrationSource{
		FS:   migrations.FS,
		Path: cfg.Database.MigrationsPath,
	}, logger)
	if err != nil {
		return nil, err
	}
	migrator.SetObserver(do.MustInvoke[*metrics.Metrics](i))
	return migrator, nil
}

func provideMetadataRepository(i do.Injector) (ports.MetadataRepository, error) {
	database, err := do.Invoke[*db.Database](i)
	if err != nil {
		return nil, err
	}
	adapter, err := repository.NewAdapter(database)
	if err != nil {
		return nil, err
	}
	return adapter.MetadataRepository(), nil
}

func provideVerifier(i do.Injector) (*auth.Verifier, error) {
	cfg := do.MustInvoke[*config.Config](i)
	return auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.JWTAudience)
}

func provideBackupScheduler(i do.Injector) (*BackupScheduler, error) {
	cfg := do.MustInvoke[*config.Config](i)
	logger := do.MustInvoke[*slog.Logger](i)
	database, err := do.Invoke[*db.Database](i)
	if err != nil {
		return nil, err
	}
	return NewBackupScheduler(database, cfg.Database.URL, cfg.Backup, do.MustInvoke[*metrics.Metrics](i), logger)
}
