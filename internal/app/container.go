// Package app wires the application services together with a samber/do
// injector and owns their lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Olprog59/go-microservice/internal/config"
	"github.com/Olprog59/go-microservice/internal/domain"
	"github.com/Olprog59/go-microservice/internal/metrics"
	"github.com/Olprog59/go-microservice/internal/ports"
	"github.com/Olprog59/go-microservice/internal/repository/db"
	"github.com/Olprog59/go-microservice/internal/service/auth"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/do/v2"
)

const poolStatsInterval = 15 * time.Second

// Options tune the container for the caller.
type Options struct {
	// Version is reported by /version and stored as app.version
	Version string
	Logger  *slog.Logger
	// Registry receives every collector; nil creates a registry with the runtime collectors.
	Registry *prometheus.Registry
}

// Container holds application dependencies / Contient les dépendances de l'application
type Container struct {
	Config   *config.Config
	Logger   *slog.Logger
	Version  string
	Injector *do.RootScope
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	DB       *db.Database
	Migrator *db.Migrator
	Metadata ports.MetadataRepository
	Verifier *auth.Verifier
	Backups  *BackupScheduler // nil unless backups are enabled

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// NewContainer initializes application container / Initialise le conteneur de l'application
// Services are resolved in bootstrap order: metrics, database, migrations,
// repositories, boot metadata, verifier, backups. Any failure releases what
// was already opened.
func NewContainer(ctx context.Context, cfg *config.Config, opts Options) (*Container, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Registry == nil {
		opts.Registry = metrics.NewRegistry()
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}

	bgCtx, cancel := context.WithCancel(context.Background())
	c := &Container{
		Config:   cfg,
		Logger:   opts.Logger,
		Version:  opts.Version,
		Registry: opts.Registry,
		Injector: newInjector(ctx, cfg, opts),
		cancel:   cancel,
	}

	if err := c.bootstrap(ctx); err != nil {
		c.Close()
		return nil, err
	}

	c.startPoolStats(bgCtx)
	return c, nil
}

func (c *Container) bootstrap(ctx context.Context) error {
	var err error

	if c.Metrics, err = do.Invoke[*metrics.Metrics](c.Injector); err != nil {
		return fmt.Errorf("metrics init: %w", err)
	}

	if c.DB, err = do.Invoke[*db.Database](c.Injector); err != nil {
		return fmt.Errorf("database init: %w", err)
	}

	if c.Migrator, err = do.Invoke[*db.Migrator](c.Injector); err != nil {
		return fmt.Errorf("migrator init: %w", err)
	}
	if err := c.applyMigrations(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	if c.Metadata, err = do.Invoke[ports.MetadataRepository](c.Injector); err != nil {
		return fmt.Errorf("repository init: %w", err)
	}
	if err := c.recordBootMetadata(ctx); err != nil {
		return fmt.Errorf("boot metadata: %w", err)
	}

	if c.Verifier, err = do.Invoke[*auth.Verifier](c.Injector); err != nil {
		return fmt.Errorf("auth init: %w", err)
	}

	if c.Config.Backup.Enabled {
		if c.Backups, err = do.Invoke[*BackupScheduler](c.Injector); err != nil {
			return fmt.Errorf("backup init: %w", err)
		}
		if err := c.Backups.Start(); err != nil {
			return err
		}
	}

	return nil
}

// applyMigrations runs pending migrations, or only reads the version when disabled
func (c *Container) applyMigrations(ctx context.Context) error {
	if c.Config.Database.RunMigrations {
		return c.Migrator.Up(ctx)
	}

	version, dirty, err := c.Migrator.Version(ctx)
	if err != nil {
		return err
	}
	c.Logger.Info("Database migrations skipped", "version", version, "dirty", dirty)
	return nil
}

func (c *Container) recordBootMetadata(ctx context.Context) error {
	return c.Metadata.PutAll(ctx, map[string]string{
		domain.MetadataVersion:   c.Version,
		domain.MetadataStartedAt: time.Now().UTC().Format(time.RFC3339),
	})
}

// startPoolStats copies the pool statistics into the gauges / Met à jour les métriques de la BD
func (c *Container) startPoolStats(ctx context.Context) {
	c.Metrics.UpdateDatabaseStats(c.DB.Stats())
	c.Metrics.SetBackgroundTaskStatus("pool_stats", true)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.Metrics.SetBackgroundTaskStatus("pool_stats", false)

		ticker := time.NewTicker(poolStatsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.Metrics.UpdateDatabaseStats(c.DB.Stats())
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Close performs graceful shutdown / Effectue un arrêt gracieux
// Background tasks stop first, then the injector shuts services down in
// reverse dependency order, closing the pool last.
func (c *Container) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		c.wg.Wait()

		c.Logger.Info("Closing application services")
		if report := c.Injector.Shutdown(); report != nil && !report.Succeed {
			c.closeErr = errors.New(report.Error())
		}
	})
	return c.closeErr
}
