package app_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Olprog59/go-microservice/internal/app"
	"github.com/Olprog59/go-microservice/internal/config"
	"github.com/Olprog59/go-microservice/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sqliteConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Environment: "test",
		Database: config.DatabaseConfig{
			Type:                    "sqlite",
			URL:                     filepath.Join(dir, "app.db"),
			MaxPoolSize:             4,
			IsolationLevel:          "REPEATABLE_READ",
			ConnectionTimeout:       5 * time.Second,
			IdleTimeout:             time.Minute,
			MaxLifetime:             time.Hour,
			CachePreparedStatements: true,
			RunMigrations:           true,
		},
		Auth: config.AuthConfig{
			JWTSecret:   config.DefaultJWTSecret,
			JWTIssuer:   "go-microservice",
			JWTAudience: "go-microservice-api",
		},
		Backup: config.BackupConfig{
			Schedule:      "@daily",
			Path:          filepath.Join(dir, "backups"),
			RetentionDays: 7,
		},
	}
}

func newContainer(t *testing.T, cfg *config.Config) *app.Container {
	t.Helper()
	c, err := app.NewContainer(context.Background(), cfg, app.Options{
		Version:  "1.0.0-test",
		Logger:   discardLogger(),
		Registry: prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestNewContainer(t *testing.T) {
	c := newContainer(t, sqliteConfig(t))

	assert.NotNil(t, c.Config)
	assert.NotNil(t, c.Metrics)
	assert.NotNil(t, c.DB)
	assert.NotNil(t, c.Migrator)
	assert.NotNil(t, c.Metadata)
	assert.NotNil(t, c.Verifier)
	assert.Nil(t, c.Backups)

	ctx := context.Background()
	require.NoError(t, c.DB.CheckHealth(ctx))

	version, dirty, err := c.Migrator.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)
	assert.Equal(t, 2.0, testutil.ToFloat64(c.Metrics.SchemaVersion))

	entry, err := c.Metadata.Get(ctx, domain.MetadataVersion)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0-test", entry.Value)

	_, err = c.Metadata.Get(ctx, domain.MetadataStartedAt)
	require.NoError(t, err)

	// The boot metadata was written in one committed transaction
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Metrics.DBTransactions.WithLabelValues("committed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Metrics.BackgroundTasks.WithLabelValues("pool_stats")))
}

func TestNewContainer_RestartKeepsSchema(t *testing.T) {
	cfg := sqliteConfig(t)

	first, err := app.NewContainer(context.Background(), cfg, app.Options{Logger: discardLogger(), Registry: prometheus.NewRegistry()})
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second := newContainer(t, cfg)
	version, _, err := second.Migrator.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
}

func TestNewContainer_MigrationsDisabledFailsWithoutSchema(t *testing.T) {
	cfg := sqliteConfig(t)
	cfg.Database.RunMigrations = false

	_, err := app.NewContainer(context.Background(), cfg, app.Options{Logger: discardLogger(), Registry: prometheus.NewRegistry()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boot metadata")
}

func TestNewContainer_BadMigrationsPath(t *testing.T) {
	cfg := sqliteConfig(t)
	cfg.Database.MigrationsPath = filepath.Join(t.TempDir(), "missing")

	_, err := app.NewContainer(context.Background(), cfg, app.Options{Logger: discardLogger(), Registry: prometheus.NewRegistry()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migration failed")
}

func TestNewContainer_UnknownDatabaseType(t *testing.T) {
	cfg := sqliteConfig(t)
	cfg.Database.Type = "oracle"

	_, err := app.NewContainer(context.Background(), cfg, app.Options{Logger: discardLogger(), Registry: prometheus.NewRegistry()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database init")
}

func TestNewContainer_WeakSecret(t *testing.T) {
	cfg := sqliteConfig(t)
	cfg.Auth.JWTSecret = "short"

	_, err := app.NewContainer(context.Background(), cfg, app.Options{Logger: discardLogger(), Registry: prometheus.NewRegistry()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth init")
}

func TestContainerClose(t *testing.T) {
	c, err := app.NewContainer(context.Background(), sqliteConfig(t), app.Options{Logger: discardLogger(), Registry: prometheus.NewRegistry()})
	require.NoError(t, err)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close(), "Close is idempotent")
	assert.Error(t, c.DB.SQL.Ping(), "the pool is closed")
	assert.Equal(t, 0.0, testutil.ToFloat64(c.Metrics.BackgroundTasks.WithLabelValues("pool_stats")))
}

func TestBackupEnabled(t *testing.T) {
	cfg := sqliteConfig(t)
	cfg.Backup.Enabled = true

	c := newContainer(t, cfg)
	require.NotNil(t, c.Backups)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Metrics.BackgroundTasks.WithLabelValues("database_backup")))

	path, err := c.Backups.RunOnce(context.Background())
	require.NoError(t, err)
	assert.FileExists(t, path)
	assert.Contains(t, filepath.Base(path), "app.db.backup-")
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Metrics.Backups.WithLabelValues("success")))
}

func TestBackupRetention(t *testing.T) {
	cfg := sqliteConfig(t)
	cfg.Backup.Enabled = true
	c := newContainer(t, cfg)

	require.NoError(t, os.MkdirAll(cfg.Backup.Path, 0o755))
	old := filepath.Join(cfg.Backup.Path, "app.db.backup-20000101-000000.db")
	unrelated := filepath.Join(cfg.Backup.Path, "notes.txt")
	require.NoError(t, os.WriteFile(old, []byte("old"), 0o644))
	require.NoError(t, os.WriteFile(unrelated, []byte("keep"), 0o644))
	ancient := time.Now().AddDate(0, 0, -30)
	require.NoError(t, os.Chtimes(old, ancient, ancient))
	require.NoError(t, os.Chtimes(unrelated, ancient, ancient))

	path, err := c.Backups.RunOnce(context.Background())
	require.NoError(t, err)

	assert.FileExists(t, path)
	assert.NoFileExists(t, old)
	assert.FileExists(t, unrelated)
}

func TestBackupInvalidSchedule(t *testing.T) {
	cfg := sqliteConfig(t)
	cfg.Backup.Enabled = true
	cfg.Backup.Schedule = "every now and then"

	_, err := app.NewContainer(context.Background(), cfg, app.Options{Logger: discardLogger(), Registry: prometheus.NewRegistry()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid backup schedule")
}
