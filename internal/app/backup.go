package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Olprog59/go-microservice/internal/config"
	"github.com/Olprog59/go-microservice/internal/metrics"
	"github.com/Olprog59/go-microservice/internal/repository/db"
	"github.com/robfig/cron/v3"
)

const backupTask = "database_backup"

// ErrBackupUnsupported is returned for databases that cannot be copied with VACUUM INTO
var ErrBackupUnsupported = errors.New("backups are only supported for file based sqlite databases")

// BackupScheduler copies a sqlite database on a cron schedule and prunes old copies
// Sauvegarde une base sqlite selon un planning cron et supprime les anciennes copies
type BackupScheduler struct {
	database *db.Database
	dbFile   string
	conf     config.BackupConfig
	metrics  *metrics.Metrics
	logger   *slog.Logger
	cron     *cron.Cron
	mu       sync.Mutex // serializes RunOnce
	now      func() time.Time
}

// NewBackupScheduler validates the schedule and the database kind.
func NewBackupScheduler(database *db.Database, dbURL string, conf config.BackupConfig, m *metrics.Metrics, logger *slog.Logger) (*BackupScheduler, error) {
	if database.Type != db.SQLite {
		return nil, ErrBackupUnsupported
	}
	dbFile := db.SQLiteFilePath(dbURL)
	if dbFile == "" {
		return nil, fmt.Errorf("%w: in-memory database", ErrBackupUnsupported)
	}
	if _, err := cron.ParseStandard(conf.Schedule); err != nil {
		return nil, fmt.Errorf("invalid backup schedule %q: %w", conf.Schedule, err)
	}

	logger = logger.With("component", "backup")
	cronLogger := cronLogger{logger: logger}

	return &BackupScheduler{
		database: database,
		dbFile:   dbFile,
		conf:     conf,
		metrics:  m,
		logger:   logger,
		cron: cron.New(
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		now: time.Now,
	}, nil
}

// Start registers the backup job and starts the cron runner / Démarre la routine de backup automatique
func (s *BackupScheduler) Start() error {
	_, err := s.cron.AddFunc(s.conf.Schedule, func() {
		if _, err := s.RunOnce(context.Background()); err != nil {
			s.logger.Error("Backup failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule backup: %w", err)
	}

	s.cron.Start()
	if s.metrics != nil {
		s.metrics.SetBackgroundTaskStatus(backupTask, true)
	}
	s.logger.Info("Automatic database backup enabled",
		"schedule", s.conf.Schedule,
		"retention_days", s.conf.RetentionDays,
		"path", s.conf.Path,
	)
	return nil
}

// Shutdown stops the scheduler and waits for a running backup.
func (s *BackupScheduler) Shutdown() {
	<-s.cron.Stop().Done()
	if s.metrics != nil {
		s.metrics.SetBackgroundTaskStatus(backupTask, false)
	}
}

// RunOnce creates one backup then removes expired ones. It returns the backup path.
func (s *BackupScheduler) RunOnce(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.performBackup(ctx)
	if s.metrics != nil {
		status := "success"
		if err != nil {
			status = "failure"
		}
		s.metrics.RecordBackup(status)
	}
	if err != nil {
		return "", err
	}

	// Clean old backups after creating new one / Nettoie les anciens backups après création
	if err := s.cleanOldBackups(); err != nil {
		s.logger.Warn("Backup cleanup failed", "error", err)
	}
	return path, nil
}

// performBackup creates database backup / Crée un backup de la base de données
func (s *BackupScheduler) performBackup(ctx context.Context) (string, error) {
	if err := os.MkdirAll(s.conf.Path, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	timestamp := s.now().Format("20060102-150405")
	backupFilename := fmt.Sprintf("%s.backup-%s.db", filepath.Base(s.dbFile), timestamp)
	backupPath := filepath.Join(s.conf.Path, backupFilename)

	// VACUUM INTO fails when the target file already exists
	if _, err := s.database.SQL.ExecContext(ctx, "VACUUM INTO ?", backupPath); err != nil {
		return "", fmt.Errorf("backup execution failed: %w", err)
	}

	s.logger.Info("Database backup created", "path", backupPath)
	return backupPath, nil
}

// cleanOldBackups removes old backups / Supprime les anciens backups
func (s *BackupScheduler) cleanOldBackups() error {
	if s.conf.RetentionDays <= 0 {
		return nil
	}

	cutoffTime := s.now().AddDate(0, 0, -s.conf.RetentionDays)

	entries, err := os.ReadDir(s.conf.Path)
	if err != nil {
		return fmt.Errorf("failed to read backup directory: %w", err)
	}

	prefix := filepath.Base(s.dbFile) + ".backup-"
	deletedCount := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) || !strings.HasSuffix(entry.Name(), ".db") {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			s.logger.Warn("Failed to stat backup", "file", entry.Name(), "error", err)
			continue
		}
		if !info.ModTime().Before(cutoffTime) {
			continue
		}

		if err := os.Remove(filepath.Join(s.conf.Path, entry.Name())); err != nil {
			s.logger.Warn("Failed to delete old backup", "file", entry.Name(), "error", err)
			continue
		}
		deletedCount++
	}

	if deletedCount > 0 {
		s.logger.Info("Cleaned up old backups", "deleted", deletedCount)
	}
	return nil
}

// cronLogger routes robfig/cron logs to slog
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
