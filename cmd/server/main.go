package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Olprog59/go-microservice/api"
	"github.com/Olprog59/go-microservice/internal/app"
	"github.com/Olprog59/go-microservice/internal/config"
	"github.com/Olprog59/go-microservice/internal/logging"
	"github.com/Olprog59/go-microservice/internal/transport/web"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

// init configures standard logger flags / Configure les flags du logger standard
func init() {
	log.SetFlags(log.Lshortfile | log.Ldate | log.LstdFlags)
}

// main is the application entry point / Point d'entrée de l'application
func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

// run initializes and starts the HTTP server / Initialise et démarre le serveur HTTP
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger, closeLogs := logging.Setup(cfg.Logging, cfg.IsProduction(), os.Stdout)
	defer func() {
		if err := closeLogs(); err != nil {
			log.Printf("closing log sinks: %v", err)
		}
	}()
	slog.SetDefault(logger)

	logStartupInfo(logger, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	container, err := app.NewContainer(ctx, cfg, app.Options{Version: version, Logger: logger})
	if err != nil {
		return err
	}
	defer func() {
		if err := container.Close(); err != nil {
			logger.Error("❌ Shutdown reported errors", "error", err)
		}
	}()

	doc, err := api.Load(ctx)
	if err != nil {
		return fmt.Errorf("openapi: %w", err)
	}

	handler := web.NewHandler(web.DependenciesFrom(container, doc))
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      web.NewMux(ctx, handler),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("🌐 Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		logger.Info("🛑 Shutdown signal received")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	logger.Info("Shutting down server gracefully...", "timeout", cfg.Server.ShutdownTimeout)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	logger.Info("✅ Server stopped successfully")
	return nil
}

// logStartupInfo displays startup information / Affiche les informations de démarrage
func logStartupInfo(logger *slog.Logger, conf *config.Config) {
	logger.Info("🚀 Starting application",
		"version", version,
		"environment", conf.Environment,
		"port", conf.Server.Port,
		"database", conf.Database.Type,
	)

	if conf.RateLimiter.Enabled {
		logger.Info("🛡️  Rate limiter enabled",
			"rps", conf.RateLimiter.RPS,
			"burst", conf.RateLimiter.Burst,
		)
	} else {
		logger.Warn("⚠️  Rate limiter is DISABLED")
	}

	if !conf.Database.RunMigrations {
		logger.Warn("⚠️  Automatic migrations are DISABLED")
	}

	logger.Info("📊 Logging configured",
		"level", conf.Logging.Level,
		"format", conf.Logging.Format,
		"file", conf.Logging.FilePath,
		"loki", conf.Logging.LokiEnabled,
	)
}
