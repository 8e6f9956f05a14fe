package web

import (
	"log/slog"

	"github.com/Olprog59/go-microservice/internal/app"
	"github.com/Olprog59/go-microservice/internal/config"
	"github.com/Olprog59/go-microservice/internal/metrics"
	"github.com/Olprog59/go-microservice/internal/ports"
	"github.com/Olprog59/go-microservice/internal/service/auth"
	"github.com/getkin/kin-openapi/openapi3"
)

// Dependencies lists what the HTTP layer needs from the application.
type Dependencies struct {
	Config   *config.Config
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Health   ports.HealthChecker
	Schema   ports.SchemaVersioner
	Metadata ports.MetadataRepository
	Verifier *auth.Verifier
	OpenAPI  *openapi3.T
	Version  string
}

// DependenciesFrom extracts the HTTP dependencies from the container.
func DependenciesFrom(c *app.Container, doc *openapi3.T) Dependencies {
	return Dependencies{
		Config:   c.Config,
		Logger:   c.Logger,
		Metrics:  c.Metrics,
		Health:   c.DB,
		Schema:   c.Migrator,
		Metadata: c.Metadata,
		Verifier: c.Verifier,
		OpenAPI:  doc,
		Version:  c.Version,
	}
}

// Handler carries the dependencies shared by every HTTP handler.
type Handler struct {
	deps   Dependencies
	logger *slog.Logger
}

// NewHandler creates and returns a new Handler instance / Crée un nouveau Handler
func NewHandler(deps Dependencies) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{deps: deps, logger: logger}
}
