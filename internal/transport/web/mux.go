package web

import (
	"context"
	"net/http"
)

// NewMux creates and configures the HTTP router / Crée et configure le routeur HTTP
// Background work started here (rate limiter cleanup) stops when ctx is done.
func NewMux(ctx context.Context, h *Handler) http.Handler {
	conf := h.deps.Config
	mux := http.NewServeMux()
	mw := NewMiddleware(ctx, conf, h.deps.Metrics, h.deps.Verifier, h.logger)

	// Probes stay outside authentication and rate limiting
	mux.HandleFunc("GET /health", h.HealthCheck)
	mux.HandleFunc("GET /readiness", h.ReadinessCheck)
	mux.HandleFunc("GET /version", h.Version)

	if conf.Metrics.Enabled && h.deps.Metrics != nil {
		mux.Handle("GET "+conf.Metrics.Path, h.deps.Metrics.Handler())
	}

	if conf.Docs.Enabled {
		mux.HandleFunc("GET /openapi.json", h.OpenAPIJSON)
		mux.HandleFunc("GET /docs", h.Docs)
	}

	validate := mw.OpenAPIValidator(h.deps.OpenAPI)

	mux.Handle("GET /api/v1/me", chain(h.Me, validate, mw.Auth))

	// Unknown /api routes still get a validator answer instead of the mux 404
	mux.Handle("/api/", chain(func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, r, http.StatusNotFound, "no such route")
	}, validate))

	// Global middlewares - applied in reverse order / Middlewares globaux appliqués en ordre inverse
	var handler http.Handler = mux
	handler = mw.MetricsMiddleware(handler)
	handler = mw.RateLimit(handler)
	handler = mw.SecurityHeaders(handler)
	handler = mw.Cors(handler)
	handler = Timeout(conf.Server.RequestTimeout)(handler)
	handler = mw.Recover(handler)
	handler = mw.Logging(handler)
	handler = mw.RequestID(handler) // RequestID first - generates ID for all middleware

	return handler
}

// chain applies middleware to HTTP handler / Applique les middlewares au gestionnaire HTTP
func chain(f http.HandlerFunc, middlewares ...func(http.Handler) http.Handler) http.Handler {
	var handler http.Handler = f

	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}

	return handler
}
