package web

import (
	"context"
	"log/slog"

	"github.com/Olprog59/go-microservice/internal/service/auth"
)

// ContextKey is a custom type used for creating context keys.
// Using a custom type for context keys helps prevent collisions between keys
// defined in different packages.
type ContextKey string

const (
	// ClaimsContextKey holds the verified *auth.Claims set by the Auth middleware
	ClaimsContextKey = ContextKey("claims")
	requestIDKey     = ContextKey("request_id")
	loggerKey        = ContextKey("logger")
)

// GetRequestID extracts request ID from context / Extrait l'ID de la requête du contexte
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// ClaimsFromContext returns the claims of the authenticated caller.
func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(ClaimsContextKey).(*auth.Claims)
	return claims, ok
}

// LoggerFromContext returns the request scoped logger, or fallback.
func LoggerFromContext(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return logger
	}
	return fallback
}
