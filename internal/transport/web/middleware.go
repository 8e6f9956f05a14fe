package web

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/Olprog59/go-microservice/internal/config"
	"github.com/Olprog59/go-microservice/internal/metrics"
	"github.com/Olprog59/go-microservice/internal/service/auth"
	"github.com/google/uuid"
)

const (
	bearerPrefix       = "Bearer "
	RequestIDHeader    = "X-Request-ID"
	maxRequestIDLength = 128
)

// redactedHeaders are never written to the logs
var redactedHeaders = []string{"Authorization", "Cookie", "Set-Cookie", "X-Api-Key"}

// Middleware holds middleware configuration and dependencies / Contient la configuration middleware
type Middleware struct {
	conf     *config.Config
	metrics  *metrics.Metrics
	verifier *auth.Verifier
	logger   *slog.Logger
	limiter  *RateLimiter
}

// NewMiddleware creates middleware with its rate limiter / Crée le middleware avec son limiteur
// The limiter cleanup goroutine stops when ctx is done.
func NewMiddleware(ctx context.Context, conf *config.Config, m *metrics.Metrics, verifier *auth.Verifier, logger *slog.Logger) *Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	mw := &Middleware{
		conf:     conf,
		metrics:  m,
		verifier: verifier,
		logger:   logger,
	}

	if conf.RateLimiter.Enabled {
		mw.limiter = NewRateLimiter(ctx, conf.RateLimiter.RPS, conf.RateLimiter.Burst)
	}

	return mw
}

// responseWriter wraps ResponseWriter to capture status / Encapsule ResponseWriter pour capturer le statut
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	if rw, ok := w.(*responseWriter); ok {
		return rw
	}
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

// WriteHeader captures status code / Capture le code de statut
func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijacking not supported")
	}
	return h.Hijack()
}

// RequestID propagates or generates a unique request ID / Génère un ID unique pour la requête
func (m *Middleware) RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if !validRequestID(requestID) {
			requestID = uuid.New().String()
		}

		w.Header().Set(RequestIDHeader, requestID)

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		ctx = context.WithValue(ctx, loggerKey, m.logger.With("request_id", requestID))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLength {
		return false
	}
	for _, c := range id {
		if c < 0x21 || c > 0x7e {
			return false
		}
	}
	return true
}

// Logging logs HTTP requests and prevents token leaks / Enregistre les requêtes et prévient les fuites
func (m *Middleware) Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		logger := LoggerFromContext(r.Context(), m.logger)

		query := r.URL.Query()
		if query.Has("access_token") || strings.Contains(r.URL.RawQuery, "Bearer") {
			logger.Error("🚨 TOKEN LEAK DETECTED", "path", r.URL.Path, "remote", r.RemoteAddr)
			writeProblem(w, r, http.StatusForbidden, "credentials must not be sent in the query string")
			return
		}

		if logger.Enabled(r.Context(), slog.LevelDebug) {
			logger.Debug("Request", "method", r.Method, "path", r.URL.Path, "headers", redactHeaders(r.Header))
		}

		rw := newResponseWriter(w)
		next.ServeHTTP(rw, r)

		level := slog.LevelInfo
		if rw.statusCode >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.Log(r.Context(), level, "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.statusCode,
			"remote", r.RemoteAddr,
			"duration", time.Since(start),
		)
	})
}

func redactHeaders(src http.Header) http.Header {
	headers := src.Clone()
	for _, name := range redactedHeaders {
		values, ok := headers[http.CanonicalHeaderKey(name)]
		if !ok {
			continue
		}
		n := 0
		for _, v := range values {
			n += len(v)
		}
		headers[http.CanonicalHeaderKey(name)] = []string{fmt.Sprintf("[REDACTED - %d bytes]", n)}
	}
	return headers
}

// Recover turns a panic into a 500 problem response / Transforme un panic en réponse 500
func (m *Middleware) Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			LoggerFromContext(r.Context(), m.logger).Error("Panic while serving request",
				"panic", fmt.Sprint(rec),
				"path", r.URL.Path,
				"stack", string(debug.Stack()),
			)
			writeProblem(w, r, http.StatusInternalServerError, "internal server error")
		}()
		next.ServeHTTP(w, r)
	})
}

// Timeout bounds the request duration / Ajoute un timeout aux requêtes
func Timeout(duration time.Duration) func(http.Handler) http.Handler {
	body := `{"type":"` + problemTypeBase + `/503","title":"Service Unavailable","status":503,"detail":"request timeout"}`
	return func(next http.Handler) http.Handler {
		if duration <= 0 {
			return next
		}
		h := http.TimeoutHandler(next, duration, body)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h.ServeHTTP(&timeoutWriter{ResponseWriter: w}, r)
		})
	}
}

// timeoutWriter labels the 503 body written by http.TimeoutHandler, which
// sets no Content-Type of its own.
type timeoutWriter struct {
	http.ResponseWriter
}

func (w *timeoutWriter) WriteHeader(code int) {
	if code == http.StatusServiceUnavailable && w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", problemContentType)
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *timeoutWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// MetricsMiddleware tracks HTTP request metrics / Suit les métriques des requêtes HTTP
func (m *Middleware) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.metrics == nil {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		m.metrics.IncrementActiveConnections()
		defer m.metrics.DecrementActiveConnections()

		rw := newResponseWriter(w)
		next.ServeHTTP(rw, r)

		// The matched pattern keeps label cardinality bounded
		path := r.Pattern
		if path == "" {
			path = "unmatched"
		} else if _, p, ok := strings.Cut(path, " "); ok {
			path = p
		}
		m.metrics.RecordHTTPRequest(r.Method, path, rw.statusCode)
		m.metrics.RecordHTTPDuration(r.Method, path, time.Since(start))
	})
}

// Cors handles CORS headers from configuration / Gère les en-têtes CORS
func (m *Middleware) Cors(next http.Handler) http.Handler {
	cors := m.conf.Cors
	methods := strings.Join(cors.AllowedMethods, ", ")
	headers := strings.Join(cors.AllowedHeaders, ", ")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Add("Vary", "Origin")
		allowed := originAllowed(origin, cors.AllowedOrigins)
		if allowed {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			if cors.AllowCredentials {
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}
			w.Header().Set("Access-Control-Expose-Headers", RequestIDHeader)
		}

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			if allowed {
				w.Header().Set("Access-Control-Allow-Methods", methods)
				w.Header().Set("Access-Control-Allow-Headers", headers)
				w.Header().Set("Access-Control-Max-Age", strconv.Itoa(int((10 * time.Minute).Seconds())))
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func originAllowed(origin string, allowed []string) bool {
	for _, candidate := range allowed {
		if candidate == "*" || strings.EqualFold(candidate, origin) {
			return true
		}
	}
	return false
}

// SecurityHeaders adds security headers / Ajoute les en-têtes de sécurité
func (m *Middleware) SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=()")

		// HTTPS is only guaranteed in production
		if m.conf.IsProduction() {
			w.Header().Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

// Auth validates bearer JWT tokens / Valide les tokens JWT
func (m *Middleware) Auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authorization := r.Header.Get("Authorization")
		if !strings.HasPrefix(authorization, bearerPrefix) {
			m.unauthorized(w, r, "", "missing bearer token")
			return
		}

		claims, err := m.verifier.Verify(strings.TrimSpace(strings.TrimPrefix(authorization, bearerPrefix)))
		if err != nil {
			if m.metrics != nil {
				m.metrics.RecordInvalidToken()
			}
			LoggerFromContext(r.Context(), m.logger).Warn("Rejected bearer token", "error", err)
			m.unauthorized(w, r, "invalid_token", "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Middleware) unauthorized(w http.ResponseWriter, r *http.Request, code, detail string) {
	challenge := fmt.Sprintf("Bearer realm=%q", m.conf.Auth.JWTRealm)
	if code != "" {
		challenge += fmt.Sprintf(", error=%q", code)
	}
	w.Header().Set("WWW-Authenticate", challenge)
	writeProblem(w, r, http.StatusUnauthorized, detail)
}
