package web

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Olprog59/go-microservice/api"
	"github.com/Olprog59/go-microservice/internal/config"
	"github.com/Olprog59/go-microservice/internal/metrics"
	"github.com/Olprog59/go-microservice/internal/mocks"
	"github.com/Olprog59/go-microservice/internal/service/auth"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

const testSecret = "web-test-secret-key-with-at-least-32-bytes"

type testEnv struct {
	conf     *config.Config
	health   *mocks.MockHealthChecker
	schema   *mocks.MockSchemaVersioner
	metadata *mocks.MockMetadataRepository
	verifier *auth.Verifier
	metrics  *metrics.Metrics
	handler  http.Handler
}

func testConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		Server:      config.ServerConfig{Port: "0", RequestTimeout: 5 * time.Second},
		Auth: config.AuthConfig{
			JWTSecret:   testSecret,
			JWTIssuer:   "test-issuer",
			JWTAudience: "test-audience",
			JWTRealm:    "test-realm",
		},
		Cors: config.CorsConfig{
			AllowedOrigins:   []string{"http://allowed.example"},
			AllowedMethods:   []string{"GET", "POST"},
			AllowedHeaders:   []string{"Authorization", "Content-Type"},
			AllowCredentials: true,
		},
		RateLimiter: config.RateLimiterConfig{Enabled: false, RPS: 10, Burst: 20},
		Metrics:     config.MetricsConfig{Enabled: true, Path: "/metrics"},
		Docs:        config.DocsConfig{Enabled: true, Title: "Test API"},
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestEnv builds the full router over mocks; mutate may adjust the config first.
func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	conf := testConfig()
	if mutate != nil {
		mutate(conf)
	}

	verifier, err := auth.NewVerifier(conf.Auth.JWTSecret, conf.Auth.JWTIssuer, conf.Auth.JWTAudience)
	require.NoError(t, err)

	doc, err := api.Load(context.Background())
	require.NoError(t, err)

	env := &testEnv{
		conf:     conf,
		health:   &mocks.MockHealthChecker{},
		schema:   &mocks.MockSchemaVersioner{Current: 2},
		metadata: mocks.NewMockMetadataRepository(),
		verifier: verifier,
		metrics:  metrics.NewMetrics(prometheus.NewRegistry()),
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	h := NewHandler(Dependencies{
		Config:   conf,
		Logger:   discardLogger(),
		Metrics:  env.metrics,
		Health:   env.health,
		Schema:   env.schema,
		Metadata: env.metadata,
		Verifier: verifier,
		OpenAPI:  doc,
		Version:  "1.2.3",
	})
	env.handler = NewMux(ctx, h)
	return env
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) get(path string) *httptest.ResponseRecorder {
	return e.do(httptest.NewRequest(http.MethodGet, path, nil))
}
