package logging

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLokiSink_PeriodicFlushAfterCloseStaysStopped(t *testing.T) {
	var pushes atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pushes.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	handler := NewLokiHandler(server.URL, nil, 10, slog.LevelInfo)
	slog.New(handler).Info("pending")
	require.NoError(t, handler.Close())
	assert.Equal(t, int32(1), pushes.Load())

	// A tick racing with Close must not schedule another one
	handler.sink.periodicFlush()
	assert.False(t, handler.sink.flushTimer.Stop(), "flush timer was re-armed after Close")
	assert.Equal(t, int32(1), pushes.Load())
}

func TestLokiSink_PeriodicFlushRearms(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	handler := NewLokiHandler(server.URL, nil, 10, slog.LevelInfo)
	defer handler.Close()

	handler.sink.periodicFlush()
	assert.True(t, handler.sink.flushTimer.Stop(), "flush timer should stay scheduled while open")
}
