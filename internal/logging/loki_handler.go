package logging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/Olprog59/go-microservice/internal/jsonutil"
)

const lokiFlushInterval = 5 * time.Second

// LokiHandler is a slog.Handler that pushes records to Loki over HTTP.
// Records are batched and flushed when the batch is full, every five
// seconds, and on Close. Delivery failures never fail the caller.
type LokiHandler struct {
	sink   *lokiSink
	level  slog.Leveler
	attrs  []slog.Attr
	groups []string
}

// lokiSink is shared by every handler derived through WithAttrs/WithGroup.
type lokiSink struct {
	url        string
	labels     map[string]string
	client     *http.Client
	batch      []lokiEntry
	batchMu    sync.Mutex
	batchSize  int
	flushTimer *time.Timer
	closed     bool
	errOut     io.Writer
}

type lokiEntry struct {
	timestamp time.Time
	line      string
}

type lokiPushRequest struct {
	Streams []lokiStream `json:"streams"`
}

type lokiStream struct {
	Stream map[string]string `json:"stream"`
	Values [][]string        `json:"values"`
}

// NewLokiHandler creates a handler pushing to url + /loki/api/v1/push.
// labels are attached to the stream, batchSize 0 sends every record immediately.
func NewLokiHandler(url string, labels map[string]string, batchSize int, level slog.Leveler) *LokiHandler {
	if labels == nil {
		labels = make(map[string]string)
	}
	if level == nil {
		level = slog.LevelInfo
	}

	sink := &lokiSink{
		url:       url + "/loki/api/v1/push",
		labels:    labels,
		client:    &http.Client{Timeout: 5 * time.Second},
		batch:     make([]lokiEntry, 0, batchSize),
		batchSize: batchSize,
		errOut:    os.Stderr,
	}

	if batchSize > 0 {
		sink.flushTimer = time.AfterFunc(lokiFlushInterval, sink.periodicFlush)
	}

	return &LokiHandler{sink: sink, level: level}
}

// Enabled reports whether the handler handles records at the given level.
func (h *LokiHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle encodes the record as one JSON log line.
func (h *LokiHandler) Handle(_ context.Context, r slog.Record) error {
	logData := map[string]any{
		"time":  r.Time.Format(time.RFC3339Nano),
		"level": r.Level.String(),
		"msg":   r.Message,
	}

	target := logData
	for _, g := range h.groups {
		sub := map[string]any{}
		target[g] = sub
		target = sub
	}
	for _, a := range h.attrs {
		addAttr(target, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		addAttr(target, a)
		return true
	})

	logJSON, err := jsonutil.Marshal(logData)
	if err != nil {
		return fmt.Errorf("failed to marshal log to JSON: %w", err)
	}

	return h.sink.add(lokiEntry{timestamp: r.Time, line: string(logJSON)})
}

func addAttr(dst map[string]any, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		sub := map[string]any{}
		for _, ga := range a.Value.Group() {
			addAttr(sub, ga)
		}
		if a.Key == "" {
			for k, v := range sub {
				dst[k] = v
			}
			return
		}
		dst[a.Key] = sub
		return
	}
	if err, ok := a.Value.Any().(error); ok {
		dst[a.Key] = err.Error()
		return
	}
	dst[a.Key] = a.Value.Any()
}

// WithAttrs returns a handler that adds attrs to every record.
func (h *LokiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	clone := *h
	clone.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &clone
}

// WithGroup returns a handler that nests later attributes under name.
func (h *LokiHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(append([]string{}, h.groups...), name)
	return &clone
}

// Close flushes any remaining logs and stops the periodic flush timer
func (h *LokiHandler) Close() error {
	h.sink.batchMu.Lock()
	h.sink.closed = true
	if h.sink.flushTimer != nil {
		h.sink.flushTimer.Stop()
	}
	h.sink.batchMu.Unlock()
	return h.sink.flush()
}

func (s *lokiSink) add(entry lokiEntry) error {
	s.batchMu.Lock()
	s.batch = append(s.batch, entry)
	shouldFlush := len(s.batch) >= s.batchSize
	s.batchMu.Unlock()

	if shouldFlush {
		return s.flush()
	}
	return nil
}

// flush sends all batched logs to Loki
func (s *lokiSink) flush() error {
	s.batchMu.Lock()
	if len(s.batch) == 0 {
		s.batchMu.Unlock()
		return nil
	}
	entries := make([]lokiEntry, len(s.batch))
	copy(entries, s.batch)
	s.batch = s.batch[:0]
	s.batchMu.Unlock()

	// Loki expects [timestamp_in_nanoseconds, log_line]
	values := make([][]string, len(entries))
	for i, entry := range entries {
		values[i] = []string{strconv.FormatInt(entry.timestamp.UnixNano(), 10), entry.line}
	}

	return s.send(lokiPushRequest{
		Streams: []lokiStream{{Stream: s.labels, Values: values}},
	})
}

func (s *lokiSink) send(req lokiPushRequest) error {
	body, err := jsonutil.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal push request: %w", err)
	}

	httpReq, err := http.NewRequest(http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		// Loki being down must not break the application
		fmt.Fprintf(s.errOut, "loki: push failed: %v\n", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		fmt.Fprintf(s.errOut, "loki: push rejected with %d: %s\n", resp.StatusCode, msg)
	}
	return nil
}

func (s *lokiSink) periodicFlush() {
	_ = s.flush()

	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	if s.closed {
		return
	}
	s.flushTimer.Reset(lokiFlushInterval)
}
