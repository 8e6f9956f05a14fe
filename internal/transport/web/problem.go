package web

import (
	mathrand "math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/Olprog59/go-microservice/internal/jsonutil"
	"github.com/oklog/ulid/v2"
)

const (
	problemTypeBase    = "https://httpstatuses.io"
	problemContentType = "application/problem+json"
)

// ProblemDetails is an RFC 9457 problem document.
type ProblemDetails struct {
	Type      string `json:"type,omitempty"`
	Title     string `json:"title"`
	Status    int    `json:"status"`
	Detail    string `json:"detail,omitempty"`
	Instance  string `json:"instance,omitempty"`
	TraceID   string `json:"traceId,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

func newTraceID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// writeProblem sends a problem+json response. The request ID doubles as trace id.
func writeProblem(w http.ResponseWriter, r *http.Request, status int, detail string) {
	traceID := GetRequestID(r.Context())
	if traceID == "" {
		traceID = newTraceID()
	}

	problem := ProblemDetails{
		Type:      problemTypeBase + "/" + strconv.Itoa(status),
		Title:     http.StatusText(status),
		Status:    status,
		Detail:    detail,
		Instance:  r.URL.RequestURI(),
		TraceID:   traceID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", problemContentType)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = jsonutil.NewEncoder(w).Encode(problem)
}

// jsonResponse sends data as JSON with the given status.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = jsonutil.NewEncoder(w).Encode(data)
}
