package web

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math"
	"net"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	visitorCleanupInterval = 5 * time.Minute
	visitorTTL             = 3 * time.Minute
)

// RateLimiter keeps one token bucket per client / Garde un seau de jetons par client
type RateLimiter struct {
	visitors map[string]*visitor // keyed by hashed client IP
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
	cancel   context.CancelFunc
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows rps requests per second per client with the given burst.
// Idle clients are forgotten after three minutes; the cleanup goroutine stops with ctx or Stop.
func NewRateLimiter(ctx context.Context, rps float64, burst int) *RateLimiter {
	cleanupCtx, cancel := context.WithCancel(ctx)

	rl := &RateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate.Limit(rps),
		burst:    burst,
		cancel:   cancel,
	}

	go rl.cleanupVisitors(cleanupCtx, visitorCleanupInterval)

	return rl
}

// Stop ends the cleanup goroutine.
func (rl *RateLimiter) Stop() {
	rl.cancel()
}

// Len returns the number of tracked clients.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.visitors)
}

func (rl *RateLimiter) getVisitor(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, exists := rl.visitors[key]
	if !exists {
		v = &visitor{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = time.Now()
	return v.limiter
}

func (rl *RateLimiter) evictIdle(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, v := range rl.visitors {
		if now.Sub(v.lastSeen) > visitorTTL {
			delete(rl.visitors, key)
		}
	}
}

func (rl *RateLimiter) cleanupVisitors(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			rl.evictIdle(now)
		case <-ctx.Done():
			return
		}
	}
}

// getIPWithTrustedProxies extracts the client IP with trusted proxy validation.
// If trustedProxies is provided and not empty, it validates that the RemoteAddr
// is in the trusted list before trusting X-Forwarded-For or X-Real-IP headers.
func getIPWithTrustedProxies(r *http.Request, trustedProxies []string) string {
	// Extract the immediate connection IP (RemoteAddr)
	remoteIP, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// If SplitHostPort fails, it might be just an IP without port
		remoteIP = r.RemoteAddr
	}

	// If no trusted proxies configured, only use RemoteAddr (secure default)
	if len(trustedProxies) == 0 {
		return remoteIP
	}

	// If not from a trusted proxy, use RemoteAddr (cannot be spoofed)
	if !slices.Contains(trustedProxies, remoteIP) {
		return remoteIP
	}

	// Request is from a trusted proxy - check proxy headers
	// Check for the X-Forwarded-For header, which contains a comma-separated list of IPs.
	forwarded := r.Header.Get("X-Forwarded-For")
	if forwarded != "" {
		// Split by comma to get individual IPs
		ips := strings.Split(forwarded, ",")
		if len(ips) > 0 {
			// Take the first IP (the original client) and trim whitespace
			clientIP := strings.TrimSpace(ips[0])
			// Validate it's a proper IP address
			if net.ParseIP(clientIP) != nil {
				return clientIP
			}
		}
	}

	// Check for the X-Real-IP header (used by some proxies like nginx)
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		realIP = strings.TrimSpace(realIP)
		if net.ParseIP(realIP) != nil {
			return realIP
		}
	}

	// Fallback to RemoteAddr if headers are invalid
	return remoteIP
}

// hashIP creates a SHA-256 hash of an IP address to avoid storing raw IP addresses.
// This is a privacy-enhancing measure.
func hashIP(ip string) string {
	h := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(h[:])
}

// RateLimit applies the per-client limit to every request except probes.
// If the rate limiter is disabled in the configuration, the middleware does nothing.
func (mw *Middleware) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if mw.limiter == nil || mw.exemptFromRateLimit(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		ip := getIPWithTrustedProxies(r, mw.conf.Security.TrustedProxies)
		limiter := mw.limiter.getVisitor(hashIP(ip))

		addRateLimitHeaders(w, mw.limiter.burst, int(limiter.Tokens()))

		if !limiter.Allow() {
			if mw.metrics != nil {
				mw.metrics.RecordRateLimitHit("global")
			}
			sendRateLimitError(w, r, retryAfterSeconds(limiter))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// exemptFromRateLimit keeps load balancer probes and scrapes out of the limiter
func (mw *Middleware) exemptFromRateLimit(path string) bool {
	switch path {
	case "/health", "/readiness":
		return true
	}
	return mw.conf.Metrics.Enabled && path == mw.conf.Metrics.Path
}

// retryAfterSeconds estimates when one token will be available again
func retryAfterSeconds(limiter *rate.Limiter) int {
	limit := float64(limiter.Limit())
	if limit <= 0 {
		return 60
	}
	missing := 1 - limiter.Tokens()
	if missing <= 0 {
		return 1
	}
	return int(math.Ceil(missing / limit))
}

// sendRateLimitError sends a 429 problem response with Retry-After.
func sendRateLimitError(w http.ResponseWriter, r *http.Request, retryAfter int) {
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	writeProblem(w, r, http.StatusTooManyRequests, "Too many requests. Please try again later.")
}

// addRateLimitHeaders adds informative rate limit headers to the HTTP response,
// similar to the headers used by the GitHub API.
func addRateLimitHeaders(w http.ResponseWriter, limit, remaining int) {
	if remaining < 0 {
		remaining = 0
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
}
