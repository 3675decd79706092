// Package httpserver provides the HTTP server for KeyMesh.
package httpserver

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/yndnr/keymesh-go/internal/telemetry/logger"
	"github.com/yndnr/keymesh-go/internal/telemetry/metric"
	"github.com/yndnr/keymesh-go/pkg/code"
)

// Middleware is a function that wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// Chain applies middlewares to a handler. The first middleware in the
// list is the outermost, i.e. it executes first.
func Chain(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// ============================================================================
// Request ID
// ============================================================================

// RequestIDHeader is the header carrying the request correlation ID.
const RequestIDHeader = "X-Request-ID"

// RequestID attaches a correlation ID to every request. A caller-supplied
// X-Request-ID passes through unchanged; otherwise one is generated.
// The ID lands in the request context and echoes on the response.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" {
				requestID = code.RequestID()
			}

			ctx := logger.WithRequestID(r.Context(), requestID)
			w.Header().Set(RequestIDHeader, requestID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ============================================================================
// Panic Recovery
// ============================================================================

// Recover converts handler panics into a 500 response instead of
// tearing down the connection.
func Recover(log *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					log.Error("panic in HTTP handler",
						"panic", rec,
						"method", r.Method,
						"path", r.URL.Path,
						"request_id", logger.RequestIDFromContext(r.Context()))
					writeMiddlewareError(w, r, http.StatusInternalServerError,
						"KM-SYS-5000", "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// ============================================================================
// Rate Limiting
// ============================================================================

// ipLimiter tracks a token bucket per client IP. Entries idle for
// longer than limiterTTL are dropped by the sweep.
type ipLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	rps      rate.Limit
	burst    int
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const limiterTTL = 10 * time.Minute

func newIPLimiter(rps float64, burst int) *ipLimiter {
	return &ipLimiter{
		limiters: make(map[string]*limiterEntry),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

// allow reports whether the client may proceed, creating the bucket on
// first sight. Sweeping happens inline to avoid a background goroutine
// per middleware instance.
func (l *ipLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	entry, ok := l.limiters[ip]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.limiters[ip] = entry
		if len(l.limiters)%1024 == 0 {
			l.sweepLocked(now)
		}
	}
	entry.lastSeen = now

	return entry.limiter.Allow()
}

func (l *ipLimiter) sweepLocked(now time.Time) {
	for ip, entry := range l.limiters {
		if now.Sub(entry.lastSeen) > limiterTTL {
			delete(l.limiters, ip)
		}
	}
}

// RateLimit limits requests per client IP using a token bucket.
// An rps of zero disables limiting.
func RateLimit(rps float64, burst int) Middleware {
	if rps <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if burst <= 0 {
		burst = 1
	}
	limiter := newIPLimiter(rps, burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := getClientIP(r)
			if !limiter.allow(ip) {
				w.Header().Set("Retry-After", "1")
				writeMiddlewareError(w, r, http.StatusTooManyRequests,
					"KM-SYS-4290", "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ============================================================================
// Audit Logging
// ============================================================================

// Audit logs every request with method, path, status, and duration.
// Server errors log at error level, client errors at warn.
func Audit(log *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", rw.statusCode,
				"duration_ms", time.Since(start).Milliseconds(),
				"client_ip", getClientIP(r),
				"request_id", logger.RequestIDFromContext(r.Context()),
			}

			switch {
			case rw.statusCode >= 500:
				log.Error("request", attrs...)
			case rw.statusCode >= 400:
				log.Warn("request", attrs...)
			default:
				log.Info("request", attrs...)
			}
		})
	}
}

// ============================================================================
// Request Metrics
// ============================================================================

// Metrics records request counts and latency for a route. The route
// label is passed explicitly so path parameters never explode the
// label cardinality.
func Metrics(reg *metric.Registry, route string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			reg.RequestsTotal.WithLabelValues(
				r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			reg.RequestDuration.WithLabelValues(
				r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// ============================================================================
// Network ACL
// ============================================================================

// NetworkACLConfig holds the allowlist for admin endpoints.
type NetworkACLConfig struct {
	// AllowList contains IPs and CIDR ranges granted access on top of
	// loopback, which is always allowed.
	AllowList []string

	// Logger for denied requests.
	Logger *slog.Logger
}

// NetworkACL restricts access to clients on loopback or in the
// configured allowlist. Entries are parsed once at construction;
// Verify has already rejected malformed ones.
func NetworkACL(cfg *NetworkACLConfig) Middleware {
	var networks []*net.IPNet
	var singleIPs []net.IP

	for _, entry := range cfg.AllowList {
		if strings.Contains(entry, "/") {
			if _, network, err := net.ParseCIDR(entry); err == nil {
				networks = append(networks, network)
			}
			continue
		}
		if ip := net.ParseIP(entry); ip != nil {
			singleIPs = append(singleIPs, ip)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// The ACL decides on the connection address, never on
			// forwarding headers, which any client can set.
			clientIP := net.ParseIP(remoteIP(r))
			if clientIP == nil || !ipAllowed(clientIP, networks, singleIPs) {
				if cfg.Logger != nil {
					cfg.Logger.Warn("admin request denied by network ACL",
						"client_ip", remoteIP(r),
						"path", r.URL.Path)
				}
				writeMiddlewareError(w, r, http.StatusForbidden,
					"KM-SYS-4030", "access denied")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func ipAllowed(ip net.IP, networks []*net.IPNet, singleIPs []net.IP) bool {
	if ip.IsLoopback() {
		return true
	}
	for _, network := range networks {
		if network.Contains(ip) {
			return true
		}
	}
	for _, allowed := range singleIPs {
		if allowed.Equal(ip) {
			return true
		}
	}
	return false
}

// ============================================================================
// Helpers
// ============================================================================

// responseWriter captures the status code for logging and metrics.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(statusCode int) {
	if !rw.wroteHeader {
		rw.statusCode = statusCode
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

// writeMiddlewareError writes an error envelope without depending on
// the handler package.
func writeMiddlewareError(w http.ResponseWriter, r *http.Request, status int, errCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(map[string]any{
		"code":       errCode,
		"message":    message,
		"request_id": logger.RequestIDFromContext(r.Context()),
		"timestamp":  time.Now().UnixMilli(),
	})
}

// getClientIP extracts the client IP, preferring proxy headers. Used
// for logging and rate limiting; never for access decisions.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return remoteIP(r)
}

// remoteIP returns the peer address of the connection itself.
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
