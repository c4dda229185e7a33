package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"nftstake/observability"
)

const visitorIdleTimeout = 5 * time.Minute

type RateLimit struct {
	RequestsPerSecond float64
	Burst             int
}

type rateEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter throttles each client per route group. Authenticated callers
// are keyed by address, anonymous ones by remote IP.
type RateLimiter struct {
	logger    *slog.Logger
	limits    map[string]RateLimit
	mu        sync.Mutex
	visitors  map[string]*rateEntry
	lastSweep time.Time
	clockNow  func() time.Time
}

func NewRateLimiter(limits map[string]RateLimit, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimiter{
		logger:   logger,
		limits:   limits,
		visitors: make(map[string]*rateEntry),
		clockNow: time.Now,
	}
}

func (r *RateLimiter) Middleware(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			limit, ok := r.limits[key]
			if !ok || limit.RequestsPerSecond <= 0 {
				next.ServeHTTP(w, req)
				return
			}
			identifier := key + "|" + clientID(req)
			now := r.clockNow()
			if !r.obtainLimiter(identifier, limit, now).AllowN(now, 1) {
				observability.ModuleMetrics().RecordThrottle(key, "rate_limit")
				r.logger.Debug("rate limited", "module", key, "path", req.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"code":"RateLimited","error":"too many requests"}`))
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

func (r *RateLimiter) obtainLimiter(id string, cfg RateLimit, now time.Time) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked(now)
	entry, ok := r.visitors[id]
	if ok {
		entry.lastSeen = now
		return entry.limiter
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	r.visitors[id] = &rateEntry{limiter: limiter, lastSeen: now}
	return limiter
}

func (r *RateLimiter) sweepLocked(now time.Time) {
	if now.Sub(r.lastSweep) < visitorIdleTimeout {
		return
	}
	for id, entry := range r.visitors {
		if now.Sub(entry.lastSeen) >= visitorIdleTimeout {
			delete(r.visitors, id)
		}
	}
	r.lastSweep = now
}

func clientID(r *http.Request) string {
	if caller, ok := CallerFromContext(r.Context()); ok {
		return caller.String()
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if parsed := net.ParseIP(strings.TrimSpace(first)); parsed != nil {
			return parsed.String()
		}
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
