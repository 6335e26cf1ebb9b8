package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

// rateLimiterConfig holds rate limiting configuration
type rateLimiterConfig struct {
	enabled    bool
	perClient  int           // requests allowed per client per window
	window     time.Duration // window length
	retryAfter string        // Retry-After header value, in seconds
}

// loadRateLimiterConfig reads RATE_LIMIT_ENABLED, RATE_LIMIT_REQUESTS_PER_IP
// and RATE_LIMIT_WINDOW_SECONDS.
func loadRateLimiterConfig() *rateLimiterConfig {
	cfg := &rateLimiterConfig{
		enabled:   os.Getenv("RATE_LIMIT_ENABLED") != "0",
		perClient: 60,
		window:    time.Minute,
	}
	if n := getEnvInt("RATE_LIMIT_REQUESTS_PER_IP", cfg.perClient); n > 0 {
		cfg.perClient = n
	}
	if n := getEnvInt("RATE_LIMIT_WINDOW_SECONDS", 60); n > 0 {
		cfg.window = time.Duration(n) * time.Second
	}
	cfg.retryAfter = strconv.Itoa(int(cfg.window.Seconds()))
	return cfg
}

// ipRateLimiter counts requests per client in fixed windows.
type ipRateLimiter struct {
	mu      sync.Mutex
	cfg     *rateLimiterConfig
	clients map[string]*window
	now     func() time.Time
}

type window struct {
	start time.Time
	count int
}

// newIPRateLimiter creates a limiter whose stale entries are swept until ctx ends.
func newIPRateLimiter(ctx context.Context, cfg *rateLimiterConfig) *ipRateLimiter {
	rl := &ipRateLimiter{cfg: cfg, clients: make(map[string]*window), now: time.Now}
	go rl.sweepLoop(ctx)
	return rl
}

func (rl *ipRateLimiter) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(rl.cfg.window)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.sweep()
		case <-ctx.Done():
			return
		}
	}
}

// sweep drops clients whose window ended more than one window ago.
func (rl *ipRateLimiter) sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := rl.now().Add(-2 * rl.cfg.window)
	for client, w := range rl.clients {
		if w.start.Before(cutoff) {
			delete(rl.clients, client)
		}
	}
}

func (rl *ipRateLimiter) allow(client string) bool {
	if !rl.cfg.enabled {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	w, ok := rl.clients[client]
	if !ok || now.Sub(w.start) >= rl.cfg.window {
		rl.clients[client] = &window{start: now, count: 1}
		return true
	}
	if w.count >= rl.cfg.perClient {
		return false
	}
	w.count++
	return true
}

// clientIP prefers the first X-Forwarded-For hop over the socket address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// rateLimitMiddleware applies per-client rate limiting to query endpoints
func rateLimitMiddleware(next http.Handler, limiter *ipRateLimiter) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !limiter.allow(ip) {
			w.Header().Set("Retry-After", limiter.cfg.retryAfter)
			http.Error(w, "Too Many Requests - rate limit exceeded", http.StatusTooManyRequests)
			slog.Warn("rate limit exceeded", slog.String("ip", ip), slog.String("path", r.URL.Path), slog.String("component", "http"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// corsConfig holds CORS configuration
type corsConfig struct {
	allowedOrigins []string
	permissive     bool // allow any origin (dev)
}

// loadCORSConfig is permissive unless ENV names a non-dev environment or
// CORS_PERMISSIVE says otherwise. CORS_ALLOWED_ORIGINS is a comma list.
func loadCORSConfig() *corsConfig {
	mode := strings.ToLower(os.Getenv("ENV"))
	cfg := &corsConfig{permissive: mode == "" || mode == "dev" || mode == "development"}
	if v := os.Getenv("CORS_PERMISSIVE"); v != "" {
		cfg.permissive = v == "1" || v == "true"
	}
	for _, origin := range strings.Split(os.Getenv("CORS_ALLOWED_ORIGINS"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.allowedOrigins = append(cfg.allowedOrigins, origin)
		}
	}
	if !cfg.permissive && len(cfg.allowedOrigins) == 0 {
		slog.Warn("CORS restricted mode enabled but no CORS_ALLOWED_ORIGINS configured - all CORS requests will be blocked")
	}
	return cfg
}

// withCORSConfig adds CORS headers and answers preflight requests.
func withCORSConfig(next http.Handler, cfg *corsConfig) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allow := ""
		if cfg.permissive {
			allow = "*"
		} else if origin := r.Header.Get("Origin"); origin != "" && slices.Contains(cfg.allowedOrigins, origin) {
			allow = origin
			w.Header().Add("Vary", "Origin")
		}
		if allow != "" {
			w.Header().Set("Access-Control-Allow-Origin", allow)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Correlation-ID")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
