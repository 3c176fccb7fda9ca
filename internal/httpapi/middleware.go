package httpapi

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"
)

// account observes every request under its route pattern. Requests rejected
// before routing are reported under their path.
func (s *Server) account(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		dur := time.Since(start)
		s.metrics.ObserveRequest(route, r.Method, status, dur)
		s.logger.Debug("httpapi: request",
			"method", r.Method,
			"route", route,
			"status", status,
			"bytes", ww.BytesWritten(),
			"dur", dur.String(),
		)
	})
}

// throttle rejects clients that exceed their token bucket. RealIP runs first,
// so RemoteAddr already holds the forwarded client address.
func (s *Server) throttle(next http.Handler) http.Handler {
	if s.limits == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limits.allow(clientKey(r.RemoteAddr), time.Now()) {
			s.metrics.IncRateLimited()
			w.Header().Set("Retry-After", "1")
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientKey(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

type bucket struct {
	limiter *rate.Limiter
	seen    time.Time
}

// clientLimits keeps one token bucket per client. Buckets idle for longer
// than idle are swept at most once per idle period.
type clientLimits struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	idle    time.Duration
	swept   time.Time
	buckets map[string]*bucket
}

func newClientLimits(rps, burst int) *clientLimits {
	if rps <= 0 || burst <= 0 {
		return nil
	}
	return &clientLimits{
		limit:   rate.Limit(rps),
		burst:   burst,
		idle:    5 * time.Minute,
		swept:   time.Now(),
		buckets: make(map[string]*bucket),
	}
}

func (c *clientLimits) allow(key string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if now.Sub(c.swept) > c.idle {
		for k, b := range c.buckets {
			if now.Sub(b.seen) > c.idle {
				delete(c.buckets, k)
			}
		}
		c.swept = now
	}

	b, ok := c.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(c.limit, c.burst)}
		c.buckets[key] = b
	}
	b.seen = now
	return b.limiter.AllowN(now, 1)
}

// allowOrigins answers preflights and stamps Access-Control-Allow-Origin for
// the listed origins; "*" admits any http(s) origin. Requests from other
// origins get 403. Requests without an Origin header pass untouched, as does
// everything when no origin is configured.
func allowOrigins(origins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool)
	for _, o := range origins {
		if o = strings.TrimSpace(o); o != "" {
			allowed[o] = true
		}
	}
	if len(allowed) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	wildcard := allowed["*"]

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			web := strings.HasPrefix(origin, "http://") || strings.HasPrefix(origin, "https://")
			if !web || !(wildcard || allowed[origin]) {
				http.Error(w, "origin not allowed", http.StatusForbidden)
				return
			}

			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
			if r.Method != http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			h.Set("Access-Control-Allow-Methods", "GET,OPTIONS")
			if req := r.Header.Get("Access-Control-Request-Headers"); req != "" {
				h.Set("Access-Control-Allow-Headers", req)
			}
			h.Set("Access-Control-Max-Age", "300")
			w.WriteHeader(http.StatusNoContent)
		})
	}
}
