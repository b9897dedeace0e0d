package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

type bucket struct {
	count int
	until time.Time
}

// limiter is a fixed-window counter keyed by client IP and route with
// explicit TTL eviction, so idle clients do not accumulate forever.
type limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   int
	per     time.Duration
}

func newLimiter(limit int, per time.Duration) *limiter {
	l := &limiter{
		buckets: make(map[string]*bucket),
		limit:   limit,
		per:     per,
	}
	go l.sweep()
	return l
}

func (l *limiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	b, ok := l.buckets[key]
	if !ok || now.After(b.until) {
		b = &bucket{count: 0, until: now.Add(l.per)}
		l.buckets[key] = b
	}
	if b.count >= l.limit {
		return false
	}
	b.count++
	return true
}

// sweep drops expired buckets once per window.
func (l *limiter) sweep() {
	ticker := time.NewTicker(l.per)
	defer ticker.Stop()
	for range ticker.C {
		now := time.Now()
		l.mu.Lock()
		for key, b := range l.buckets {
			if now.After(b.until) {
				delete(l.buckets, key)
			}
		}
		l.mu.Unlock()
	}
}

// RateLimit enforces a fixed-window per-client request cap on the wrapped
// routes.
func RateLimit(limit int, per time.Duration) func(http.Handler) http.Handler {
	l := newLimiter(limit, per)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientIPForRateLimit(r) + "|" + r.URL.Path
			if !l.allow(key) {
				w.Header().Set("Retry-After", per.String())
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIPForRateLimit(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		for _, part := range strings.Split(xf, ",") {
			ip := strings.TrimSpace(part)
			if ip == "" {
				continue
			}
			if net.ParseIP(ip) != nil {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		if net.ParseIP(host) != nil {
			return host
		}
	} else if net.ParseIP(r.RemoteAddr) != nil {
		return r.RemoteAddr
	}

	return r.RemoteAddr
}
