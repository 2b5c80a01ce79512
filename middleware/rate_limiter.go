package middleware

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

var (
	visitors = make(map[string]*visitor)
	mu       sync.Mutex

	limitRPS   rate.Limit = 5
	limitBurst            = 30
)

// ConfigureRateLimit sets the per-client rate used for new visitors.
func ConfigureRateLimit(rps float64, burst int) {
	mu.Lock()
	defer mu.Unlock()
	limitRPS = rate.Limit(rps)
	limitBurst = burst
}

func RateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.Header.Get("X-Forwarded-For")
		if ip == "" {
			ip, _, _ = net.SplitHostPort(r.RemoteAddr)
		}

		limiter := getLimiter(ip)

		if !limiter.Allow() {
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func getLimiter(ip string) *rate.Limiter {
	mu.Lock()
	defer mu.Unlock()

	v, exists := visitors[ip]
	if !exists {
		limiter := rate.NewLimiter(limitRPS, limitBurst)
		visitors[ip] = &visitor{limiter, time.Now()}
		return limiter
	}

	v.lastSeen = time.Now()
	return v.limiter
}

const (
	visitorSweepInterval = time.Minute
	visitorMaxIdle       = 3 * time.Minute
)

// CleanupVisitors forgets idle clients every minute until ctx is done.
func CleanupVisitors(ctx context.Context) {
	ticker := time.NewTicker(visitorSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			pruneVisitors(now, visitorMaxIdle)
		}
	}
}

// pruneVisitors drops clients not seen for longer than maxIdle and returns
// how many are left.
func pruneVisitors(now time.Time, maxIdle time.Duration) int {
	mu.Lock()
	defer mu.Unlock()
	for ip, v := range visitors {
		if now.Sub(v.lastSeen) > maxIdle {
			delete(visitors, ip)
		}
	}
	return len(visitors)
}
