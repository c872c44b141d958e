package rendezvous

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"hop.computer/passage/pkg/thunks"
)

// ipRateLimiter allows limit requests per window for each client address.
// Addresses idle for a full window are forgotten; their bucket would be full
// again anyway.
type ipRateLimiter struct {
	m         sync.Mutex
	ips       map[string]*visitor
	limit     int
	window    time.Duration
	lastSweep time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newIPRateLimiter(limit int, w time.Duration) *ipRateLimiter {
	return &ipRateLimiter{
		ips:       make(map[string]*visitor),
		limit:     limit,
		window:    w,
		lastSweep: thunks.TimeNow(),
	}
}

func (l *ipRateLimiter) Allow(ip string) bool {
	l.m.Lock()
	defer l.m.Unlock()

	now := thunks.TimeNow()
	if now.Sub(l.lastSweep) >= l.window {
		l.sweep(now)
	}
	v, ok := l.ips[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Every(l.window/time.Duration(l.limit)), l.limit)}
		l.ips[ip] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// sweep drops addresses not seen for a window. Caller holds l.m.
func (l *ipRateLimiter) sweep(now time.Time) {
	for ip, v := range l.ips {
		if now.Sub(v.lastSeen) >= l.window {
			delete(l.ips, ip)
		}
	}
	l.lastSweep = now
}

func (l *ipRateLimiter) tracked() int {
	l.m.Lock()
	defer l.m.Unlock()
	return len(l.ips)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func rateLimit(limit int, next http.Handler) http.Handler {
	if limit <= 0 {
		return next
	}
	limiter := newIPRateLimiter(limit, time.Minute)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow(clientIP(r)) {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
