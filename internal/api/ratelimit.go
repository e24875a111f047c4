package api

import (
	"fmt"
	"net"
	"net/http"
	"sync"

	"golang.org/x/time/rate"

	"github.com/ledgertrail/utxoindex/internal/errs"
)

var errTooManyRequests = fmt.Errorf("rate limit exceeded: %w", errs.ErrTooManyRequests)

// ipLimiter is a simplified version of the teacher's peer rate limiter,
// adapted from per-connection p2p throttling to per-client-IP HTTP request
// throttling: one token-bucket limiter per remote address, created lazily.
type ipLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	r        rate.Limit
	burst    int
}

func newIPLimiter(r rate.Limit, burst int) *ipLimiter {
	return &ipLimiter{limiters: make(map[string]*rate.Limiter), r: r, burst: burst}
}

func (l *ipLimiter) allow(ip string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[ip]
	if !ok {
		lim = rate.NewLimiter(l.r, l.burst)
		l.limiters[ip] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

// middleware rejects requests once a client IP exceeds its rate, with 429.
func (l *ipLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
		if !l.allow(ip) {
			writeError(w, errTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
