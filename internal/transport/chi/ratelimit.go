package chi

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

type tenantLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// TenantRateLimiter hands out a token bucket per tenant. Buckets idle for
// longer than limiterIdleTTL are dropped on the next sweep.
type TenantRateLimiter struct {
	rps   rate.Limit
	burst int
	now   func() time.Time

	mu        sync.Mutex
	limiters  map[string]*tenantLimiter
	lastSweep time.Time
}

// NewTenantRateLimiter creates a limiter allowing rps requests per second per tenant.
func NewTenantRateLimiter(rps float64, burst int) *TenantRateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &TenantRateLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		now:      time.Now,
		limiters: make(map[string]*tenantLimiter),
	}
}

// Allow reports whether tenant may proceed now.
func (l *TenantRateLimiter) Allow(tenant string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > limiterIdleTTL {
		for k, tl := range l.limiters {
			if now.Sub(tl.lastSeen) > limiterIdleTTL {
				delete(l.limiters, k)
			}
		}
		l.lastSweep = now
	}

	tl, ok := l.limiters[tenant]
	if !ok {
		tl = &tenantLimiter{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.limiters[tenant] = tl
	}
	tl.lastSeen = now
	return tl.limiter.AllowN(now, 1)
}

// retryAfter is the whole number of seconds until one token refills.
func (l *TenantRateLimiter) retryAfter() int {
	if l.rps <= 0 {
		return 1
	}
	return max(1, int(math.Ceil(1/float64(l.rps))))
}

// Len returns the number of tracked tenants.
func (l *TenantRateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// RateLimitMiddleware rejects requests over the tenant's budget with 429.
// A nil limiter disables limiting. Must run after TenantMiddleware.
func RateLimitMiddleware(l *TenantRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if l == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := exemptPaths[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}
			if !l.Allow(TenantFromContext(r.Context())) {
				w.Header().Set("Retry-After", strconv.Itoa(l.retryAfter()))
				writeError(w, http.StatusTooManyRequests, CodeRateLimited, "rate limited")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
