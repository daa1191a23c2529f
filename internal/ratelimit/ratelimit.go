// Package ratelimit applies per-client token buckets to the AI endpoints.
package ratelimit

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/picc-digital/storyline/internal/api/respond"
)

// Class identifies an endpoint cost class. Heavier backends get tighter
// budgets.
type Class string

const (
	ClassAI     Class = "ai"
	ClassVision Class = "vision"
	ClassPDF    Class = "pdf"
	ClassQuery  Class = "query"
	ClassGraph  Class = "graph"
)

// requests per minute by class
var classLimits = map[Class]int{
	ClassAI:     20,
	ClassVision: 10,
	ClassPDF:    5,
	ClassQuery:  60,
	ClassGraph:  30,
}

const (
	bucketTTL     = 5 * time.Minute
	sweepInterval = time.Minute
)

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// Limiter holds per-client, per-class token buckets with TTL eviction of
// idle clients.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket

	// now is injectable for tests.
	now func() time.Time
}

func New() *Limiter {
	l := &Limiter{
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
	go l.sweep()
	return l
}

// NewForTesting returns a Limiter without the background sweeper, driven by
// the supplied clock.
func NewForTesting(now func() time.Time) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		now:     now,
	}
}

func (l *Limiter) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for range ticker.C {
		l.mu.Lock()
		cutoff := l.now().Add(-bucketTTL)
		for k, b := range l.buckets {
			if b.lastSeen.Before(cutoff) {
				delete(l.buckets, k)
			}
		}
		l.mu.Unlock()
	}
}

// Decision is the outcome of a limit check, carried into response headers.
type Decision struct {
	Allowed   bool
	Remaining int
	// Reset is when a denied client can retry.
	Reset time.Time
}

// Check consumes one token for client on class and reports the decision.
func (l *Limiter) Check(class Class, client string) Decision {
	perMinute, ok := classLimits[class]
	if !ok {
		perMinute = classLimits[ClassAI]
	}

	now := l.now()
	key := string(class) + "|" + client

	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	l.mu.Unlock()

	allowed := b.lim.AllowN(now, 1)
	remaining := int(math.Floor(b.lim.TokensAt(now)))
	if remaining < 0 {
		remaining = 0
	}

	d := Decision{Allowed: allowed, Remaining: remaining}
	if !allowed {
		// One token refills every 60/perMinute seconds.
		d.Reset = now.Add(time.Duration(float64(time.Minute) / float64(perMinute)))
	}
	return d
}

// Middleware enforces class limits on the wrapped handler and emits the
// standard rate-limit headers.
func (l *Limiter) Middleware(class Class, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := l.Check(class, ClientIP(r))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", d.Remaining))
		if !d.Allowed {
			retryAfter := int(math.Ceil(time.Until(d.Reset).Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", d.Reset.Unix()))
			w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
			respond.WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClientIP resolves the caller's address: first X-Forwarded-For hop, then
// X-Real-IP, then the connection's remote address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}
	if rip := strings.TrimSpace(r.Header.Get("X-Real-IP")); rip != "" {
		return rip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
