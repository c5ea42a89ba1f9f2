package httpapi

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// limitConfig shapes one token-bucket limiter: MaxRequests per
// WindowSeconds with bursts up to Burst.
type limitConfig struct {
	WindowSeconds int
	MaxRequests   int
	Burst         int
}

// loginLimit slows credential stuffing without bothering a human who
// fat-fingers a password a few times.
var loginLimit = limitConfig{WindowSeconds: 60, MaxRequests: 10, Burst: 5}

// tokenBucket refills continuously at MaxRequests/WindowSeconds.
type tokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	capacity   float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

func newTokenBucket(capacity int, refillRate float64) *tokenBucket {
	return &tokenBucket{
		tokens:     float64(capacity),
		capacity:   float64(capacity),
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// allow consumes one token if available, else reports how long until the
// next token.
func (tb *tokenBucket) allow() (bool, time.Duration) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()
	tb.tokens += now.Sub(tb.lastRefill).Seconds() * tb.refillRate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	tb.lastRefill = now

	if tb.tokens >= 1.0 {
		tb.tokens--
		return true, 0
	}
	wait := time.Duration((1.0 - tb.tokens) / tb.refillRate * float64(time.Second))
	return false, wait
}

// rateLimit buckets requests per client address. Unlike the document
// routes there is no authenticated user yet on /api/auth/login, so the
// remote IP is the fairest key available.
func rateLimit(cfg limitConfig) func(http.Handler) http.Handler {
	var (
		mu      sync.Mutex
		buckets = make(map[string]*tokenBucket)
	)
	refillRate := float64(cfg.MaxRequests) / float64(cfg.WindowSeconds)

	// Drop buckets idle for an hour so the map cannot grow unbounded.
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			mu.Lock()
			for key, tb := range buckets {
				tb.mu.Lock()
				idle := time.Since(tb.lastRefill) > time.Hour
				tb.mu.Unlock()
				if idle {
					delete(buckets, key)
				}
			}
			mu.Unlock()
		}
	}()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.RemoteAddr

			mu.Lock()
			tb, ok := buckets[key]
			if !ok {
				tb = newTokenBucket(cfg.Burst, refillRate)
				buckets[key] = tb
			}
			mu.Unlock()

			allowed, wait := tb.allow()
			if !allowed {
				retryAfter := int(wait.Seconds())
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				log.Warn().Str("addr", key).Str("path", r.URL.Path).Msg("rate limit exceeded")
				writeError(w, http.StatusTooManyRequests, "too many attempts, slow down")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
