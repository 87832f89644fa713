package httpmiddleware

import (
	"context"
	"hash/maphash"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig configures the sliding window rate limiter.
type RateLimitConfig struct {
	// Max is the number of requests a caller may make per Window.
	Max    int
	Window time.Duration
	// Subject maps a bearer token to a stable caller id such as an account
	// id. Authenticated callers are then limited per account instead of per
	// address. An empty result falls back to the client address.
	Subject func(token string) string
	// TrustForwarded makes the client address come from X-Forwarded-For or
	// X-Real-IP. Only enable it behind a proxy that sets those headers.
	TrustForwarded bool
	// KeyFunc replaces the Subject and client address keying entirely.
	KeyFunc func(*http.Request) string
	// Skip exempts requests from limiting, e.g. health checks.
	Skip func(*http.Request) bool
	// Now is the clock; time.Now when nil.
	Now func() time.Time
}

const limiterShards = 32

// counter holds the request counts of the current fixed window and the one
// before it. The sliding estimate weights prev by its remaining overlap.
type counter struct {
	start time.Time
	prev  float64
	curr  float64
}

func (c *counter) advance(now time.Time, window time.Duration) {
	start := now.Truncate(window)
	switch start.Sub(c.start) {
	case 0:
		return
	case window:
		c.prev, c.curr = c.curr, 0
	default:
		c.prev, c.curr = 0, 0
	}
	c.start = start
}

func (c *counter) estimate(now time.Time, window time.Duration) float64 {
	overlap := 1 - float64(now.Sub(c.start))/float64(window)
	return c.prev*overlap + c.curr
}

type limiterShard struct {
	mu       sync.Mutex
	counters map[string]*counter
}

type rateLimiter struct {
	cfg    RateLimitConfig
	seed   maphash.Seed
	shards [limiterShards]limiterShard
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	rl := &rateLimiter{cfg: cfg, seed: maphash.MakeSeed()}
	for i := range rl.shards {
		rl.shards[i].counters = make(map[string]*counter)
	}
	return rl
}

func (rl *rateLimiter) shard(key string) *limiterShard {
	return &rl.shards[maphash.String(rl.seed, key)%limiterShards]
}

// allow records a request for key unless the key is over its limit. It
// returns the requests left in the window and when the window resets.
func (rl *rateLimiter) allow(key string, now time.Time) (remaining int, resetAt time.Time, allowed bool) {
	s := rl.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[key]
	if !ok {
		c = &counter{}
		s.counters[key] = c
	}
	c.advance(now, rl.cfg.Window)
	resetAt = c.start.Add(rl.cfg.Window)

	used := c.estimate(now, rl.cfg.Window)
	if used >= float64(rl.cfg.Max) {
		return 0, resetAt, false
	}
	c.curr++
	return max(rl.cfg.Max-int(math.Ceil(used+1)), 0), resetAt, true
}

// cleanup drops counters that no longer influence any estimate.
func (rl *rateLimiter) cleanup(now time.Time) {
	for i := range rl.shards {
		s := &rl.shards[i]
		s.mu.Lock()
		for key, c := range s.counters {
			if now.Sub(c.start) >= 2*rl.cfg.Window {
				delete(s.counters, key)
			}
		}
		s.mu.Unlock()
	}
}

func (rl *rateLimiter) size() int {
	n := 0
	for i := range rl.shards {
		s := &rl.shards[i]
		s.mu.Lock()
		n += len(s.counters)
		s.mu.Unlock()
	}
	return n
}

func (rl *rateLimiter) startCleanup(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(2 * rl.cfg.Window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				rl.cleanup(now)
			}
		}
	}()
}

func (rl *rateLimiter) key(r *http.Request) string {
	if rl.cfg.KeyFunc != nil {
		return rl.cfg.KeyFunc(r)
	}
	if rl.cfg.Subject != nil {
		if tok, ok := BearerToken(r); ok {
			if sub := rl.cfg.Subject(tok); sub != "" {
				return "sub:" + sub
			}
		}
	}
	return "ip:" + ClientIP(r, rl.cfg.TrustForwarded)
}

// RateLimit enforces a per-caller sliding window limit and answers 429 with
// the API error body once it is exceeded. Responses carry the
// X-RateLimit-* headers. Stale callers are never evicted; servers should
// use RateLimitWithCleanup.
func RateLimit(cfg RateLimitConfig) Middleware {
	return rateLimitMiddleware(newRateLimiter(cfg))
}

// RateLimitWithCleanup is RateLimit plus a goroutine that evicts expired
// callers every two windows until ctx is done.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	rl := newRateLimiter(cfg)
	rl.startCleanup(ctx)
	return rateLimitMiddleware(rl)
}

func rateLimitMiddleware(rl *rateLimiter) Middleware {
	limit := strconv.Itoa(rl.cfg.Max)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rl.cfg.Skip != nil && rl.cfg.Skip(r) {
				next.ServeHTTP(w, r)
				return
			}
			now := rl.cfg.Now()
			remaining, resetAt, allowed := rl.allow(rl.key(r), now)

			h := w.Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

			if !allowed {
				wait := max(math.Ceil(resetAt.Sub(now).Seconds()), 1)
				h.Set("Retry-After", strconv.Itoa(int(wait)))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// BearerToken returns the token of an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// ClientIP returns the caller address. With trustForwarded the first
// X-Forwarded-For hop, then X-Real-IP, take precedence over RemoteAddr.
func ClientIP(r *http.Request, trustForwarded bool) string {
	if trustForwarded {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			return xri
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
