package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/scaly/core/pkg/common"
	"github.com/scaly/core/pkg/message"
	"go.uber.org/ratelimit"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RateLimitStrategy selects how clients are identified
type RateLimitStrategy string

const (
	// StrategyIP keys on the client IP (ClientIPMiddleware attribute, then REMOTE_ADDR)
	StrategyIP RateLimitStrategy = "ip"

	// StrategyUser keys on the authenticated user id, falling back to IP
	StrategyUser RateLimitStrategy = "user"

	// StrategyCustom keys on the result of KeyExtractor
	StrategyCustom RateLimitStrategy = "custom"
)

// RateLimitConfig defines configuration for rate limiting
type RateLimitConfig struct {
	// Unique identifier for this rate limit bucket.
	// Routes sharing a BucketName share the same limit.
	BucketName string

	// Maximum number of requests allowed in the time window
	Limit int

	// Time window for the rate limit (e.g., 1 minute, 1 hour)
	Window time.Duration

	// Strategy for identifying clients
	Strategy RateLimitStrategy

	// Custom key extractor function (used when Strategy is StrategyCustom)
	KeyExtractor func(*message.ServerRequest) (string, error)

	// Handler producing the response when the limit is exceeded.
	// If nil, a default 429 Too Many Requests response is returned.
	ExceededHandler common.Handler
}

// RateLimiter defines the interface for rate limiting algorithms
type RateLimiter interface {
	// Allow reports whether a request for key is allowed, the number of
	// requests remaining and the time until another request is permitted.
	Allow(key string, limit int, window time.Duration) (bool, int, time.Duration)
}

// DefaultIdleTimeout is how long a limiter keeps the state of a key that
// has made no requests.
const DefaultIdleTimeout = 10 * time.Minute

// keyed holds per-key limiters and forgets keys idle longer than idle.
// Sweeps run from get at most once per idle period.
type keyed[L any] struct {
	entries   map[string]*keyedEntry[L]
	idle      time.Duration
	lastSweep time.Time
}

type keyedEntry[L any] struct {
	limiter  L
	lastSeen time.Time
}

func newKeyed[L any]() keyed[L] {
	return keyed[L]{entries: make(map[string]*keyedEntry[L]), idle: DefaultIdleTimeout}
}

// get returns key's limiter, calling create when key is new or was evicted.
// The caller holds the lock.
func (k *keyed[L]) get(key string, now time.Time, create func() L) L {
	if k.idle > 0 && now.Sub(k.lastSweep) >= k.idle {
		for name, e := range k.entries {
			if now.Sub(e.lastSeen) >= k.idle {
				delete(k.entries, name)
			}
		}
		k.lastSweep = now
	}
	e, ok := k.entries[key]
	if !ok {
		e = &keyedEntry[L]{limiter: create()}
		k.entries[key] = e
	}
	e.lastSeen = now
	return e.limiter
}

// TokenBucketLimiter implements RateLimiter with one golang.org/x/time/rate
// token bucket per key. Rejection is immediate; callers never wait.
// Keys idle for DefaultIdleTimeout are forgotten; see SetIdleTimeout.
type TokenBucketLimiter struct {
	mu       sync.Mutex
	limiters keyed[*rate.Limiter]
	now      func() time.Time
}

// NewTokenBucketLimiter creates an empty TokenBucketLimiter
func NewTokenBucketLimiter() *TokenBucketLimiter {
	return &TokenBucketLimiter{limiters: newKeyed[*rate.Limiter](), now: time.Now}
}

// SetIdleTimeout sets how long an unused key is remembered. A bucket idle
// that long has refilled, so forgetting it does not change any decision
// as long as d is at least the longest window in use. 0 disables eviction.
func (l *TokenBucketLimiter) SetIdleTimeout(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limiters.idle = d
}

func (l *TokenBucketLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters.entries)
}

func normalizeLimit(limit int, window time.Duration) (int, time.Duration) {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Second
	}
	return limit, window
}

// get returns the bucket for key, creating one that refills limit tokens per window
func (l *TokenBucketLimiter) get(key string, limit int, window time.Duration, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.limiters.get(key, now, func() *rate.Limiter {
		return rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit)
	})
}

// Allow takes one token from key's bucket if one is available
func (l *TokenBucketLimiter) Allow(key string, limit int, window time.Duration) (bool, int, time.Duration) {
	limit, window = normalizeLimit(limit, window)
	now := l.now()
	lim := l.get(key, limit, window, now)

	allowed := lim.AllowN(now, 1)
	tokens := lim.TokensAt(now)
	remaining := int(tokens)
	if remaining < 0 {
		remaining = 0
	}

	perToken := window / time.Duration(limit)
	if tokens >= 1 {
		return allowed, remaining, 0
	}
	return allowed, remaining, time.Duration((1 - tokens) * float64(perToken))
}

// PacedLimiter implements RateLimiter with go.uber.org/ratelimit. It never
// rejects: each call waits until the key's next evenly spaced slot, which
// smooths bursts into a steady rate. Keys idle for DefaultIdleTimeout are
// forgotten; see SetIdleTimeout.
type PacedLimiter struct {
	mu       sync.Mutex
	limiters keyed[ratelimit.Limiter]
	opts     []ratelimit.Option
	now      func() time.Time
}

// NewPacedLimiter creates a PacedLimiter. The options apply to every per-key limiter.
func NewPacedLimiter(opts ...ratelimit.Option) *PacedLimiter {
	return &PacedLimiter{limiters: newKeyed[ratelimit.Limiter](), opts: opts, now: time.Now}
}

// SetIdleTimeout sets how long an unused key is remembered. 0 disables eviction.
func (p *PacedLimiter) SetIdleTimeout(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.limiters.idle = d
}

func (p *PacedLimiter) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.limiters.entries)
}

// getLimiter gets or creates a limiter for the given key and rate
func (p *PacedLimiter) getLimiter(key string, limit int, window time.Duration) ratelimit.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.limiters.get(key, p.now(), func() ratelimit.Limiter {
		opts := append([]ratelimit.Option{ratelimit.Per(window)}, p.opts...)
		return ratelimit.New(limit, opts...)
	})
}

// Allow blocks until key's next slot and then allows the request
func (p *PacedLimiter) Allow(key string, limit int, window time.Duration) (bool, int, time.Duration) {
	limit, window = normalizeLimit(limit, window)
	p.getLimiter(key, limit, window).Take()
	return true, limit, window / time.Duration(limit)
}

// rateLimitKey identifies the client according to the configured strategy
func rateLimitKey(req *message.ServerRequest, config *RateLimitConfig) (string, error) {
	switch config.Strategy {
	case StrategyUser:
		if id := UserID(req); id != "" {
			return id, nil
		}
	case StrategyCustom:
		if config.KeyExtractor != nil {
			return config.KeyExtractor(req)
		}
	}

	if ip := ClientIP(req); ip != "" {
		return ip, nil
	}
	remote, _ := req.ServerParam("REMOTE_ADDR")
	return cleanIP(remote), nil
}

// RateLimit creates a stage that enforces config using limiter. Allowed
// responses carry X-RateLimit-* headers; rejected requests get 429 with Retry-After.
func RateLimit(config *RateLimitConfig, limiter RateLimiter, logger *zap.Logger) common.Stage {
	return common.StageFunc(func(req *message.ServerRequest, resp *message.Response, next common.Handler) (*message.Response, error) {
		// Skip rate limiting if config is nil
		if config == nil {
			return next.Handle(req, resp)
		}

		key, err := rateLimitKey(req, config)
		if err != nil {
			logger.Error("Failed to extract rate limit key", requestFields(req, zap.Error(err))...)
			return statusResponse(resp, http.StatusInternalServerError)
		}

		allowed, remaining, reset := limiter.Allow(config.BucketName+":"+key, config.Limit, config.Window)
		headers := []string{
			"X-RateLimit-Limit", strconv.Itoa(config.Limit),
			"X-RateLimit-Remaining", strconv.Itoa(remaining),
			"X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(reset).Unix(), 10),
		}

		if !allowed {
			logger.Warn("Rate limit exceeded", requestFields(req,
				zap.String("key", key),
				zap.Int("limit", config.Limit),
				zap.Int("remaining", remaining),
			)...)

			var out *message.Response
			if config.ExceededHandler != nil {
				out, err = config.ExceededHandler.Handle(req, resp)
			} else {
				out, err = statusResponse(resp, http.StatusTooManyRequests)
			}
			if err != nil {
				return nil, err
			}
			retry := int64(reset.Seconds())
			if reset > 0 && retry == 0 {
				retry = 1
			}
			return withHeaders(out, append(headers, "Retry-After", strconv.FormatInt(retry, 10))...)
		}

		out, err := next.Handle(req, resp)
		if err != nil {
			return nil, err
		}
		return withHeaders(out, headers...)
	})
}
