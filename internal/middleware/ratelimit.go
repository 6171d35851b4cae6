package middleware

import (
	"math"
	"net/http"
	"net/netip"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DenyFunc writes the response for a rejected request.
type DenyFunc func(w http.ResponseWriter, r *http.Request, retryAfter time.Duration)

// RateLimiter limits requests per client with one token bucket each.
type RateLimiter struct {
	mu              sync.Mutex
	requestsPerMin  int
	burst           int
	clients         map[string]*clientBucket
	cleanupInterval time.Duration
	staleAfter      time.Duration
	lockoutDuration time.Duration // optional lockout after violations
	maxViolations   int           // number of violations before lockout
	trustedProxies  []netip.Prefix
	deny            DenyFunc
	now             func() time.Time
	stop            chan struct{}
	stopOnce        sync.Once
}

// clientBucket tracks tokens and violations for a single client (IP)
type clientBucket struct {
	limiter     *rate.Limiter
	lastSeen    time.Time
	violations  int
	lockedUntil time.Time
}

// RateLimitConfig holds configuration for rate limiting
type RateLimitConfig struct {
	RequestsPerMinute int
	// Burst defaults to RequestsPerMinute.
	Burst           int
	CleanupInterval time.Duration
	LockoutDuration time.Duration
	MaxViolations   int
	TrustedProxies  []netip.Prefix
	Deny            DenyFunc
}

// NewRateLimiter creates a new rate limiter with the given configuration. Call
// Close to stop its cleanup goroutine.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = 60
	}
	if config.Burst <= 0 {
		config.Burst = config.RequestsPerMinute
	}
	if config.CleanupInterval == 0 {
		config.CleanupInterval = 5 * time.Minute
	}
	if config.MaxViolations == 0 {
		config.MaxViolations = 10 // default: lockout after 10 violations
	}
	if config.Deny == nil {
		config.Deny = func(w http.ResponseWriter, _ *http.Request, _ time.Duration) {
			http.Error(w, "Too many requests. Please try again later.", http.StatusTooManyRequests)
		}
	}

	rl := &RateLimiter{
		requestsPerMin:  config.RequestsPerMinute,
		burst:           config.Burst,
		clients:         make(map[string]*clientBucket),
		cleanupInterval: config.CleanupInterval,
		staleAfter:      10 * time.Minute,
		lockoutDuration: config.LockoutDuration,
		maxViolations:   config.MaxViolations,
		trustedProxies:  config.TrustedProxies,
		deny:            config.Deny,
		now:             time.Now,
		stop:            make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Close stops the background cleanup.
func (rl *RateLimiter) Close() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// Middleware returns an HTTP middleware function
func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := ClientIP(r, rl.trustedProxies)

			allowed, remaining, retryAfter := rl.Allow(clientIP)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.requestsPerMin))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

			if !allowed {
				zap.L().Warn("rate limit exceeded",
					zap.String("client", clientIP),
					zap.String("path", r.URL.Path),
					zap.Duration("retry_after", retryAfter),
				)
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
				rl.deny(w, r, retryAfter)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Allow checks if a request from the given client is allowed.
// Returns: (allowed, remaining tokens, wait before retrying)
func (rl *RateLimiter) Allow(clientIP string) (bool, int, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	bucket, exists := rl.clients[clientIP]
	if !exists {
		bucket = &clientBucket{
			limiter: rate.NewLimiter(rate.Limit(float64(rl.requestsPerMin)/60.0), rl.burst),
		}
		rl.clients[clientIP] = bucket
	}
	bucket.lastSeen = now

	// Check if client is locked out
	if !bucket.lockedUntil.IsZero() {
		if now.Before(bucket.lockedUntil) {
			return false, 0, bucket.lockedUntil.Sub(now)
		}
		bucket.lockedUntil = time.Time{}
		bucket.violations = 0
	}

	if bucket.limiter.AllowN(now, 1) {
		return true, int(bucket.limiter.TokensAt(now)), 0
	}

	// No tokens available - record violation
	bucket.violations++

	if rl.lockoutDuration > 0 && bucket.violations >= rl.maxViolations {
		bucket.lockedUntil = now.Add(rl.lockoutDuration)
		zap.L().Warn("client locked out",
			zap.String("client", clientIP),
			zap.Time("until", bucket.lockedUntil),
			zap.Int("violations", bucket.violations),
		)
		return false, 0, rl.lockoutDuration
	}

	r := bucket.limiter.ReserveN(now, 1)
	wait := r.DelayFrom(now)
	r.CancelAt(now)
	return false, 0, wait
}

// cleanupLoop periodically removes stale client buckets to prevent memory leaks
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stop:
			return
		}
	}
}

// cleanup removes client buckets that haven't been used recently
func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for ip, bucket := range rl.clients {
		isLocked := !bucket.lockedUntil.IsZero() && now.Before(bucket.lockedUntil)
		if !isLocked && now.Sub(bucket.lastSeen) > rl.staleAfter {
			delete(rl.clients, ip)
		}
	}
}
