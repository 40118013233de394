package api

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sudankdk/codejudge/internal/apperr"
	"github.com/sudankdk/codejudge/internal/metrics"
	"golang.org/x/time/rate"
)

const (
	limiterSweepInterval = 5 * time.Minute
	limiterIdleTTL       = 10 * time.Minute
)

// requestLogger tags each request with an id and logs it once it is done.
// Errors are rendered here so the logged status is the one the client sees.
func requestLogger(logger *zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		id := uuid.NewString()
		c.Set(fiber.HeaderXRequestID, id)

		if err := c.Next(); err != nil {
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		logger.Info().
			Str("request_id", id).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", c.Response().StatusCode()).
			Dur("latency", time.Since(start)).
			Str("ip", c.IP()).
			Msg("request")
		return nil
	}
}

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64
}

// rateLimiter throttles the execution endpoints per client IP.
type rateLimiter struct {
	perIP sync.Map // ip -> *ipLimiter
	rate  rate.Limit
	burst int
	done  chan struct{}
	once  sync.Once
}

func newRateLimiter(rps float64, burst int) *rateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &rateLimiter{
		rate:  rate.Limit(rps),
		burst: burst,
		done:  make(chan struct{}),
	}
}

func (rl *rateLimiter) get(ip string) *ipLimiter {
	if l, ok := rl.perIP.Load(ip); ok {
		return l.(*ipLimiter)
	}
	l, _ := rl.perIP.LoadOrStore(ip, &ipLimiter{limiter: rate.NewLimiter(rl.rate, rl.burst)})
	return l.(*ipLimiter)
}

func (rl *rateLimiter) allow(ip string) bool {
	l := rl.get(ip)
	l.lastSeen.Store(time.Now().UnixNano())
	return l.limiter.Allow()
}

func (rl *rateLimiter) middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !rl.allow(c.IP()) {
			metrics.RateLimitHits.Inc()
			return apperr.RateLimited()
		}
		return c.Next()
	}
}

// sweep forgets clients idle for longer than ttl.
func (rl *rateLimiter) sweep(ttl time.Duration) {
	cutoff := time.Now().Add(-ttl).UnixNano()
	rl.perIP.Range(func(key, value any) bool {
		if value.(*ipLimiter).lastSeen.Load() < cutoff {
			rl.perIP.Delete(key)
		}
		return true
	})
}

func (rl *rateLimiter) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.sweep(limiterIdleTTL)
		}
	}
}

func (rl *rateLimiter) stop() {
	rl.once.Do(func() { close(rl.done) })
}
