package ratelimit

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/storage/redis"

	"github.com/ManuelReschke/ClubDues/internal/pkg/cache"
	"github.com/ManuelReschke/ClubDues/internal/pkg/env"
)

const (
	DefaultMax        = 120
	DefaultExpiration = time.Minute
	storageDatabase   = 1 // cache and job queue use DB 0
)

// NewStorage returns a Redis backed limiter storage on the cache server, or
// nil when Redis is unreachable so the limiter keeps counters in memory.
func NewStorage() fiber.Storage {
	if !cache.Available(context.Background()) {
		log.Warnf("[RateLimit] Redis unavailable, using in-memory limiter storage")
		return nil
	}

	opts := cache.GetClient().Options()
	host := "localhost"
	port := 6379
	if h, p, err := net.SplitHostPort(opts.Addr); err == nil {
		host = h
		if v, err := strconv.Atoi(p); err == nil {
			port = v
		}
	}

	return redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: opts.Password,
		Database: storageDatabase,
		Reset:    false,
	})
}

// New limits requests per client IP. RATE_LIMIT_MAX requests are allowed per
// RATE_LIMIT_WINDOW_SECONDS.
func New(storage fiber.Storage) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        env.GetEnvInt("RATE_LIMIT_MAX", DefaultMax),
		Expiration: time.Duration(env.GetEnvInt("RATE_LIMIT_WINDOW_SECONDS", int(DefaultExpiration/time.Second))) * time.Second,
		Storage:    storage,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "rate_limited",
				"message": "Too many requests. Please retry later.",
			})
		},
	})
}
