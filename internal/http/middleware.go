package http

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

type AppConfig struct {
	CORSOrigins    string
	RateLimitRPS   float64
	RateLimitBurst int
}

// NewApp builds the fiber app with panic recovery, CORS, request logging and,
// when RateLimitRPS > 0, a shared token bucket.
func NewApp(cfg AppConfig, logger zerolog.Logger) *fiber.App {
	log := logger.With().Str("component", "api").Logger()

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				code = fe.Code
			}
			if code >= fiber.StatusInternalServerError {
				log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
				return c.Status(code).JSON(fiber.Map{"error": "Internal server error"})
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: "GET,OPTIONS",
	}))
	app.Use(requestLogger(log))

	if cfg.RateLimitRPS > 0 {
		burst := cfg.RateLimitBurst
		if burst <= 0 {
			burst = 1
		}
		app.Use(RateLimit(rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), burst), log))
		log.Info().Float64("rps", cfg.RateLimitRPS).Int("burst", burst).Msg("rate limiting enabled")
	}
	return app
}

// RateLimit rejects requests beyond the limiter's budget. /health is never limited.
func RateLimit(limiter *rate.Limiter, log zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Path() == "/health" {
			return c.Next()
		}
		if !limiter.Allow() {
			log.Warn().Str("ip", c.IP()).Str("path", c.Path()).Msg("rate limit exceeded")
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate limit exceeded"})
		}
		return c.Next()
	}
}

func requestLogger(log zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		log.Debug().
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", c.Response().StatusCode()).
			Dur("took", time.Since(start)).
			Msg("request")
		return err
	}
}
