package http

import (
	"context"
	"strconv"
	"time"

	"github.com/ANIKETSHETTY47/sensor-telemetry/internal/repository"
	"github.com/ANIKETSHETTY47/sensor-telemetry/internal/service"
	"github.com/ANIKETSHETTY47/sensor-telemetry/internal/subscriber"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

// IngestStatus is the subscriber as seen by the health endpoint.
type IngestStatus interface {
	Connected() bool
	Subscribed() bool
	Stats() subscriber.Stats
}

func Register(app *fiber.App, svcs *service.Services, ingest IngestStatus, readTimeout time.Duration, logger zerolog.Logger) {
	if readTimeout <= 0 {
		readTimeout = 5 * time.Second
	}
	log := logger.With().Str("component", "api").Logger()

	app.Get("/api/metrics", func(c *fiber.Ctx) error {
		limit := repository.DefaultRecentLimit
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "limit must be an integer"})
			}
			limit = min(n, repository.DefaultRecentLimit)
		}

		ctx, cancel := context.WithTimeout(c.UserContext(), readTimeout)
		defer cancel()

		items, err := svcs.Readings.Recent(ctx, limit)
		if err != nil {
			log.Error().Err(err).Int("limit", limit).Msg("recent readings query failed")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Database query failed"})
		}
		return c.JSON(fiber.Map{
			"success": true,
			"count":   len(items),
			"data":    items,
		})
	})

	// Always 200 so pollers can read the body; degradation is reported in it.
	app.Get("/health", func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), readTimeout)
		defer cancel()

		database := "connected"
		if err := svcs.Readings.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("health: store unreachable")
			database = "unreachable"
		}

		status := "healthy"
		if database != "connected" || !ingest.Subscribed() {
			status = "degraded"
		}
		return c.JSON(fiber.Map{
			"status":         status,
			"mqtt_connected": ingest.Connected(),
			"subscribed":     ingest.Subscribed(),
			"database":       database,
			"ingest":         ingest.Stats(),
		})
	})
}
