package handler

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const readinessTimeout = 2 * time.Second

var errDisconnected = errors.New("disconnected")

// LinkChecker reports whether a long-lived connection is up.
type LinkChecker interface {
	IsConnected() bool
}

// Probe is one named readiness dependency.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

func DatabaseProbe(sqlDB *sql.DB) Probe {
	return Probe{Name: "database", Check: sqlDB.PingContext}
}

func RedisProbe(rdb *redis.Client) Probe {
	return Probe{Name: "redis", Check: func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}}
}

// ConnectionProbe reports a push connection such as the device link or the signal
// bus. A nil checker is always up.
func ConnectionProbe(name string, checker LinkChecker) Probe {
	return Probe{Name: name, Check: func(context.Context) error {
		if checker == nil || checker.IsConnected() {
			return nil
		}
		return errDisconnected
	}}
}

func RegisterHealthRoutes(app fiber.Router, probes ...Probe) {
	app.Get("/livez", LivezHandler())
	app.Get("/readyz", ReadyzHandler(probes...))
}

func LivezHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "ok",
		})
	}
}

func ReadyzHandler(probes ...Probe) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.Context(), readinessTimeout)
		defer cancel()

		status := "ready"
		statusCode := fiber.StatusOK
		checks := fiber.Map{}
		for _, p := range probes {
			if err := p.Check(ctx); err != nil {
				checks[p.Name] = "down"
				status = "not_ready"
				statusCode = fiber.StatusServiceUnavailable
				continue
			}
			checks[p.Name] = "ok"
		}

		return c.Status(statusCode).JSON(fiber.Map{
			"status": status,
			"checks": checks,
		})
	}
}
