package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/acadops/campus-api/internal/config"
	"github.com/acadops/campus-api/internal/utils"
)

// HealthResponse is the liveness payload.
type HealthResponse struct {
	Status      string    `json:"status"`
	Service     string    `json:"service"`
	Environment string    `json:"environment"`
	Uptime      string    `json:"uptime"`
	Timestamp   time.Time `json:"timestamp"`
}

// HealthCheck reports process liveness. It deliberately makes no database
// round trip so probes stay cheap under load.
func HealthCheck(cfg config.Config) fiber.Handler {
	started := time.Now()

	return func(c *fiber.Ctx) error {
		return utils.SendSuccess(c, "service healthy", HealthResponse{
			Status:      "ok",
			Service:     cfg.AppName,
			Environment: cfg.AppEnv,
			Uptime:      time.Since(started).Round(time.Second).String(),
			Timestamp:   time.Now().UTC(),
		})
	}
}
