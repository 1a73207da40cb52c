package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// CheckHandler reports liveness, failing while the backing store is unreachable.
type CheckHandler struct {
	backend Pinger
	timeout time.Duration
}

func NewCheckHandler(backend Pinger) *CheckHandler {
	return &CheckHandler{
		backend: backend,
		timeout: 2 * time.Second,
	}
}

func (h *CheckHandler) HandleHealthy(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	if err := h.backend.Ping(ctx); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"result": "unavailable", "error": err.Error()})
	}
	return c.JSON(fiber.Map{"result": "ok"})
}
