package middleware

import (
	"strconv"
	"time"

	"bounty-quest/logging"
	"bounty-quest/metrics"

	"github.com/gofiber/fiber/v2"
)

// RequestLogger counts every request by route template and logs slow or failed ones.
func RequestLogger(logger logging.Logger) fiber.Handler {
	logger = logger.With("component", "http")

	return func(c *fiber.Ctx) error {
		started := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		route := c.Route().Path
		metrics.HTTPRequestsTotal.WithLabelValues(c.Method(), route, strconv.Itoa(status)).Inc()

		elapsed := time.Since(started)
		if status >= fiber.StatusInternalServerError {
			logger.Error("request failed", "method", c.Method(), "path", c.Path(), "status", status, "elapsed", elapsed)
		} else if elapsed > 2*time.Second {
			logger.Warn("slow request", "method", c.Method(), "path", c.Path(), "status", status, "elapsed", elapsed)
		}
		return err
	}
}
