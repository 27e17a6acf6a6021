package middleware

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"intensityapi/internal/logging"
	"intensityapi/internal/requestctx"
)

// Logger emits two structured records per request: one on entry and one on completion.
// Both carry request_id (set by RequestID, which must run before this middleware).
//
// Errors returned by later handlers are rendered here through the app's ErrorHandler so
// that the completion record and outer middleware observe the final status code.
func Logger(logger *slog.Logger) fiber.Handler {
	if logger == nil {
		logger = logging.Discard()
	}

	return func(c *fiber.Ctx) error {
		start := time.Now()

		log := requestctx.Logger(c.UserContext(), logger)
		c.SetUserContext(requestctx.WithLogger(c.UserContext(), log))

		log.Info("request started",
			"method", c.Method(),
			"path", c.Path(),
			"remote_addr", c.IP(),
		)

		if chainErr := c.Next(); chainErr != nil {
			if err := c.App().ErrorHandler(c, chainErr); err != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		log.Info("request completed",
			"method", c.Method(),
			"path", c.Path(),
			"status", c.Response().StatusCode(),
			"latency_ms", float64(time.Since(start).Microseconds())/1000,
		)
		return nil
	}
}
