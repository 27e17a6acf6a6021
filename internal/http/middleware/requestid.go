package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"intensityapi/internal/requestctx"
)

const (
	// RequestIDHeader is the standard header name used to propagate request IDs.
	RequestIDHeader = "X-Request-ID"
	// RequestIDLocalKey is the key used to store the request ID in Fiber's context locals.
	RequestIDLocalKey = "request_id"

	// maxRequestIDLen bounds an incoming id that is echoed and forwarded as gRPC metadata.
	maxRequestIDLen = 128
)

// RequestID is a reusable middleware that ensures every request has a request ID.
// It must run first so that every later failure can be tagged with the id.
//
// Behavior:
// - Reads X-Request-ID from the incoming request header.
// - If missing, longer than 128 bytes or not printable ASCII, generates a new UUID.
// - Stores the value in Fiber context locals under RequestIDLocalKey and in the user context.
// - Records the entry time in the user context for duration reporting.
// - Adds X-Request-ID to the response header with the same value.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get(RequestIDHeader)
		if !validRequestID(id) {
			id = uuid.NewString()
		}

		c.Locals(RequestIDLocalKey, id)
		c.Set(RequestIDHeader, id)

		ctx := requestctx.WithRequestID(c.UserContext(), id)
		ctx = requestctx.WithStart(ctx, time.Now())
		c.SetUserContext(ctx)

		return c.Next()
	}
}

// validRequestID accepts 1 to 128 visible ASCII characters, the set gRPC metadata and log
// pipelines carry unchanged.
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return false
		}
	}
	return true
}

// RequestIDFromCtx returns the id stored by RequestID, or "" when the middleware did not run.
func RequestIDFromCtx(c *fiber.Ctx) string {
	if s, ok := c.Locals(RequestIDLocalKey).(string); ok {
		return s
	}
	return requestctx.RequestID(c.UserContext())
}
