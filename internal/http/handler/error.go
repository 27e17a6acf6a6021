package handler

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/google/uuid"

	"intensityapi/internal/apperror"
	"intensityapi/internal/http/middleware"
	"intensityapi/internal/logging"
	"intensityapi/internal/requestctx"
)

// errorPayload defines the standardized error response body.
type errorPayload struct {
	Error              string            `json:"error"`
	Code               int               `json:"code"`
	Name               string            `json:"name"`
	Kind               string            `json:"kind"`
	RequestID          string            `json:"request_id"`
	AvailableEndpoints map[string]string `json:"available_endpoints,omitempty"`
	Dependencies       map[string]string `json:"dependencies,omitempty"`
}

// requestIDFromCtx extracts the request id stored by middleware.RequestID. Errors raised before
// routing (body limit) never pass through the middleware, so one is assigned here.
func requestIDFromCtx(c *fiber.Ctx) string {
	if id := middleware.RequestIDFromCtx(c); id != "" {
		return id
	}
	id := uuid.NewString()
	c.Locals(middleware.RequestIDLocalKey, id)
	c.Set(middleware.RequestIDHeader, id)
	return id
}

// newErrorPayload builds the standardized error body. message must be safe to show to callers.
func newErrorPayload(c *fiber.Ctx, status int, kind, message string) errorPayload {
	return errorPayload{
		Error:     message,
		Code:      status,
		Name:      utils.StatusMessage(status),
		Kind:      kind,
		RequestID: requestIDFromCtx(c),
	}
}

// ErrorHandler returns a Fiber global error handler that standardizes error responses.
// Classified errors keep their message; anything unclassified is rendered as a generic 500.
// maxUpload is only used to word the body-limit rejection.
func ErrorHandler(logger *slog.Logger, maxUpload int64) fiber.ErrorHandler {
	if logger == nil {
		logger = logging.Discard()
	}

	return func(c *fiber.Ctx, err error) error {
		appErr := classify(err, maxUpload)
		status := appErr.Kind.Status()

		var fe *fiber.Error
		if errors.As(err, &fe) && (appErr.Kind == apperror.KindBadRequest || appErr.Kind == apperror.KindInternal) {
			status = fe.Code
		}

		res := newErrorPayload(c, status, appErr.Kind.String(), appErr.Message)
		if appErr.Kind == apperror.KindNotFound {
			res.AvailableEndpoints = Endpoints
		}

		log := requestctx.Logger(c.UserContext(), logger)
		if requestctx.RequestID(c.UserContext()) == "" {
			log = log.With("request_id", res.RequestID)
		}
		attrs := []any{
			"status", status,
			"kind", res.Kind,
			"method", c.Method(),
			"path", c.Path(),
			"error", err.Error(),
		}
		if status < fiber.StatusInternalServerError {
			log.Warn("request failed", attrs...)
		} else {
			log.Error("request failed", attrs...)
		}

		return c.Status(status).JSON(res)
	}
}

// classify maps any error reaching the handler onto the taxonomy.
func classify(err error, maxUpload int64) *apperror.Error {
	if e, ok := apperror.As(err); ok {
		if !e.Kind.ClientFault() && e.Message == "" {
			return apperror.Wrap(e.Kind, e, "internal server error")
		}
		return e
	}

	var fe *fiber.Error
	if errors.As(err, &fe) {
		switch fe.Code {
		case fiber.StatusNotFound:
			return apperror.Wrap(apperror.KindNotFound, err, "Endpoint not found")
		case fiber.StatusMethodNotAllowed:
			return apperror.Wrap(apperror.KindMethodNotAllowed, err, "The method is not allowed for the requested URL.")
		case fiber.StatusRequestEntityTooLarge:
			return apperror.PayloadTooLarge(maxUpload)
		}
		if fe.Code < fiber.StatusInternalServerError {
			return apperror.Wrap(apperror.KindBadRequest, err, fe.Message)
		}
	}

	return apperror.Wrap(apperror.KindInternal, err, "internal server error")
}
