package handler

import (
	"context"
	"io"
	"time"

	"github.com/gofiber/fiber/v2"

	"intensityapi/internal/apperror"
	"intensityapi/internal/service"
)

// CacheStatusHeader reports whether the response came from the fingerprint cache.
const CacheStatusHeader = "X-Cache-Status"

// Endpoints is listed in 404 responses.
var Endpoints = map[string]string{
	"POST /intensity": "Calculate image intensity",
	"GET /health":     "Readiness check of the cache and the analysis service",
	"GET /healthz":    "Liveness check",
	"GET /metrics":    "Prometheus metrics",
}

// Probe is a named dependency check used by the readiness endpoint.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
func RegisterRoutes(app *fiber.App, svc service.IntensityService, maxUpload int64, probes ...Probe) {
	app.Post("/intensity", AnalyzeIntensity(svc, maxUpload))
	app.Get("/health", HealthCheck(probes...))
	app.Get("/healthz", LivenessProbe())
}

// AnalyzeIntensity handles POST /intensity (multipart/form-data, field name: image).
//
// @Summary      Calculate image intensity
// @Description  Returns the mean grayscale intensity of the uploaded image with its metadata.
// @Tags         intensity
// @Accept       multipart/form-data
// @Produce      json
// @Param        image  formData  file  true  "Image file"
// @Success      200  {object}  model.IntensityResponse
// @Header       200  {string}  X-Cache-Status  "hit or miss"
// @Header       200  {string}  X-Request-ID    "Correlation id"
// @Failure      400  {object}  errorPayload
// @Failure      413  {object}  errorPayload
// @Failure      500  {object}  errorPayload
// @Router       /intensity [post]
func AnalyzeIntensity(svc service.IntensityService, maxUpload int64) fiber.Handler {
	return func(c *fiber.Ctx) error {
		fh, err := c.FormFile("image")
		if err != nil {
			return apperror.Wrap(apperror.KindMissingInput, err,
				"No image file provided. Please upload a file with key 'image'")
		}
		// Reject on the declared size before reading the part.
		if maxUpload > 0 && fh.Size > maxUpload {
			return apperror.PayloadTooLarge(maxUpload)
		}

		f, err := fh.Open()
		if err != nil {
			return apperror.Wrap(apperror.KindBadRequest, err, "cannot open uploaded file")
		}
		defer f.Close()

		data, err := io.ReadAll(f)
		if err != nil {
			return apperror.Wrap(apperror.KindBadRequest, err, "cannot read uploaded file")
		}

		res, err := svc.Analyze(c.UserContext(), service.UploadRequest{
			Data:     data,
			Filename: fh.Filename,
		})
		if err != nil {
			return err
		}

		c.Set(CacheStatusHeader, string(res.CacheStatus))
		return c.Status(fiber.StatusOK).JSON(res)
	}
}

// HealthCheck reports readiness: every probe must pass within two seconds.
//
// @Summary  Readiness check
// @Tags     health
// @Produce  json
// @Success  200  {object}  map[string]string
// @Failure  503  {object}  errorPayload
// @Router   /health [get]
func HealthCheck(probes ...Probe) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()

		failed := make(map[string]string)
		for _, p := range probes {
			if err := p.Check(ctx); err != nil {
				failed[p.Name] = "unavailable"
			}
		}
		if len(failed) > 0 {
			res := newErrorPayload(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "dependency unavailable")
			res.Dependencies = failed
			return c.Status(fiber.StatusServiceUnavailable).JSON(res)
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "healthy"})
	}
}

// LivenessProbe is a simple liveness check.
//
// @Summary  Liveness check
// @Tags     health
// @Success  200
// @Router   /healthz [get]
func LivenessProbe() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	}
}
