package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/registry/internal/platform/metrics"
)

// Logger writes one event per request. Server errors log at error level,
// client errors at warn.
func Logger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			rid, _ := c.Get("request_id").(string)

			err := next(c)
			status := responseStatus(c, err)

			var evt *zerolog.Event
			switch {
			case status >= 500:
				evt = logger.Error().Err(err)
			case status >= 400:
				evt = logger.Warn().Err(err)
			default:
				evt = logger.Info()
			}

			evt.
				Str("request_id", rid).
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Str("route", c.Path()).
				Int("status", status).
				Int64("bytes_out", c.Response().Size).
				Dur("latency", time.Since(start)).
				Str("remote_ip", c.RealIP()).
				Msg("request")

			return err
		}
	}
}

// Metrics records per-route request counts and latency.
func Metrics(m *metrics.HTTPMetrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			m.Observe(c.Request().Method, c.Path(), responseStatus(c, err), time.Since(start))
			return err
		}
	}
}

// responseStatus reports the status the client will see. A returned error
// has not been written yet when the middleware runs.
func responseStatus(c echo.Context, err error) int {
	if err != nil && !c.Response().Committed {
		if he, ok := err.(*echo.HTTPError); ok {
			return he.Code
		}
		return 500
	}
	return c.Response().Status
}
