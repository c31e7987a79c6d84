package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"inspirations/internal/metrics"

	"github.com/labstack/echo/v4"
)

const unmatchedRoute = "unmatched"

// PrometheusMetrics records request counts and latencies per route template.
func PrometheusMetrics(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		duration := time.Since(start).Seconds()

		path := c.Path()
		if path == "" {
			path = unmatchedRoute
		}

		metrics.HTTPRequestsTotal.WithLabelValues(
			c.Request().Method,
			path,
			strconv.Itoa(status(c, err)),
		).Inc()

		metrics.HTTPRequestDuration.WithLabelValues(
			c.Request().Method,
			path,
		).Observe(duration)

		return err
	}
}

// status reports the code the client will see. Errors returned by the handler
// are written later by echo's error handler.
func status(c echo.Context, err error) int {
	if err == nil || c.Response().Committed {
		return c.Response().Status
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}

	return http.StatusInternalServerError
}
