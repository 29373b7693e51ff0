package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/qrave1/TypeRace/internal/application/metric"
)

const unmatchedRoute = "unmatched"

// PrometheusMiddleware собирает метрики HTTP запросов.
// Websocket сессии живут долго и пишутся в отдельную гистограмму.
func PrometheusMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			if isWebsocketUpgrade(c.Request()) {
				metric.RecordWSSession(time.Since(start))
				return err
			}

			status := c.Response().Status
			if err != nil {
				var he *echo.HTTPError
				if errors.As(err, &he) {
					status = he.Code
				} else if status < http.StatusBadRequest {
					status = http.StatusInternalServerError
				}
			}

			// шаблон маршрута вместо URL, иначе кардинальность не ограничена
			route := c.Path()
			if route == "" {
				route = unmatchedRoute
			}

			metric.RecordHTTPMetrics(c.Request().Method, route, status, time.Since(start))

			return err
		}
	}
}

func isWebsocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get(echo.HeaderUpgrade), "websocket")
}
