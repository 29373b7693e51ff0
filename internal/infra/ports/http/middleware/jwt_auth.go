package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/qrave1/TypeRace/internal/infra/appctx"
	"github.com/qrave1/TypeRace/internal/usecase"
)

const (
	jwtCookie    = "jwt"
	tokenQuery   = "access_token"
	bearerScheme = "Bearer "
)

// JWTAuthMiddleware кладет пользователя из токена в контекст запроса.
// Токен ищется в cookie, заголовке Authorization и query (для браузерного websocket).
func JWTAuthMiddleware(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := extractToken(c)
			if raw == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing or malformed jwt"})
			}

			user, err := usecase.ParseToken([]byte(secret), raw)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid or expired jwt"})
			}

			c.SetRequest(
				c.Request().WithContext(
					appctx.WithUser(c.Request().Context(), user),
				),
			)

			return next(c)
		}
	}
}

func extractToken(c echo.Context) string {
	if cookie, err := c.Cookie(jwtCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	if header := c.Request().Header.Get(echo.HeaderAuthorization); strings.HasPrefix(header, bearerScheme) {
		return strings.TrimSpace(strings.TrimPrefix(header, bearerScheme))
	}

	return c.QueryParam(tokenQuery)
}
