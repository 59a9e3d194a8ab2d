package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-booking-engine/internal/utils"
)

// Context keys set by the middleware in this package.
const (
	KeyUserID    = "user_id"
	KeyRole      = "role"
	KeySessionID = "session_id"
)

// JWTAuth requires a valid Bearer access token and stores its subject and
// role under KeyUserID and KeyRole.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return jwtAuth(secret, true)
}

// OptionalJWTAuth accepts anonymous requests.  A token that is present must
// still be valid.
func OptionalJWTAuth(secret string) echo.MiddlewareFunc {
	return jwtAuth(secret, false)
}

func jwtAuth(secret string, required bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			if auth == "" && !required {
				return next(c)
			}
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			claims, err := utils.ParseAccessToken(secret, strings.TrimPrefix(auth, "Bearer "))
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			c.Set(KeyUserID, claims.UserID)
			c.Set(KeyRole, claims.Role)
			return next(c)
		}
	}
}
