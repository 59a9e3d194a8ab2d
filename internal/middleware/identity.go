package middleware

import (
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// HeaderSessionID names the request and response header carrying the
// caller's booking session.  Holds, carts and pending reservations belong to
// a session, so a client keeps sending back the value it was given.
const HeaderSessionID = "X-Session-ID"

const maxSessionLen = 64

// Session resolves the booking session of the request.  A missing or
// oversized header starts a new guest session; the id is echoed in the
// response so the client can reuse it.
func Session() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sid := strings.TrimSpace(c.Request().Header.Get(HeaderSessionID))
			if sid == "" || len(sid) > maxSessionLen {
				sid = uuid.NewString()
			}
			c.Set(KeySessionID, sid)
			c.Response().Header().Set(HeaderSessionID, sid)
			return next(c)
		}
	}
}

// SessionID returns the session stored by Session, or "".
func SessionID(c echo.Context) string {
	s, _ := c.Get(KeySessionID).(string)
	return s
}

// UserID returns the authenticated subject, or "" for guests.
func UserID(c echo.Context) string {
	s, _ := c.Get(KeyUserID).(string)
	return s
}

// Role returns the authenticated role, or "".
func Role(c echo.Context) string {
	s, _ := c.Get(KeyRole).(string)
	return s
}

// holderKey identifies the caller for rate limiting.
func holderKey(c echo.Context) string {
	if u := UserID(c); u != "" {
		return "user:" + u
	}
	if s := SessionID(c); s != "" {
		return "session:" + s
	}
	return "anon"
}
