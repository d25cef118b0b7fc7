package middleware

// identity.go holds accessors for the caller identity JWTAuth stores in the
// Echo context.

import "github.com/labstack/echo/v4"

// Address returns the checksummed wallet address of the caller, or "" when
// the request did not go through JWTAuth.
func Address(c echo.Context) string {
	if v, ok := c.Get(CtxAddress).(string); ok {
		return v
	}
	return ""
}

// UserID returns the subject of the caller's token, or "guest".
func UserID(c echo.Context) string {
	if v, ok := c.Get(CtxUserID).(string); ok && v != "" {
		return v
	}
	return "guest"
}
