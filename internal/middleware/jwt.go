package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// Context keys set by JWTAuth.
const (
	CtxUserID  = "user_id"
	CtxAddress = "address"
)

// JWTAuth returns an Echo middleware that validates a Bearer access token and
// injects the token's subject and wallet address claims into the request
// context.  The provided secret must match the one used when issuing tokens.
// Tokens without a valid address claim are rejected: every protected route
// acts on behalf of a wallet.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			// Only HMAC signed tokens are accepted.
			tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, echo.ErrUnauthorized
				}
				return []byte(secret), nil
			}, jwt.WithExpirationRequired())
			if err != nil || !tok.Valid {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}

			claims, ok := tok.Claims.(jwt.MapClaims)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid claims"})
			}
			address, ok := claims["address"].(string)
			if !ok || !common.IsHexAddress(address) {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid address claim"})
			}

			c.Set(CtxUserID, claims["sub"])
			c.Set(CtxAddress, common.HexToAddress(address).Hex())
			return next(c)
		}
	}
}
