package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/ticketforge/mint-engine/internal/handler"
	"github.com/ticketforge/mint-engine/internal/middleware"
)

// RegisterRoutes registers routes that do not require authentication.
// Currently it exposes only a health check for load balancers.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health(db))
}

// RegisterCarts registers the cart endpoints under /v1/carts.  Every route
// requires a valid access token carrying the caller's wallet address.
func RegisterCarts(e *echo.Echo, h *handler.CartHandler, jwtSecret string) {
	g := e.Group("/v1/carts")
	g.Use(middleware.JWTAuth(jwtSecret))
	g.POST("/:id/authorizations", h.RequestAuthorizations)
	g.POST("/:id/mint", h.Mint)
}
