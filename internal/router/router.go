// Package router wires handlers and middleware onto the echo instance.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking-engine/internal/config"
	"github.com/iliyamo/cinema-booking-engine/internal/handler"
	"github.com/iliyamo/cinema-booking-engine/internal/middleware"
	"github.com/iliyamo/cinema-booking-engine/internal/utils"
)

// Handlers groups everything the routes dispatch to.
type Handlers struct {
	Health       echo.HandlerFunc
	Catalog      *handler.CatalogHandler
	Showtimes    *handler.ShowtimeHandler
	Cart         *handler.CartHandler
	Reservations *handler.ReservationHandler
	Payments     *handler.PaymentHandler
}

// Options configures the route middleware.  A nil Redis client disables
// rate limiting and caching.
type Options struct {
	JWTSecret string
	RateLimit config.RateLimitConfig
	Cache     config.CacheConfig
	Redis     *redis.Client
	Log       *zap.Logger
}

// Register mounts every route.  Browsing, holds, carts and reservations are
// open to guests, who are tracked by session; a Bearer token, when sent,
// attaches the user.  Catalog and scheduling writes, manual confirmation
// and refunds need the OWNER role.
func Register(e *echo.Echo, h Handlers, o Options) {
	e.GET("/healthz", h.Health)

	// The processor authenticates with the body signature.
	e.POST("/v1/payments/callback", h.Payments.Callback)

	owner := []echo.MiddlewareFunc{middleware.JWTAuth(o.JWTSecret), middleware.RequireRole(utils.RoleOwner)}
	limit := middleware.RateLimit(o.RateLimit, o.Redis, o.Log)
	cache := middleware.ResponseCache(o.Cache, o.Redis, o.Log)

	g := e.Group("/v1", middleware.OptionalJWTAuth(o.JWTSecret), middleware.Session())

	// ---- Catalog ----
	g.POST("/films", h.Catalog.CreateFilm, owner...)
	g.GET("/films/:id", h.Catalog.GetFilm)
	g.DELETE("/films/:id", h.Catalog.DeactivateFilm, owner...)
	g.POST("/rooms", h.Catalog.CreateRoom, owner...)
	g.GET("/rooms/:id", h.Catalog.GetRoom)
	g.GET("/rooms/:id/seats", h.Catalog.ListSeats, cache)
	g.DELETE("/rooms/:id", h.Catalog.DeactivateRoom, owner...)

	// ---- Showtimes ----
	g.POST("/showtimes", h.Showtimes.CreateShowtime, owner...)
	g.GET("/showtimes", h.Showtimes.ListShowtimes)
	g.GET("/showtimes/:id", h.Showtimes.GetShowtime)
	g.PUT("/showtimes/:id", h.Showtimes.UpdateShowtime, owner...)
	g.PATCH("/showtimes/:id", h.Showtimes.UpdateShowtime, owner...)
	g.DELETE("/showtimes/:id", h.Showtimes.DeactivateShowtime, owner...)
	g.GET("/showtimes/:id/availability", h.Showtimes.Availability)
	g.GET("/showtimes/:id/seats", h.Showtimes.SeatMap)
	g.POST("/showtimes/:id/hold", h.Showtimes.Hold, limit)
	g.DELETE("/showtimes/:id/hold", h.Showtimes.ReleaseHold)

	// ---- Cart ----
	g.GET("/cart", h.Cart.Get)
	g.DELETE("/cart", h.Cart.Clear)
	g.GET("/cart/items", h.Cart.Items)
	g.POST("/cart/items", h.Cart.AddItem, limit)
	g.PATCH("/cart/items/:id", h.Cart.UpdateItem, limit)
	g.DELETE("/cart/items/:id", h.Cart.RemoveItem)
	g.POST("/cart/checkout", h.Cart.Checkout, limit)

	// ---- Reservations ----
	g.POST("/reservations", h.Reservations.Open, limit)
	g.GET("/reservations", h.Reservations.List)
	g.GET("/reservations/number/:number", h.Reservations.GetByNumber)
	g.GET("/reservations/:id", h.Reservations.Get)
	g.GET("/reservations/:id/invoice", h.Reservations.Invoice)
	g.POST("/reservations/:id/pay", h.Reservations.Pay)
	g.POST("/reservations/:id/cancel", h.Reservations.Cancel)
	g.POST("/reservations/:id/confirm", h.Reservations.Confirm, owner...)
	g.POST("/reservations/:id/refund", h.Reservations.Refund, owner...)
}
