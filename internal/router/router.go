// Package router registers the HTTP routes and middleware of the booking API.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/meeting-room-booking/internal/config"
	"github.com/iliyamo/meeting-room-booking/internal/handler"
	"github.com/iliyamo/meeting-room-booking/internal/metrics"
	"github.com/iliyamo/meeting-room-booking/internal/middleware"
	"github.com/iliyamo/meeting-room-booking/internal/service"
)

// Deps carries everything the routes need.  Redis, Metrics and Gatherer are
// optional; without Redis the cache and rate limiter are pass-through.
type Deps struct {
	Service   *service.ReservationService
	Log       logrus.FieldLogger
	Redis     *redis.Client
	Cache     config.CacheConfig
	RateLimit config.RateLimitConfig
	Metrics   *metrics.Metrics
	Gatherer  prometheus.Gatherer
}

// New returns an echo instance with every route registered.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewRequestValidator()
	e.Use(middleware.RequestLogger(d.Log))
	e.Use(middleware.Metrics(d.Metrics))
	Register(e, d)
	return e
}

// Register adds the booking, health and metrics routes to e.
func Register(e *echo.Echo, d Deps) {
	cache := middleware.NewResponseCache(d.Cache, d.Redis, d.Log)
	limit := middleware.RateLimit(d.RateLimit, d.Redis, d.Log)
	cached := cache.Middleware()

	b := handler.NewBookingHandler(d.Service, cache, d.Log)
	h := &handler.HealthHandler{Store: d.Service, Location: d.Service.Location(), Log: d.Log}

	e.GET("/health", h.Health)
	if d.Gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	// Clients use both spellings of the collection path.
	e.POST("/bookings", b.Create, limit)
	e.POST("/bookings/", b.Create, limit)
	e.GET("/bookings/room/:room_id", b.ListByRoom, cached)
	e.GET("/bookings/:id", b.Get, cached)
	e.DELETE("/bookings/:id", b.Cancel, limit)
}
