package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/meeting-room-booking/internal/middleware"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports service and store health for load balancers and
// monitoring systems.
type HealthHandler struct {
	Store    Pinger
	Location *time.Location
	Log      logrus.FieldLogger
}

// Health handles GET /health.  It answers 200 when the store responds to a
// ping within two seconds and 503 otherwise.
func (h *HealthHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	now := time.Now()
	tz := "UTC"
	if h.Location != nil {
		now = now.In(h.Location)
		tz = h.Location.String()
	}
	body := echo.Map{
		"status":    "healthy",
		"database":  "connected",
		"timestamp": now.Format(time.RFC3339),
		"timezone":  tz,
	}
	if err := h.Store.Ping(ctx); err != nil {
		middleware.Logger(c, h.Log).WithError(err).Warn("health check: store unreachable")
		body["status"] = "unhealthy"
		body["database"] = "disconnected"
		return c.JSON(http.StatusServiceUnavailable, body)
	}
	return c.JSON(http.StatusOK, body)
}
