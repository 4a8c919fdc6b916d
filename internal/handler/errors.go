package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/meeting-room-booking/internal/booking"
	"github.com/iliyamo/meeting-room-booking/internal/middleware"
	"github.com/iliyamo/meeting-room-booking/internal/service"
)

// respondError writes the HTTP response for err.  Booking outcomes map to
// 404, 422, 400 or 409; an unreachable store is 503; anything else is a 500
// whose cause is logged but never sent to the client.
func respondError(c echo.Context, log logrus.FieldLogger, err error) error {
	var be *booking.Error
	if errors.As(err, &be) {
		switch be.Kind {
		case booking.KindNotFound:
			return c.JSON(http.StatusNotFound, echo.Map{"detail": be.Message})
		case booking.KindConflict:
			return c.JSON(http.StatusConflict, echo.Map{"detail": be.Message})
		case booking.KindValidation:
			if !be.Structural() {
				return c.JSON(http.StatusBadRequest, echo.Map{"detail": be.Message})
			}
			return c.JSON(http.StatusUnprocessableEntity, echo.Map{
				"detail": "Validation failed: " + be.Message,
				"errors": be.Violations,
			})
		}
	}
	entry := middleware.Logger(c, log).WithError(err).WithFields(logrus.Fields{
		"method": c.Request().Method,
		"path":   c.Request().URL.Path,
	})
	if errors.Is(err, service.ErrUnavailable) {
		entry.Warn("booking store unavailable")
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"detail": "Service temporarily unavailable"})
	}
	entry.Error("unexpected error")
	return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "Internal server error"})
}
