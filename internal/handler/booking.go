package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/meeting-room-booking/internal/booking"
	"github.com/iliyamo/meeting-room-booking/internal/model"
	"github.com/iliyamo/meeting-room-booking/internal/service"
)

// ReservationService is the part of service.ReservationService used by the
// HTTP layer.
type ReservationService interface {
	CreateReservation(ctx context.Context, in service.CreateInput) (*model.Reservation, error)
	CancelReservation(ctx context.Context, id string) (*model.Reservation, error)
	GetReservation(ctx context.Context, id string) (*model.Reservation, error)
	ListReservations(ctx context.Context, roomID string) ([]model.Reservation, error)
}

// CacheInvalidator drops cached GET responses for paths affected by a write.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, paths ...string)
}

// BookingHandler serves the /bookings endpoints.
type BookingHandler struct {
	Service ReservationService
	Cache   CacheInvalidator // optional
	Log     logrus.FieldLogger
}

// NewBookingHandler returns a handler for svc.  cache may be nil.
func NewBookingHandler(svc ReservationService, cache CacheInvalidator, log logrus.FieldLogger) *BookingHandler {
	if svc == nil {
		panic("nil service passed to NewBookingHandler")
	}
	return &BookingHandler{Service: svc, Cache: cache, Log: log}
}

// createBookingRequest distinguishes absent fields (nil) from empty ones so
// that a missing field and a blank field are reported differently.
type createBookingRequest struct {
	RoomID    *string `json:"room_id" validate:"required"`
	StartTime *string `json:"start_time" validate:"required"`
	EndTime   *string `json:"end_time" validate:"required"`
	UserName  *string `json:"user_name" validate:"required"`
}

type listBookingsResponse struct {
	Bookings []model.Reservation `json:"bookings"`
	Count    int                 `json:"count"`
}

// Create handles POST /bookings/.  It returns 201 with the stored record,
// 422 for malformed input, 400 for a start in the past and 409 when the room
// is already booked for an overlapping interval.
func (h *BookingHandler) Create(c echo.Context) error {
	var req createBookingRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, h.Log, booking.NewValidationError(booking.Violation{
			Field:   "body",
			Reason:  booking.ReasonInvalidBody,
			Message: "request body must be a JSON object with string fields",
		}))
	}
	if err := c.Validate(&req); err != nil {
		return respondError(c, h.Log, err)
	}
	r, err := h.Service.CreateReservation(c.Request().Context(), service.CreateInput{
		RoomID:    *req.RoomID,
		UserName:  *req.UserName,
		StartTime: *req.StartTime,
		EndTime:   *req.EndTime,
	})
	if err != nil {
		return respondError(c, h.Log, err)
	}
	h.invalidate(c, r)
	return c.JSON(http.StatusCreated, r)
}

// Get handles GET /bookings/:id.
func (h *BookingHandler) Get(c echo.Context) error {
	r, err := h.Service.GetReservation(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, r)
}

// Cancel handles DELETE /bookings/:id and returns 204 with no body.
func (h *BookingHandler) Cancel(c echo.Context) error {
	r, err := h.Service.CancelReservation(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	h.invalidate(c, r)
	return c.NoContent(http.StatusNoContent)
}

// ListByRoom handles GET /bookings/room/:room_id.  A room without bookings
// yields an empty list, not 404.
func (h *BookingHandler) ListByRoom(c echo.Context) error {
	rows, err := h.Service.ListReservations(c.Request().Context(), c.Param("room_id"))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	if rows == nil {
		rows = []model.Reservation{}
	}
	return c.JSON(http.StatusOK, listBookingsResponse{Bookings: rows, Count: len(rows)})
}

func (h *BookingHandler) invalidate(c echo.Context, r *model.Reservation) {
	if h.Cache == nil || r == nil {
		return
	}
	h.Cache.Invalidate(context.WithoutCancel(c.Request().Context()),
		"/bookings/"+r.ID,
		"/bookings/room/"+r.RoomID,
	)
}
