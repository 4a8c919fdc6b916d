// Package queue defines booking event payloads and the RabbitMQ publisher
// and consumer that move them.
package queue

import (
	"time"

	"github.com/iliyamo/meeting-room-booking/internal/model"
)

// Event types carried in BookingEvent.Type.
const (
	EventBookingCreated   = "booking.created"
	EventBookingCancelled = "booking.cancelled"
)

// BookingEvent is published after a reservation is committed or cancelled.
// It contains enough information for downstream consumers to log or run
// analytics without querying the primary database.
type BookingEvent struct {
	Type          string `json:"type"`
	ReservationID string `json:"reservation_id"`
	RoomID        string `json:"room_id"`
	UserName      string `json:"user_name"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	OccurredAt    string `json:"occurred_at"`
}

// NewBookingEvent builds an event of the given type for r.  Instants are
// formatted as RFC 3339 in the zone they carry.
func NewBookingEvent(eventType string, r model.Reservation, at time.Time) BookingEvent {
	return BookingEvent{
		Type:          eventType,
		ReservationID: r.ID,
		RoomID:        r.RoomID,
		UserName:      r.UserName,
		StartTime:     r.StartTime.Format(time.RFC3339),
		EndTime:       r.EndTime.Format(time.RFC3339),
		OccurredAt:    at.Format(time.RFC3339Nano),
	}
}
