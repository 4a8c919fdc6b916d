package model

import "time"

// Reservation is a time-bounded booking of a single meeting room.  The
// interval is half-open: EndTime itself is not part of the booking, so a
// reservation ending at 11:00 and another starting at 11:00 in the same room
// do not overlap.
//
// Fields:
//	ID        opaque identifier generated at creation
//	RoomID    room being booked (trimmed, 1 to 50 characters)
//	StartTime first instant of the booking
//	EndTime   first instant after the booking
//	UserName  person who made the booking (trimmed, 1 to 100 characters)
//	CreatedAt server-assigned insertion time
type Reservation struct {
	ID        string    `json:"id"`         // reservations.id
	RoomID    string    `json:"room_id"`    // reservations.room_id
	StartTime time.Time `json:"start_time"` // reservations.start_time
	EndTime   time.Time `json:"end_time"`   // reservations.end_time
	UserName  string    `json:"user_name"`  // reservations.user_name
	CreatedAt time.Time `json:"created_at"` // reservations.created_at
}

// Duration returns the length of the booked interval.
func (r Reservation) Duration() time.Duration { return r.EndTime.Sub(r.StartTime) }

// In returns a copy of the reservation with every instant expressed in loc.
func (r Reservation) In(loc *time.Location) Reservation {
	r.StartTime = r.StartTime.In(loc)
	r.EndTime = r.EndTime.In(loc)
	r.CreatedAt = r.CreatedAt.In(loc)
	return r
}
