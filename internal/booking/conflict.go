package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/meeting-room-booking/internal/model"
	"github.com/iliyamo/meeting-room-booking/internal/repository"
)

// Overlaps reports whether the half-open intervals [s1, e1) and [s2, e2)
// share at least one instant.  Touching intervals (e1 == s2) do not overlap.
func Overlaps(s1, e1, s2, e2 time.Time) bool {
	return s1.Before(e2) && s2.Before(e1)
}

// CandidateLister returns the reservations of a room that may overlap the
// given interval.  Stores are free to over-approximate; the detector applies
// the exact overlap test.
type CandidateLister interface {
	OverlapCandidates(ctx context.Context, roomID string, start, end time.Time) ([]model.Reservation, error)
}

// ReservingTx is the part of a store transaction used by ReserveIfFree.
type ReservingTx interface {
	CandidateLister
	LockRoom(ctx context.Context, roomID string) error
	Insert(ctx context.Context, r *model.Reservation) error
}

// Detector finds conflicting reservations and serializes the
// check-then-insert sequence for a room.  When Location is set, reported
// conflicts are expressed in it.
type Detector struct {
	Location *time.Location
}

// HasConflict returns the first reservation of roomID overlapping
// [start, end), ignoring the reservation whose id equals excludeID (pass ""
// to consider all).  It returns nil when the slot is free.
func (d Detector) HasConflict(ctx context.Context, q CandidateLister, roomID string, start, end time.Time, excludeID string) (*model.Reservation, error) {
	candidates, err := q.OverlapCandidates(ctx, roomID, start, end)
	if err != nil {
		return nil, fmt.Errorf("load overlap candidates: %w", err)
	}
	for i := range candidates {
		c := candidates[i]
		if c.RoomID != roomID || (excludeID != "" && c.ID == excludeID) {
			continue
		}
		if Overlaps(start, end, c.StartTime, c.EndTime) {
			if d.Location != nil {
				c = c.In(d.Location)
			}
			return &c, nil
		}
	}
	return nil, nil
}

// ReserveIfFree locks the room, checks for an overlapping reservation and
// inserts r when the slot is free.  It must run inside a transaction so the
// room lock is held until commit.  An overlap, or a uniqueness violation
// reported by the store after a lost race, yields a KindConflict *Error.
func (d Detector) ReserveIfFree(ctx context.Context, tx ReservingTx, r *model.Reservation) error {
	if err := tx.LockRoom(ctx, r.RoomID); err != nil {
		return fmt.Errorf("lock room %s: %w", r.RoomID, err)
	}
	existing, err := d.HasConflict(ctx, tx, r.RoomID, r.StartTime, r.EndTime, "")
	if err != nil {
		return err
	}
	if existing != nil {
		return NewConflictError(existing)
	}
	if err := tx.Insert(ctx, r); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return NewConflictError(nil)
		}
		return fmt.Errorf("insert reservation: %w", err)
	}
	return nil
}
