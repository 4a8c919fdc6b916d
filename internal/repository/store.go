package repository

import (
	"context"
	"time"

	"github.com/iliyamo/meeting-room-booking/internal/model"
)

// Store is the durable record of reservations.  Every read and write runs
// inside a unit of work opened by WithinTx so that the conflict check and the
// insert for a room are serialized against concurrent attempts.
type Store interface {
	// WithinTx runs fn inside a transaction.  The transaction commits when fn
	// returns nil and rolls back otherwise; fn's error is returned unchanged.
	// A failing commit is returned as the error.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// Ping verifies that the store is reachable.
	Ping(ctx context.Context) error
}

// Tx is the set of operations available inside a unit of work.
type Tx interface {
	// LockRoom takes an exclusive, transaction-scoped lock on the room.  It
	// blocks until the lock is granted, the context ends, or the store's lock
	// timeout elapses (ErrLockTimeout).
	LockRoom(ctx context.Context, roomID string) error
	// OverlapCandidates returns reservations of roomID whose interval may
	// intersect [start, end).
	OverlapCandidates(ctx context.Context, roomID string, start, end time.Time) ([]model.Reservation, error)
	// Insert stores r.  A uniqueness violation is reported as ErrDuplicate.
	Insert(ctx context.Context, r *model.Reservation) error
	// GetByID returns the reservation or (nil, nil) when it does not exist.
	GetByID(ctx context.Context, id string) (*model.Reservation, error)
	// DeleteByID removes the reservation and reports whether a row existed.
	DeleteByID(ctx context.Context, id string) (bool, error)
	// ListByRoom returns the room's reservations ordered by start time.
	ListByRoom(ctx context.Context, roomID string) ([]model.Reservation, error)
}
