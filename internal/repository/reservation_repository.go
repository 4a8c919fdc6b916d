package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/meeting-room-booking/internal/model"
)

// ReservationRepo is the MySQL implementation of Store.  Reservations live in
// the reservations table; room_locks holds one row per room that is locked
// with an exclusive row lock for the duration of a create transaction.  All
// timestamps are stored in UTC (the DSN uses loc=UTC) and returned in UTC;
// callers convert them to the reference timezone.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

// Ping verifies the connection with the database.
func (r *ReservationRepo) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return errors.Join(ErrUnavailable, err)
	}
	return nil
}

// WithinTx runs fn inside a database transaction.  The transaction is rolled
// back unless fn returns nil and the commit succeeds.
func (r *ReservationRepo) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", mapMySQLError(err))
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(ctx, &mysqlTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", mapMySQLError(err))
	}
	committed = true
	return nil
}

// mysqlTx implements Tx on top of *sql.Tx.
type mysqlTx struct {
	tx *sql.Tx
}

const reservationColumns = `id, room_id, start_time, end_time, user_name, created_at`

// LockRoom upserts the room's lock row.  The upsert takes an exclusive row
// lock that InnoDB holds until the transaction ends, so concurrent creates
// for the same room queue up here while other rooms proceed in parallel.
func (t *mysqlTx) LockRoom(ctx context.Context, roomID string) error {
	const q = `INSERT INTO room_locks (room_id) VALUES (?) ON DUPLICATE KEY UPDATE room_id = room_id`
	if _, err := t.tx.ExecContext(ctx, q, roomID); err != nil {
		return mapMySQLError(err)
	}
	return nil
}

// OverlapCandidates selects the room's reservations intersecting
// [start, end) with FOR UPDATE, using ix_reservations_room_time.
func (t *mysqlTx) OverlapCandidates(ctx context.Context, roomID string, start, end time.Time) ([]model.Reservation, error) {
	const q = `SELECT ` + reservationColumns + `
               FROM reservations
               WHERE room_id = ? AND start_time < ? AND end_time > ?
               ORDER BY start_time
               FOR UPDATE`
	rows, err := t.tx.QueryContext(ctx, q, roomID, end.UTC(), start.UTC())
	if err != nil {
		return nil, mapMySQLError(err)
	}
	return scanReservations(rows)
}

// Insert writes a new reservation row.  Violating ux_reservations_room_start
// (MySQL 1062) is reported as ErrDuplicate.
func (t *mysqlTx) Insert(ctx context.Context, r *model.Reservation) error {
	const q = `INSERT INTO reservations (` + reservationColumns + `) VALUES (?, ?, ?, ?, ?, ?)`
	_, err := t.tx.ExecContext(ctx, q,
		r.ID, r.RoomID, r.StartTime.UTC(), r.EndTime.UTC(), r.UserName, r.CreatedAt.UTC())
	return mapMySQLError(err)
}

// GetByID returns the reservation with the given id, or nil when no row
// exists.
func (t *mysqlTx) GetByID(ctx context.Context, id string) (*model.Reservation, error) {
	const q = `SELECT ` + reservationColumns + ` FROM reservations WHERE id = ?`
	var res model.Reservation
	err := t.tx.QueryRowContext(ctx, q, id).Scan(
		&res.ID, &res.RoomID, &res.StartTime, &res.EndTime, &res.UserName, &res.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapMySQLError(err)
	}
	return &res, nil
}

// DeleteByID removes the reservation and reports whether a row was deleted.
func (t *mysqlTx) DeleteByID(ctx context.Context, id string) (bool, error) {
	const q = `DELETE FROM reservations WHERE id = ?`
	result, err := t.tx.ExecContext(ctx, q, id)
	if err != nil {
		return false, mapMySQLError(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListByRoom returns every reservation of the room ordered by start time.
// The id tiebreak keeps the order deterministic.
func (t *mysqlTx) ListByRoom(ctx context.Context, roomID string) ([]model.Reservation, error) {
	const q = `SELECT ` + reservationColumns + `
               FROM reservations
               WHERE room_id = ?
               ORDER BY start_time, id`
	rows, err := t.tx.QueryContext(ctx, q, roomID)
	if err != nil {
		return nil, mapMySQLError(err)
	}
	return scanReservations(rows)
}

func scanReservations(rows *sql.Rows) ([]model.Reservation, error) {
	defer rows.Close()
	out := make([]model.Reservation, 0)
	for rows.Next() {
		var res model.Reservation
		if err := rows.Scan(&res.ID, &res.RoomID, &res.StartTime, &res.EndTime, &res.UserName, &res.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, mapMySQLError(err)
	}
	return out, nil
}
