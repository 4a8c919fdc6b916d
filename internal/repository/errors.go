// Package repository defines the reservation store contract, its MySQL and
// in-memory implementations, and the sentinel errors shared by both.  These
// sentinel values allow higher layers to distinguish a lost race from an
// infrastructure failure.
package repository

import (
	"errors"
	"net"

	"github.com/go-sql-driver/mysql"
)

// ErrDuplicate is returned when an insert violates the store's uniqueness
// constraint on (room_id, start_time).  It means a concurrent transaction
// won the slot; callers translate it into a booking conflict.
var ErrDuplicate = errors.New("duplicate reservation slot")

// ErrLockTimeout is returned when the room lock could not be acquired
// before the store gave up waiting.  It is an operational failure, never a
// business outcome.
var ErrLockTimeout = errors.New("timed out waiting for room lock")

// ErrUnavailable wraps failures to reach the store at all (connection
// refused, broken pipe, closed pool).
var ErrUnavailable = errors.New("reservation store unavailable")

// MySQL server error numbers mapped by mapMySQLError.
const (
	mysqlErrDuplicateEntry  = 1062
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
)

// mapMySQLError converts driver errors into the package sentinels while
// keeping the original error in the chain.
func mapMySQLError(err error) error {
	if err == nil {
		return nil
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlErrDuplicateEntry:
			return errors.Join(ErrDuplicate, err)
		case mysqlErrLockWaitTimeout, mysqlErrDeadlock:
			return errors.Join(ErrLockTimeout, err)
		}
		return err
	}
	var netErr net.Error
	if errors.Is(err, mysql.ErrInvalidConn) || errors.As(err, &netErr) {
		return errors.Join(ErrUnavailable, err)
	}
	return err
}
