package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema creates the reservations table and the per-room lock table.
// ix_reservations_room_time serves the overlap query;
// ux_reservations_room_start is the backstop that turns a lost race for an
// identical slot into a duplicate-key error instead of two rows.
// room_id uses a binary collation: room ids are exact strings, so "Room-1"
// and "room-1" are different rooms in every index and comparison.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS reservations (
		id         CHAR(36)     NOT NULL,
		room_id    VARCHAR(50)  COLLATE utf8mb4_bin NOT NULL,
		start_time DATETIME(6)  NOT NULL,
		end_time   DATETIME(6)  NOT NULL,
		user_name  VARCHAR(100) NOT NULL,
		created_at DATETIME(6)  NOT NULL,
		PRIMARY KEY (id),
		KEY ix_reservations_room_time (room_id, start_time, end_time),
		UNIQUE KEY ux_reservations_room_start (room_id, start_time),
		CONSTRAINT ck_reservations_range CHECK (start_time < end_time)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS room_locks (
		room_id VARCHAR(50) COLLATE utf8mb4_bin NOT NULL,
		PRIMARY KEY (room_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	// Tables created before room ids were compared byte-wise.
	`ALTER TABLE reservations MODIFY room_id VARCHAR(50) COLLATE utf8mb4_bin NOT NULL`,
	`ALTER TABLE room_locks MODIFY room_id VARCHAR(50) COLLATE utf8mb4_bin NOT NULL`,
}

// Migrate applies the schema.  Statements are idempotent so it runs on
// every start.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return nil
}
