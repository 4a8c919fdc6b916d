package database

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS reservations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS room_locks").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("ALTER TABLE reservations MODIFY room_id").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("ALTER TABLE room_locks MODIFY room_id").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, Migrate(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_StopsOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	denied := errors.New("access denied")
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS reservations").WillReturnError(denied)

	err = Migrate(context.Background(), db)
	assert.ErrorIs(t, err, denied)
	assert.ErrorContains(t, err, "migration 1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_RoomIDIsCaseSensitive(t *testing.T) {
	binary := regexp.MustCompile(`room_id\s+VARCHAR\(50\)\s+COLLATE utf8mb4_bin NOT NULL`)
	for i, stmt := range schema {
		assert.Regexp(t, binary, stmt, "statement %d", i+1)
	}

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	collated := `room_id\s+VARCHAR\(50\)\s+COLLATE utf8mb4_bin NOT NULL`
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS reservations .*` + collated).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS room_locks .*` + collated).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`ALTER TABLE reservations MODIFY ` + collated).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`ALTER TABLE room_locks MODIFY ` + collated).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, Migrate(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}
