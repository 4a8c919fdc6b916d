package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/meeting-room-booking/internal/model"
)

func reservation(id, room string, startHour int) model.Reservation {
	start := time.Date(2030, 6, 1, startHour, 0, 0, 0, time.UTC)
	return model.Reservation{ID: id, RoomID: room, StartTime: start, EndTime: start.Add(time.Hour), UserName: "u", CreatedAt: start.Add(-24 * time.Hour)}
}

func insert(t *testing.T, s *MemoryStore, r model.Reservation) {
	t.Helper()
	require.NoError(t, s.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
		return tx.Insert(ctx, &r)
	}))
}

func TestMemoryStore_CRUD(t *testing.T) {
	s := NewMemoryStore(time.Second)
	ctx := context.Background()
	insert(t, s, reservation("b", "room-1", 12))
	insert(t, s, reservation("a", "room-1", 10))
	insert(t, s, reservation("c", "room-2", 10))
	assert.Equal(t, 3, s.Len())

	err := s.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		got, err := tx.GetByID(ctx, "a")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, reservation("a", "room-1", 10), *got)

		missing, err := tx.GetByID(ctx, "nope")
		require.NoError(t, err)
		assert.Nil(t, missing)

		rows, err := tx.ListByRoom(ctx, "room-1")
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, "a", rows[0].ID)
		assert.Equal(t, "b", rows[1].ID)

		empty, err := tx.ListByRoom(ctx, "room-x")
		require.NoError(t, err)
		assert.NotNil(t, empty)
		assert.Empty(t, empty)

		ok, err := tx.DeleteByID(ctx, "a")
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = tx.DeleteByID(ctx, "a")
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())
}

func TestMemoryStore_RollbackDiscardsWrites(t *testing.T) {
	s := NewMemoryStore(time.Second)
	insert(t, s, reservation("keep", "room-1", 8))
	boom := errors.New("boom")

	err := s.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
		r := reservation("x", "room-1", 10)
		require.NoError(t, tx.Insert(ctx, &r))
		_, err := tx.DeleteByID(ctx, "keep")
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, s.Len())
}

func TestMemoryStore_InsertDuplicateStart(t *testing.T) {
	s := NewMemoryStore(time.Second)
	insert(t, s, reservation("a", "room-1", 10))

	err := s.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
		r := reservation("b", "room-1", 10)
		return tx.Insert(ctx, &r)
	})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestMemoryStore_CommitBackstop(t *testing.T) {
	s := NewMemoryStore(time.Second)
	ctx := context.Background()

	err := s.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		first := reservation("first", "room-1", 10)
		require.NoError(t, tx.Insert(ctx, &first))
		// A concurrent writer that skipped the room lock commits first.
		insert(t, s, reservation("second", "room-1", 10))
		return nil
	})
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.Equal(t, 1, s.Len())
}

func TestMemoryStore_LockTimeout(t *testing.T) {
	s := NewMemoryStore(50 * time.Millisecond)
	locked := make(chan struct{})
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = s.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
			if err := tx.LockRoom(ctx, "room-1"); err != nil {
				return err
			}
			close(locked)
			<-release
			return nil
		})
	}()
	<-locked

	err := s.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
		return tx.LockRoom(ctx, "room-1")
	})
	assert.ErrorIs(t, err, ErrLockTimeout)

	// Other rooms are not blocked.
	require.NoError(t, s.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
		return tx.LockRoom(ctx, "room-2")
	}))

	close(release)
	wg.Wait()

	// The lock is released with the transaction.
	require.NoError(t, s.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
		return tx.LockRoom(ctx, "room-1")
	}))
}

func TestMemoryStore_LockHonoursContext(t *testing.T) {
	s := NewMemoryStore(0)
	locked := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
			_ = tx.LockRoom(ctx, "room-1")
			close(locked)
			<-release
			return nil
		})
	}()
	<-locked

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := s.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.LockRoom(ctx, "room-1")
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	<-done
}

func TestMemoryStore_LockIsReentrant(t *testing.T) {
	s := NewMemoryStore(20 * time.Millisecond)
	require.NoError(t, s.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
		if err := tx.LockRoom(ctx, "room-1"); err != nil {
			return err
		}
		return tx.LockRoom(ctx, "room-1")
	}))
}
