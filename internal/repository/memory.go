package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/meeting-room-booking/internal/model"
)

// MemoryStore is an in-process Store used for local runs and tests.  Room
// locks are per-room mutexes that honour context cancellation; writes are
// staged in the transaction and applied atomically at commit, where the
// (room_id, start_time) uniqueness rule of the MySQL schema is enforced
// again as a backstop.
type MemoryStore struct {
	mu   sync.RWMutex
	byID map[string]model.Reservation

	locksMu sync.Mutex
	locks   map[string]chan struct{}

	lockTimeout time.Duration
}

// NewMemoryStore returns an empty store.  lockTimeout bounds how long
// LockRoom waits; zero waits until the context ends.
func NewMemoryStore(lockTimeout time.Duration) *MemoryStore {
	return &MemoryStore{
		byID:        make(map[string]model.Reservation),
		locks:       make(map[string]chan struct{}),
		lockTimeout: lockTimeout,
	}
}

// Ping always succeeds unless the context is already done.
func (s *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }

// Len returns the number of committed reservations.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// WithinTx runs fn against a staging transaction and applies its writes
// when fn succeeds.  Room locks taken by fn are released after commit or
// rollback.
func (s *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx := &memTx{
		store:   s,
		inserts: make(map[string]model.Reservation),
		deletes: make(map[string]struct{}),
	}
	defer tx.release()
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return s.commit(tx)
}

func (s *MemoryStore) roomLock(roomID string) chan struct{} {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	ch, ok := s.locks[roomID]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[roomID] = ch
	}
	return ch
}

func (s *MemoryStore) commit(tx *memTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range tx.inserts {
		if _, ok := s.byID[r.ID]; ok {
			return fmt.Errorf("commit reservation %s: %w", r.ID, ErrDuplicate)
		}
		for id, existing := range s.byID {
			if _, deleted := tx.deletes[id]; deleted {
				continue
			}
			if existing.RoomID == r.RoomID && existing.StartTime.Equal(r.StartTime) {
				return fmt.Errorf("commit reservation %s: %w", r.ID, ErrDuplicate)
			}
		}
	}
	for id := range tx.deletes {
		delete(s.byID, id)
	}
	for id, r := range tx.inserts {
		s.byID[id] = r
	}
	return nil
}

// memTx stages writes for one unit of work.  It is used by a single
// goroutine.
type memTx struct {
	store   *MemoryStore
	inserts map[string]model.Reservation
	deletes map[string]struct{}
	held    []string
}

func (t *memTx) release() {
	for _, roomID := range t.held {
		<-t.store.roomLock(roomID)
	}
	t.held = nil
}

func (t *memTx) LockRoom(ctx context.Context, roomID string) error {
	for _, held := range t.held {
		if held == roomID {
			return nil
		}
	}
	var timeout <-chan time.Time
	if t.store.lockTimeout > 0 {
		timer := time.NewTimer(t.store.lockTimeout)
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case t.store.roomLock(roomID) <- struct{}{}:
		t.held = append(t.held, roomID)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for room %s: %w", roomID, ctx.Err())
	case <-timeout:
		return fmt.Errorf("wait for room %s: %w", roomID, ErrLockTimeout)
	}
}

// visible returns the committed reservations merged with this
// transaction's staged writes.
func (t *memTx) visible() []model.Reservation {
	t.store.mu.RLock()
	out := make([]model.Reservation, 0, len(t.store.byID)+len(t.inserts))
	for id, r := range t.store.byID {
		if _, deleted := t.deletes[id]; !deleted {
			out = append(out, r)
		}
	}
	t.store.mu.RUnlock()
	for _, r := range t.inserts {
		out = append(out, r)
	}
	return out
}

// OverlapCandidates returns every reservation in the room; the detector
// applies the interval test.
func (t *memTx) OverlapCandidates(ctx context.Context, roomID string, start, end time.Time) ([]model.Reservation, error) {
	return t.ListByRoom(ctx, roomID)
}

func (t *memTx) Insert(ctx context.Context, r *model.Reservation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, existing := range t.visible() {
		if existing.ID == r.ID || (existing.RoomID == r.RoomID && existing.StartTime.Equal(r.StartTime)) {
			return fmt.Errorf("insert reservation %s: %w", r.ID, ErrDuplicate)
		}
	}
	t.inserts[r.ID] = *r
	return nil
}

func (t *memTx) GetByID(ctx context.Context, id string) (*model.Reservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r, ok := t.inserts[id]; ok {
		return &r, nil
	}
	if _, deleted := t.deletes[id]; deleted {
		return nil, nil
	}
	t.store.mu.RLock()
	r, ok := t.store.byID[id]
	t.store.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (t *memTx) DeleteByID(ctx context.Context, id string) (bool, error) {
	r, err := t.GetByID(ctx, id)
	if err != nil || r == nil {
		return false, err
	}
	if _, staged := t.inserts[id]; staged {
		delete(t.inserts, id)
	} else {
		t.deletes[id] = struct{}{}
	}
	return true, nil
}

func (t *memTx) ListByRoom(ctx context.Context, roomID string) ([]model.Reservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]model.Reservation, 0)
	for _, r := range t.visible() {
		if r.RoomID == roomID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
