// Package service orchestrates the booking engine and the store: it owns the
// transaction boundary, publishes events after commit and records metrics.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/meeting-room-booking/internal/booking"
	"github.com/iliyamo/meeting-room-booking/internal/metrics"
	"github.com/iliyamo/meeting-room-booking/internal/model"
	"github.com/iliyamo/meeting-room-booking/internal/queue"
	"github.com/iliyamo/meeting-room-booking/internal/repository"
)

// ErrUnavailable is returned when the store cannot be reached or a room lock
// could not be obtained in time.  The underlying cause stays wrapped.
var ErrUnavailable = errors.New("booking store unavailable")

const (
	opCreate = "create"
	opCancel = "cancel"
	opGet    = "get"
	opList   = "list"
)

// EventPublisher delivers booking events to the broker.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.BookingEvent) error
}

// CreateInput carries the raw client values of a booking request.
type CreateInput struct {
	RoomID    string
	UserName  string
	StartTime string
	EndTime   string
}

// ReservationService implements create, cancel, get and list.
type ReservationService struct {
	store     repository.Store
	norm      *booking.Normalizer
	validator *booking.Validator
	detector  booking.Detector
	log       logrus.FieldLogger
	metrics   *metrics.Metrics
	publisher EventPublisher
}

// Option customizes a ReservationService.
type Option func(*ReservationService)

// WithMetrics records operation outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *ReservationService) { s.metrics = m }
}

// WithPublisher publishes booking.created and booking.cancelled events
// through p after each commit.
func WithPublisher(p EventPublisher) Option {
	return func(s *ReservationService) { s.publisher = p }
}

// NewReservationService wires the service.  log may be nil, in which case
// a logger writing nowhere is used.
func NewReservationService(store repository.Store, norm *booking.Normalizer, validator *booking.Validator, log logrus.FieldLogger, opts ...Option) *ReservationService {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	s := &ReservationService{
		store:     store,
		norm:      norm,
		validator: validator,
		detector:  booking.Detector{Location: norm.Location()},
		log:       log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateReservation normalizes, validates and stores a new reservation.  The
// overlap check and the insert run under the room lock in one transaction.
func (s *ReservationService) CreateReservation(ctx context.Context, in CreateInput) (*model.Reservation, error) {
	start, startErr := s.norm.Normalize("start_time", in.StartTime)
	end, endErr := s.norm.Normalize("end_time", in.EndTime)
	if startErr != nil || endErr != nil {
		s.metrics.Booking(opCreate, metrics.OutcomeInvalid)
		return nil, joinValidation(startErr, endErr)
	}

	c := booking.Sanitize(booking.Candidate{RoomID: in.RoomID, UserName: in.UserName, StartTime: start, EndTime: end})
	if err := s.validator.Validate(c); err != nil {
		s.metrics.Booking(opCreate, metrics.OutcomeInvalid)
		return nil, err
	}

	r := &model.Reservation{
		ID:        uuid.NewString(),
		RoomID:    c.RoomID,
		StartTime: c.StartTime,
		EndTime:   c.EndTime,
		UserName:  c.UserName,
		CreatedAt: s.norm.Now(),
	}
	began := time.Now()
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return s.detector.ReserveIfFree(ctx, tx, r)
	})
	s.metrics.ObserveCreateTx(time.Since(began))
	if err != nil {
		err = mapStoreError(err)
		entry := s.log.WithFields(logrus.Fields{"room_id": r.RoomID, "start_time": r.StartTime, "end_time": r.EndTime})
		if booking.IsConflict(err) {
			s.metrics.Booking(opCreate, metrics.OutcomeConflict)
			entry.Info("booking rejected: slot taken")
		} else {
			s.metrics.Booking(opCreate, metrics.OutcomeError)
			entry.WithError(err).Error("create booking failed")
		}
		return nil, err
	}

	out := r.In(s.norm.Location())
	s.metrics.Booking(opCreate, metrics.OutcomeCreated)
	s.log.WithFields(logrus.Fields{"id": out.ID, "room_id": out.RoomID, "user_name": out.UserName, "duration": out.Duration().String()}).Info("booking created")
	s.publish(ctx, queue.EventBookingCreated, out)
	return &out, nil
}

// CancelReservation deletes the reservation and returns the removed record.
func (s *ReservationService) CancelReservation(ctx context.Context, id string) (*model.Reservation, error) {
	var removed *model.Reservation
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		r, err := tx.GetByID(ctx, id)
		if err != nil {
			return fmt.Errorf("get reservation: %w", err)
		}
		if r == nil {
			return booking.NewNotFoundError(id)
		}
		ok, err := tx.DeleteByID(ctx, id)
		if err != nil {
			return fmt.Errorf("delete reservation: %w", err)
		}
		if !ok {
			return booking.NewNotFoundError(id)
		}
		removed = r
		return nil
	})
	if err != nil {
		err = mapStoreError(err)
		if booking.IsNotFound(err) {
			s.metrics.Booking(opCancel, metrics.OutcomeNotFound)
		} else {
			s.metrics.Booking(opCancel, metrics.OutcomeError)
			s.log.WithError(err).WithField("id", id).Error("cancel booking failed")
		}
		return nil, err
	}

	out := removed.In(s.norm.Location())
	s.metrics.Booking(opCancel, metrics.OutcomeCancelled)
	s.log.WithFields(logrus.Fields{"id": out.ID, "room_id": out.RoomID}).Info("booking cancelled")
	s.publish(ctx, queue.EventBookingCancelled, out)
	return &out, nil
}

// GetReservation returns the reservation with the given id.
func (s *ReservationService) GetReservation(ctx context.Context, id string) (*model.Reservation, error) {
	var found *model.Reservation
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		r, err := tx.GetByID(ctx, id)
		if err != nil {
			return fmt.Errorf("get reservation: %w", err)
		}
		found = r
		return nil
	})
	if err != nil {
		s.metrics.Booking(opGet, metrics.OutcomeError)
		return nil, mapStoreError(err)
	}
	if found == nil {
		s.metrics.Booking(opGet, metrics.OutcomeNotFound)
		return nil, booking.NewNotFoundError(id)
	}
	out := found.In(s.norm.Location())
	return &out, nil
}

// ListReservations returns the room's reservations ordered by start time.
// An unknown room yields an empty, non-nil slice.
func (s *ReservationService) ListReservations(ctx context.Context, roomID string) ([]model.Reservation, error) {
	var rows []model.Reservation
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		rows, err = tx.ListByRoom(ctx, roomID)
		if err != nil {
			return fmt.Errorf("list reservations: %w", err)
		}
		return nil
	})
	if err != nil {
		s.metrics.Booking(opList, metrics.OutcomeError)
		return nil, mapStoreError(err)
	}
	out := make([]model.Reservation, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.In(s.norm.Location()))
	}
	return out, nil
}

// Ping reports whether the store is reachable.
func (s *ReservationService) Ping(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return mapStoreError(err)
	}
	return nil
}

// Location returns the reference timezone.
func (s *ReservationService) Location() *time.Location { return s.norm.Location() }

func (s *ReservationService) publish(ctx context.Context, eventType string, r model.Reservation) {
	if s.publisher == nil {
		return
	}
	// The request may be finishing; the event still deserves a short window.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	err := s.publisher.Publish(pctx, queue.NewBookingEvent(eventType, r, s.norm.Now()))
	s.metrics.Event(eventType, err)
	if err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{"event": eventType, "id": r.ID}).Warn("publish booking event failed")
	}
}

// joinValidation merges the validation errors of both timestamp fields so
// that every malformed field is reported at once.
func joinValidation(errs ...error) error {
	var violations []booking.Violation
	for _, err := range errs {
		if err == nil {
			continue
		}
		var be *booking.Error
		if !errors.As(err, &be) {
			return err
		}
		violations = append(violations, be.Violations...)
	}
	return booking.NewValidationError(violations...)
}

// mapStoreError converts store failures into service outcomes.  Booking
// errors pass through; a uniqueness violation found at insert or commit is a
// lost race and therefore a conflict.
func mapStoreError(err error) error {
	var be *booking.Error
	switch {
	case errors.As(err, &be):
		return be
	case errors.Is(err, repository.ErrDuplicate):
		return booking.NewConflictError(nil)
	case errors.Is(err, repository.ErrUnavailable), errors.Is(err, repository.ErrLockTimeout):
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}
