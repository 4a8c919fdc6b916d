package booking

import (
	"errors"
	"fmt"
	"strings"

	"github.com/iliyamo/meeting-room-booking/internal/model"
)

// Kind tags the category of a booking error.  Callers switch on the kind
// instead of on concrete error types.
type Kind uint8

const (
	KindValidation Kind = iota + 1
	KindConflict
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	}
	return "unknown"
}

// Reason is the machine-checkable cause of a single validation violation.
type Reason string

const (
	ReasonMissing            Reason = "missing"
	ReasonInvalidBody        Reason = "invalid_body"
	ReasonMalformedTimestamp Reason = "malformed_timestamp"
	ReasonEmptyField         Reason = "empty_field"
	ReasonFieldTooLong       Reason = "field_too_long"
	ReasonInvalidRange       Reason = "invalid_range"
	ReasonDurationTooShort   Reason = "duration_too_short"
	ReasonDurationTooLong    Reason = "duration_too_long"
	ReasonInPast             Reason = "in_past"
	ReasonTooFarAhead        Reason = "too_far_ahead"
)

// Structural reports whether the reason describes the shape of the request
// rather than a business rule evaluated against the current time.  Only
// ReasonInPast is a pure business rule.
func (r Reason) Structural() bool { return r != ReasonInPast }

// Violation describes one failed rule for one field.
type Violation struct {
	Field   string `json:"field"`
	Reason  Reason `json:"type"`
	Message string `json:"message"`
}

// Error is the single error type returned by the booking engine and the
// reservation service for business outcomes.  Violations is set for
// KindValidation; Conflicting is set for KindConflict when the overlapping
// reservation is known.
type Error struct {
	Kind        Kind
	Message     string
	Violations  []Violation
	Conflicting *model.Reservation
}

func (e *Error) Error() string { return e.Message }

// Structural reports whether any violation is structural.  A validation
// error whose violations are all business rules is reported to clients as a
// plain bad request.
func (e *Error) Structural() bool {
	for _, v := range e.Violations {
		if v.Reason.Structural() {
			return true
		}
	}
	return false
}

// HasReason reports whether any violation carries the given reason.
func (e *Error) HasReason(r Reason) bool {
	for _, v := range e.Violations {
		if v.Reason == r {
			return true
		}
	}
	return false
}

// NewValidationError builds a KindValidation error.  The message joins the
// violation messages so it stays useful when logged on its own.
func NewValidationError(violations ...Violation) *Error {
	msgs := make([]string, 0, len(violations))
	for _, v := range violations {
		msgs = append(msgs, v.Message)
	}
	return &Error{Kind: KindValidation, Message: strings.Join(msgs, "; "), Violations: violations}
}

// NewConflictError builds a KindConflict error describing the existing
// reservation that blocks the requested slot.  existing may be nil when the
// conflict was detected by a store constraint after a lost race.
func NewConflictError(existing *model.Reservation) *Error {
	if existing == nil {
		return &Error{Kind: KindConflict, Message: "Booking conflicts with an existing booking for this room"}
	}
	return &Error{
		Kind: KindConflict,
		Message: fmt.Sprintf("Booking conflicts with existing booking from %s to %s",
			existing.StartTime.Format("2006-01-02 15:04:05-07:00"),
			existing.EndTime.Format("2006-01-02 15:04:05-07:00")),
		Conflicting: existing,
	}
}

// NewNotFoundError builds a KindNotFound error for the given reservation id.
func NewNotFoundError(id string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("Booking with id '%s' not found", id)}
}

// KindOf returns the kind of err when it is (or wraps) a *Error, and zero
// otherwise.
func KindOf(err error) Kind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return 0
}

func IsValidation(err error) bool { return KindOf(err) == KindValidation }
func IsConflict(err error) bool   { return KindOf(err) == KindConflict }
func IsNotFound(err error) bool   { return KindOf(err) == KindNotFound }
