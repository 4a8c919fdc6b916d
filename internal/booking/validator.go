package booking

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Default business limits.
const (
	DefaultMinDuration = 15 * time.Minute
	DefaultMaxDuration = 4 * time.Hour
	DefaultMaxAdvance  = 90 * 24 * time.Hour

	MaxRoomIDLength   = 50
	MaxUserNameLength = 100
)

// Limits bounds the duration of a booking and how far ahead it may start.
type Limits struct {
	MinDuration time.Duration
	MaxDuration time.Duration
	MaxAdvance  time.Duration
}

// DefaultLimits returns the 15 minute / 4 hour / 90 day limits.
func DefaultLimits() Limits {
	return Limits{MinDuration: DefaultMinDuration, MaxDuration: DefaultMaxDuration, MaxAdvance: DefaultMaxAdvance}
}

// Candidate is a proposed booking whose instants have already been
// normalized into the reference timezone.
type Candidate struct {
	RoomID    string
	UserName  string
	StartTime time.Time
	EndTime   time.Time
}

// Sanitize returns c with surrounding whitespace removed from the
// identifiers.  The trimmed values are the ones validated and stored.
func Sanitize(c Candidate) Candidate {
	c.RoomID = strings.TrimSpace(c.RoomID)
	c.UserName = strings.TrimSpace(c.UserName)
	return c
}

// Validator enforces the structural and business rules for a candidate.  It
// only reads the current instant and has no other side effects.
type Validator struct {
	limits Limits
	now    func() time.Time
}

// NewValidator returns a validator using the given limits.  Zero limits fall
// back to the defaults.  now supplies the current instant, normally
// Normalizer.Now.
func NewValidator(limits Limits, now func() time.Time) *Validator {
	def := DefaultLimits()
	if limits.MinDuration <= 0 {
		limits.MinDuration = def.MinDuration
	}
	if limits.MaxDuration <= 0 {
		limits.MaxDuration = def.MaxDuration
	}
	if limits.MaxAdvance <= 0 {
		limits.MaxAdvance = def.MaxAdvance
	}
	return &Validator{limits: limits, now: now}
}

// Limits returns the limits in effect.
func (v *Validator) Limits() Limits { return v.limits }

// Validate checks c and returns nil or a KindValidation *Error.  The
// identifier checks run for both fields so that every offending field is
// reported; the time checks stop at the first failure, in this order:
// start before end, minimum duration, maximum duration, not in the past,
// not beyond the advance window.  c is expected to be sanitized.
func (v *Validator) Validate(c Candidate) error {
	var violations []Violation
	violations = appendFieldViolation(violations, "room_id", c.RoomID, MaxRoomIDLength)
	violations = appendFieldViolation(violations, "user_name", c.UserName, MaxUserNameLength)
	if len(violations) > 0 {
		return NewValidationError(violations...)
	}
	if vio, ok := v.checkTimes(c.StartTime, c.EndTime); !ok {
		return NewValidationError(vio)
	}
	return nil
}

func appendFieldViolation(dst []Violation, field, value string, maxLen int) []Violation {
	if strings.TrimSpace(value) == "" {
		return append(dst, Violation{
			Field:   field,
			Reason:  ReasonEmptyField,
			Message: fmt.Sprintf("%s cannot be empty or whitespace only", field),
		})
	}
	if utf8.RuneCountInString(value) > maxLen {
		return append(dst, Violation{
			Field:   field,
			Reason:  ReasonFieldTooLong,
			Message: fmt.Sprintf("%s should have at most %d characters", field, maxLen),
		})
	}
	return dst
}

func (v *Validator) checkTimes(start, end time.Time) (Violation, bool) {
	if !start.Before(end) {
		return Violation{Field: "end_time", Reason: ReasonInvalidRange, Message: "start_time must be before end_time"}, false
	}
	d := end.Sub(start)
	if d < v.limits.MinDuration {
		return Violation{
			Field:   "end_time",
			Reason:  ReasonDurationTooShort,
			Message: fmt.Sprintf("Booking must be at least %s long", humanDuration(v.limits.MinDuration)),
		}, false
	}
	if d > v.limits.MaxDuration {
		return Violation{
			Field:   "end_time",
			Reason:  ReasonDurationTooLong,
			Message: fmt.Sprintf("Booking cannot be longer than %s", humanDuration(v.limits.MaxDuration)),
		}, false
	}
	now := v.now()
	if start.Before(now) {
		return Violation{Field: "start_time", Reason: ReasonInPast, Message: "Cannot create bookings in the past"}, false
	}
	if start.After(now.Add(v.limits.MaxAdvance)) {
		return Violation{
			Field:   "start_time",
			Reason:  ReasonTooFarAhead,
			Message: fmt.Sprintf("Cannot create bookings more than %s in advance", humanDuration(v.limits.MaxAdvance)),
		}, false
	}
	return Violation{}, true
}

// humanDuration renders whole days, hours or minutes the way the error
// messages quote them ("15 minutes", "4 hours", "90 days").
func humanDuration(d time.Duration) string {
	switch {
	case d >= 24*time.Hour && d%(24*time.Hour) == 0:
		return plural(int(d/(24*time.Hour)), "day")
	case d >= time.Hour && d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	case d >= time.Minute && d%time.Minute == 0:
		return plural(int(d/time.Minute), "minute")
	}
	return d.String()
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
