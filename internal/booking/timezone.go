package booking

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // the reference zone must resolve on images without zoneinfo
)

// DefaultTimezone is the reference timezone used when none is configured.
const DefaultTimezone = "Europe/Helsinki"

// Clock supplies the current instant.  Tests inject a fixed clock so that
// "now"-relative rules are deterministic.
type Clock interface {
	Now() time.Time
}

// RealClock reads the system clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// Layouts accepted for timestamps that carry their own zone.
var zonedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z0700",
	"2006-01-02T15:04Z07:00",
	// hour-only offsets such as "+02"
	"2006-01-02T15:04:05.999999999Z07",
	"2006-01-02 15:04:05.999999999Z07",
	"2006-01-02T15:04Z07",
}

// Layouts accepted for naive timestamps, interpreted in the reference zone.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// Normalizer converts client timestamps into instants in the reference
// timezone.  It is the single normalization point: every comparison against
// "now" or against stored reservations uses its output.
type Normalizer struct {
	loc   *time.Location
	clock Clock
}

// NewNormalizer loads the named IANA timezone.  An empty name selects
// DefaultTimezone; a nil clock selects RealClock.
func NewNormalizer(tz string, clock Clock) (*Normalizer, error) {
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", tz, err)
	}
	if clock == nil {
		clock = RealClock{}
	}
	return &Normalizer{loc: loc, clock: clock}, nil
}

// Location returns the reference timezone.
func (n *Normalizer) Location() *time.Location { return n.loc }

// Now returns the current instant in the reference timezone, truncated to
// the precision used for stored instants.
func (n *Normalizer) Now() time.Time { return n.Instant(n.clock.Now()) }

// Instant converts an already parsed time into the reference timezone and
// truncates it to microseconds, the precision of the store.
func (n *Normalizer) Instant(t time.Time) time.Time {
	return t.Truncate(time.Microsecond).In(n.loc)
}

// canonicalCase upper-cases the "t" separator and a trailing "z", which
// ISO-8601 permits in either case but time.Parse only matches upper-case.
func canonicalCase(s string) string {
	if len(s) > 10 && s[10] == 't' {
		s = s[:10] + "T" + s[11:]
	}
	if strings.HasSuffix(s, "z") {
		s = s[:len(s)-1] + "Z"
	}
	return s
}

// Normalize parses raw and returns it as an instant in the reference
// timezone.  Timestamps without zone information are taken to be in the
// reference timezone already; timestamps with "Z" or a numeric offset are
// converted.  Anything else yields a validation error with reason
// ReasonMalformedTimestamp for the given field.
func (n *Normalizer) Normalize(field, raw string) (time.Time, error) {
	s := canonicalCase(strings.TrimSpace(raw))
	if s != "" {
		for _, layout := range zonedLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return n.Instant(t), nil
			}
		}
		for _, layout := range naiveLayouts {
			if t, err := time.ParseInLocation(layout, s, n.loc); err == nil {
				return n.Instant(t), nil
			}
		}
	}
	return time.Time{}, NewValidationError(Violation{
		Field:   field,
		Reason:  ReasonMalformedTimestamp,
		Message: fmt.Sprintf("%s must be an ISO-8601 datetime, got %q", field, raw),
	})
}
