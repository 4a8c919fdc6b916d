package booking

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2030, 1, 15, 12, 0, 0, 0, time.UTC)

func newTestValidator() *Validator {
	return NewValidator(Limits{}, func() time.Time { return testNow })
}

func candidate(start time.Time, d time.Duration) Candidate {
	return Candidate{RoomID: "room-1", UserName: "Alice", StartTime: start, EndTime: start.Add(d)}
}

func requireReason(t *testing.T, err error, reason Reason) *Error {
	t.Helper()
	require.Error(t, err)
	var be *Error
	require.ErrorAs(t, err, &be)
	assert.Equal(t, KindValidation, be.Kind)
	assert.True(t, be.HasReason(reason), "want %s, got %+v", reason, be.Violations)
	return be
}

func TestValidate_DurationBoundaries(t *testing.T) {
	v := newTestValidator()
	start := testNow.Add(24 * time.Hour)

	assert.NoError(t, v.Validate(candidate(start, 15*time.Minute)))
	assert.NoError(t, v.Validate(candidate(start, 4*time.Hour)))

	be := requireReason(t, v.Validate(candidate(start, 15*time.Minute-time.Second)), ReasonDurationTooShort)
	assert.Contains(t, be.Message, "15 minutes")

	be = requireReason(t, v.Validate(candidate(start, 4*time.Hour+time.Second)), ReasonDurationTooLong)
	assert.Contains(t, be.Message, "4 hours")
}

func TestValidate_Range(t *testing.T) {
	v := newTestValidator()
	start := testNow.Add(24 * time.Hour)

	requireReason(t, v.Validate(candidate(start, 0)), ReasonInvalidRange)
	requireReason(t, v.Validate(candidate(start, -time.Hour)), ReasonInvalidRange)
}

func TestValidate_PastIsBusinessRule(t *testing.T) {
	v := newTestValidator()

	be := requireReason(t, v.Validate(candidate(testNow.Add(-time.Hour), time.Hour)), ReasonInPast)
	assert.False(t, be.Structural())
	assert.Contains(t, be.Message, "past")

	// Starting exactly now is allowed.
	assert.NoError(t, v.Validate(candidate(testNow, time.Hour)))
}

func TestValidate_AdvanceWindow(t *testing.T) {
	v := newTestValidator()

	assert.NoError(t, v.Validate(candidate(testNow.Add(DefaultMaxAdvance), time.Hour)))

	be := requireReason(t, v.Validate(candidate(testNow.Add(91*24*time.Hour), time.Hour)), ReasonTooFarAhead)
	assert.True(t, be.Structural())
	assert.Contains(t, be.Message, "90 days")
}

func TestValidate_Fields(t *testing.T) {
	v := newTestValidator()
	start := testNow.Add(time.Hour)

	tests := []struct {
		name     string
		room     string
		user     string
		reasons  []Reason
		accepted bool
	}{
		{name: "limits accepted", room: strings.Repeat("r", 50), user: strings.Repeat("u", 100), accepted: true},
		{name: "multibyte counted as runes", room: strings.Repeat("ä", 50), user: "Äiti", accepted: true},
		{name: "room too long", room: strings.Repeat("r", 51), user: "Alice", reasons: []Reason{ReasonFieldTooLong}},
		{name: "user too long", room: "room-1", user: strings.Repeat("u", 101), reasons: []Reason{ReasonFieldTooLong}},
		{name: "empty room", room: "", user: "Alice", reasons: []Reason{ReasonEmptyField}},
		{name: "whitespace both", room: "   ", user: "\t", reasons: []Reason{ReasonEmptyField}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Sanitize(Candidate{RoomID: tt.room, UserName: tt.user, StartTime: start, EndTime: start.Add(time.Hour)})
			err := v.Validate(c)
			if tt.accepted {
				assert.NoError(t, err)
				return
			}
			for _, r := range tt.reasons {
				requireReason(t, err, r)
			}
		})
	}
}

func TestValidate_ReportsBothFields(t *testing.T) {
	v := newTestValidator()
	start := testNow.Add(time.Hour)

	be := requireReason(t, v.Validate(Candidate{StartTime: start, EndTime: start.Add(time.Hour)}), ReasonEmptyField)
	require.Len(t, be.Violations, 2)
	assert.Equal(t, "room_id", be.Violations[0].Field)
	assert.Equal(t, "user_name", be.Violations[1].Field)
	assert.Contains(t, be.Message, "empty or whitespace")
}

func TestSanitize_Trims(t *testing.T) {
	c := Sanitize(Candidate{RoomID: "  room-1 ", UserName: "\tAlice\n"})
	assert.Equal(t, "room-1", c.RoomID)
	assert.Equal(t, "Alice", c.UserName)
}

func TestNewValidator_CustomLimits(t *testing.T) {
	v := NewValidator(Limits{MinDuration: 30 * time.Minute}, func() time.Time { return testNow })
	assert.Equal(t, 30*time.Minute, v.Limits().MinDuration)
	assert.Equal(t, DefaultMaxDuration, v.Limits().MaxDuration)

	be := requireReason(t, v.Validate(candidate(testNow.Add(time.Hour), 20*time.Minute)), ReasonDurationTooShort)
	assert.Contains(t, be.Message, "30 minutes")
}
