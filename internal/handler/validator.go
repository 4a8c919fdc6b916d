package handler

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/iliyamo/meeting-room-booking/internal/booking"
)

// RequestValidator adapts go-playground/validator to echo.Validator.  Field
// names in reported errors are the JSON names.
type RequestValidator struct {
	v *validator.Validate
}

// NewRequestValidator returns a validator ready to be set on echo.Echo.
func NewRequestValidator() *RequestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &RequestValidator{v: v}
}

// Validate implements echo.Validator.  Rule failures come back as a
// KindValidation *booking.Error so they map onto the same 422 response as
// the booking rules.
func (rv *RequestValidator) Validate(i interface{}) error {
	err := rv.v.Struct(i)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	violations := make([]booking.Violation, 0, len(verrs))
	for _, fe := range verrs {
		vio := booking.Violation{Field: fe.Field(), Reason: booking.ReasonMissing, Message: fe.Field() + ": Field required"}
		if fe.Tag() != "required" {
			vio.Reason = booking.ReasonInvalidBody
			vio.Message = fe.Field() + ": failed " + fe.Tag() + " rule"
		}
		violations = append(violations, vio)
	}
	return booking.NewValidationError(violations...)
}
