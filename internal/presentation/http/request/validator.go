package request

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Additional-Code/fulfillment/pkg/errorbank"
)

// Validator adapts go-playground/validator to echo.
type Validator struct {
	validate *validator.Validate
}

// NewValidator builds a validator that reports JSON field names.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		for _, tag := range []string{"json", "query", "param"} {
			name := strings.SplitN(field.Tag.Get(tag), ",", 2)[0]
			if name != "" && name != "-" {
				return name
			}
		}
		return field.Name
	})
	return &Validator{validate: v}
}

// Validate implements echo.Validator.
func (v *Validator) Validate(i interface{}) error {
	return v.validate.Struct(i)
}

// Bind decodes the request into obj and validates it. Failures come back as
// bad_request errors with one detail per offending field.
func Bind(c echo.Context, obj interface{}) error {
	if err := c.Bind(obj); err != nil {
		return errorbank.BadRequest("invalid request payload", errorbank.WithCause(err))
	}
	if err := c.Validate(obj); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			fields := make(map[string]any, len(fieldErrs))
			for _, fe := range fieldErrs {
				fields[fe.Field()] = message(fe)
			}
			return errorbank.BadRequest("validation failed", errorbank.WithDetails(fields))
		}
		return errorbank.BadRequest("validation failed", errorbank.WithCause(err))
	}
	return nil
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}
