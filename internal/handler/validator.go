package handler

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/iliyamo/travel-booking/internal/errs"
)

// Validator adapts go-playground/validator to echo.Validator.  Failures
// are InvalidInput errors naming the JSON field.
type Validator struct {
	v *validator.Validate
}

// NewValidator returns a validator reporting fields by their json names.
func NewValidator() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{v: v}
}

// Validate implements echo.Validator.
func (cv *Validator) Validate(i interface{}) error {
	err := cv.v.Struct(i)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		fe := ve[0]
		field := fe.Namespace()
		if i := strings.IndexByte(field, '.'); i >= 0 {
			field = field[i+1:]
		}
		return errs.Errorf(errs.InvalidInput, "handler.validate", "%s failed %s validation", field, fe.Tag())
	}
	return errs.Wrap(errs.InvalidInput, "handler.validate", err)
}
