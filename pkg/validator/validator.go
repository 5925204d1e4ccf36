package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	playground "github.com/go-playground/validator/v10"
)

// Validator provides validation functionality
type Validator interface {
	Validate(interface{}) error
}

// FieldError describes one failing field, keyed by its json name.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Errors is returned by Validate when one or more fields fail.
type Errors []FieldError

func (e Errors) Error() string {
	parts := make([]string, 0, len(e))
	for _, fe := range e {
		parts = append(parts, fmt.Sprintf("%s %s", fe.Field, fe.Message))
	}
	return strings.Join(parts, "; ")
}

var messages = map[string]string{
	"required": "is required",
	"email":    "must be a valid email",
	"min":      "is too short",
	"max":      "is too long",
	"gte":      "must not be negative",
	"oneof":    "has an unsupported value",
}

type validator struct {
	v *playground.Validate
}

func New() Validator {
	v := playground.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return &validator{v: v}
}

func (v *validator) Validate(obj interface{}) error {
	err := v.v.Struct(obj)
	if err == nil {
		return nil
	}

	var verrs playground.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	out := make(Errors, 0, len(verrs))
	for _, fe := range verrs {
		msg, ok := messages[fe.Tag()]
		if !ok {
			msg = fmt.Sprintf("failed on %s", fe.Tag())
		}
		out = append(out, FieldError{Field: fe.Field(), Message: msg})
	}
	return out
}
