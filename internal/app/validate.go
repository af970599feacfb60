package app

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"quiz-result-service/internal/domain"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report JSON field names so errors match the request body.
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidateAttempt checks required attempt fields. The returned error is a
// *domain.ValidationError.
func ValidateAttempt(attempt domain.Attempt) error {
	return validationError(validate.Struct(attempt))
}

// ValidateTestCode checks a test code before it is issued.
func ValidateTestCode(tc domain.TestCode) error {
	return validationError(validate.Struct(tc))
}

func validationError(err error) error {
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &domain.ValidationError{}
	}
	fields := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields = append(fields, fe.Field())
	}
	return &domain.ValidationError{Fields: fields}
}
