package serverutils

import (
	"errors"
	"fmt"
	"strings"

	"ai-factcheck-be/pkg/apperror"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidateRequest runs the struct tags of req and reports the first failing
// field as a ValidationError.
func ValidateRequest(req interface{}) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperror.NewValidation("", err.Error())
	}

	fe := verrs[0]
	field := toSnakeCase(fe.Field())
	var msg string
	switch fe.Tag() {
	case "required":
		msg = "is required"
	case "url":
		msg = "must be a valid URL"
	case "max":
		msg = fmt.Sprintf("must be at most %s characters", fe.Param())
	case "gte":
		msg = fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	case "lte":
		msg = fmt.Sprintf("must be less than or equal to %s", fe.Param())
	case "startswith":
		msg = fmt.Sprintf("must start with %q", fe.Param())
	default:
		msg = fmt.Sprintf("failed on the %q rule", fe.Tag())
	}
	return apperror.NewValidation(field, msg)
}

func toSnakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
