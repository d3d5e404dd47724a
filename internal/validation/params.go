package validation

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/rohankatakam/cigraph/internal/errors"
)

// paramValidate checks query argument structs. Initialized in init() with the
// direction rule.
var paramValidate *validator.Validate

func init() {
	paramValidate = validator.New()
	_ = paramValidate.RegisterValidation("direction", validateDirection)
}

func validateDirection(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "in", "out", "both":
		return true
	}
	return false
}

// Struct validates a tagged argument struct and converts the first failure into
// an invalid_argument error naming the field and the rule it broke.
func Struct(v interface{}) error {
	err := paramValidate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !stderrors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return errors.InvalidArgument("%v", err)
	}
	fe := fieldErrs[0]
	field := lowerFirst(fe.Field())
	switch fe.Tag() {
	case "required":
		return errors.InvalidArgument("%s is required", field).WithContext("field", field)
	case "min", "max", "gte", "lte":
		return errors.InvalidArgument("%s=%v violates %s=%s", field, fe.Value(), fe.Tag(), fe.Param()).
			WithContext("field", field)
	default:
		return errors.InvalidArgument("%s=%v is not a valid %s", field, fe.Value(), describe(fe)).
			WithContext("field", field)
	}
}

func describe(fe validator.FieldError) string {
	if fe.Param() != "" {
		return fmt.Sprintf("%s(%s)", fe.Tag(), fe.Param())
	}
	return fe.Tag()
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
