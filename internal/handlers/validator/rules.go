package validator

import (
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
)

var (
	serviceTypeRegex = regexp.MustCompile(`^[a-z][a-z0-9_-]{0,63}$`)
	proIDRegex       = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:-]{0,127}$`)
)

// registerFn panics if the rule cannot be registered.
func registerFn(tag string, fn func(fl validator.FieldLevel) bool) func(v *validator.Validate) {
	return func(v *validator.Validate) {
		if err := v.RegisterValidation(tag, fn); err != nil {
			panic(fmt.Sprintf("failed to register validation rule %q: %v", tag, err))
		}
	}
}

func NewDispatchValidationRules() []ValidationRule {
	return []ValidationRule{
		{
			Rule: registerFn("service_type", regexValidator(serviceTypeRegex)),
		},
		{
			Rule: registerFn("pro_id", regexValidator(proIDRegex)),
		},
	}
}

func regexValidator(re *regexp.Regexp) func(fl validator.FieldLevel) bool {
	return func(fl validator.FieldLevel) bool {
		val, ok := fl.Field().Interface().(string)
		if !ok {
			return false
		}
		return re.MatchString(val)
	}
}
