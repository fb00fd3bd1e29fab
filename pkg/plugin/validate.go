package plugin

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
)

// cronParser accepts the five-field form, the six-field form with a leading
// seconds column, and descriptors such as @hourly.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// validate is shared; building a validator per call is expensive.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("cron", func(fl validator.FieldLevel) bool {
		return ValidateCron(fl.Field().String()) == nil
	})
	return v
}

// ValidateCron checks that expr is a cron expression the orchestrator can schedule
func ValidateCron(expr string) error {
	if strings.TrimSpace(expr) == "" {
		return fmt.Errorf("empty cron expression")
	}
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

// ValidateDescriptor checks the declared metadata of a plugin before it is registered
func ValidateDescriptor(desc Descriptor) error {
	if err := validate.Struct(desc); err != nil {
		var errs validator.ValidationErrors
		if errors.As(err, &errs) {
			parts := make([]string, 0, len(errs))
			for _, fe := range errs {
				parts = append(parts, describeFieldError(fe))
			}
			return fmt.Errorf("invalid descriptor: %s", strings.Join(parts, "; "))
		}
		return fmt.Errorf("invalid descriptor: %w", err)
	}
	return nil
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Namespace())
	case "cron":
		return fmt.Sprintf("%s: invalid cron expression %q", fe.Namespace(), fe.Value())
	default:
		return fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag())
	}
}
