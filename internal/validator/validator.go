package validator

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/cuongbtq/gigmarket-be/internal/api/domain"
	"github.com/go-playground/validator/v10"
)

// Validator wraps go-playground/validator and reports failures as
// domain validation errors keyed by json field name.
type Validator struct {
	validate *validator.Validate
	now      func() time.Time
}

// New creates a Validator with the marketplace rules registered.
func New() *Validator {
	return NewWithClock(time.Now)
}

// NewWithClock is New with an injectable clock for the "future" rule.
func NewWithClock(now func() time.Time) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	wrapper := &Validator{validate: v, now: now}
	wrapper.registerRules()
	return wrapper
}

func (v *Validator) registerRules() {
	mustRegister := func(tag string, fn validator.Func) {
		if err := v.validate.RegisterValidation(tag, fn); err != nil {
			panic(fmt.Sprintf("failed to register validation tag %q: %v", tag, err))
		}
	}

	mustRegister("future", v.validateFuture)
	mustRegister("notblank", validateNotBlank)
	mustRegister("job_status", validateJobStatus)
	mustRegister("application_status", validateApplicationStatus)
	mustRegister("submission_status", validateSubmissionStatus)
}

// Struct validates s. It returns nil or a *domain.Error of kind validation.
func (v *Validator) Struct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return domain.NewInternalError(err)
	}

	fields := make(map[string]string, len(validationErrors))
	for _, fe := range validationErrors {
		fields[fieldPath(fe)] = message(fe)
	}
	return domain.NewValidationError(fields)
}

// fieldPath drops the root struct name: "CreateJobInput.title" -> "title".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "notblank":
		return "is required"
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "min":
		if fe.Kind() == reflect.String || fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must contain at least %s items/characters", fe.Param())
		}
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		if fe.Kind() == reflect.String || fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must contain at most %s items/characters", fe.Param())
		}
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", strings.ReplaceAll(fe.Param(), " ", ", "))
	case "url":
		return "must be a valid URL"
	case "email":
		return "must be a valid email"
	case "uuid4", "uuid":
		return "must be a valid UUID"
	case "future":
		return "must be in the future"
	case "job_status", "application_status", "submission_status":
		return "is not a valid status"
	default:
		return fmt.Sprintf("failed on '%s' rule", fe.Tag())
	}
}

func (v *Validator) validateFuture(fl validator.FieldLevel) bool {
	t, ok := fl.Field().Interface().(time.Time)
	if !ok {
		return false
	}
	if t.IsZero() {
		return true
	}
	return t.After(v.now())
}

func validateNotBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

func validateJobStatus(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	return value == "" || domain.JobStatus(value).Valid()
}

func validateApplicationStatus(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	return value == "" || domain.ApplicationStatus(value).Valid()
}

func validateSubmissionStatus(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	return value == "" || domain.SubmissionStatus(value).Valid()
}
