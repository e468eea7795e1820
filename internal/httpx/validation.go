// Package httpx holds the request binding and error rendering shared by the
// HTTP handlers.
package httpx

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/Chengenchong/PayLentine-Backend/internal/apperr"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
	errValidate  error
)

func initValidator() (*validator.Validate, error) {
	vld := validator.New(validator.WithRequiredStructEnabled())
	vld.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	if err := vld.RegisterValidation("positive_amount", func(fl validator.FieldLevel) bool {
		str := fl.Field().String()
		if str == "" {
			return true // required handles empty
		}
		d, err := decimal.NewFromString(str)
		if err != nil {
			return false
		}
		return d.IsPositive() && d.Equal(d.Round(2))
	}); err != nil {
		return nil, fmt.Errorf("register positive_amount: %w", err)
	}

	if err := vld.RegisterValidation("currency", func(fl validator.FieldLevel) bool {
		str := strings.TrimSpace(fl.Field().String())
		if str == "" {
			return true
		}
		if len(str) != 3 {
			return false
		}
		for _, r := range str {
			if (r < 'A' || r > 'Z') && (r < 'a' || r > 'z') {
				return false
			}
		}
		return true
	}); err != nil {
		return nil, fmt.Errorf("register currency: %w", err)
	}

	return vld, nil
}

// Validator returns the process-wide validator.
func Validator() (*validator.Validate, error) {
	validateOnce.Do(func() {
		validate, errValidate = initValidator()
	})
	return validate, errValidate
}

var messages = map[string]func(param string) string{
	"required":        func(string) string { return "is required" },
	"email":           func(string) string { return "must be a valid email" },
	"oneof":           func(p string) string { return fmt.Sprintf("must be one of [%s]", p) },
	"max":             func(p string) string { return fmt.Sprintf("must be at most %s", p) },
	"min":             func(p string) string { return fmt.Sprintf("must be at least %s", p) },
	"positive_amount": func(string) string { return "must be a positive amount with at most 2 decimal places" },
	"currency":        func(string) string { return "must be a 3-letter ISO code" },
}

// ValidateStruct checks payload's validate tags and reports the first failure
// as an apperr validation error naming the JSON field.
func ValidateStruct(payload any) error {
	vld, err := Validator()
	if err != nil {
		return fmt.Errorf("validator unavailable: %w", err)
	}
	if err := vld.Struct(payload); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			msg := fmt.Sprintf("failed %q check", fe.Tag())
			if format, ok := messages[fe.Tag()]; ok {
				msg = format(fe.Param())
			}
			return apperr.Invalid(toSnakeCase(fe.Field()), msg)
		}
		return apperr.Wrap(apperr.Validation, "invalid request", err)
	}
	return nil
}

// Bind parses the JSON body into payload and validates it.
func Bind(c *fiber.Ctx, payload any) error {
	ct := c.Get(fiber.HeaderContentType)
	if ct != "" && !strings.HasPrefix(ct, fiber.MIMEApplicationJSON) {
		return apperr.Invalid("content-type", "must be application/json")
	}
	if err := c.BodyParser(payload); err != nil {
		return apperr.Wrap(apperr.Validation, "malformed request body", err)
	}
	return ValidateStruct(payload)
}

// Amount parses a validated amount string.
func Amount(field, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Decimal{}, apperr.Invalid(field, "must be a decimal number")
	}
	return d, nil
}

func toSnakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if i > 0 && r >= 'A' && r <= 'Z' {
			b.WriteByte('_')
		}
		b.WriteRune(r)
	}
	return strings.ToLower(b.String())
}
