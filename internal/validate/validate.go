// Package validate wraps go-playground/validator and reports the first failing
// field as a readable message.
package validate

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/Shivanand-hulikatti/enjoycity/internal/clock"
	"github.com/go-playground/validator/v10"
)

// Error describes the first field that failed validation.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	return e.Field + ": " + e.Message
}

// Validator checks tagged structs. Besides the built-in tags it knows
// "future" (time strictly after now), "notblank" (non-whitespace string) and
// "maxbytes" (string length in bytes, not characters).
type Validator struct {
	v     *validator.Validate
	clock clock.Clock
}

// New builds a Validator whose notion of "now" comes from clk.
func New(clk clock.Clock) *Validator {
	if clk == nil {
		clk = clock.NewSystem()
	}
	val := &Validator{v: validator.New(validator.WithRequiredStructEnabled()), clock: clk}

	val.v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"form", "json"} {
			name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
			if name != "" && name != "-" {
				return name
			}
		}
		return f.Name
	})
	_ = val.v.RegisterValidation("future", val.future)
	_ = val.v.RegisterValidation("notblank", notBlank)
	_ = val.v.RegisterValidation("maxbytes", maxBytes)
	return val
}

func (val *Validator) future(fl validator.FieldLevel) bool {
	t, ok := fl.Field().Interface().(time.Time)
	return ok && t.After(val.clock.Now())
}

func notBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

func maxBytes(fl validator.FieldLevel) bool {
	n, err := strconv.Atoi(fl.Param())
	return err == nil && len(fl.Field().String()) <= n
}

// Struct validates s and returns an *Error for the first failure.
func (val *Validator) Struct(ctx context.Context, s any) error {
	err := val.v.StructCtx(ctx, s)
	if err == nil {
		return nil
	}
	var vErrs validator.ValidationErrors
	if !errors.As(err, &vErrs) || len(vErrs) == 0 {
		return fmt.Errorf("validate: %w", err)
	}
	fe := vErrs[0]
	return &Error{Field: fe.Field(), Message: message(fe)}
}

func message(fe validator.FieldError) string {
	isString := fe.Kind() == reflect.String
	switch fe.Tag() {
	case "required", "notblank":
		return "is required"
	case "min":
		if isString {
			return "must be at least " + fe.Param() + " characters"
		}
		return "must be at least " + fe.Param()
	case "max":
		if isString {
			return "must be at most " + fe.Param() + " characters"
		}
		return "must be at most " + fe.Param()
	case "maxbytes":
		return "must be at most " + fe.Param() + " bytes"
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "lt":
		return "must be less than " + fe.Param()
	case "email":
		return "must be a valid email address"
	case "future":
		return "must be in the future"
	default:
		return "is invalid"
	}
}
