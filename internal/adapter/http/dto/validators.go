package dto

import (
	"errors"
	"html"
	"reflect"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var safeStringRe = regexp.MustCompile(`^[a-zA-Z0-9_\-\.]+$`)

var errInvalidAmount = errors.New("amount must be a positive decimal")

// Amounts must fit NUMERIC(20,8).
const (
	maxAmountDigits = 12
	maxAmountScale  = 8
)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("safe_id", validateSafeID)
		_ = v.RegisterValidation("decimal_amount", validateDecimalAmount)
	}
}

// validateSafeID allows alphanumeric, underscore, dash, and dot.
func validateSafeID(fl validator.FieldLevel) bool {
	return IsSafeID(fl.Field().String())
}

// IsSafeID reports whether s is usable as a client-supplied key.
func IsSafeID(s string) bool {
	return len(s) <= 128 && safeStringRe.MatchString(s)
}

// validateDecimalAmount accepts a positive plain decimal such as "500" or "12.50".
func validateDecimalAmount(fl validator.FieldLevel) bool {
	_, err := ParseAmount(fl.Field().String())
	return err == nil
}

// ParseAmount parses a positive decimal string without exponent notation.
func ParseAmount(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if strings.ContainsAny(raw, "eE+") {
		return decimal.Zero, errInvalidAmount
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, err
	}
	if !d.IsPositive() {
		return decimal.Zero, errInvalidAmount
	}
	if len(d.Truncate(0).Abs().String()) > maxAmountDigits || d.Exponent() < -maxAmountScale {
		return decimal.Zero, errInvalidAmount
	}
	return d, nil
}

// SanitizeStruct trims whitespace and HTML-escapes every exported string
// field (including *string) of a struct pointer.
func SanitizeStruct(v interface{}) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Struct {
		return
	}
	sanitizeFields(rv.Elem())
}

func sanitizeFields(rv reflect.Value) {
	for i := 0; i < rv.NumField(); i++ {
		f := rv.Field(i)
		if !f.CanSet() {
			continue
		}
		switch f.Kind() {
		case reflect.String:
			f.SetString(sanitize(f.String()))
		case reflect.Ptr:
			if f.IsNil() {
				continue
			}
			elem := f.Elem()
			if elem.Kind() == reflect.String {
				elem.SetString(sanitize(elem.String()))
			}
		}
	}
}

func sanitize(s string) string {
	return html.EscapeString(strings.TrimSpace(s))
}
